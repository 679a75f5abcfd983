package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"eld-planner/internal/geo"
	"eld-planner/internal/hos"
)

// Trip is a stored plan together with the request fields it was planned from.
type Trip struct {
	Plan            *hos.Plan
	CurrentLocation string
	PickupLocation  string
	DropoffLocation string
	CycleUsed       time.Duration
	CreatedAt       time.Time
}

// SavePlan writes the plan, its stops and its duty events in one transaction,
// replacing whatever was stored for the trip before.
func (s *Store) SavePlan(ctx context.Context, plan *hos.Plan, req hos.Request) (err error) {
	if plan == nil || plan.TripID == "" {
		return errors.New("save plan: missing trip id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	route, err := json.Marshal(routeJSON{
		ToPickup:  geo.ToLonLat(plan.Route.ToPickup),
		ToDropoff: geo.ToLonLat(plan.Route.ToDropoff),
	})
	if err != nil {
		return fmt.Errorf("encode route: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM trip_plans WHERE trip_id = $1`, plan.TripID); err != nil {
		return fmt.Errorf("delete previous plan: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO trip_plans
  (trip_id, driver_id, current_location, pickup_location, dropoff_location,
   cycle_used_sec, cycle_used_end_sec, start_at, end_at, total_miles, total_driving_sec,
   restarts, vehicle_number, trailer_number, shipper_name, commodity, load_number, route)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
		plan.TripID, plan.DriverID, req.CurrentLocation, req.PickupLocation, req.DropoffLocation,
		seconds(req.CycleUsed), seconds(plan.CycleUsedEnd), plan.Start, plan.End,
		plan.TotalMiles, seconds(plan.TotalDriving), plan.Restarts,
		plan.Header.VehicleNumber, plan.Header.TrailerNumber, plan.Header.ShipperName,
		plan.Header.Commodity, plan.Header.LoadNumber, string(route),
	)
	if err != nil {
		return fmt.Errorf("insert trip_plans: %w", err)
	}

	for i, st := range plan.Stops {
		var lat, lng sql.NullFloat64
		if st.Point != nil {
			lat = sql.NullFloat64{Float64: st.Point.Lat, Valid: true}
			lng = sql.NullFloat64{Float64: st.Point.Lon, Valid: true}
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO trip_stops (id, trip_id, seq, stop_type, location, lat, lng, mile_marker, arrival, departure)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			uuid.New(), plan.TripID, i, string(st.Type), st.Location, lat, lng, st.MileMarker, st.Arrival, st.Departure,
		)
		if err != nil {
			return fmt.Errorf("insert trip_stops: %w", err)
		}
	}

	for i, e := range plan.Events {
		_, err = tx.ExecContext(ctx, `
INSERT INTO duty_events (id, trip_id, driver_id, seq, status, start_at, end_at, location, remarks, truck_moved, miles)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			uuid.New(), plan.TripID, plan.DriverID, i, string(e.Status), e.Start, e.End, e.Location, e.Remarks, e.TruckMoved, e.Miles,
		)
		if err != nil {
			return fmt.Errorf("insert duty_events: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FetchPlan loads a stored trip. Daily logs are rebuilt from its events.
func (s *Store) FetchPlan(ctx context.Context, tripID string) (*Trip, error) {
	var (
		t                                 Trip
		p                                 hos.Plan
		cycleSec, cycleEndSec, drivingSec int64
		route                             []byte
	)
	err := s.db.QueryRowContext(ctx, `
SELECT trip_id, driver_id, current_location, pickup_location, dropoff_location,
       cycle_used_sec, cycle_used_end_sec, start_at, end_at, total_miles, total_driving_sec,
       restarts, vehicle_number, trailer_number, shipper_name, commodity, load_number, route, created_at
FROM trip_plans WHERE trip_id = $1`, tripID).Scan(
		&p.TripID, &p.DriverID, &t.CurrentLocation, &t.PickupLocation, &t.DropoffLocation,
		&cycleSec, &cycleEndSec, &p.Start, &p.End, &p.TotalMiles, &drivingSec,
		&p.Restarts, &p.Header.VehicleNumber, &p.Header.TrailerNumber, &p.Header.ShipperName,
		&p.Header.Commodity, &p.Header.LoadNumber, &route, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("trip %q: %w", tripID, ErrNotFound)
		}
		return nil, fmt.Errorf("query trip_plans: %w", err)
	}
	t.CycleUsed = time.Duration(cycleSec) * time.Second
	p.CycleUsedEnd = time.Duration(cycleEndSec) * time.Second
	p.TotalDriving = time.Duration(drivingSec) * time.Second
	p.Start = p.Start.In(s.loc)
	p.End = p.End.In(s.loc)
	if p.Route, err = decodeRoute(route); err != nil {
		return nil, fmt.Errorf("trip %q: %w", tripID, err)
	}

	if p.Stops, err = s.fetchStops(ctx, tripID); err != nil {
		return nil, err
	}
	if p.Events, err = s.queryEvents(ctx, `
SELECT status, start_at, end_at, location, remarks, truck_moved, miles
FROM duty_events WHERE trip_id = $1 ORDER BY seq`, tripID); err != nil {
		return nil, err
	}
	p.Logs = hos.BuildDailyLogs(p.Events, s.loc, p.Header)
	t.Plan = &p
	return &t, nil
}

func (s *Store) fetchStops(ctx context.Context, tripID string) ([]hos.Stop, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT stop_type, location, lat, lng, mile_marker, arrival, departure
FROM trip_stops WHERE trip_id = $1 ORDER BY seq`, tripID)
	if err != nil {
		return nil, fmt.Errorf("query trip_stops: %w", err)
	}
	defer rows.Close()

	var stops []hos.Stop
	for rows.Next() {
		var (
			st       hos.Stop
			typ      string
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&typ, &st.Location, &lat, &lng, &st.MileMarker, &st.Arrival, &st.Departure); err != nil {
			return nil, err
		}
		st.Type = hos.StopType(typ)
		if lat.Valid && lng.Valid {
			st.Point = &geo.Point{Lat: lat.Float64, Lon: lng.Float64}
		}
		st.Arrival = st.Arrival.In(s.loc)
		st.Departure = st.Departure.In(s.loc)
		stops = append(stops, st)
	}
	return stops, rows.Err()
}

// DeletePlan removes a trip with its stops and events.
func (s *Store) DeletePlan(ctx context.Context, tripID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trip_plans WHERE trip_id = $1`, tripID)
	if err != nil {
		return fmt.Errorf("delete trip_plans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("trip %q: %w", tripID, ErrNotFound)
	}
	return nil
}

// TripSummary is one row of a trip listing.
type TripSummary struct {
	TripID          string
	DriverID        string
	CurrentLocation string
	PickupLocation  string
	DropoffLocation string
	CycleUsed       time.Duration
	Start           time.Time
	End             time.Time
	TotalMiles      float64
	TotalDriving    time.Duration
	Restarts        int
	Stops           int
	CreatedAt       time.Time
}

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// ListTrips returns the most recently created trips, newest first. An empty
// driverID lists every driver; limit is clamped to [1, MaxListLimit] and
// defaults to DefaultListLimit.
func (s *Store) ListTrips(ctx context.Context, driverID string, limit int) ([]TripSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	rows, err := s.db.QueryContext(ctx, `
SELECT p.trip_id, p.driver_id, p.current_location, p.pickup_location, p.dropoff_location,
       p.cycle_used_sec, p.start_at, p.end_at, p.total_miles, p.total_driving_sec, p.restarts,
       (SELECT count(*) FROM trip_stops st WHERE st.trip_id = p.trip_id), p.created_at
FROM trip_plans p
WHERE $1 = '' OR p.driver_id = $1
ORDER BY p.created_at DESC, p.trip_id
LIMIT $2`, driverID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trip_plans: %w", err)
	}
	defer rows.Close()

	var trips []TripSummary
	for rows.Next() {
		var (
			t                    TripSummary
			cycleSec, drivingSec int64
		)
		if err := rows.Scan(&t.TripID, &t.DriverID, &t.CurrentLocation, &t.PickupLocation, &t.DropoffLocation,
			&cycleSec, &t.Start, &t.End, &t.TotalMiles, &drivingSec, &t.Restarts, &t.Stops, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.CycleUsed = time.Duration(cycleSec) * time.Second
		t.TotalDriving = time.Duration(drivingSec) * time.Second
		t.Start = t.Start.In(s.loc)
		t.End = t.End.In(s.loc)
		trips = append(trips, t)
	}
	return trips, rows.Err()
}

// CountTrips returns how many trips are stored for driverID.
func (s *Store) CountTrips(ctx context.Context, driverID string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM trip_plans WHERE driver_id = $1`, driverID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count trip_plans: %w", err)
	}
	return n, nil
}

// routeJSON is the stored form of hos.Route, GeoJSON ordered.
type routeJSON struct {
	ToPickup  [][]float64 `json:"to_pickup,omitempty"`
	ToDropoff [][]float64 `json:"to_dropoff,omitempty"`
}

func decodeRoute(b []byte) (hos.Route, error) {
	if len(b) == 0 {
		return hos.Route{}, nil
	}
	var r routeJSON
	if err := json.Unmarshal(b, &r); err != nil {
		return hos.Route{}, fmt.Errorf("decode route: %w", err)
	}
	return hos.Route{ToPickup: geo.FromLonLat(r.ToPickup), ToDropoff: geo.FromLonLat(r.ToDropoff)}, nil
}

func seconds(d time.Duration) int64 { return int64(d / time.Second) }
