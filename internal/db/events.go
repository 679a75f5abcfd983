package db

import (
	"context"
	"fmt"
	"time"

	"eld-planner/internal/hos"
)

// FetchDutyEvents returns a driver's events overlapping [since, until), across
// all stored trips except excludeTripID, ordered by start. Pass an empty
// excludeTripID to include every trip.
func (s *Store) FetchDutyEvents(ctx context.Context, driverID string, since, until time.Time, excludeTripID string) ([]hos.Event, error) {
	return s.queryEvents(ctx, `
SELECT status, start_at, end_at, location, remarks, truck_moved, miles
FROM duty_events
WHERE driver_id = $1 AND end_at > $2 AND start_at < $3 AND trip_id <> $4
ORDER BY start_at, seq`, driverID, since, until, excludeTripID)
}

// ListActiveDrivers returns drivers with any duty event ending after since.
func (s *Store) ListActiveDrivers(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT driver_id FROM duty_events
WHERE end_at > $1 AND driver_id <> ''
ORDER BY driver_id`, since)
	if err != nil {
		return nil, fmt.Errorf("query active drivers: %w", err)
	}
	defer rows.Close()

	var drivers []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

func (s *Store) queryEvents(ctx context.Context, q string, args ...any) ([]hos.Event, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query duty_events: %w", err)
	}
	defer rows.Close()

	var events []hos.Event
	for rows.Next() {
		var (
			e      hos.Event
			status string
		)
		if err := rows.Scan(&status, &e.Start, &e.End, &e.Location, &e.Remarks, &e.TruckMoved, &e.Miles); err != nil {
			return nil, err
		}
		e.Status = hos.DutyStatus(status)
		e.Start = e.Start.In(s.loc)
		e.End = e.End.In(s.loc)
		events = append(events, e)
	}
	return events, rows.Err()
}
