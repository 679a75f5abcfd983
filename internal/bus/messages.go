package bus

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"eld-planner/internal/db"
	"eld-planner/internal/geo"
	"eld-planner/internal/hos"
)

// Error codes carried by ErrorReply.
const (
	CodeInvalidRequest = "invalid_request"
	CodeNotFound       = "not_found"
	CodeBusy           = "busy"
	CodeInternal       = "internal"
)

type ErrorReply struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ReplyError is returned by DecodeReply when the reply carried an ErrorReply.
type ReplyError struct {
	Code    string
	Message string
}

func (e *ReplyError) Error() string { return e.Code + ": " + e.Message }

// DecodeReply unmarshals data into out unless it is an ErrorReply.
func DecodeReply(data []byte, out any) error {
	var er ErrorReply
	if err := json.Unmarshal(data, &er); err == nil && er.Error != "" {
		return &ReplyError{Code: er.Code, Message: er.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// RouteLeg is one leg as produced by the routing service. Geometry is GeoJSON
// ordered ([lon, lat]).
type RouteLeg struct {
	DistanceMiles float64     `json:"distance_miles"`
	DurationHours float64     `json:"duration_hours"`
	Geometry      [][]float64 `json:"geometry,omitempty"`
}

func (l RouteLeg) toLeg() hos.Leg {
	return hos.Leg{
		DistanceMiles: l.DistanceMiles,
		Duration:      hos.Hours(l.DurationHours),
		Path:          geo.FromLonLat(l.Geometry),
	}
}

type PlanRequest struct {
	TripID           string   `json:"trip_id,omitempty"`
	DriverID         string   `json:"driver_id"`
	CurrentLocation  string   `json:"current_location"`
	PickupLocation   string   `json:"pickup_location"`
	DropoffLocation  string   `json:"dropoff_location"`
	CurrentCycleUsed *float64 `json:"current_cycle_used,omitempty"` // hours; omitted means derive from history
	StartTime        string   `json:"start_time,omitempty"`         // RFC3339; omitted means now
	ToPickup         RouteLeg `json:"to_pickup"`
	ToDropoff        RouteLeg `json:"to_dropoff"`
	VehicleNumber    string   `json:"vehicle_number,omitempty"`
	TrailerNumber    string   `json:"trailer_number,omitempty"`
	ShipperName      string   `json:"shipper_name,omitempty"`
	ShipperCommodity string   `json:"shipper_commodity,omitempty"`
	LoadNumber       string   `json:"load_number,omitempty"`
}

// HasCycleUsed reports whether the caller supplied the hours already used.
func (r PlanRequest) HasCycleUsed() bool { return r.CurrentCycleUsed != nil }

// ToHOS converts the wire request. A missing start time stays zero and a missing
// cycle stays 0; the caller fills both.
func (r PlanRequest) ToHOS() (hos.Request, error) {
	req := hos.Request{
		TripID:          strings.TrimSpace(r.TripID),
		DriverID:        strings.TrimSpace(r.DriverID),
		CurrentLocation: r.CurrentLocation,
		PickupLocation:  r.PickupLocation,
		DropoffLocation: r.DropoffLocation,
		ToPickup:        r.ToPickup.toLeg(),
		ToDropoff:       r.ToDropoff.toLeg(),
		Header: hos.LogHeader{
			VehicleNumber: r.VehicleNumber,
			TrailerNumber: r.TrailerNumber,
			ShipperName:   r.ShipperName,
			Commodity:     r.ShipperCommodity,
			LoadNumber:    r.LoadNumber,
		},
	}
	if r.CurrentCycleUsed != nil {
		h := *r.CurrentCycleUsed
		if math.IsNaN(h) || math.IsInf(h, 0) {
			return req, fmt.Errorf("%w: current_cycle_used %v", hos.ErrInvalidRequest, h)
		}
		req.CycleUsed = hos.Hours(h)
	}
	if s := strings.TrimSpace(r.StartTime); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return req, fmt.Errorf("%w: start_time %q", hos.ErrInvalidRequest, s)
		}
		req.Start = t
	}
	return req, nil
}

type StopMessage struct {
	Location      string     `json:"location"`
	StopType      string     `json:"stop_type"`
	ArrivalTime   time.Time  `json:"arrival_time"`
	DepartureTime time.Time  `json:"departure_time"`
	Duration      float64    `json:"duration"` // hours
	MileMarker    float64    `json:"mile_marker"`
	Point         *geo.Point `json:"point,omitempty"`
}

type EventMessage struct {
	DutyEventStatus string    `json:"duty_event_status"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	Duration        int       `json:"duration"` // minutes
	TruckMoved      bool      `json:"truck_moved"`
	Location        string    `json:"location"`
	Remarks         string    `json:"remarks"`
	Miles           float64   `json:"miles,omitempty"`
}

// DailyLogMessage totals are in minutes.
type DailyLogMessage struct {
	TripID                string         `json:"trip_id"`
	DriverID              string         `json:"driver_id"`
	Date                  string         `json:"date"`
	TotalOffDutyTime      float64        `json:"total_off_duty_time"`
	TotalSleeperBerthTime float64        `json:"total_sleeper_berth_time"`
	TotalDrivingTime      float64        `json:"total_driving_time"`
	TotalOnDutyTime       float64        `json:"total_on_duty_time"`
	TotalDrivingMiles     float64        `json:"total_driving_miles"`
	TotalHours            float64        `json:"total_hours"`
	VehicleNumber         string         `json:"vehicle_number"`
	TrailerNumber         string         `json:"trailer_number"`
	ShipperName           string         `json:"shipper_name"`
	ShipperCommodity      string         `json:"shipper_commodity"`
	LoadNumber            string         `json:"load_number"`
	DutyEvents            []EventMessage `json:"duty_events"`
}

type PlanResponse struct {
	TripID           string            `json:"trip_id"`
	DriverID         string            `json:"driver_id"`
	CurrentLocation  string            `json:"current_location"`
	PickupLocation   string            `json:"pickup_location"`
	DropoffLocation  string            `json:"dropoff_location"`
	CurrentCycleUsed float64           `json:"current_cycle_used"`
	CycleUsedEnd     float64           `json:"cycle_used_end"`
	StartTime        time.Time         `json:"start_time"`
	EndTime          time.Time         `json:"end_time"`
	TotalMiles       float64           `json:"total_miles"`
	DriveTime        float64           `json:"drive_time"` // hours
	Restarts         int               `json:"restarts"`
	Stops            []StopMessage     `json:"stops"`
	DutyEvents       []EventMessage    `json:"duty_events"`
	DailyLogs        []DailyLogMessage `json:"daily_logs"`
	Route            *RouteMessage     `json:"route,omitempty"`
	Violations       []string          `json:"violations,omitempty"`
}

// RouteMessage carries what a map needs to redraw the trip. Geometry is
// GeoJSON ordered ([lon, lat]).
type RouteMessage struct {
	ToPickup    [][]float64      `json:"to_pickup,omitempty"`
	ToDropoff   [][]float64      `json:"to_dropoff,omitempty"`
	Coordinates RouteCoordinates `json:"coordinates"`
}

type RouteCoordinates struct {
	Start   *geo.Point `json:"start,omitempty"`
	Pickup  *geo.Point `json:"pickup,omitempty"`
	Dropoff *geo.Point `json:"dropoff,omitempty"`
}

func newRouteMessage(r hos.Route) *RouteMessage {
	if r.Empty() {
		return nil
	}
	return &RouteMessage{
		ToPickup:  geo.ToLonLat(r.ToPickup),
		ToDropoff: geo.ToLonLat(r.ToDropoff),
		Coordinates: RouteCoordinates{
			Start:   r.Start(),
			Pickup:  r.Pickup(),
			Dropoff: r.Dropoff(),
		},
	}
}

// NewPlanResponse renders a plan; req supplies the locations and starting cycle.
func NewPlanResponse(p *hos.Plan, req hos.Request, violations []hos.Violation) PlanResponse {
	resp := PlanResponse{
		TripID:           p.TripID,
		DriverID:         p.DriverID,
		CurrentLocation:  req.CurrentLocation,
		PickupLocation:   req.PickupLocation,
		DropoffLocation:  req.DropoffLocation,
		CurrentCycleUsed: round2(req.CycleUsed.Hours()),
		CycleUsedEnd:     round2(p.CycleUsedEnd.Hours()),
		StartTime:        p.Start,
		EndTime:          p.End,
		TotalMiles:       round2(p.TotalMiles),
		DriveTime:        round2(p.TotalDriving.Hours()),
		Restarts:         p.Restarts,
		Stops:            make([]StopMessage, 0, len(p.Stops)),
		DutyEvents:       newEventMessages(p.Events),
		DailyLogs:        make([]DailyLogMessage, 0, len(p.Logs)),
		Route:            newRouteMessage(p.Route),
	}
	for _, st := range p.Stops {
		resp.Stops = append(resp.Stops, StopMessage{
			Location:      st.Location,
			StopType:      string(st.Type),
			ArrivalTime:   st.Arrival,
			DepartureTime: st.Departure,
			Duration:      round2(st.Duration().Hours()),
			MileMarker:    round2(st.MileMarker),
			Point:         st.Point,
		})
	}
	for _, l := range p.Logs {
		resp.DailyLogs = append(resp.DailyLogs, NewDailyLogMessage(p.TripID, p.DriverID, l))
	}
	for _, v := range violations {
		resp.Violations = append(resp.Violations, v.String())
	}
	return resp
}

func NewDailyLogMessage(tripID, driverID string, l hos.DailyLog) DailyLogMessage {
	return DailyLogMessage{
		TripID:                tripID,
		DriverID:              driverID,
		Date:                  l.Date.Format(time.DateOnly),
		TotalOffDutyTime:      round2(l.OffDuty.Minutes()),
		TotalSleeperBerthTime: round2(l.SleeperBerth.Minutes()),
		TotalDrivingTime:      round2(l.Driving.Minutes()),
		TotalOnDutyTime:       round2(l.OnDuty.Minutes()),
		TotalDrivingMiles:     round2(l.Miles),
		TotalHours:            round2(l.Total().Hours()),
		VehicleNumber:         l.Header.VehicleNumber,
		TrailerNumber:         l.Header.TrailerNumber,
		ShipperName:           l.Header.ShipperName,
		ShipperCommodity:      l.Header.Commodity,
		LoadNumber:            l.Header.LoadNumber,
		DutyEvents:            newEventMessages(l.Events),
	}
}

func newEventMessages(events []hos.Event) []EventMessage {
	out := make([]EventMessage, 0, len(events))
	for _, e := range events {
		out = append(out, EventMessage{
			DutyEventStatus: string(e.Status),
			StartTime:       e.Start,
			EndTime:         e.End,
			Duration:        int(e.Duration() / time.Minute),
			TruckMoved:      e.TruckMoved,
			Location:        e.Location,
			Remarks:         e.Remarks,
			Miles:           round2(e.Miles),
		})
	}
	return out
}

// TripPlanned is published once a plan has been stored.
type TripPlanned struct {
	TripID     string    `json:"trip_id"`
	DriverID   string    `json:"driver_id"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	TotalMiles float64   `json:"total_miles"`
	DriveTime  float64   `json:"drive_time"`
	Stops      int       `json:"stops"`
	Days       int       `json:"days"`
	Restarts   int       `json:"restarts"`
	Violations int       `json:"violations"`
	PlannedAt  time.Time `json:"planned_at"`
}

type TripRef struct {
	TripID string `json:"trip_id"`
}

// TripListRequest filters a trip listing; an empty driver lists everyone and a
// zero limit uses the store default.
type TripListRequest struct {
	DriverID string `json:"driver_id,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type TripSummaryMessage struct {
	TripID           string    `json:"trip_id"`
	DriverID         string    `json:"driver_id"`
	CurrentLocation  string    `json:"current_location"`
	PickupLocation   string    `json:"pickup_location"`
	DropoffLocation  string    `json:"dropoff_location"`
	CurrentCycleUsed float64   `json:"current_cycle_used"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`
	TotalMiles       float64   `json:"total_miles"`
	DriveTime        float64   `json:"drive_time"`
	Restarts         int       `json:"restarts"`
	Stops            int       `json:"stops"`
	CreatedAt        time.Time `json:"created_at"`
}

type TripList struct {
	Trips []TripSummaryMessage `json:"trips"`
}

func NewTripList(trips []db.TripSummary) TripList {
	out := TripList{Trips: make([]TripSummaryMessage, 0, len(trips))}
	for _, t := range trips {
		out.Trips = append(out.Trips, TripSummaryMessage{
			TripID:           t.TripID,
			DriverID:         t.DriverID,
			CurrentLocation:  t.CurrentLocation,
			PickupLocation:   t.PickupLocation,
			DropoffLocation:  t.DropoffLocation,
			CurrentCycleUsed: round2(t.CycleUsed.Hours()),
			StartTime:        t.Start,
			EndTime:          t.End,
			TotalMiles:       round2(t.TotalMiles),
			DriveTime:        round2(t.TotalDriving.Hours()),
			Restarts:         t.Restarts,
			Stops:            t.Stops,
			CreatedAt:        t.CreatedAt,
		})
	}
	return out
}

type Deleted struct {
	TripID  string `json:"trip_id"`
	Deleted bool   `json:"deleted"`
}

type RecapRequest struct {
	DriverID string `json:"driver_id"`
	At       string `json:"at,omitempty"` // RFC3339; omitted means now
}

type RecapMessage struct {
	DriverID          string     `json:"driver_id"`
	At                time.Time  `json:"at"`
	Cycle             string     `json:"cycle"`
	WindowStart       time.Time  `json:"window_start"`
	LastRestart       *time.Time `json:"last_restart,omitempty"`
	CurrentCycleHours float64    `json:"current_cycle_hours"`
	AvailableHours    float64    `json:"available_hours"`
	ComplianceStatus  string     `json:"compliance_status"`
	CanDriveFullShift bool       `json:"can_drive_full_shift"`
	MaxDailyDriving   float64    `json:"max_daily_driving"`
	MaxDutyWindow     float64    `json:"max_duty_window"`
	RecentTrips       int        `json:"recent_trips"`
}

func NewRecapMessage(driverID string, rc hos.Recap, rules hos.Rules) RecapMessage {
	msg := RecapMessage{
		DriverID:          driverID,
		At:                rc.Now,
		Cycle:             string(rules.Cycle),
		WindowStart:       rc.WindowStart,
		CurrentCycleHours: round2(rc.Used.Hours()),
		AvailableHours:    round2(rc.Available.Hours()),
		ComplianceStatus:  "compliant",
		CanDriveFullShift: rc.CanDriveFullShift,
		MaxDailyDriving:   rules.DrivingLimit.Hours(),
		MaxDutyWindow:     rules.DutyWindow.Hours(),
	}
	if !rc.Compliant || rc.Available == 0 {
		msg.ComplianceStatus = "violation"
	}
	if !rc.LastRestart.IsZero() {
		lr := rc.LastRestart
		msg.LastRestart = &lr
	}
	return msg
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }
