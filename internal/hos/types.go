package hos

import (
	"time"

	"eld-planner/internal/geo"
)

type DutyStatus string

const (
	OffDuty      DutyStatus = "off_duty"
	SleeperBerth DutyStatus = "sleeper_berth"
	Driving      DutyStatus = "driving"
	OnDuty       DutyStatus = "on_duty"
)

// Valid reports whether s is one of the four ELD duty statuses.
func (s DutyStatus) Valid() bool {
	switch s {
	case OffDuty, SleeperBerth, Driving, OnDuty:
		return true
	}
	return false
}

// Resting reports whether time in this status counts toward a qualifying rest.
func (s DutyStatus) Resting() bool { return s == OffDuty || s == SleeperBerth }

type StopType string

const (
	StopPreTrip  StopType = "pretrip"
	StopPostTrip StopType = "posttrip"
	StopPickup   StopType = "pickup"
	StopDropoff  StopType = "dropoff"
	StopFuel     StopType = "fuel"
	StopBreak    StopType = "break"
	StopRest     StopType = "rest"
	StopRestart  StopType = "restart"
)

// Leg is one routed section of the trip as returned by the routing collaborator.
type Leg struct {
	From          string
	To            string
	DistanceMiles float64
	Duration      time.Duration
	Path          []geo.Point // optional polyline, first point at From
}

// LogHeader carries the per-sheet fields copied onto every daily log.
type LogHeader struct {
	VehicleNumber string
	TrailerNumber string
	ShipperName   string
	Commodity     string
	LoadNumber    string
}

const (
	DefaultVehicleNumber = "P0000"
	DefaultTrailerNumber = "T00000"
)

func (h LogHeader) withDefaults() LogHeader {
	if h.VehicleNumber == "" {
		h.VehicleNumber = DefaultVehicleNumber
	}
	if h.TrailerNumber == "" {
		h.TrailerNumber = DefaultTrailerNumber
	}
	return h
}

type Request struct {
	TripID          string
	DriverID        string
	CurrentLocation string
	PickupLocation  string
	DropoffLocation string
	CycleUsed       time.Duration
	Start           time.Time
	ToPickup        Leg
	ToDropoff       Leg
	Header          LogHeader
}

// Event is a single duty status interval.
type Event struct {
	Status     DutyStatus
	Start      time.Time
	End        time.Time
	Location   string
	Remarks    string
	TruckMoved bool
	Miles      float64
}

func (e Event) Duration() time.Duration { return e.End.Sub(e.Start) }

type Stop struct {
	Type       StopType
	Location   string
	Point      *geo.Point
	MileMarker float64 // trip miles driven on arrival
	Arrival    time.Time
	Departure  time.Time
}

func (s Stop) Duration() time.Duration { return s.Departure.Sub(s.Arrival) }

// DailyLog is one calendar day of a driver's record of duty status.
type DailyLog struct {
	Date         time.Time // local midnight
	OffDuty      time.Duration
	SleeperBerth time.Duration
	Driving      time.Duration
	OnDuty       time.Duration
	Miles        float64
	Header       LogHeader
	Events       []Event
}

// Total of all four statuses; equals the calendar day length for a complete sheet.
func (l DailyLog) Total() time.Duration {
	return l.OffDuty + l.SleeperBerth + l.Driving + l.OnDuty
}

// OnDutyTotal is driving plus on-duty not driving, the figure counted against the cycle.
func (l DailyLog) OnDutyTotal() time.Duration { return l.Driving + l.OnDuty }

type Plan struct {
	TripID       string
	DriverID     string
	Start        time.Time
	End          time.Time
	Events       []Event
	Stops        []Stop
	Logs         []DailyLog
	TotalMiles   float64
	TotalDriving time.Duration
	CycleUsedEnd time.Duration
	Restarts     int
	Header       LogHeader
	Route        Route
}

// Route keeps the leg polylines a plan was built from so it can be redrawn.
type Route struct {
	ToPickup  []geo.Point
	ToDropoff []geo.Point
}

// Empty reports whether neither leg carried geometry.
func (r Route) Empty() bool { return len(r.ToPickup) == 0 && len(r.ToDropoff) == 0 }

// Start is the first point of the route, if known.
func (r Route) Start() *geo.Point {
	switch {
	case len(r.ToPickup) > 0:
		return firstPoint(r.ToPickup)
	case len(r.ToDropoff) > 0:
		return firstPoint(r.ToDropoff)
	}
	return nil
}

// Pickup is the end of the first leg or, failing that, the start of the second.
func (r Route) Pickup() *geo.Point {
	if n := len(r.ToPickup); n > 0 {
		p := r.ToPickup[n-1]
		return &p
	}
	return firstPoint(r.ToDropoff)
}

func (r Route) Dropoff() *geo.Point {
	if n := len(r.ToDropoff); n > 0 {
		p := r.ToDropoff[n-1]
		return &p
	}
	return nil
}
