package hos

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"eld-planner/internal/geo"
)

var ErrInvalidRequest = errors.New("invalid trip request")

// A limit with less than minStep left counts as exhausted.
const minStep = time.Second

// Planner lays out an HOS-compliant duty schedule for a trip.
// It is stateless and safe for concurrent use.
type Planner struct {
	rules Rules
	loc   *time.Location
}

// NewPlanner returns a planner for rules; loc is the home terminal time zone
// used to cut daily logs and defaults to UTC.
func NewPlanner(rules Rules, loc *time.Location) (*Planner, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Planner{rules: rules, loc: loc}, nil
}

func (p *Planner) Rules() Rules             { return p.rules }
func (p *Planner) Location() *time.Location { return p.loc }

// Plan simulates the trip: pre-trip inspection at the current location, the drive to
// pickup, loading, the drive to dropoff, unloading and a post-trip inspection, with
// breaks, fuel stops, rests and restarts inserted wherever a limit would be exceeded.
func (p *Planner) Plan(req Request) (*Plan, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	toPickup := withEnds(req.ToPickup, req.CurrentLocation, req.PickupLocation)
	toDropoff := withEnds(req.ToDropoff, req.PickupLocation, req.DropoffLocation)

	s := &schedule{
		rules:     p.rules,
		clock:     req.Start.In(p.loc),
		cycleUsed: req.CycleUsed,
		location:  req.CurrentLocation,
		point:     firstPoint(toPickup.Path),
	}

	s.prepare(0)
	s.drive(toPickup)
	s.work(p.rules.Pickup, StopPickup, "Pickup - loading")
	s.drive(toDropoff)
	s.work(p.rules.Dropoff, StopDropoff, "Dropoff - unloading")
	s.work(p.rules.PostTrip, StopPostTrip, "Post-trip inspection")

	header := req.Header.withDefaults()
	plan := &Plan{
		TripID:       req.TripID,
		DriverID:     req.DriverID,
		Start:        req.Start.In(p.loc),
		End:          s.clock,
		Events:       s.events,
		Stops:        s.stops,
		TotalMiles:   s.tripMiles,
		CycleUsedEnd: s.cycleUsed,
		Restarts:     s.restarts,
		Header:       header,
		Route:        Route{ToPickup: req.ToPickup.Path, ToDropoff: req.ToDropoff.Path},
	}
	for _, e := range s.events {
		if e.Status == Driving {
			plan.TotalDriving += e.Duration()
		}
	}
	plan.Logs = BuildDailyLogs(s.events, p.loc, header)
	return plan, nil
}

func validateRequest(req Request) error {
	if req.Start.IsZero() {
		return fmt.Errorf("%w: start time is required", ErrInvalidRequest)
	}
	if req.CycleUsed < 0 {
		return fmt.Errorf("%w: cycle hours used must not be negative", ErrInvalidRequest)
	}
	for name, leg := range map[string]Leg{"pickup": req.ToPickup, "dropoff": req.ToDropoff} {
		if math.IsNaN(leg.DistanceMiles) || math.IsInf(leg.DistanceMiles, 0) || leg.DistanceMiles < 0 {
			return fmt.Errorf("%w: %s leg distance %v", ErrInvalidRequest, name, leg.DistanceMiles)
		}
		if leg.Duration < 0 {
			return fmt.Errorf("%w: %s leg duration %s", ErrInvalidRequest, name, leg.Duration)
		}
		if leg.DistanceMiles > 0 && leg.Duration == 0 {
			return fmt.Errorf("%w: %s leg has distance but no duration", ErrInvalidRequest, name)
		}
	}
	return nil
}

func withEnds(l Leg, from, to string) Leg {
	if l.From == "" {
		l.From = from
	}
	if l.To == "" {
		l.To = to
	}
	return l
}

// schedule is the mutable state of one planning run.
type schedule struct {
	rules Rules
	clock time.Time

	onShift      bool
	shiftStart   time.Time
	shiftDriving time.Duration
	sinceBreak   time.Duration // driving since the last 30-minute interruption
	cycleUsed    time.Duration

	milesSinceFuel float64
	tripMiles      float64
	location       string
	point          *geo.Point

	events   []Event
	stops    []Stop
	restarts int
}

func (s *schedule) windowUsed() time.Duration {
	if !s.onShift {
		return 0
	}
	return s.clock.Sub(s.shiftStart)
}

func (s *schedule) addEvent(status DutyStatus, d time.Duration, remarks string, moved bool, miles float64) {
	if d <= 0 {
		return
	}
	e := Event{
		Status:     status,
		Start:      s.clock,
		End:        s.clock.Add(d),
		Location:   s.location,
		Remarks:    remarks,
		TruckMoved: moved,
		Miles:      miles,
	}
	s.events = append(s.events, e)
	s.clock = e.End
	if status == Driving || status == OnDuty {
		s.cycleUsed += d
	}
}

func (s *schedule) addStop(t StopType, arrival time.Time) {
	if !s.clock.After(arrival) {
		return
	}
	st := Stop{
		Type:       t,
		Location:   s.location,
		MileMarker: s.tripMiles,
		Arrival:    arrival,
		Departure:  s.clock,
	}
	if s.point != nil {
		p := *s.point
		st.Point = &p
	}
	s.stops = append(s.stops, st)
}

// prepare makes room for an on-duty task of length d: a restart if the cycle
// cannot absorb it, a new shift if none is open, a rest if the window is too short.
func (s *schedule) prepare(d time.Duration) {
	for {
		need := d
		if !s.onShift {
			need += s.rules.PreTrip
		}
		switch {
		case s.cycleUsed+need > s.rules.CycleLimit:
			s.restart()
		case !s.onShift:
			s.beginShift()
		case s.windowUsed()+d > s.rules.DutyWindow:
			s.rest()
		default:
			return
		}
	}
}

func (s *schedule) beginShift() {
	s.onShift = true
	s.shiftStart = s.clock
	s.shiftDriving = 0
	s.sinceBreak = 0
	start := s.clock
	s.addEvent(OnDuty, s.rules.PreTrip, "Pre-trip inspection", false, 0)
	s.addStop(StopPreTrip, start)
}

func (s *schedule) closeShift() {
	s.onShift = false
	s.shiftDriving = 0
	s.sinceBreak = 0
}

func (s *schedule) rest() {
	start := s.clock
	s.addEvent(SleeperBerth, s.rules.ResetRest, hoursLabel(s.rules.ResetRest)+" rest period", false, 0)
	s.addStop(StopRest, start)
	s.closeShift()
}

func (s *schedule) restart() {
	start := s.clock
	s.addEvent(OffDuty, s.rules.Restart, hoursLabel(s.rules.Restart)+" restart", false, 0)
	s.addStop(StopRestart, start)
	s.closeShift()
	s.cycleUsed = 0
	s.restarts++
}

func (s *schedule) takeBreak() {
	start := s.clock
	s.addEvent(OffDuty, s.rules.BreakDuration, minutesLabel(s.rules.BreakDuration)+" break", false, 0)
	s.addStop(StopBreak, start)
	s.sinceBreak = 0
}

func (s *schedule) refuel() {
	s.work(s.rules.FuelStop, StopFuel, "Fueling")
	s.milesSinceFuel = 0
}

// work records an on-duty, not driving task at the current location.
func (s *schedule) work(d time.Duration, t StopType, remarks string) {
	if d <= 0 {
		return
	}
	s.prepare(d)
	start := s.clock
	s.addEvent(OnDuty, d, remarks, false, 0)
	s.addStop(t, start)
	if d >= s.rules.BreakDuration {
		s.sinceBreak = 0
	}
}

func (s *schedule) drive(leg Leg) {
	if leg.Duration <= 0 {
		s.arrive(leg)
		return
	}
	mph := leg.DistanceMiles / leg.Duration.Hours()
	remaining := leg.Duration
	legMiles := 0.0
	for remaining > 0 {
		if !s.onShift {
			s.prepare(0)
			continue
		}
		cycleLeft := s.rules.CycleLimit - s.cycleUsed
		driveLeft := s.rules.DrivingLimit - s.shiftDriving
		windowLeft := s.rules.DutyWindow - s.windowUsed()
		breakLeft := s.rules.BreakAfter - s.sinceBreak
		fuelLeft := remaining
		if mph > 0 {
			fuelLeft = floorSeconds((s.rules.FuelIntervalMiles - s.milesSinceFuel) / mph)
			// a fresh tank always covers at least one step
			if s.milesSinceFuel == 0 && fuelLeft < minStep {
				fuelLeft = minStep
			}
		}
		exhausted := func(left time.Duration) bool { return left < minStep && left < remaining }

		switch {
		case exhausted(cycleLeft):
			s.restart()
			continue
		case exhausted(driveLeft), exhausted(windowLeft):
			s.rest()
			continue
		case exhausted(fuelLeft):
			s.refuel()
			continue
		case exhausted(breakLeft):
			if windowLeft <= s.rules.BreakDuration {
				s.rest()
			} else {
				s.takeBreak()
			}
			continue
		}

		chunk := min(remaining, cycleLeft, driveLeft, windowLeft, breakLeft, fuelLeft)
		miles := mph * chunk.Hours()
		if chunk == remaining {
			miles = leg.DistanceMiles - legMiles
		}
		s.addEvent(Driving, chunk, "Driving to "+leg.To, true, miles)
		s.shiftDriving += chunk
		s.sinceBreak += chunk
		s.milesSinceFuel += miles
		s.tripMiles += miles
		legMiles += miles
		remaining -= chunk

		if remaining > 0 {
			s.location = fmt.Sprintf("En route to %s (mile %.0f)", leg.To, s.tripMiles)
			s.point = pointAlong(leg, legMiles)
		}
	}
	s.arrive(leg)
}

func (s *schedule) arrive(leg Leg) {
	s.location = leg.To
	if n := len(leg.Path); n > 0 {
		p := leg.Path[n-1]
		s.point = &p
	} else {
		s.point = nil
	}
}

func pointAlong(leg Leg, legMiles float64) *geo.Point {
	if len(leg.Path) < 2 || leg.DistanceMiles <= 0 {
		return nil
	}
	p, ok := geo.AtFraction(leg.Path, legMiles/leg.DistanceMiles)
	if !ok {
		return nil
	}
	return &p
}

func firstPoint(pts []geo.Point) *geo.Point {
	if len(pts) == 0 {
		return nil
	}
	p := pts[0]
	return &p
}

// floorSeconds truncates h hours to whole seconds so a chunk never runs past
// the distance it was sized for.
func floorSeconds(h float64) time.Duration {
	if h <= 0 {
		return 0
	}
	return time.Duration(math.Floor(h*3600)) * time.Second
}

// Hours converts a fractional hour count into a duration with second precision.
// Any positive input yields at least one second.
func Hours(h float64) time.Duration {
	if h < 0 {
		return -Hours(-h)
	}
	if h == 0 || math.IsNaN(h) {
		return 0
	}
	return max(time.Duration(math.Round(h*3600))*time.Second, time.Second)
}

// hoursLabel renders 10h as "10-hour" and 7h30m as "7.5-hour".
func hoursLabel(d time.Duration) string {
	return strconv.FormatFloat(d.Hours(), 'f', -1, 64) + "-hour"
}

func minutesLabel(d time.Duration) string {
	return strconv.FormatFloat(d.Minutes(), 'f', -1, 64) + "-minute"
}
