package hos

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidRules = errors.New("invalid hos rules")

type CycleType string

const (
	Cycle70x8 CycleType = "70_8"
	Cycle60x7 CycleType = "60_7"
)

// ParseCycle accepts "70_8", "70/8", "60_7", "60/7" (case and spacing insensitive).
func ParseCycle(s string) (CycleType, error) {
	v := strings.NewReplacer("/", "_", "-", "_", " ", "").Replace(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case "", "70_8":
		return Cycle70x8, nil
	case "60_7":
		return Cycle60x7, nil
	}
	return "", fmt.Errorf("unknown cycle %q", s)
}

// Rules are the property-carrying driver limits used for planning and validation.
type Rules struct {
	Cycle         CycleType
	DrivingLimit  time.Duration
	DutyWindow    time.Duration
	BreakAfter    time.Duration
	BreakDuration time.Duration
	ResetRest     time.Duration
	CycleLimit    time.Duration
	CycleDays     int
	Restart       time.Duration

	FuelIntervalMiles float64
	FuelStop          time.Duration
	PreTrip           time.Duration
	PostTrip          time.Duration
	Pickup            time.Duration
	Dropoff           time.Duration
}

// DefaultRules is the 70-hour/8-day set.
func DefaultRules() Rules { return RulesFor(Cycle70x8) }

func RulesFor(c CycleType) Rules {
	r := Rules{
		Cycle:             Cycle70x8,
		DrivingLimit:      11 * time.Hour,
		DutyWindow:        14 * time.Hour,
		BreakAfter:        8 * time.Hour,
		BreakDuration:     30 * time.Minute,
		ResetRest:         10 * time.Hour,
		CycleLimit:        70 * time.Hour,
		CycleDays:         8,
		Restart:           34 * time.Hour,
		FuelIntervalMiles: 1000,
		FuelStop:          30 * time.Minute,
		PreTrip:           30 * time.Minute,
		PostTrip:          30 * time.Minute,
		Pickup:            time.Hour,
		Dropoff:           time.Hour,
	}
	if c == Cycle60x7 {
		r.Cycle = Cycle60x7
		r.CycleLimit = 60 * time.Hour
		r.CycleDays = 7
	}
	return r
}

// CycleWindow is the rolling look-back period for the cycle limit.
func (r Rules) CycleWindow() time.Duration { return time.Duration(r.CycleDays) * 24 * time.Hour }

// Validate rejects rule sets the planner could not schedule against.
func (r Rules) Validate() error {
	positive := map[string]time.Duration{
		"driving limit":  r.DrivingLimit,
		"duty window":    r.DutyWindow,
		"break after":    r.BreakAfter,
		"break duration": r.BreakDuration,
		"reset rest":     r.ResetRest,
		"cycle limit":    r.CycleLimit,
		"restart":        r.Restart,
	}
	for name, d := range positive {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidRules, name)
		}
	}
	nonNegative := map[string]time.Duration{
		"fuel stop": r.FuelStop,
		"pre-trip":  r.PreTrip,
		"post-trip": r.PostTrip,
		"pickup":    r.Pickup,
		"dropoff":   r.Dropoff,
	}
	longest := time.Duration(0)
	for name, d := range nonNegative {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidRules, name)
		}
		if d > longest {
			longest = d
		}
	}
	if r.CycleDays <= 0 {
		return fmt.Errorf("%w: cycle days must be positive", ErrInvalidRules)
	}
	if r.FuelIntervalMiles <= 0 {
		return fmt.Errorf("%w: fuel interval must be positive", ErrInvalidRules)
	}
	if r.DrivingLimit > r.DutyWindow {
		return fmt.Errorf("%w: driving limit exceeds duty window", ErrInvalidRules)
	}
	if r.PreTrip+longest >= r.DutyWindow {
		return fmt.Errorf("%w: on-duty task does not fit in the duty window", ErrInvalidRules)
	}
	if r.PreTrip+longest > r.CycleLimit {
		return fmt.Errorf("%w: on-duty task does not fit in the cycle", ErrInvalidRules)
	}
	return nil
}

// Availability mirrors what a dispatcher sees before assigning a load.
type Availability struct {
	RemainingCycle  time.Duration
	MaxDailyDriving time.Duration
	MaxDutyWindow   time.Duration
	CanDriveToday   bool
}

// Available computes the remaining cycle hours for a driver who has used cycleUsed.
// CanDriveToday is true when a full driving shift still fits in the cycle.
func Available(cycleUsed time.Duration, r Rules) Availability {
	remaining := r.CycleLimit - cycleUsed
	if remaining < 0 {
		remaining = 0
	}
	return Availability{
		RemainingCycle:  remaining,
		MaxDailyDriving: r.DrivingLimit,
		MaxDutyWindow:   r.DutyWindow,
		CanDriveToday:   remaining >= r.DrivingLimit,
	}
}
