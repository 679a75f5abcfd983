package hos

import (
	"fmt"
	"time"
)

const (
	RuleStatus       = "status"
	RuleSequence     = "sequence"
	RuleDrivingLimit = "driving_limit"
	RuleDutyWindow   = "duty_window"
	RuleBreak        = "break"
	RuleCycle        = "cycle"
)

type Violation struct {
	Rule   string
	At     time.Time
	Detail string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s at %s: %s", v.Rule, v.At.Format(time.RFC3339), v.Detail)
}

// Validate replays a duty sequence against rules, starting with priorCycle hours
// already used, and reports every limit that is broken. Gaps between events count
// as off duty. Each limit is reported once per shift (or cycle, or break period).
func Validate(events []Event, rules Rules, priorCycle time.Duration) []Violation {
	var (
		out []Violation

		shiftOpen    bool
		shiftStart   time.Time
		shiftDriving time.Duration
		sinceBreak   time.Duration

		restRun     time.Duration // consecutive off duty / sleeper berth
		nonDriveRun time.Duration // consecutive time not driving

		drivingReported, windowReported, breakReported, cycleReported bool
	)
	cycle := priorCycle

	resting := func(d time.Duration) {
		restRun += d
		nonDriveRun += d
		if restRun >= rules.Restart {
			cycle = 0
			cycleReported = false
		}
		if restRun >= rules.ResetRest {
			shiftOpen = false
			shiftDriving = 0
			sinceBreak = 0
			drivingReported, windowReported = false, false
		}
		if nonDriveRun >= rules.BreakDuration {
			sinceBreak = 0
			breakReported = false
		}
	}

	for i, e := range events {
		if !e.Status.Valid() {
			out = append(out, Violation{Rule: RuleStatus, At: e.Start, Detail: fmt.Sprintf("unknown duty status %q", e.Status)})
			continue
		}
		if e.End.Before(e.Start) {
			out = append(out, Violation{Rule: RuleSequence, At: e.Start, Detail: "event ends before it starts"})
			continue
		}
		if i > 0 {
			prevEnd := events[i-1].End
			if e.Start.Before(prevEnd) {
				out = append(out, Violation{Rule: RuleSequence, At: e.Start, Detail: "event overlaps the previous one"})
			} else if gap := e.Start.Sub(prevEnd); gap > 0 {
				resting(gap)
			}
		}

		d := e.Duration()
		if e.Status.Resting() {
			resting(d)
			continue
		}
		restRun = 0
		if !shiftOpen {
			shiftOpen = true
			shiftStart = e.Start
			shiftDriving = 0
			sinceBreak = 0
		}

		cycle += d
		if cycle > rules.CycleLimit && !cycleReported {
			cycleReported = true
			out = append(out, Violation{Rule: RuleCycle, At: e.Start,
				Detail: fmt.Sprintf("%s on duty exceeds the %s cycle limit", cycle, rules.CycleLimit)})
		}

		if e.Status == OnDuty {
			nonDriveRun += d
			if nonDriveRun >= rules.BreakDuration {
				sinceBreak = 0
				breakReported = false
			}
			continue
		}

		nonDriveRun = 0
		shiftDriving += d
		sinceBreak += d
		if shiftDriving > rules.DrivingLimit && !drivingReported {
			drivingReported = true
			out = append(out, Violation{Rule: RuleDrivingLimit, At: e.Start,
				Detail: fmt.Sprintf("%s driving exceeds the %s limit", shiftDriving, rules.DrivingLimit)})
		}
		if e.End.Sub(shiftStart) > rules.DutyWindow && !windowReported {
			windowReported = true
			out = append(out, Violation{Rule: RuleDutyWindow, At: e.Start,
				Detail: fmt.Sprintf("driving past the %s window opened at %s", rules.DutyWindow, shiftStart.Format(time.RFC3339))})
		}
		if sinceBreak > rules.BreakAfter && !breakReported {
			breakReported = true
			out = append(out, Violation{Rule: RuleBreak, At: e.Start,
				Detail: fmt.Sprintf("%s driving without a %s interruption", sinceBreak, rules.BreakDuration)})
		}
	}
	return out
}
