package hos

import (
	"sort"
	"time"
)

// Recap is a driver's position in the rolling cycle at a point in time.
type Recap struct {
	Now               time.Time
	WindowStart       time.Time // start of the counted period, after the last restart if any
	LastRestart       time.Time // zero when no restart falls inside the cycle window
	Used              time.Duration
	Available         time.Duration
	Compliant         bool
	CanDriveFullShift bool
}

// ComputeRecap sums on-duty and driving time in the rolling cycle window ending at
// now. A rest of at least the restart length inside the window (gaps count as off
// duty) discards everything before it.
func ComputeRecap(events []Event, now time.Time, rules Rules) Recap {
	sorted := make([]Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	windowStart := now.Add(-rules.CycleWindow())
	from := windowStart
	var lastRestart time.Time

	var restStart time.Time
	inRest := false
	closeRest := func(end time.Time) {
		if inRest && end.Sub(restStart) >= rules.Restart && end.After(windowStart) {
			lastRestart = end
			if end.After(from) {
				from = end
			}
		}
		inRest = false
	}
	cursor := time.Time{}
	for _, e := range sorted {
		if !e.Start.Before(now) {
			break
		}
		if !cursor.IsZero() && e.Start.After(cursor) && !inRest {
			inRest, restStart = true, cursor
		}
		if e.Status.Resting() {
			if !inRest {
				inRest, restStart = true, e.Start
			}
		} else {
			closeRest(e.Start)
		}
		if e.End.After(cursor) {
			cursor = e.End
		}
	}
	if !inRest && !cursor.IsZero() && cursor.Before(now) {
		inRest, restStart = true, cursor
	}
	closeRest(now)

	var used time.Duration
	for _, e := range sorted {
		if e.Status.Resting() || !e.Status.Valid() {
			continue
		}
		start, end := e.Start, e.End
		if start.Before(from) {
			start = from
		}
		if end.After(now) {
			end = now
		}
		if end.After(start) {
			used += end.Sub(start)
		}
	}

	available := rules.CycleLimit - used
	if available < 0 {
		available = 0
	}
	return Recap{
		Now:               now,
		WindowStart:       from,
		LastRestart:       lastRestart,
		Used:              used,
		Available:         available,
		Compliant:         used <= rules.CycleLimit,
		CanDriveFullShift: available >= rules.DrivingLimit,
	}
}
