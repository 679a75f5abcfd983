package hos

import "time"

// BuildDailyLogs cuts a contiguous duty sequence into calendar-day log sheets in loc.
// Time before the first event on the first day and after the last event on the last
// day is recorded as off duty, so every sheet accounts for its whole day.
// Miles of an event crossing midnight are prorated by time.
func BuildDailyLogs(events []Event, loc *time.Location, header LogHeader) []DailyLog {
	if len(events) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}
	header = header.withDefaults()

	first := events[0].Start.In(loc)
	cur := &DailyLog{Date: midnight(first), Header: header}
	var logs []DailyLog

	if first.After(cur.Date) {
		cur.add(Event{
			Status:   OffDuty,
			Start:    cur.Date,
			End:      first,
			Location: events[0].Location,
			Remarks:  "Off duty",
		})
	}

	for _, e := range events {
		start, end := e.Start.In(loc), e.End.In(loc)
		total := end.Sub(start)
		for start.Before(end) {
			dayEnd := nextMidnight(cur.Date)
			for !start.Before(dayEnd) {
				logs = append(logs, *cur)
				cur = &DailyLog{Date: dayEnd, Header: header}
				dayEnd = nextMidnight(cur.Date)
			}
			pieceEnd := end
			if dayEnd.Before(pieceEnd) {
				pieceEnd = dayEnd
			}
			piece := e
			piece.Start, piece.End = start, pieceEnd
			if total > 0 && pieceEnd.Sub(start) != total {
				piece.Miles = e.Miles * float64(pieceEnd.Sub(start)) / float64(total)
			}
			cur.add(piece)
			start = pieceEnd
		}
	}

	last := events[len(events)-1]
	lastEnd := last.End.In(loc)
	if dayEnd := nextMidnight(cur.Date); lastEnd.Before(dayEnd) {
		cur.add(Event{
			Status:   OffDuty,
			Start:    lastEnd,
			End:      dayEnd,
			Location: last.Location,
			Remarks:  "Off duty",
		})
	}
	return append(logs, *cur)
}

func (l *DailyLog) add(e Event) {
	d := e.Duration()
	switch e.Status {
	case OffDuty:
		l.OffDuty += d
	case SleeperBerth:
		l.SleeperBerth += d
	case Driving:
		l.Driving += d
	case OnDuty:
		l.OnDuty += d
	}
	l.Miles += e.Miles
	l.Events = append(l.Events, e)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// nextMidnight goes through time.Date so days of 23 or 25 hours come out right.
func nextMidnight(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, day.Location())
}
