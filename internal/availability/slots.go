package availability

import "time"

type Interval struct {
	Start time.Time
	End   time.Time
}

// SlotStarts enumerates candidate slot start times inside
// [windowStart, windowEnd), stepping forward by duration. A start is only
// included when the full duration fits before windowEnd (half-open
// interval), and starts strictly before now are discarded.
//
// All times are expected to be in the same location (timezone).
func SlotStarts(windowStart, windowEnd time.Time, duration time.Duration, now time.Time) []time.Time {
	if duration <= 0 {
		return nil
	}
	if !windowEnd.After(windowStart) {
		return nil
	}

	var starts []time.Time
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(duration) {
		if t.Before(now) {
			continue
		}
		starts = append(starts, t)
	}
	return starts
}

// Overlaps reports whether the half-open intervals [start,end) and
// [b.Start,b.End) intersect: start < b.End && b.Start < end. Appointments
// that merely touch (one ending exactly where the other starts) do not
// overlap.
func Overlaps(start, end time.Time, b Interval) bool {
	return start.Before(b.End) && b.Start.Before(end)
}

func OverlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if Overlaps(start, end, b) {
			return true
		}
	}
	return false
}
