package availability

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// ParseClock parses a 24-hour zero-padded "HH:MM" string into minutes
// since midnight.
func ParseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minuteOfDay int) string {
	return fmt.Sprintf("%02d:%02d", minuteOfDay/60, minuteOfDay%60)
}

// DayOf truncates an instant to UTC midnight of its calendar date.
func DayOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// At combines a calendar date with a minute-of-day into a UTC instant.
func At(date time.Time, minuteOfDay int) time.Time {
	return DayOf(date).Add(time.Duration(minuteOfDay) * time.Minute)
}

// WeekdayIndex maps an instant's UTC weekday to the 0=Monday .. 6=Sunday
// convention used by recurring rules.
func WeekdayIndex(t time.Time) int {
	return (int(t.UTC().Weekday()) + 6) % 7
}

// MinuteOfDay returns the instant's UTC minute since midnight.
func MinuteOfDay(t time.Time) int {
	u := t.UTC()
	return u.Hour()*60 + u.Minute()
}

type customSlotsPayload struct {
	Times []string `json:"times"`
}

// ParseCustomSlots decodes a custom-slots override payload
// ({"times": ["HH:MM", ...]}) against the given date and returns the
// resulting instants sorted ascending. Any malformed entry fails the whole
// payload so the caller can fall back to recurring rules.
func ParseCustomSlots(payload []byte, date time.Time) ([]time.Time, error) {
	var p customSlotsPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("decode custom slots: %w", err)
	}
	if len(p.Times) == 0 {
		return nil, fmt.Errorf("custom slots payload has no times")
	}

	slots := make([]time.Time, 0, len(p.Times))
	for _, raw := range p.Times {
		minute, err := ParseClock(raw)
		if err != nil {
			return nil, err
		}
		slots = append(slots, At(date, minute))
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })
	return slots, nil
}
