package availability

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	got, err := ParseClock("09:30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 9*60+30 {
		t.Fatalf("expected 570, got %d", got)
	}

	for _, bad := range []string{"", "9:30am", "25:00", "12:61", "noon"} {
		if _, err := ParseClock(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestFormatClock_RoundTrip(t *testing.T) {
	for _, s := range []string{"00:00", "09:05", "13:30", "23:59"} {
		m, err := ParseClock(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if got := FormatClock(m); got != s {
			t.Fatalf("round trip %q: got %q", s, got)
		}
	}
}

func TestWeekdayIndex(t *testing.T) {
	// 2026-01-26 is a Monday, 2026-02-01 is a Sunday.
	monday := time.Date(2026, 1, 26, 12, 0, 0, 0, time.UTC)
	if got := WeekdayIndex(monday); got != 0 {
		t.Fatalf("expected Monday index 0, got %d", got)
	}
	sunday := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	if got := WeekdayIndex(sunday); got != 6 {
		t.Fatalf("expected Sunday index 6, got %d", got)
	}
}

func TestAt_And_DayOf(t *testing.T) {
	date := time.Date(2026, 3, 10, 17, 45, 12, 0, time.UTC)
	at := At(date, 9*60+30)
	want := time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)
	if !at.Equal(want) {
		t.Fatalf("expected %s, got %s", want, at)
	}
	if got := DayOf(date); !got.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected day: %s", got)
	}
	if got := MinuteOfDay(at); got != 9*60+30 {
		t.Fatalf("expected minute 570, got %d", got)
	}
}

func TestParseCustomSlots_Sorted(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	payload := []byte(`{"times":["14:00","09:00","11:30"]}`)
	slots, err := ParseCustomSlots(payload, date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(slots))
	}
	if !slots[0].Equal(date.Add(9 * time.Hour)) {
		t.Fatalf("expected first slot 09:00, got %s", slots[0])
	}
	if !slots[2].Equal(date.Add(14 * time.Hour)) {
		t.Fatalf("expected last slot 14:00, got %s", slots[2])
	}
}

func TestParseCustomSlots_Malformed(t *testing.T) {
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	cases := [][]byte{
		[]byte(`not json`),
		[]byte(`{"times":[]}`),
		[]byte(`{"times":["09:00","lunch"]}`), // one bad entry fails the payload
		[]byte(`{"slots":["09:00"]}`),
	}
	for _, payload := range cases {
		if _, err := ParseCustomSlots(payload, date); err == nil {
			t.Fatalf("expected error for payload %s", payload)
		}
	}
}
