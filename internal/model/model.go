package model

import (
	"encoding/json"
	"time"
)

// Appointment statuses. Only pending and confirmed appointments block a
// time slot; cancelled and completed ones never do.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// DefaultDurationMins is used when an appointment has no service type or
// the referenced service type no longer exists.
const DefaultDurationMins = 30

func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return true
	}
	return false
}

type ServiceType struct {
	ID           string
	OwnerID      string
	Name         string
	DurationMins int
	Description  string
	CreatedAt    time.Time
}

// RecurringRule is a weekly-repeating open window on one day, subdivided
// into fixed-size slots. Weekday uses 0=Monday .. 6=Sunday. Start and end
// are minutes since midnight; a slot only counts when its full duration
// fits before EndMinute.
type RecurringRule struct {
	ID               string
	OwnerID          string
	Weekday          int
	StartMinute      int
	EndMinute        int
	SlotDurationMins int
	IsActive         bool
	CreatedAt        time.Time
}

// DateException overrides the recurring schedule for one calendar date:
// either the whole day is blocked, or CustomSlots replaces the
// rule-derived slot list.
type DateException struct {
	ID          string
	OwnerID     string
	Date        time.Time // date part significant; stored at UTC midnight
	IsBlocked   bool
	CustomSlots json.RawMessage // {"times": ["HH:MM", ...]}, nil when unset
	CreatedAt   time.Time
}

type Appointment struct {
	ID            string
	OwnerID       string
	ContactID     string
	ServiceTypeID string // empty when unset
	ScheduledAt   time.Time
	Status        string
	Notes         string
	CancelledAt   *time.Time
	CreatedAt     time.Time
}
