package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/slotworks/scheduling/internal/availability"
	"github.com/slotworks/scheduling/internal/model"
)

var (
	// ErrConflict means the requested instant is unbookable: in the past,
	// outside working hours, on a blocked date, or overlapping an existing
	// appointment.
	ErrConflict = errors.New("time slot is not available")

	// ErrNotFound means the referenced appointment does not exist for the
	// given owner.
	ErrNotFound = errors.New("appointment not found")
)

// Store is the owner-scoped record store the engine computes over. Lookup
// methods report absence with the ok bool rather than an error.
type Store interface {
	ActiveRules(ctx context.Context, ownerID string, weekday int) ([]model.RecurringRule, error)
	ExceptionFor(ctx context.Context, ownerID string, date time.Time) (model.DateException, bool, error)
	ServiceTypeByID(ctx context.Context, ownerID, id string) (model.ServiceType, bool, error)

	// OpenAppointmentsOn returns pending and confirmed appointments for the
	// owner whose scheduled date matches the given UTC day, excluding
	// excludeID when non-empty.
	OpenAppointmentsOn(ctx context.Context, ownerID string, day time.Time, excludeID string) ([]model.Appointment, error)
	AppointmentByID(ctx context.Context, ownerID, id string) (model.Appointment, bool, error)
	ListAppointments(ctx context.Context, ownerID, status string, limit int) ([]model.Appointment, error)
	InsertAppointment(ctx context.Context, appt model.Appointment) error
	UpdateAppointment(ctx context.Context, appt model.Appointment) error
}

// Slot is a bookable interval offered to a caller.
type Slot struct {
	Start time.Time
	End   time.Time
}

// Engine resolves availability and funnels every appointment mutation
// through the conflict checker, so the same rules govern discovery and
// booking.
type Engine struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(store Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Resolve computes the bookable slots for the owner on the target date.
// The date's time-of-day component is ignored. Failures degrade to an
// empty result: availability queries must never fail the whole request.
func (e *Engine) Resolve(ctx context.Context, ownerID string, date time.Time, serviceTypeID string) []Slot {
	slots, err := e.resolve(ctx, ownerID, date, serviceTypeID)
	if err != nil {
		e.logger.Warn("slot resolution failed; returning no slots",
			"owner_id", ownerID,
			"date", availability.DayOf(date).Format("2006-01-02"),
			"err", err,
		)
		return nil
	}
	return slots
}

func (e *Engine) resolve(ctx context.Context, ownerID string, date time.Time, serviceTypeID string) ([]Slot, error) {
	day := availability.DayOf(date)
	now := e.now().UTC()

	exc, hasException, err := e.store.ExceptionFor(ctx, ownerID, day)
	if err != nil {
		return nil, fmt.Errorf("load exception: %w", err)
	}
	// A blocked date wins over everything else.
	if hasException && exc.IsBlocked {
		return nil, nil
	}

	// Duration override from an explicitly requested service type.
	override := 0
	if serviceTypeID != "" {
		st, ok, err := e.store.ServiceTypeByID(ctx, ownerID, serviceTypeID)
		if err != nil {
			return nil, fmt.Errorf("load service type: %w", err)
		}
		if ok && st.DurationMins > 0 {
			override = st.DurationMins
		}
	}

	if hasException && len(exc.CustomSlots) > 0 {
		starts, err := availability.ParseCustomSlots(exc.CustomSlots, day)
		if err == nil {
			// Custom slots replace rule enumeration entirely and are not
			// re-checked against existing appointments.
			dur := override
			if dur <= 0 {
				dur = model.DefaultDurationMins
			}
			var slots []Slot
			for _, s := range starts {
				if s.Before(now) {
					continue
				}
				slots = append(slots, Slot{Start: s, End: s.Add(time.Duration(dur) * time.Minute)})
			}
			return slots, nil
		}
		e.logger.Warn("malformed custom slots payload; falling back to recurring rules",
			"owner_id", ownerID, "exception_id", exc.ID, "err", err)
	}

	rules, err := e.store.ActiveRules(ctx, ownerID, availability.WeekdayIndex(day))
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	if len(rules) == 0 {
		return nil, nil
	}

	var slots []Slot
	for _, rule := range rules {
		dur := override
		if dur <= 0 {
			dur = rule.SlotDurationMins
		}
		if dur <= 0 {
			continue
		}
		windowStart := availability.At(day, rule.StartMinute)
		windowEnd := availability.At(day, rule.EndMinute)
		for _, start := range availability.SlotStarts(windowStart, windowEnd, time.Duration(dur)*time.Minute, now) {
			ok, err := e.IsAvailable(ctx, ownerID, start, dur, "")
			if err != nil {
				return nil, fmt.Errorf("check slot %s: %w", start.Format(time.RFC3339), err)
			}
			if ok {
				slots = append(slots, Slot{Start: start, End: start.Add(time.Duration(dur) * time.Minute)})
			}
		}
	}

	// Overlapping rules are independent bookable tracks: their slot sets
	// are unioned without deduplication.
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}

// IsAvailable reports whether a booking of durationMins starting at the
// given instant is bookable for the owner. excludeID removes one
// appointment from the overlap check so reschedules do not conflict with
// themselves. Naive instants are treated as UTC.
func (e *Engine) IsAvailable(ctx context.Context, ownerID string, at time.Time, durationMins int, excludeID string) (bool, error) {
	if durationMins <= 0 {
		durationMins = model.DefaultDurationMins
	}
	start := at.UTC()
	if start.Before(e.now().UTC()) {
		return false, nil
	}

	day := availability.DayOf(start)
	end := start.Add(time.Duration(durationMins) * time.Minute)

	booked, err := e.store.OpenAppointmentsOn(ctx, ownerID, day, excludeID)
	if err != nil {
		return false, fmt.Errorf("load appointments: %w", err)
	}
	durations := map[string]int{}
	for _, appt := range booked {
		apptDur, err := e.appointmentDuration(ctx, appt, durations)
		if err != nil {
			return false, err
		}
		busy := availability.Interval{
			Start: appt.ScheduledAt.UTC(),
			End:   appt.ScheduledAt.UTC().Add(time.Duration(apptDur) * time.Minute),
		}
		if availability.Overlaps(start, end, busy) {
			return false, nil
		}
	}

	rules, err := e.store.ActiveRules(ctx, ownerID, availability.WeekdayIndex(start))
	if err != nil {
		return false, fmt.Errorf("load rules: %w", err)
	}
	minute := availability.MinuteOfDay(start)
	inWindow := false
	for _, rule := range rules {
		if rule.StartMinute <= minute && minute < rule.EndMinute {
			inWindow = true
			break
		}
	}
	if !inWindow {
		return false, nil
	}

	exc, ok, err := e.store.ExceptionFor(ctx, ownerID, day)
	if err != nil {
		return false, fmt.Errorf("load exception: %w", err)
	}
	if ok && exc.IsBlocked {
		return false, nil
	}
	return true, nil
}

// appointmentDuration derives an appointment's duration from its service
// type, caching lookups across one availability check.
func (e *Engine) appointmentDuration(ctx context.Context, appt model.Appointment, cache map[string]int) (int, error) {
	if appt.ServiceTypeID == "" {
		return model.DefaultDurationMins, nil
	}
	if dur, ok := cache[appt.ServiceTypeID]; ok {
		return dur, nil
	}
	dur := model.DefaultDurationMins
	st, ok, err := e.store.ServiceTypeByID(ctx, appt.OwnerID, appt.ServiceTypeID)
	if err != nil {
		return 0, fmt.Errorf("load service type: %w", err)
	}
	if ok && st.DurationMins > 0 {
		dur = st.DurationMins
	}
	cache[appt.ServiceTypeID] = dur
	return dur, nil
}

type CreateParams struct {
	OwnerID       string
	ContactID     string
	ServiceTypeID string
	ScheduledAt   time.Time
	Status        string
	Notes         string
}

// CreateAppointment books a new appointment after a conflict check. The
// check and the insert are not transactional; see the concurrency notes in
// the package documentation.
func (e *Engine) CreateAppointment(ctx context.Context, p CreateParams) (model.Appointment, error) {
	dur, err := e.durationFor(ctx, p.OwnerID, p.ServiceTypeID)
	if err != nil {
		return model.Appointment{}, err
	}
	ok, err := e.IsAvailable(ctx, p.OwnerID, p.ScheduledAt, dur, "")
	if err != nil {
		return model.Appointment{}, err
	}
	if !ok {
		return model.Appointment{}, ErrConflict
	}

	status := p.Status
	if status == "" {
		status = model.StatusPending
	}
	appt := model.Appointment{
		ID:            uuid.NewString(),
		OwnerID:       p.OwnerID,
		ContactID:     p.ContactID,
		ServiceTypeID: p.ServiceTypeID,
		ScheduledAt:   p.ScheduledAt.UTC(),
		Status:        status,
		Notes:         p.Notes,
		CreatedAt:     e.now().UTC(),
	}
	if err := e.store.InsertAppointment(ctx, appt); err != nil {
		return model.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}
	return appt, nil
}

// UpdateParams carries the changed fields of an update; nil means leave
// the field as is.
type UpdateParams struct {
	ScheduledAt   *time.Time
	Status        *string
	ServiceTypeID *string
	Notes         *string
}

// UpdateAppointment applies changed fields to an owner's appointment.
// A new scheduled time is re-validated with the appointment itself
// excluded from the overlap check, using the duration of the existing
// appointment's service type.
func (e *Engine) UpdateAppointment(ctx context.Context, ownerID, id string, p UpdateParams) (model.Appointment, error) {
	appt, ok, err := e.store.AppointmentByID(ctx, ownerID, id)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("load appointment: %w", err)
	}
	if !ok {
		return model.Appointment{}, ErrNotFound
	}

	if p.ScheduledAt != nil {
		dur, err := e.durationFor(ctx, ownerID, appt.ServiceTypeID)
		if err != nil {
			return model.Appointment{}, err
		}
		free, err := e.IsAvailable(ctx, ownerID, *p.ScheduledAt, dur, appt.ID)
		if err != nil {
			return model.Appointment{}, err
		}
		if !free {
			return model.Appointment{}, ErrConflict
		}
		appt.ScheduledAt = p.ScheduledAt.UTC()
	}
	if p.Status != nil {
		appt.Status = *p.Status
	}
	if p.ServiceTypeID != nil {
		appt.ServiceTypeID = *p.ServiceTypeID
	}
	if p.Notes != nil {
		appt.Notes = *p.Notes
	}

	if err := e.store.UpdateAppointment(ctx, appt); err != nil {
		return model.Appointment{}, fmt.Errorf("update appointment: %w", err)
	}
	return appt, nil
}

// CancelAppointment unconditionally transitions the appointment to
// cancelled. Freeing a slot cannot create a conflict, so no re-validation
// happens.
func (e *Engine) CancelAppointment(ctx context.Context, ownerID, id string) (model.Appointment, error) {
	appt, ok, err := e.store.AppointmentByID(ctx, ownerID, id)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("load appointment: %w", err)
	}
	if !ok {
		return model.Appointment{}, ErrNotFound
	}

	appt.Status = model.StatusCancelled
	cancelledAt := e.now().UTC()
	appt.CancelledAt = &cancelledAt
	if err := e.store.UpdateAppointment(ctx, appt); err != nil {
		return model.Appointment{}, fmt.Errorf("update appointment: %w", err)
	}
	return appt, nil
}

// ListAppointments returns the owner's appointments, optionally filtered
// by status.
func (e *Engine) ListAppointments(ctx context.Context, ownerID, status string, limit int) ([]model.Appointment, error) {
	return e.store.ListAppointments(ctx, ownerID, status, limit)
}

func (e *Engine) durationFor(ctx context.Context, ownerID, serviceTypeID string) (int, error) {
	if serviceTypeID == "" {
		return model.DefaultDurationMins, nil
	}
	st, ok, err := e.store.ServiceTypeByID(ctx, ownerID, serviceTypeID)
	if err != nil {
		return 0, fmt.Errorf("load service type: %w", err)
	}
	if !ok || st.DurationMins <= 0 {
		return model.DefaultDurationMins, nil
	}
	return st.DurationMins, nil
}
