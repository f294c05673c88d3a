package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/slotworks/scheduling/internal/availability"
	"github.com/slotworks/scheduling/internal/model"
	"github.com/slotworks/scheduling/internal/outbox"
	"github.com/slotworks/scheduling/internal/scheduling"
)

// fakeStore implements scheduling.Store in memory.
type fakeStore struct {
	rules        []model.RecurringRule
	exceptions   []model.DateException
	serviceTypes map[string]model.ServiceType
	appointments map[string]model.Appointment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		serviceTypes: map[string]model.ServiceType{},
		appointments: map[string]model.Appointment{},
	}
}

func (s *fakeStore) ActiveRules(_ context.Context, ownerID string, weekday int) ([]model.RecurringRule, error) {
	var out []model.RecurringRule
	for _, r := range s.rules {
		if r.OwnerID == ownerID && r.Weekday == weekday && r.IsActive {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) ExceptionFor(_ context.Context, ownerID string, date time.Time) (model.DateException, bool, error) {
	day := availability.DayOf(date)
	for _, exc := range s.exceptions {
		if exc.OwnerID == ownerID && availability.DayOf(exc.Date).Equal(day) {
			return exc, true, nil
		}
	}
	return model.DateException{}, false, nil
}

func (s *fakeStore) ServiceTypeByID(_ context.Context, ownerID, id string) (model.ServiceType, bool, error) {
	st, ok := s.serviceTypes[id]
	if !ok || st.OwnerID != ownerID {
		return model.ServiceType{}, false, nil
	}
	return st, true, nil
}

func (s *fakeStore) OpenAppointmentsOn(_ context.Context, ownerID string, day time.Time, excludeID string) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, appt := range s.appointments {
		if appt.OwnerID != ownerID || appt.ID == excludeID {
			continue
		}
		if appt.Status != model.StatusPending && appt.Status != model.StatusConfirmed {
			continue
		}
		if availability.DayOf(appt.ScheduledAt).Equal(availability.DayOf(day)) {
			out = append(out, appt)
		}
	}
	return out, nil
}

func (s *fakeStore) AppointmentByID(_ context.Context, ownerID, id string) (model.Appointment, bool, error) {
	appt, ok := s.appointments[id]
	if !ok || appt.OwnerID != ownerID {
		return model.Appointment{}, false, nil
	}
	return appt, true, nil
}

func (s *fakeStore) ListAppointments(_ context.Context, ownerID, status string, limit int) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, appt := range s.appointments {
		if appt.OwnerID != ownerID {
			continue
		}
		if status != "" && appt.Status != status {
			continue
		}
		out = append(out, appt)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) InsertAppointment(_ context.Context, appt model.Appointment) error {
	s.appointments[appt.ID] = appt
	return nil
}

func (s *fakeStore) UpdateAppointment(_ context.Context, appt model.Appointment) error {
	s.appointments[appt.ID] = appt
	return nil
}

// fakeSink records emitted outbox events.
type fakeSink struct {
	events []outbox.Event
}

func (s *fakeSink) Insert(_ context.Context, evt outbox.Event) error {
	s.events = append(s.events, evt)
	return nil
}

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// 2030-03-04 is a Monday far enough out that nothing is in the past.
var testMonday = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

func newTestHandler(store *fakeStore, sink *fakeSink) *SchedulingHandler {
	engine := scheduling.NewEngine(store, testLogger)
	return NewSchedulingHandler(engine, sink, testLogger)
}

func storeWithMondayRule() *fakeStore {
	store := newFakeStore()
	store.rules = append(store.rules, model.RecurringRule{
		ID: "rule-1", OwnerID: "owner-1", Weekday: 0,
		StartMinute: 9 * 60, EndMinute: 12 * 60, SlotDurationMins: 30, IsActive: true,
	})
	return store
}

func TestSlotsHandler(t *testing.T) {
	h := newTestHandler(storeWithMondayRule(), &fakeSink{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?owner_id=owner-1&date=2030-03-04", nil)
	rw := httptest.NewRecorder()
	h.Slots(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}

	var items []struct {
		StartTime string `json:"start_time"`
		EndTime   string `json:"end_time"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if len(items) != 6 {
		t.Fatalf("expected 6 slots, got %d", len(items))
	}
	if items[0].StartTime != "2030-03-04T09:00:00Z" {
		t.Fatalf("unexpected first slot: %s", items[0].StartTime)
	}
	if items[0].EndTime != "2030-03-04T09:30:00Z" {
		t.Fatalf("unexpected first slot end: %s", items[0].EndTime)
	}
}

func TestSlotsHandler_Validation(t *testing.T) {
	h := newTestHandler(storeWithMondayRule(), &fakeSink{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?owner_id=owner-1", nil)
	rw := httptest.NewRecorder()
	h.Slots(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("missing date: expected 400, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/public/slots?owner_id=owner-1&date=March+4", nil)
	rw = httptest.NewRecorder()
	h.Slots(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("bad date: expected 400, got %d", rw.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/v1/public/slots", nil)
	rw = httptest.NewRecorder()
	h.Slots(rw, req)
	if rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rw.Code)
	}
}

func TestAvailabilityHandler(t *testing.T) {
	h := newTestHandler(storeWithMondayRule(), &fakeSink{})

	check := func(query string) bool {
		t.Helper()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/public/availability?"+query, nil)
		rw := httptest.NewRecorder()
		h.Availability(rw, req)
		if rw.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
		}
		var body struct {
			Available bool `json:"available"`
		}
		if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
			t.Fatalf("invalid response: %v", err)
		}
		return body.Available
	}

	if !check("owner_id=owner-1&start_time=2030-03-04T10:00:00Z") {
		t.Fatal("expected 10:00 inside the window to be available")
	}
	if check("owner_id=owner-1&start_time=2030-03-04T08:00:00Z") {
		t.Fatal("expected 08:00 outside the window to be unavailable")
	}
	// Naive timestamps are treated as UTC.
	if !check("owner_id=owner-1&start_time=2030-03-04T10:00:00") {
		t.Fatal("expected naive timestamp to parse as UTC")
	}
}

func createBody(scheduledAt string) io.Reader {
	return strings.NewReader(`{"contact_id":"c1","scheduled_at":"` + scheduledAt + `"}`)
}

func TestCreateHandler(t *testing.T) {
	sink := &fakeSink{}
	h := newTestHandler(storeWithMondayRule(), sink)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", createBody("2030-03-04T10:00:00Z"))
	req.Header.Set(OwnerIDHeader, "owner-1")
	rw := httptest.NewRecorder()
	h.Create(rw, req)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rw.Code, rw.Body.String())
	}

	var created struct {
		AppointmentID string `json:"appointment_id"`
		Status        string `json:"status"`
		ScheduledAt   string `json:"scheduled_at"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if created.AppointmentID == "" || created.Status != model.StatusPending {
		t.Fatalf("unexpected response: %+v", created)
	}
	if created.ScheduledAt != "2030-03-04T10:00:00Z" {
		t.Fatalf("unexpected scheduled_at: %s", created.ScheduledAt)
	}

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 outbox event, got %d", len(sink.events))
	}
	evt := sink.events[0]
	if evt.EventType != "scheduling.appointment.booked.v1" || evt.AggregateID != created.AppointmentID {
		t.Fatalf("unexpected event: %+v", evt)
	}
}

func TestCreateHandler_Conflict(t *testing.T) {
	sink := &fakeSink{}
	h := newTestHandler(storeWithMondayRule(), sink)

	first := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", createBody("2030-03-04T10:00:00Z"))
	first.Header.Set(OwnerIDHeader, "owner-1")
	rw := httptest.NewRecorder()
	h.Create(rw, first)
	if rw.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rw.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", createBody("2030-03-04T10:15:00Z"))
	second.Header.Set(OwnerIDHeader, "owner-1")
	rw = httptest.NewRecorder()
	h.Create(rw, second)
	if rw.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rw.Code, rw.Body.String())
	}
	if len(sink.events) != 1 {
		t.Fatalf("conflicting create must not emit an event; got %d", len(sink.events))
	}
}

func TestCreateHandler_Validation(t *testing.T) {
	h := newTestHandler(storeWithMondayRule(), &fakeSink{})

	// Missing owner header.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", createBody("2030-03-04T10:00:00Z"))
	rw := httptest.NewRecorder()
	h.Create(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("missing owner: expected 400, got %d", rw.Code)
	}

	// Missing contact.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/appointments",
		strings.NewReader(`{"scheduled_at":"2030-03-04T10:00:00Z"}`))
	req.Header.Set(OwnerIDHeader, "owner-1")
	rw = httptest.NewRecorder()
	h.Create(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("missing contact: expected 400, got %d", rw.Code)
	}

	// Unknown status.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/appointments",
		strings.NewReader(`{"contact_id":"c1","scheduled_at":"2030-03-04T10:00:00Z","status":"tentative"}`))
	req.Header.Set(OwnerIDHeader, "owner-1")
	rw = httptest.NewRecorder()
	h.Create(rw, req)
	if rw.Code != http.StatusBadRequest {
		t.Fatalf("bad status: expected 400, got %d", rw.Code)
	}
}

func TestUpdateHandler_Reschedule(t *testing.T) {
	sink := &fakeSink{}
	store := storeWithMondayRule()
	store.appointments["a1"] = model.Appointment{
		ID: "a1", OwnerID: "owner-1", ContactID: "c1",
		ScheduledAt: testMonday.Add(10 * time.Hour),
		Status:      model.StatusPending,
	}
	h := newTestHandler(store, sink)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/update",
		strings.NewReader(`{"appointment_id":"a1","scheduled_at":"2030-03-04T11:00:00Z","status":"confirmed"}`))
	req.Header.Set(OwnerIDHeader, "owner-1")
	rw := httptest.NewRecorder()
	h.Update(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}

	got := store.appointments["a1"]
	if !got.ScheduledAt.Equal(testMonday.Add(11 * time.Hour)) {
		t.Fatalf("unexpected scheduled_at: %s", got.ScheduledAt)
	}
	if got.Status != model.StatusConfirmed {
		t.Fatalf("unexpected status: %s", got.Status)
	}
	if len(sink.events) != 1 || sink.events[0].EventType != "scheduling.appointment.rescheduled.v1" {
		t.Fatalf("expected a rescheduled event, got %+v", sink.events)
	}
}

func TestUpdateHandler_StatusOnlyEmitsNoEvent(t *testing.T) {
	sink := &fakeSink{}
	store := storeWithMondayRule()
	store.appointments["a1"] = model.Appointment{
		ID: "a1", OwnerID: "owner-1", ContactID: "c1",
		ScheduledAt: testMonday.Add(10 * time.Hour),
		Status:      model.StatusPending,
	}
	h := newTestHandler(store, sink)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/update",
		strings.NewReader(`{"appointment_id":"a1","status":"confirmed"}`))
	req.Header.Set(OwnerIDHeader, "owner-1")
	rw := httptest.NewRecorder()
	h.Update(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rw.Code)
	}
	if len(sink.events) != 0 {
		t.Fatalf("status-only update must not emit a reschedule event; got %d", len(sink.events))
	}
}

func TestUpdateHandler_NotFound(t *testing.T) {
	h := newTestHandler(storeWithMondayRule(), &fakeSink{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/update",
		strings.NewReader(`{"appointment_id":"missing","status":"confirmed"}`))
	req.Header.Set(OwnerIDHeader, "owner-1")
	rw := httptest.NewRecorder()
	h.Update(rw, req)
	if rw.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rw.Code)
	}
}

func TestCancelHandler(t *testing.T) {
	sink := &fakeSink{}
	store := storeWithMondayRule()
	store.appointments["a1"] = model.Appointment{
		ID: "a1", OwnerID: "owner-1", ContactID: "c1",
		ScheduledAt: testMonday.Add(10 * time.Hour),
		Status:      model.StatusConfirmed,
	}
	h := newTestHandler(store, sink)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments/cancel",
		strings.NewReader(`{"appointment_id":"a1"}`))
	req.Header.Set(OwnerIDHeader, "owner-1")
	rw := httptest.NewRecorder()
	h.Cancel(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}

	got := store.appointments["a1"]
	if got.Status != model.StatusCancelled || got.CancelledAt == nil {
		t.Fatalf("unexpected appointment after cancel: %+v", got)
	}
	if len(sink.events) != 1 || sink.events[0].EventType != "scheduling.appointment.cancelled.v1" {
		t.Fatalf("expected a cancelled event, got %+v", sink.events)
	}
}

func TestAppointmentsDispatch(t *testing.T) {
	h := newTestHandler(storeWithMondayRule(), &fakeSink{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set(OwnerIDHeader, "owner-1")
	rw := httptest.NewRecorder()
	h.Appointments(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("GET: expected 200, got %d", rw.Code)
	}

	reqBad := httptest.NewRequest(http.MethodPut, "/api/v1/appointments", nil)
	reqBad.Header.Set(OwnerIDHeader, "owner-1")
	rwBad := httptest.NewRecorder()
	h.Appointments(rwBad, reqBad)
	if rwBad.Code != http.StatusMethodNotAllowed {
		t.Fatalf("PUT: expected 405, got %d", rwBad.Code)
	}
}

func TestListHandler(t *testing.T) {
	store := storeWithMondayRule()
	store.appointments["a1"] = model.Appointment{
		ID: "a1", OwnerID: "owner-1", ContactID: "c1",
		ScheduledAt: testMonday.Add(10 * time.Hour),
		Status:      model.StatusPending,
	}
	store.appointments["a2"] = model.Appointment{
		ID: "a2", OwnerID: "owner-1", ContactID: "c2",
		ScheduledAt: testMonday.Add(11 * time.Hour),
		Status:      model.StatusCancelled,
	}
	h := newTestHandler(store, &fakeSink{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments?status=pending", nil)
	req.Header.Set(OwnerIDHeader, "owner-1")
	rw := httptest.NewRecorder()
	h.List(rw, req)
	if rw.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rw.Code, rw.Body.String())
	}
	var items []struct {
		AppointmentID string `json:"appointment_id"`
		Status        string `json:"status"`
	}
	if err := json.Unmarshal(rw.Body.Bytes(), &items); err != nil {
		t.Fatalf("invalid response: %v", err)
	}
	if len(items) != 1 || items[0].AppointmentID != "a1" {
		t.Fatalf("unexpected items: %+v", items)
	}
}
