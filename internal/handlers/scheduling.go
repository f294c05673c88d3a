package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slotworks/scheduling/internal/model"
	"github.com/slotworks/scheduling/internal/outbox"
	"github.com/slotworks/scheduling/internal/scheduling"
)

// EventSink receives appointment lifecycle events for the messaging layer.
// A nil sink disables event emission.
type EventSink interface {
	Insert(ctx context.Context, evt outbox.Event) error
}

type SchedulingHandler struct {
	engine *scheduling.Engine
	events EventSink
	logger *slog.Logger
}

func NewSchedulingHandler(engine *scheduling.Engine, events EventSink, logger *slog.Logger) *SchedulingHandler {
	return &SchedulingHandler{engine: engine, events: events, logger: logger}
}

const OwnerIDHeader = "X-Owner-Id"

func ownerIDFrom(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(OwnerIDHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("owner_id"))
}

// parseInstant accepts RFC3339 timestamps; naive timestamps without a zone
// are treated as UTC.
func parseInstant(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return t, nil
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (h *SchedulingHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ownerID := ownerIDFrom(r)
	dateStr := strings.TrimSpace(r.URL.Query().Get("date"))
	serviceTypeID := strings.TrimSpace(r.URL.Query().Get("service_type_id"))
	if ownerID == "" || dateStr == "" {
		http.Error(w, "owner_id and date are required", http.StatusBadRequest)
		return
	}
	date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
	if err != nil {
		http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
		return
	}

	slots := h.engine.Resolve(r.Context(), ownerID, date, serviceTypeID)

	items := make([]slotItem, 0, len(slots))
	for _, s := range slots {
		items = append(items, slotItem{
			StartTime: s.Start.UTC().Format(time.RFC3339),
			EndTime:   s.End.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *SchedulingHandler) Availability(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ownerID := ownerIDFrom(r)
	startStr := strings.TrimSpace(r.URL.Query().Get("start_time"))
	if ownerID == "" || startStr == "" {
		http.Error(w, "owner_id and start_time are required", http.StatusBadRequest)
		return
	}
	start, err := parseInstant(startStr)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}
	durationMins := 0
	if v := strings.TrimSpace(r.URL.Query().Get("duration_minutes")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 24*60 {
			http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
			return
		}
		durationMins = n
	}
	excludeID := strings.TrimSpace(r.URL.Query().Get("exclude_id"))

	available, err := h.engine.IsAvailable(r.Context(), ownerID, start, durationMins, excludeID)
	if err != nil {
		http.Error(w, "availability check failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

// Appointments dispatches the collection route: POST creates, GET lists.
func (h *SchedulingHandler) Appointments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.Create(w, r)
	case http.MethodGet:
		h.List(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type createAppointmentRequest struct {
	ContactID     string `json:"contact_id"`
	ServiceTypeID string `json:"service_type_id"`
	ScheduledAt   string `json:"scheduled_at"`
	Status        string `json:"status"`
	Notes         string `json:"notes"`
}

func (h *SchedulingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ownerID := ownerIDFrom(r)
	if ownerID == "" {
		http.Error(w, "missing "+OwnerIDHeader, http.StatusBadRequest)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ContactID = strings.TrimSpace(req.ContactID)
	req.ServiceTypeID = strings.TrimSpace(req.ServiceTypeID)
	req.Status = strings.TrimSpace(req.Status)
	if req.ContactID == "" {
		http.Error(w, "contact_id is required", http.StatusBadRequest)
		return
	}
	if req.Status != "" && !model.ValidStatus(req.Status) {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}
	scheduledAt, err := parseInstant(strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		http.Error(w, "invalid scheduled_at", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.CreateAppointment(r.Context(), scheduling.CreateParams{
		OwnerID:       ownerID,
		ContactID:     req.ContactID,
		ServiceTypeID: req.ServiceTypeID,
		ScheduledAt:   scheduledAt,
		Status:        req.Status,
		Notes:         req.Notes,
	})
	if err != nil {
		if errors.Is(err, scheduling.ErrConflict) {
			http.Error(w, "time slot is not available", http.StatusConflict)
			return
		}
		http.Error(w, "failed to create appointment", http.StatusInternalServerError)
		return
	}

	h.emit(r.Context(), "scheduling.appointment.booked.v1", appt)
	writeJSON(w, http.StatusCreated, appointmentItemFrom(appt))
}

type updateAppointmentRequest struct {
	AppointmentID string  `json:"appointment_id"`
	ScheduledAt   *string `json:"scheduled_at"`
	Status        *string `json:"status"`
	ServiceTypeID *string `json:"service_type_id"`
	Notes         *string `json:"notes"`
}

func (h *SchedulingHandler) Update(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ownerID := ownerIDFrom(r)
	if ownerID == "" {
		http.Error(w, "missing "+OwnerIDHeader, http.StatusBadRequest)
		return
	}

	var req updateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	var params scheduling.UpdateParams
	if req.ScheduledAt != nil {
		t, err := parseInstant(strings.TrimSpace(*req.ScheduledAt))
		if err != nil {
			http.Error(w, "invalid scheduled_at", http.StatusBadRequest)
			return
		}
		params.ScheduledAt = &t
	}
	if req.Status != nil {
		status := strings.TrimSpace(*req.Status)
		if !model.ValidStatus(status) {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		params.Status = &status
	}
	params.ServiceTypeID = req.ServiceTypeID
	params.Notes = req.Notes

	appt, err := h.engine.UpdateAppointment(r.Context(), ownerID, req.AppointmentID, params)
	if err != nil {
		switch {
		case errors.Is(err, scheduling.ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		case errors.Is(err, scheduling.ErrConflict):
			http.Error(w, "time slot is not available", http.StatusConflict)
		default:
			http.Error(w, "failed to update appointment", http.StatusInternalServerError)
		}
		return
	}

	if params.ScheduledAt != nil {
		h.emit(r.Context(), "scheduling.appointment.rescheduled.v1", appt)
	}
	writeJSON(w, http.StatusOK, appointmentItemFrom(appt))
}

type cancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
}

func (h *SchedulingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ownerID := ownerIDFrom(r)
	if ownerID == "" {
		http.Error(w, "missing "+OwnerIDHeader, http.StatusBadRequest)
		return
	}

	var req cancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		http.Error(w, "appointment_id is required", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.CancelAppointment(r.Context(), ownerID, req.AppointmentID)
	if err != nil {
		if errors.Is(err, scheduling.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to cancel appointment", http.StatusInternalServerError)
		return
	}

	h.emit(r.Context(), "scheduling.appointment.cancelled.v1", appt)
	writeJSON(w, http.StatusOK, appointmentItemFrom(appt))
}

func (h *SchedulingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ownerID := ownerIDFrom(r)
	if ownerID == "" {
		http.Error(w, "missing "+OwnerIDHeader, http.StatusBadRequest)
		return
	}
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status != "" && !model.ValidStatus(status) {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.engine.ListAppointments(r.Context(), ownerID, status, limit)
	if err != nil {
		http.Error(w, "failed to list appointments", http.StatusInternalServerError)
		return
	}

	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		items = append(items, appointmentItemFrom(appt))
	}
	writeJSON(w, http.StatusOK, items)
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	ContactID     string `json:"contact_id"`
	ServiceTypeID string `json:"service_type_id,omitempty"`
	ScheduledAt   string `json:"scheduled_at"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func appointmentItemFrom(appt model.Appointment) appointmentItem {
	item := appointmentItem{
		AppointmentID: appt.ID,
		ContactID:     appt.ContactID,
		ServiceTypeID: appt.ServiceTypeID,
		ScheduledAt:   appt.ScheduledAt.UTC().Format(time.RFC3339),
		Status:        appt.Status,
		Notes:         appt.Notes,
		CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
	}
	if appt.CancelledAt != nil {
		item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	return item
}

// emit records a lifecycle event for the outbox publisher. Emission is
// best-effort: the mutation is already persisted.
func (h *SchedulingHandler) emit(ctx context.Context, eventType string, appt model.Appointment) {
	if h.events == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"appointment_id":  appt.ID,
		"owner_id":        appt.OwnerID,
		"contact_id":      appt.ContactID,
		"service_type_id": appt.ServiceTypeID,
		"scheduled_at":    appt.ScheduledAt.UTC().Format(time.RFC3339),
		"status":          appt.Status,
	})
	if err != nil {
		h.logger.Error("failed to build event payload", "err", err)
		return
	}
	if err := h.events.Insert(ctx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		h.logger.Error("failed to write outbox event", "err", err, "event_type", eventType)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "failed to build response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
