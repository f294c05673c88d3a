package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/slotworks/scheduling/internal/availability"
	"github.com/slotworks/scheduling/internal/model"
)

// CalendarStore is the persistence surface the calendar handlers need.
// *storage.Repository satisfies it.
type CalendarStore interface {
	CreateServiceType(ctx context.Context, ownerID, name string, durationMins int, description string) (string, error)
	ListServiceTypes(ctx context.Context, ownerID string, limit int) ([]model.ServiceType, error)
	DeleteServiceType(ctx context.Context, ownerID, id string) (bool, error)

	CreateRule(ctx context.Context, ownerID string, weekday, startMinute, endMinute, slotDurationMins int, isActive bool) (string, error)
	ListRules(ctx context.Context, ownerID string) ([]model.RecurringRule, error)
	DeleteRule(ctx context.Context, ownerID, id string) (bool, error)

	CreateException(ctx context.Context, ownerID string, date time.Time, isBlocked bool, customSlots []byte) (string, error)
	ListExceptions(ctx context.Context, ownerID string, from, to time.Time, limit int) ([]model.DateException, error)
	DeleteException(ctx context.Context, ownerID, id string) (bool, error)
}

type CalendarHandler struct {
	store  CalendarStore
	logger *slog.Logger
}

func NewCalendarHandler(store CalendarStore, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{store: store, logger: logger}
}

type createServiceTypeRequest struct {
	Name         string `json:"name"`
	DurationMins int    `json:"duration_minutes"`
	Description  string `json:"description"`
}

type serviceTypeItem struct {
	ServiceTypeID string `json:"service_type_id"`
	Name          string `json:"name"`
	DurationMins  int    `json:"duration_minutes"`
	Description   string `json:"description,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

func (h *CalendarHandler) ServiceTypes(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerIDFrom(r)
	if ownerID == "" {
		http.Error(w, "missing "+OwnerIDHeader, http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req createServiceTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			http.Error(w, "name is required", http.StatusBadRequest)
			return
		}
		if req.DurationMins <= 0 || req.DurationMins > 24*60 {
			http.Error(w, "invalid duration_minutes", http.StatusBadRequest)
			return
		}
		id, err := h.store.CreateServiceType(r.Context(), ownerID, req.Name, req.DurationMins, req.Description)
		if err != nil {
			h.logger.Error("failed to create service type", "err", err)
			http.Error(w, "failed to create service type", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, serviceTypeItem{
			ServiceTypeID: id,
			Name:          req.Name,
			DurationMins:  req.DurationMins,
			Description:   req.Description,
		})
	case http.MethodGet:
		types, err := h.store.ListServiceTypes(r.Context(), ownerID, listLimit(r))
		if err != nil {
			h.logger.Error("failed to list service types", "err", err)
			http.Error(w, "failed to list service types", http.StatusInternalServerError)
			return
		}
		items := make([]serviceTypeItem, 0, len(types))
		for _, st := range types {
			items = append(items, serviceTypeItem{
				ServiceTypeID: st.ID,
				Name:          st.Name,
				DurationMins:  st.DurationMins,
				Description:   st.Description,
				CreatedAt:     st.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, items)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CalendarHandler) DeleteServiceType(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "service_type_id", h.store.DeleteServiceType)
}

type createRuleRequest struct {
	Weekday          int    `json:"day_of_week"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	SlotDurationMins int    `json:"slot_duration_minutes"`
	IsActive         *bool  `json:"is_active"`
}

type ruleItem struct {
	RuleID           string `json:"rule_id"`
	Weekday          int    `json:"day_of_week"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	SlotDurationMins int    `json:"slot_duration_minutes"`
	IsActive         bool   `json:"is_active"`
}

func (h *CalendarHandler) Rules(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerIDFrom(r)
	if ownerID == "" {
		http.Error(w, "missing "+OwnerIDHeader, http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req createRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if req.Weekday < 0 || req.Weekday > 6 {
			http.Error(w, "day_of_week must be 0 (Monday) through 6 (Sunday)", http.StatusBadRequest)
			return
		}
		startMinute, err := availability.ParseClock(req.StartTime)
		if err != nil {
			http.Error(w, "invalid start_time (want HH:MM)", http.StatusBadRequest)
			return
		}
		endMinute, err := availability.ParseClock(req.EndTime)
		if err != nil {
			http.Error(w, "invalid end_time (want HH:MM)", http.StatusBadRequest)
			return
		}
		if startMinute >= endMinute {
			http.Error(w, "start_time must be before end_time", http.StatusBadRequest)
			return
		}
		if req.SlotDurationMins <= 0 || req.SlotDurationMins > 24*60 {
			http.Error(w, "invalid slot_duration_minutes", http.StatusBadRequest)
			return
		}
		isActive := true
		if req.IsActive != nil {
			isActive = *req.IsActive
		}
		id, err := h.store.CreateRule(r.Context(), ownerID, req.Weekday, startMinute, endMinute, req.SlotDurationMins, isActive)
		if err != nil {
			h.logger.Error("failed to create rule", "err", err)
			http.Error(w, "failed to create rule", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, ruleItem{
			RuleID:           id,
			Weekday:          req.Weekday,
			StartTime:        availability.FormatClock(startMinute),
			EndTime:          availability.FormatClock(endMinute),
			SlotDurationMins: req.SlotDurationMins,
			IsActive:         isActive,
		})
	case http.MethodGet:
		rules, err := h.store.ListRules(r.Context(), ownerID)
		if err != nil {
			h.logger.Error("failed to list rules", "err", err)
			http.Error(w, "failed to list rules", http.StatusInternalServerError)
			return
		}
		items := make([]ruleItem, 0, len(rules))
		for _, rule := range rules {
			items = append(items, ruleItem{
				RuleID:           rule.ID,
				Weekday:          rule.Weekday,
				StartTime:        availability.FormatClock(rule.StartMinute),
				EndTime:          availability.FormatClock(rule.EndMinute),
				SlotDurationMins: rule.SlotDurationMins,
				IsActive:         rule.IsActive,
			})
		}
		writeJSON(w, http.StatusOK, items)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CalendarHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "rule_id", h.store.DeleteRule)
}

type createExceptionRequest struct {
	Date        string   `json:"date"`
	IsBlocked   bool     `json:"is_blocked"`
	CustomTimes []string `json:"custom_times"`
}

type exceptionItem struct {
	ExceptionID string   `json:"exception_id"`
	Date        string   `json:"date"`
	IsBlocked   bool     `json:"is_blocked"`
	CustomTimes []string `json:"custom_times,omitempty"`
}

func (h *CalendarHandler) Exceptions(w http.ResponseWriter, r *http.Request) {
	ownerID := ownerIDFrom(r)
	if ownerID == "" {
		http.Error(w, "missing "+OwnerIDHeader, http.StatusBadRequest)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req createExceptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		date, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(req.Date), time.UTC)
		if err != nil {
			http.Error(w, "invalid date (want YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		var customSlots []byte
		if len(req.CustomTimes) > 0 {
			for _, raw := range req.CustomTimes {
				if _, err := availability.ParseClock(raw); err != nil {
					http.Error(w, "invalid custom time (want HH:MM)", http.StatusBadRequest)
					return
				}
			}
			customSlots, err = json.Marshal(map[string][]string{"times": req.CustomTimes})
			if err != nil {
				http.Error(w, "failed to create exception", http.StatusInternalServerError)
				return
			}
		}
		id, err := h.store.CreateException(r.Context(), ownerID, date, req.IsBlocked, customSlots)
		if err != nil {
			h.logger.Error("failed to create exception", "err", err)
			http.Error(w, "failed to create exception", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusCreated, exceptionItem{
			ExceptionID: id,
			Date:        date.Format("2006-01-02"),
			IsBlocked:   req.IsBlocked,
			CustomTimes: req.CustomTimes,
		})
	case http.MethodGet:
		now := time.Now().UTC()
		from := availability.DayOf(now)
		to := from.AddDate(0, 3, 0)
		if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
			if t, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
				from = t
			}
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
			if t, err := time.ParseInLocation("2006-01-02", raw, time.UTC); err == nil {
				to = t
			}
		}
		excs, err := h.store.ListExceptions(r.Context(), ownerID, from, to, listLimit(r))
		if err != nil {
			h.logger.Error("failed to list exceptions", "err", err)
			http.Error(w, "failed to list exceptions", http.StatusInternalServerError)
			return
		}
		items := make([]exceptionItem, 0, len(excs))
		for _, exc := range excs {
			item := exceptionItem{
				ExceptionID: exc.ID,
				Date:        exc.Date.Format("2006-01-02"),
				IsBlocked:   exc.IsBlocked,
			}
			if len(exc.CustomSlots) > 0 {
				var payload struct {
					Times []string `json:"times"`
				}
				if err := json.Unmarshal(exc.CustomSlots, &payload); err == nil {
					item.CustomTimes = payload.Times
				}
			}
			items = append(items, item)
		}
		writeJSON(w, http.StatusOK, items)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *CalendarHandler) DeleteException(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "exception_id", h.store.DeleteException)
}

func (h *CalendarHandler) deleteByID(w http.ResponseWriter, r *http.Request, field string, del func(ctx context.Context, ownerID, id string) (bool, error)) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ownerID := ownerIDFrom(r)
	if ownerID == "" {
		http.Error(w, "missing "+OwnerIDHeader, http.StatusBadRequest)
		return
	}
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	id := strings.TrimSpace(req[field])
	if id == "" {
		http.Error(w, field+" is required", http.StatusBadRequest)
		return
	}
	deleted, err := del(r.Context(), ownerID, id)
	if err != nil {
		h.logger.Error("delete failed", "err", err, "field", field)
		http.Error(w, "delete failed", http.StatusInternalServerError)
		return
	}
	if !deleted {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

func listLimit(r *http.Request) int {
	limit := 100
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	return limit
}
