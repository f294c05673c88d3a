package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/slotworks/scheduling/internal/model"
	"github.com/slotworks/scheduling/libs/db"
)

// Repository is the owner-scoped Postgres store for service types,
// recurring rules, date exceptions, and appointments. Every query filters
// by owner_id; cross-tenant reads are impossible at this layer.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (r *Repository) CreateServiceType(ctx context.Context, ownerID, name string, durationMins int, description string) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO service_types (id, owner_id, name, duration_minutes, description)
		VALUES ($1, $2, $3, $4, $5)
	`, id, ownerID, name, durationMins, description)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListServiceTypes(ctx context.Context, ownerID string, limit int) ([]model.ServiceType, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, owner_id::text, name, duration_minutes, description, created_at
		FROM service_types
		WHERE owner_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ServiceType
	for rows.Next() {
		var st model.ServiceType
		if err := rows.Scan(&st.ID, &st.OwnerID, &st.Name, &st.DurationMins, &st.Description, &st.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) ServiceTypeByID(ctx context.Context, ownerID, id string) (model.ServiceType, bool, error) {
	var st model.ServiceType
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, owner_id::text, name, duration_minutes, description, created_at
		FROM service_types
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id).Scan(&st.ID, &st.OwnerID, &st.Name, &st.DurationMins, &st.Description, &st.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return model.ServiceType{}, false, nil
		}
		return model.ServiceType{}, false, err
	}
	return st, true, nil
}

// DeleteServiceType removes the service type. Appointments keep their
// stale reference; duration derivation falls back to the default.
func (r *Repository) DeleteServiceType(ctx context.Context, ownerID, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM service_types
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) CreateRule(ctx context.Context, ownerID string, weekday, startMinute, endMinute, slotDurationMins int, isActive bool) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO recurring_rules (id, owner_id, weekday, start_minute, end_minute, slot_duration_minutes, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, ownerID, weekday, startMinute, endMinute, slotDurationMins, isActive)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *Repository) ListRules(ctx context.Context, ownerID string) ([]model.RecurringRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, owner_id::text, weekday, start_minute, end_minute, slot_duration_minutes, is_active, created_at
		FROM recurring_rules
		WHERE owner_id = $1
		ORDER BY weekday ASC, start_minute ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func (r *Repository) ActiveRules(ctx context.Context, ownerID string, weekday int) ([]model.RecurringRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, owner_id::text, weekday, start_minute, end_minute, slot_duration_minutes, is_active, created_at
		FROM recurring_rules
		WHERE owner_id = $1 AND weekday = $2 AND is_active
		ORDER BY start_minute ASC
	`, ownerID, weekday)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRules(rows)
}

func scanRules(rows pgx.Rows) ([]model.RecurringRule, error) {
	var out []model.RecurringRule
	for rows.Next() {
		var rule model.RecurringRule
		if err := rows.Scan(&rule.ID, &rule.OwnerID, &rule.Weekday, &rule.StartMinute, &rule.EndMinute,
			&rule.SlotDurationMins, &rule.IsActive, &rule.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) DeleteRule(ctx context.Context, ownerID, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM recurring_rules
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Repository) CreateException(ctx context.Context, ownerID string, date time.Time, isBlocked bool, customSlots []byte) (string, error) {
	id := uuid.NewString()
	var payload any
	if len(customSlots) > 0 {
		payload = customSlots
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO date_exceptions (id, owner_id, exception_date, is_blocked, custom_slots)
		VALUES ($1, $2, $3, $4, $5)
	`, id, ownerID, date, isBlocked, payload)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ExceptionFor returns the exception for the owner's calendar date. When
// several rows exist for one date the oldest wins, keeping behavior
// deterministic.
func (r *Repository) ExceptionFor(ctx context.Context, ownerID string, date time.Time) (model.DateException, bool, error) {
	var exc model.DateException
	var customSlots []byte
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, owner_id::text, exception_date, is_blocked, custom_slots, created_at
		FROM date_exceptions
		WHERE owner_id = $1 AND exception_date = $2::date
		ORDER BY created_at ASC
		LIMIT 1
	`, ownerID, date).Scan(&exc.ID, &exc.OwnerID, &exc.Date, &exc.IsBlocked, &customSlots, &exc.CreatedAt)
	if err != nil {
		if IsNotFound(err) {
			return model.DateException{}, false, nil
		}
		return model.DateException{}, false, err
	}
	exc.CustomSlots = customSlots
	return exc, true, nil
}

func (r *Repository) ListExceptions(ctx context.Context, ownerID string, from, to time.Time, limit int) ([]model.DateException, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, owner_id::text, exception_date, is_blocked, custom_slots, created_at
		FROM date_exceptions
		WHERE owner_id = $1 AND exception_date >= $2::date AND exception_date <= $3::date
		ORDER BY exception_date ASC
		LIMIT $4
	`, ownerID, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DateException
	for rows.Next() {
		var exc model.DateException
		var customSlots []byte
		if err := rows.Scan(&exc.ID, &exc.OwnerID, &exc.Date, &exc.IsBlocked, &customSlots, &exc.CreatedAt); err != nil {
			return nil, err
		}
		exc.CustomSlots = customSlots
		out = append(out, exc)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Repository) DeleteException(ctx context.Context, ownerID, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM date_exceptions
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
