package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/slotworks/scheduling/internal/model"
	"github.com/slotworks/scheduling/internal/scheduling"
)

const appointmentColumns = `
	id::text, owner_id::text, contact_id::text, COALESCE(service_type_id::text, ''),
	scheduled_at, status, COALESCE(notes, ''), cancelled_at, created_at`

func (r *Repository) InsertAppointment(ctx context.Context, appt model.Appointment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO appointments (id, owner_id, contact_id, service_type_id, scheduled_at, status, notes, created_at)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5, $6, $7, $8)
	`, appt.ID, appt.OwnerID, appt.ContactID, appt.ServiceTypeID, appt.ScheduledAt, appt.Status, appt.Notes, appt.CreatedAt)
	return err
}

func (r *Repository) UpdateAppointment(ctx context.Context, appt model.Appointment) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET service_type_id = NULLIF($3, '')::uuid,
			scheduled_at = $4,
			status = $5,
			notes = $6,
			cancelled_at = $7,
			updated_at = now()
		WHERE owner_id = $1 AND id = $2
	`, appt.OwnerID, appt.ID, appt.ServiceTypeID, appt.ScheduledAt, appt.Status, appt.Notes, appt.CancelledAt)
	return err
}

func (r *Repository) AppointmentByID(ctx context.Context, ownerID, id string) (model.Appointment, bool, error) {
	var appt model.Appointment
	err := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id).Scan(
		&appt.ID, &appt.OwnerID, &appt.ContactID, &appt.ServiceTypeID,
		&appt.ScheduledAt, &appt.Status, &appt.Notes, &appt.CancelledAt, &appt.CreatedAt,
	)
	if err != nil {
		if IsNotFound(err) {
			return model.Appointment{}, false, nil
		}
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

// OpenAppointmentsOn loads the owner's pending and confirmed appointments
// whose scheduled date matches the given UTC day. Cancelled and completed
// appointments never block a slot.
func (r *Repository) OpenAppointmentsOn(ctx context.Context, ownerID string, day time.Time, excludeID string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE owner_id = $1
			AND status IN ('pending', 'confirmed')
			AND (scheduled_at AT TIME ZONE 'UTC')::date = $2::date
			AND ($3 = '' OR id::text <> $3)
		ORDER BY scheduled_at ASC
	`, ownerID, day, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (r *Repository) ListAppointments(ctx context.Context, ownerID, status string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE owner_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY scheduled_at DESC
		LIMIT $3
	`, ownerID, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var out []model.Appointment
	for rows.Next() {
		var appt model.Appointment
		if err := rows.Scan(
			&appt.ID, &appt.OwnerID, &appt.ContactID, &appt.ServiceTypeID,
			&appt.ScheduledAt, &appt.Status, &appt.Notes, &appt.CancelledAt, &appt.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

var _ scheduling.Store = (*Repository)(nil)
