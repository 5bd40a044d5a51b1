package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dentalcare/slot-booking/internal/db"
)

// Partial unique index over (dentist_id, appointment_date, appointment_time)
// for rows whose status is not cancelled.
const activeSlotIndex = "appointments_active_slot_uniq"

const appointmentColumns = `id, dentist_id, dentist_email, patient_id, patient_name, patient_email, patient_phone,
		       reason, notes, appointment_date, appointment_time, status, payment_method, payment_status,
		       cancelled_at, completed_at, created_at, updated_at`

type PgRepository struct {
	pool db.DBTX
}

func NewPgRepository(pool db.DBTX) *PgRepository {
	if pool == nil {
		panic("appointment: pgx pool required")
	}
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.DentistID,
		&a.DentistEmail,
		&a.PatientID,
		&a.PatientName,
		&a.PatientEmail,
		&a.PatientPhone,
		&a.Reason,
		&a.Notes,
		&a.Date,
		&a.Time,
		&a.Status,
		&a.PaymentMethod,
		&a.PaymentStatus,
		&a.CancelledAt,
		&a.CompletedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func slotConflict(err error) error {
	if db.IsUniqueViolation(err, activeSlotIndex) {
		return ErrSlotTaken
	}
	return err
}

// Interface methods

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

// guarded runs write in a transaction after locking any live hold on the
// slot. A hold owned by someone other than guard.PatientID aborts with
// ErrSlotHeld.
func (r *PgRepository) guarded(ctx context.Context, dentistID uuid.UUID, guard SlotGuard, write func(tx db.DBTX) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var holder uuid.UUID
	err = tx.QueryRow(ctx, `
		SELECT patient_id
		FROM slot_reservations
		WHERE dentist_id = $1
		  AND slot_time = $2
		  AND expires_at >= $3
		FOR UPDATE
	`, dentistID, guard.SlotTime, guard.Now).Scan(&holder)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("check slot hold: %w", err)
	case !guard.allows(holder):
		return ErrSlotHeld
	}

	if err := write(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *PgRepository) Insert(ctx context.Context, a Appointment, guard SlotGuard) (*Appointment, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	var created *Appointment
	err := r.guarded(ctx, a.DentistID, guard, func(tx db.DBTX) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO appointments (
				id, dentist_id, dentist_email, patient_id, patient_name, patient_email, patient_phone,
				reason, notes, appointment_date, appointment_time, status, payment_method, payment_status,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
			RETURNING `+appointmentColumns+`
		`, a.ID, a.DentistID, a.DentistEmail, a.PatientID, a.PatientName, a.PatientEmail, a.PatientPhone,
			a.Reason, a.Notes, a.Date, a.Time, a.Status, a.PaymentMethod, a.PaymentStatus)

		var err error
		created, err = scanAppointment(row)
		return err
	})
	if err != nil {
		return nil, slotConflict(err)
	}
	return created, nil
}

func (r *PgRepository) Reschedule(ctx context.Context, id uuid.UUID, dentistID uuid.UUID, date time.Time, clock string, guard SlotGuard) (*Appointment, error) {
	var updated *Appointment
	err := r.guarded(ctx, dentistID, guard, func(tx db.DBTX) error {
		row := tx.QueryRow(ctx, `
			UPDATE appointments
			SET appointment_date = $2,
			    appointment_time = $3,
			    updated_at = now()
			WHERE id = $1
			  AND status <> 'cancelled'
			RETURNING `+appointmentColumns+`
		`, id, date, clock)

		var err error
		updated, err = scanAppointment(row)
		return err
	})
	if err != nil {
		return nil, slotConflict(err)
	}
	return updated, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    cancelled_at = CASE WHEN $2 = 'cancelled' THEN $4 ELSE cancelled_at END,
		    completed_at = CASE WHEN $2 = 'completed' THEN $4 ELSE completed_at END,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, at)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET notes = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, notes)

	return scanAppointment(row)
}

func (r *PgRepository) ListByDentist(ctx context.Context, dentistID uuid.UUID, f Filter) ([]Appointment, error) {
	return r.list(ctx, "dentist_id", dentistID, f)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, f Filter) ([]Appointment, error) {
	return r.list(ctx, "patient_id", patientID, f)
}

func (r *PgRepository) list(ctx context.Context, ownerColumn string, ownerID uuid.UUID, f Filter) ([]Appointment, error) {
	f = f.normalized()

	where := []string{ownerColumn + " = $1"}
	args := []any{ownerID}

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		args = append(args, statuses)
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if f.From != nil {
		args = append(args, *f.From)
		where = append(where, fmt.Sprintf("appointment_date >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where = append(where, fmt.Sprintf("appointment_date <= $%d", len(args)))
	}

	args = append(args, f.Limit, f.Offset)
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY appointment_date, appointment_time
		LIMIT $` + fmt.Sprint(len(args)-1) + ` OFFSET $` + fmt.Sprint(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListActiveByDentistOnDate(ctx context.Context, dentistID uuid.UUID, date time.Time) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE dentist_id = $1
		  AND appointment_date = $2
		  AND status <> 'cancelled'
		ORDER BY appointment_time
	`, dentistID, date)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ExistsActiveAt(ctx context.Context, dentistID uuid.UUID, date time.Time, clock string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE dentist_id = $1
			  AND appointment_date = $2
			  AND appointment_time = $3
			  AND status <> 'cancelled'
		)
	`, dentistID, date, clock).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func (r *PgRepository) InTx(ctx context.Context, fn func(tx Repository) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&PgRepository{pool: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
