package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dentalcare/slot-booking/internal/db"
)

const slotUniqueConstraint = "slot_reservations_dentist_slot_key"

const reservationColumns = `id, dentist_id, patient_id, slot_time, created_at, expires_at`

type PgRepository struct {
	pool db.DBTX
}

func NewPgRepository(pool db.DBTX) *PgRepository {
	if pool == nil {
		panic("reservation: pgx pool required")
	}
	return &PgRepository{pool: pool}
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var r Reservation
	err := row.Scan(&r.ID, &r.DentistID, &r.PatientID, &r.SlotTime, &r.CreatedAt, &r.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrReservationNotFound
		}
		return nil, err
	}
	return &r, nil
}

func collectReservations(rows pgx.Rows) ([]Reservation, error) {
	defer rows.Close()

	var result []Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Insert clears an expired hold on the same key and inserts the new one in
// a single transaction. A live hold makes the insert fail on the unique
// constraint, which is reported as ErrSlotReserved.
func (r *PgRepository) Insert(ctx context.Context, res Reservation, now time.Time) (*Reservation, error) {
	if res.ID == uuid.Nil {
		res.ID = uuid.New()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM slot_reservations
		WHERE dentist_id = $1
		  AND slot_time = $2
		  AND expires_at < $3
	`, res.DentistID, res.SlotTime, now); err != nil {
		return nil, fmt.Errorf("clear expired reservation: %w", err)
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO slot_reservations (id, dentist_id, patient_id, slot_time, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+reservationColumns,
		res.ID, res.DentistID, res.PatientID, res.SlotTime, res.CreatedAt, res.ExpiresAt)

	created, err := scanReservation(row)
	if err != nil {
		if db.IsUniqueViolation(err, slotUniqueConstraint) {
			return nil, ErrSlotReserved
		}
		return nil, fmt.Errorf("insert reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if db.IsUniqueViolation(err, slotUniqueConstraint) {
			return nil, ErrSlotReserved
		}
		return nil, fmt.Errorf("commit reservation: %w", err)
	}

	return created, nil
}

func (r *PgRepository) FindByID(ctx context.Context, id uuid.UUID, now time.Time) (*Reservation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM slot_reservations
		WHERE id = $1
		  AND expires_at >= $2
	`, id, now)
	return scanReservation(row)
}

func (r *PgRepository) FindBySlot(ctx context.Context, dentistID uuid.UUID, slot, now time.Time) (*Reservation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+reservationColumns+`
		FROM slot_reservations
		WHERE dentist_id = $1
		  AND slot_time = $2
		  AND expires_at >= $3
	`, dentistID, slot, now)
	return scanReservation(row)
}

func (r *PgRepository) FindByPatient(ctx context.Context, patientID uuid.UUID, now time.Time) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM slot_reservations
		WHERE patient_id = $1
		  AND expires_at >= $2
		ORDER BY slot_time
	`, patientID, now)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *PgRepository) FindByDentist(ctx context.Context, dentistID uuid.UUID, now time.Time) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM slot_reservations
		WHERE dentist_id = $1
		  AND expires_at >= $2
		ORDER BY slot_time
	`, dentistID, now)
	if err != nil {
		return nil, err
	}
	return collectReservations(rows)
}

func (r *PgRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM slot_reservations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrReservationNotFound
	}
	return nil
}

func (r *PgRepository) DeleteForPatientSlot(ctx context.Context, dentistID, patientID uuid.UUID, slot time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM slot_reservations
		WHERE dentist_id = $1
		  AND patient_id = $2
		  AND slot_time = $3
	`, dentistID, patientID, slot)
	if err != nil {
		return 0, fmt.Errorf("delete patient reservation: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM slot_reservations WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}
