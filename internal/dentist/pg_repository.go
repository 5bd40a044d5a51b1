package dentist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dentalcare/slot-booking/internal/db"
)

const dentistColumns = `id, name, email, specialization, available_times, slot_duration_minutes, created_at, updated_at`

type PgRepository struct {
	pool db.DBTX
}

func NewPgRepository(pool db.DBTX) *PgRepository {
	if pool == nil {
		panic("dentist: pgx pool required")
	}
	return &PgRepository{pool: pool}
}

func scanDentist(row pgx.Row) (*Dentist, error) {
	var d Dentist
	var times []byte
	var slotMinutes int

	err := row.Scan(
		&d.ID,
		&d.Name,
		&d.Email,
		&d.Specialization,
		&times,
		&slotMinutes,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDentistNotFound
		}
		return nil, err
	}

	days := map[string]string{}
	if len(times) > 0 {
		if err := json.Unmarshal(times, &days); err != nil {
			return nil, fmt.Errorf("decode available_times for dentist %s: %w", d.ID, err)
		}
	}
	sched, err := ParseSchedule(ScheduleDoc{Days: days, SlotDurationMinutes: slotMinutes})
	if err != nil {
		return nil, fmt.Errorf("stored schedule for dentist %s: %w", d.ID, err)
	}
	d.Schedule = sched

	return &d, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+dentistColumns+`
		FROM dentists
		WHERE id = $1
	`, id)
	return scanDentist(row)
}

func (r *PgRepository) GetByEmail(ctx context.Context, email string) (*Dentist, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+dentistColumns+`
		FROM dentists
		WHERE lower(email) = $1
	`, strings.ToLower(strings.TrimSpace(email)))
	return scanDentist(row)
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, id uuid.UUID, sched Schedule) (*Dentist, error) {
	times, err := json.Marshal(sched.Times())
	if err != nil {
		return nil, fmt.Errorf("encode available_times: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE dentists
		SET available_times = $2,
		    slot_duration_minutes = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+dentistColumns+`
	`, id, times, sched.SlotMinutes)
	return scanDentist(row)
}
