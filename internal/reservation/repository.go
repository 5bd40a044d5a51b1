package reservation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrSlotReserved is returned when the (dentist, slot_time) unique
	// constraint rejects an insert.
	ErrSlotReserved = errors.New("slot already reserved")
)

// Repository is the Reservation Store. Every read takes the caller's now and
// hides rows whose expires_at is before it.
type Repository interface {
	Insert(ctx context.Context, r Reservation, now time.Time) (*Reservation, error)

	FindByID(ctx context.Context, id uuid.UUID, now time.Time) (*Reservation, error)
	FindBySlot(ctx context.Context, dentistID uuid.UUID, slot, now time.Time) (*Reservation, error)
	FindByPatient(ctx context.Context, patientID uuid.UUID, now time.Time) ([]Reservation, error)
	FindByDentist(ctx context.Context, dentistID uuid.UUID, now time.Time) ([]Reservation, error)

	Delete(ctx context.Context, id uuid.UUID) error
	DeleteForPatientSlot(ctx context.Context, dentistID, patientID uuid.UUID, slot time.Time) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
