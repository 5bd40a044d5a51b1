package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotTaken is returned by the store when the active-slot unique
	// index rejects a write. It is the only authoritative conflict signal.
	ErrSlotTaken = errors.New("slot already has an active appointment")
	// ErrSlotHeld is returned when another patient owns a live checkout hold
	// on the slot being written.
	ErrSlotHeld = errors.New("slot is held by another patient")
)

// SlotGuard names the hold check a guarded write runs before touching the
// row. A live hold on (dentist, SlotTime) blocks the write unless it belongs
// to PatientID.
type SlotGuard struct {
	SlotTime  time.Time
	Now       time.Time
	PatientID *uuid.UUID
}

func (g SlotGuard) allows(holder uuid.UUID) bool {
	return g.PatientID != nil && *g.PatientID == holder
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// Guarded writes; both return ErrSlotTaken on an active-slot collision
	// and ErrSlotHeld when another patient holds the slot.
	Insert(ctx context.Context, a Appointment, guard SlotGuard) (*Appointment, error)
	Reschedule(ctx context.Context, id uuid.UUID, dentistID uuid.UUID, date time.Time, clock string, guard SlotGuard) (*Appointment, error)

	// UpdateStatus only applies when the row is still in status from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, at time.Time) (*Appointment, error)
	UpdateNotes(ctx context.Context, id uuid.UUID, notes string) (*Appointment, error)

	ListByDentist(ctx context.Context, dentistID uuid.UUID, f Filter) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, f Filter) ([]Appointment, error)

	// Occupancy reads for availability, cancelled rows excluded.
	ListActiveByDentistOnDate(ctx context.Context, dentistID uuid.UUID, date time.Time) ([]Appointment, error)
	ExistsActiveAt(ctx context.Context, dentistID uuid.UUID, date time.Time, clock string) (bool, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error

	// InTx runs fn against a repository bound to one transaction. The
	// transaction commits only when fn returns nil.
	InTx(ctx context.Context, fn func(tx Repository) error) error
}
