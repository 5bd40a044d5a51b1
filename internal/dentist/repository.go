package dentist

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrDentistNotFound = errors.New("dentist not found")

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Dentist, error)
	GetByEmail(ctx context.Context, email string) (*Dentist, error)
	UpdateSchedule(ctx context.Context, id uuid.UUID, sched Schedule) (*Dentist, error)
}
