package reservation

import (
	"time"

	"github.com/google/uuid"
)

// Reservation is a short checkout hold on one dentist slot.
type Reservation struct {
	ID        uuid.UUID `json:"id"`
	DentistID uuid.UUID `json:"dentistId"`
	PatientID uuid.UUID `json:"patientId"`
	SlotTime  time.Time `json:"slotTime"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Active reports whether the hold still blocks its slot at now.
func (r Reservation) Active(now time.Time) bool {
	return !r.ExpiresAt.Before(now)
}
