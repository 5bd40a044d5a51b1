package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentStatus      = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
)

// Event is emitted after a booking change commits. Delivery is best effort;
// nothing in the booking path depends on it.
type Event struct {
	Type          string    `json:"type"`
	AppointmentID uuid.UUID `json:"appointmentId"`
	DentistID     uuid.UUID `json:"dentistId"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Status        Status    `json:"status"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Publisher fans booking events out to realtime subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

func newEvent(eventType string, a *Appointment, at time.Time) Event {
	return Event{
		Type:          eventType,
		AppointmentID: a.ID,
		DentistID:     a.DentistID,
		Date:          a.DateString(),
		Time:          a.Time,
		Status:        a.Status,
		OccurredAt:    at,
	}
}
