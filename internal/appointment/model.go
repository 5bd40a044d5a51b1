package appointment

import (
	"time"

	"github.com/google/uuid"

	"github.com/dentalcare/slot-booking/internal/slottime"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo enforces the forward-only lifecycle: pending->confirmed,
// confirmed->completed, anything not yet cancelled->cancelled.
func (s Status) CanTransitionTo(next Status) bool {
	switch {
	case s == StatusCancelled:
		return false
	case next == StatusCancelled:
		return true
	case s == StatusPending && next == StatusConfirmed:
		return true
	case s == StatusConfirmed && next == StatusCompleted:
		return true
	}
	return false
}

type PaymentMethod string

const (
	PaymentStripe PaymentMethod = "stripe"
	PaymentCash   PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentStripe || m == PaymentCash
}

// InitialStatus is the status a new booking commits with. Cash bookings are
// settled at the clinic and confirmed immediately; card bookings wait for
// checkout to finish.
func (m PaymentMethod) InitialStatus() Status {
	if m == PaymentCash {
		return StatusConfirmed
	}
	return StatusPending
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

type Appointment struct {
	ID            uuid.UUID
	DentistID     uuid.UUID
	DentistEmail  string
	PatientID     *uuid.UUID
	PatientName   string
	PatientEmail  string
	PatientPhone  string
	Reason        string
	Notes         *string
	Date          time.Time
	Time          string
	Status        Status
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	CancelledAt   *time.Time
	CompletedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// DateString is the appointment date as YYYY-MM-DD.
func (a Appointment) DateString() string {
	return slottime.FormatDate(a.Date)
}

// StartsAt resolves the stored (date, time) pair in the clinic timezone.
func (a Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	return slottime.Combine(a.Date, a.Time, loc)
}

// BelongsTo reports whether user is the patient or the dentist on a.
func (a Appointment) BelongsTo(user uuid.UUID) bool {
	if user == uuid.Nil {
		return false
	}
	if a.DentistID == user {
		return true
	}
	return a.PatientID != nil && *a.PatientID == user
}

// Filter narrows appointment listings.
type Filter struct {
	Statuses []Status
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
