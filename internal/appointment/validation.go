package appointment

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/dentalcare/slot-booking/internal/apperr"
	"github.com/dentalcare/slot-booking/internal/slottime"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9 ()\-]{7,20}$`)
)

// CreateRequest is a new booking as submitted by the patient site.
type CreateRequest struct {
	PatientName   string
	PatientEmail  string
	PatientPhone  string
	DentistID     string
	DentistEmail  string
	Date          string
	Time          string
	PaymentMethod PaymentMethod
	Reason        string
	Notes         *string
}

// UpdateRequest carries the optional fields of an appointment edit.
type UpdateRequest struct {
	Date   *string
	Time   *string
	Status *Status
	Notes  *string
}

// Validate checks structure only; it never touches the store.
func (r CreateRequest) Validate() error {
	verr := &apperr.ValidationError{}

	if strings.TrimSpace(r.PatientName) == "" {
		verr.Add("patientName", "is required")
	} else if len(r.PatientName) > 200 {
		verr.Add("patientName", "must be at most 200 characters")
	}

	if !emailPattern.MatchString(strings.TrimSpace(r.PatientEmail)) {
		verr.Add("patientEmail", "must be a valid email address")
	}

	if !phonePattern.MatchString(strings.TrimSpace(r.PatientPhone)) {
		verr.Add("patientPhone", "must be a valid phone number")
	}

	switch {
	case r.DentistID != "":
		if _, err := uuid.Parse(r.DentistID); err != nil {
			verr.Add("dentistId", "must be a valid UUID")
		}
	case r.DentistEmail != "":
		if !emailPattern.MatchString(strings.TrimSpace(r.DentistEmail)) {
			verr.Add("dentistEmail", "must be a valid email address")
		}
	default:
		verr.Add("dentistEmail", "dentistEmail or dentistId is required")
	}

	if _, err := slottime.ParseDate(r.Date); err != nil {
		verr.Add("date", "must be YYYY-MM-DD")
	}
	if _, err := slottime.ParseClock(r.Time); err != nil {
		verr.Add("time", "must be HH:mm")
	}

	if !r.PaymentMethod.Valid() {
		verr.Add("paymentMethod", "must be one of stripe, cash")
	}

	if len(r.Reason) > 1000 {
		verr.Add("reason", "must be at most 1000 characters")
	}

	return verr.OrNil()
}

func (r UpdateRequest) Validate() error {
	verr := &apperr.ValidationError{}

	if r.Date == nil && r.Time == nil && r.Status == nil && r.Notes == nil {
		verr.Add("body", "at least one of date, time, status, notes is required")
	}
	if r.Date != nil {
		if _, err := slottime.ParseDate(*r.Date); err != nil {
			verr.Add("date", "must be YYYY-MM-DD")
		}
	}
	if r.Time != nil {
		if _, err := slottime.ParseClock(*r.Time); err != nil {
			verr.Add("time", "must be HH:mm")
		}
	}
	if r.Status != nil && !r.Status.Valid() {
		verr.Add("status", "must be one of pending, confirmed, completed, cancelled")
	}

	return verr.OrNil()
}
