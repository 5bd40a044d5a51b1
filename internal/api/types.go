package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/dentalcare/slot-booking/internal/appointment"
	"github.com/dentalcare/slot-booking/internal/apperr"
	"github.com/dentalcare/slot-booking/internal/availability"
	"github.com/dentalcare/slot-booking/internal/dentist"
	"github.com/dentalcare/slot-booking/internal/reservation"
)

type CreateAppointmentRequest struct {
	PatientName   string  `json:"patientName"`
	PatientEmail  string  `json:"patientEmail"`
	PatientPhone  string  `json:"patientPhone"`
	DentistID     string  `json:"dentistId"`
	DentistEmail  string  `json:"dentistEmail"`
	Date          string  `json:"date"`
	Time          string  `json:"time"`
	PaymentMethod string  `json:"paymentMethod"`
	Reason        string  `json:"reason"`
	Notes         *string `json:"notes"`
}

func (r CreateAppointmentRequest) toDomain() appointment.CreateRequest {
	return appointment.CreateRequest{
		PatientName:   r.PatientName,
		PatientEmail:  r.PatientEmail,
		PatientPhone:  r.PatientPhone,
		DentistID:     r.DentistID,
		DentistEmail:  r.DentistEmail,
		Date:          r.Date,
		Time:          r.Time,
		PaymentMethod: appointment.PaymentMethod(r.PaymentMethod),
		Reason:        r.Reason,
		Notes:         r.Notes,
	}
}

type UpdateAppointmentRequest struct {
	Date   *string `json:"date"`
	Time   *string `json:"time"`
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

func (r UpdateAppointmentRequest) toDomain() appointment.UpdateRequest {
	req := appointment.UpdateRequest{Date: r.Date, Time: r.Time, Notes: r.Notes}
	if r.Status != nil {
		s := appointment.Status(*r.Status)
		req.Status = &s
	}
	return req
}

type AppointmentResponse struct {
	ID            uuid.UUID  `json:"id"`
	DentistID     uuid.UUID  `json:"dentistId"`
	DentistEmail  string     `json:"dentistEmail"`
	PatientID     *uuid.UUID `json:"patientId,omitempty"`
	PatientName   string     `json:"patientName"`
	PatientEmail  string     `json:"patientEmail"`
	PatientPhone  string     `json:"patientPhone"`
	Reason        string     `json:"reason,omitempty"`
	Notes         *string    `json:"notes,omitempty"`
	Date          string     `json:"date"`
	Time          string     `json:"time"`
	Status        string     `json:"status"`
	PaymentMethod string     `json:"paymentMethod"`
	PaymentStatus string     `json:"paymentStatus"`
	CancelledAt   *time.Time `json:"cancelledAt,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

func newAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:            a.ID,
		DentistID:     a.DentistID,
		DentistEmail:  a.DentistEmail,
		PatientID:     a.PatientID,
		PatientName:   a.PatientName,
		PatientEmail:  a.PatientEmail,
		PatientPhone:  a.PatientPhone,
		Reason:        a.Reason,
		Notes:         a.Notes,
		Date:          a.DateString(),
		Time:          a.Time,
		Status:        string(a.Status),
		PaymentMethod: string(a.PaymentMethod),
		PaymentStatus: string(a.PaymentStatus),
		CancelledAt:   a.CancelledAt,
		CompletedAt:   a.CompletedAt,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

type CreateAppointmentResponse struct {
	AppointmentID uuid.UUID           `json:"appointmentId"`
	Status        string              `json:"status"`
	PaymentStatus string              `json:"paymentStatus"`
	Appointment   AppointmentResponse `json:"appointment"`
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

// ReserveSlotRequest takes the slot either as an RFC 3339 instant or as a
// clinic-local date and time.
type ReserveSlotRequest struct {
	DentistID string `json:"dentistId"`
	PatientID string `json:"patientId"`
	SlotTime  string `json:"slotTime"`
	DateTime  string `json:"dateTime"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

type ReservationResponse struct {
	ID        uuid.UUID `json:"id"`
	DentistID uuid.UUID `json:"dentistId"`
	PatientID uuid.UUID `json:"patientId"`
	SlotTime  time.Time `json:"slotTime"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func newReservationResponse(r *reservation.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:        r.ID,
		DentistID: r.DentistID,
		PatientID: r.PatientID,
		SlotTime:  r.SlotTime,
		CreatedAt: r.CreatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}

type ReservationListResponse struct {
	Reservations []ReservationResponse `json:"reservations"`
}

type SlotsResponse struct {
	DentistID uuid.UUID               `json:"dentistId"`
	Date      string                  `json:"date"`
	Slots     []availability.TimeSlot `json:"slots"`
}

type SlotCheckResponse struct {
	DentistID uuid.UUID `json:"dentistId"`
	SlotTime  time.Time `json:"slotTime"`
	Available bool      `json:"available"`
}

type AlternativesResponse struct {
	DentistID        uuid.UUID                `json:"dentistId"`
	RequestedDate    string                   `json:"requestedDate"`
	RequestedTime    string                   `json:"requestedTime"`
	AlternativeSlots []apperr.AlternativeSlot `json:"alternativeSlots"`
}

type ScheduleResponse struct {
	DentistID           uuid.UUID         `json:"dentistId"`
	Days                map[string]string `json:"days"`
	SlotDurationMinutes int               `json:"slotDurationMinutes"`
}

func newScheduleResponse(d *dentist.Dentist) ScheduleResponse {
	doc := d.Schedule.Doc()
	return ScheduleResponse{
		DentistID:           d.ID,
		Days:                doc.Days,
		SlotDurationMinutes: doc.SlotDurationMinutes,
	}
}

type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// ConflictResponse is the 409 body of a create or reschedule collision.
type ConflictResponse struct {
	Error            string                   `json:"error"`
	Message          string                   `json:"message"`
	RequestedDate    string                   `json:"requestedDate,omitempty"`
	RequestedTime    string                   `json:"requestedTime,omitempty"`
	AlternativeSlots []apperr.AlternativeSlot `json:"alternativeSlots"`
}
