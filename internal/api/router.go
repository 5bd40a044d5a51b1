package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dentalcare/slot-booking/internal/appointment"
	"github.com/dentalcare/slot-booking/internal/apperr"
	"github.com/dentalcare/slot-booking/internal/availability"
	"github.com/dentalcare/slot-booking/internal/dentist"
	"github.com/dentalcare/slot-booking/internal/identity"
	"github.com/dentalcare/slot-booking/internal/metrics"
	"github.com/dentalcare/slot-booking/internal/reservation"
)

type AppointmentService interface {
	CreateAppointment(ctx context.Context, actor identity.Actor, req appointment.CreateRequest) (*appointment.Appointment, error)
	GetAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID) (*appointment.Appointment, error)
	UpdateAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID, req appointment.UpdateRequest) (*appointment.Appointment, error)
	CancelAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID) (*appointment.Appointment, error)
	CompleteAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID) (*appointment.Appointment, error)
	ListByDentist(ctx context.Context, actor identity.Actor, dentistID uuid.UUID, f appointment.Filter) ([]appointment.Appointment, error)
	ListByPatient(ctx context.Context, actor identity.Actor, patientID uuid.UUID, f appointment.Filter) ([]appointment.Appointment, error)
}

type ReservationService interface {
	Reserve(ctx context.Context, actor identity.Actor, req reservation.ReserveRequest) (*reservation.Reservation, error)
	Release(ctx context.Context, actor identity.Actor, id uuid.UUID) error
	IsSlotAvailable(ctx context.Context, dentistID uuid.UUID, slot time.Time) (bool, error)
	FindByPatient(ctx context.Context, patientID uuid.UUID) ([]reservation.Reservation, error)
	FindByDentist(ctx context.Context, dentistID uuid.UUID) ([]reservation.Reservation, error)
}

type AvailabilityService interface {
	GetAvailableSlots(ctx context.Context, dentistID uuid.UUID, date time.Time) ([]availability.TimeSlot, error)
	Location() *time.Location
}

type AlternativeService interface {
	Alternatives(ctx context.Context, dentistID uuid.UUID, date time.Time, rejected string, count int) ([]apperr.AlternativeSlot, error)
}

type DentistService interface {
	Get(ctx context.Context, id uuid.UUID) (*dentist.Dentist, error)
	UpdateSchedule(ctx context.Context, actor identity.Actor, id uuid.UUID, doc dentist.ScheduleDoc) (*dentist.Dentist, error)
}

type RouterConfig struct {
	Appointments     AppointmentService
	Reservations     ReservationService
	Availability     AvailabilityService
	Alternatives     AlternativeService
	Dentists         DentistService
	PgPool           Pinger
	Redis            *redis.Client
	Metrics          *metrics.BookingMetrics
	Gatherer         prometheus.Gatherer
	Logger           zerolog.Logger
	AlternativeCount int
	Env              string
	Version          string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.AlternativeCount <= 0 {
		cfg.AlternativeCount = 5
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(MetricsMiddleware(cfg.Metrics))

	// Ops endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware)

		// Appointment endpoints
		r.Post("/appointments", createAppointmentHandler(cfg.Appointments))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
		r.Put("/appointments/{id}", updateAppointmentHandler(cfg.Appointments))
		r.Delete("/appointments/{id}", cancelAppointmentHandler(cfg.Appointments))
		r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Appointments))
		r.Get("/dentists/{id}/appointments", listDentistAppointmentsHandler(cfg.Appointments))
		r.Get("/patients/{id}/appointments", listPatientAppointmentsHandler(cfg.Appointments))

		// Availability endpoints
		r.Get("/dentists/{id}/slots", availableSlotsHandler(cfg.Availability))
		r.Get("/dentists/{id}/alternatives", alternativesHandler(cfg.Alternatives, cfg.AlternativeCount))
		r.Get("/dentists/{id}/availability", getScheduleHandler(cfg.Dentists))
		r.Put("/dentists/{id}/availability", updateScheduleHandler(cfg.Dentists))
		r.Get("/slots/check", checkSlotHandler(cfg.Reservations))

		// Reservation endpoints
		r.Post("/reservations", reserveSlotHandler(cfg.Reservations, cfg.Availability))
		r.Get("/reservations", listReservationsHandler(cfg.Reservations))
		r.Delete("/reservations/{id}", releaseReservationHandler(cfg.Reservations))
	})

	return r
}
