package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentalcare/slot-booking/internal/apperr"
	"github.com/dentalcare/slot-booking/internal/identity"
	"github.com/dentalcare/slot-booking/internal/metrics"
)

// AppointmentChecker reports whether a committed, non-cancelled appointment
// already occupies a slot.
type AppointmentChecker interface {
	HasActiveAppointment(ctx context.Context, dentistID uuid.UUID, slot time.Time) (bool, error)
}

type ReserveRequest struct {
	DentistID uuid.UUID
	PatientID uuid.UUID
	SlotTime  time.Time
}

func (r ReserveRequest) Validate() error {
	verr := &apperr.ValidationError{}
	if r.DentistID == uuid.Nil {
		verr.Add("dentistId", "is required")
	}
	if r.PatientID == uuid.Nil {
		verr.Add("patientId", "is required")
	}
	switch {
	case r.SlotTime.IsZero():
		verr.Add("slotTime", "is required")
	case r.SlotTime.Second() != 0 || r.SlotTime.Nanosecond() != 0:
		verr.Add("slotTime", "must fall on a whole minute")
	}
	return verr.OrNil()
}

type Service struct {
	repo         Repository
	appointments AppointmentChecker
	ttl          time.Duration
	metrics      *metrics.BookingMetrics
	logger       zerolog.Logger
	now          func() time.Time
}

// NewService builds the Reservation Store service. ttl is how long a hold
// blocks its slot; zero means it expires immediately.
func NewService(repo Repository, appointments AppointmentChecker, ttl time.Duration, logger zerolog.Logger) *Service {
	if ttl < 0 {
		ttl = 0
	}
	return &Service{
		repo:         repo,
		appointments: appointments,
		ttl:          ttl,
		logger:       logger.With().Str("component", "reservation").Logger(),
		now:          time.Now,
	}
}

func (s *Service) WithMetrics(m *metrics.BookingMetrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Reserve places a checkout hold on a slot. The availability lookup up
// front only spares a futile insert; the unique constraint on
// (dentist_id, slot_time) decides races.
func (s *Service) Reserve(ctx context.Context, actor identity.Actor, req ReserveRequest) (*Reservation, error) {
	if err := req.Validate(); err != nil {
		s.metrics.ObserveReservation(metrics.OutcomeRejected)
		return nil, err
	}
	if !actor.Is(req.PatientID) {
		return nil, fmt.Errorf("reserve for patient %s: %w", req.PatientID, apperr.ErrForbidden)
	}

	now := s.now()
	slot := req.SlotTime.UTC()
	if !slot.After(now) {
		s.metrics.ObserveReservation(metrics.OutcomeRejected)
		return nil, apperr.Invalid("slotTime", "slot must be in the future")
	}

	if s.appointments != nil {
		booked, err := s.appointments.HasActiveAppointment(ctx, req.DentistID, slot)
		if err != nil {
			return nil, s.internal(err, req, "failed to check appointment occupancy")
		}
		if booked {
			s.metrics.ObserveReservation(metrics.OutcomeConflict)
			return nil, apperr.SlotUnavailable("This time slot is already booked.")
		}
	}

	created, err := s.repo.Insert(ctx, Reservation{
		ID:        uuid.New(),
		DentistID: req.DentistID,
		PatientID: req.PatientID,
		SlotTime:  slot,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}, now)
	if err != nil {
		if errors.Is(err, ErrSlotReserved) {
			s.metrics.ObserveReservation(metrics.OutcomeConflict)
			s.logger.Info().
				Str("dentist_id", req.DentistID.String()).
				Str("patient_id", req.PatientID.String()).
				Time("slot_time", slot).
				Msg("slot already held by another checkout")
			return nil, apperr.SlotUnavailable("This time slot is being booked by another patient. Please try again shortly.")
		}
		return nil, s.internal(err, req, "failed to create reservation")
	}

	s.metrics.ObserveReservation(metrics.OutcomeSuccess)
	s.logger.Debug().
		Str("reservation_id", created.ID.String()).
		Str("dentist_id", created.DentistID.String()).
		Time("slot_time", created.SlotTime).
		Time("expires_at", created.ExpiresAt).
		Msg("slot reserved")
	return created, nil
}

// Release deletes a hold owned by actor. An unknown or already released id
// is NotFound, never a silent success.
func (s *Service) Release(ctx context.Context, actor identity.Actor, id uuid.UUID) error {
	res, err := s.repo.FindByID(ctx, id, s.now())
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return fmt.Errorf("reservation %s: %w", id, apperr.ErrNotFound)
		}
		s.logger.Error().Err(err).Str("reservation_id", id.String()).Msg("failed to load reservation")
		return fmt.Errorf("load reservation: %w", apperr.ErrInternal)
	}
	if !actor.Is(res.PatientID) {
		return fmt.Errorf("release reservation %s: %w", id, apperr.ErrForbidden)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return fmt.Errorf("reservation %s: %w", id, apperr.ErrNotFound)
		}
		s.logger.Error().Err(err).Str("reservation_id", id.String()).Msg("failed to delete reservation")
		return fmt.Errorf("delete reservation: %w", apperr.ErrInternal)
	}
	return nil
}

// ReleaseForSlot drops whatever hold patientID has on the slot. It is the
// cleanup run after the real appointment commits.
func (s *Service) ReleaseForSlot(ctx context.Context, dentistID, patientID uuid.UUID, slot time.Time) error {
	n, err := s.repo.DeleteForPatientSlot(ctx, dentistID, patientID, slot.UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Debug().
			Str("dentist_id", dentistID.String()).
			Str("patient_id", patientID.String()).
			Time("slot_time", slot).
			Msg("checkout hold released after booking")
	}
	return nil
}

// IsSlotAvailable is true when neither a live hold nor an active
// appointment sits on the slot.
func (s *Service) IsSlotAvailable(ctx context.Context, dentistID uuid.UUID, slot time.Time) (bool, error) {
	slot = slot.UTC()
	_, err := s.repo.FindBySlot(ctx, dentistID, slot, s.now())
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, ErrReservationNotFound):
		s.logger.Error().Err(err).Str("dentist_id", dentistID.String()).Time("slot_time", slot).Msg("failed to look up reservation")
		return false, fmt.Errorf("check slot: %w", apperr.ErrInternal)
	}

	if s.appointments == nil {
		return true, nil
	}
	booked, err := s.appointments.HasActiveAppointment(ctx, dentistID, slot)
	if err != nil {
		s.logger.Error().Err(err).Str("dentist_id", dentistID.String()).Time("slot_time", slot).Msg("failed to check appointment occupancy")
		return false, fmt.Errorf("check slot: %w", apperr.ErrInternal)
	}
	return !booked, nil
}

func (s *Service) FindBySlot(ctx context.Context, dentistID uuid.UUID, slot time.Time) (*Reservation, error) {
	res, err := s.repo.FindBySlot(ctx, dentistID, slot.UTC(), s.now())
	if err != nil {
		if errors.Is(err, ErrReservationNotFound) {
			return nil, fmt.Errorf("reservation for slot: %w", apperr.ErrNotFound)
		}
		s.logger.Error().Err(err).Str("dentist_id", dentistID.String()).Msg("failed to find reservation by slot")
		return nil, fmt.Errorf("find reservation: %w", apperr.ErrInternal)
	}
	return res, nil
}

func (s *Service) FindByPatient(ctx context.Context, patientID uuid.UUID) ([]Reservation, error) {
	list, err := s.repo.FindByPatient(ctx, patientID, s.now())
	if err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID.String()).Msg("failed to list patient reservations")
		return nil, fmt.Errorf("list reservations: %w", apperr.ErrInternal)
	}
	return list, nil
}

// FindByDentist returns live holds for a dentist. The Availability Engine
// reads occupancy through here.
func (s *Service) FindByDentist(ctx context.Context, dentistID uuid.UUID) ([]Reservation, error) {
	list, err := s.repo.FindByDentist(ctx, dentistID, s.now())
	if err != nil {
		s.logger.Error().Err(err).Str("dentist_id", dentistID.String()).Msg("failed to list dentist reservations")
		return nil, fmt.Errorf("list reservations: %w", apperr.ErrInternal)
	}
	return list, nil
}

// SweepExpired physically removes holds that reads already ignore.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.metrics.ObserveSweep(n)
	return n, nil
}

func (s *Service) internal(err error, req ReserveRequest, msg string) error {
	s.metrics.ObserveReservation(metrics.OutcomeError)
	s.logger.Error().Err(err).
		Str("dentist_id", req.DentistID.String()).
		Str("patient_id", req.PatientID.String()).
		Time("slot_time", req.SlotTime).
		Msg(msg)
	return fmt.Errorf("reserve slot: %w", apperr.ErrInternal)
}
