package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentalcare/slot-booking/internal/apperr"
	"github.com/dentalcare/slot-booking/internal/dentist"
	"github.com/dentalcare/slot-booking/internal/identity"
	"github.com/dentalcare/slot-booking/internal/metrics"
	"github.com/dentalcare/slot-booking/internal/slottime"
)

// DentistResolver maps the dentist reference on a booking to a profile.
type DentistResolver interface {
	Get(ctx context.Context, id uuid.UUID) (*dentist.Dentist, error)
	ResolveByEmail(ctx context.Context, email string) (*dentist.Dentist, error)
}

// AlternativeFinder suggests free slots near a rejected one.
type AlternativeFinder interface {
	Alternatives(ctx context.Context, dentistID uuid.UUID, date time.Time, rejected string, count int) ([]apperr.AlternativeSlot, error)
}

// HoldReleaser drops a patient's checkout hold once the real booking exists.
type HoldReleaser interface {
	ReleaseForSlot(ctx context.Context, dentistID, patientID uuid.UUID, slot time.Time) error
}

const heldMessage = "This time slot is being held by another patient. Please select a different time."

type Settings struct {
	Location           *time.Location
	CancellationCutoff time.Duration
	AlternativeCount   int
}

type Service struct {
	repo         Repository
	dentists     DentistResolver
	alternatives AlternativeFinder
	holds        HoldReleaser
	publisher    Publisher
	metrics      *metrics.BookingMetrics
	logger       zerolog.Logger
	settings     Settings
	now          func() time.Time
}

func NewService(repo Repository, dentists DentistResolver, alternatives AlternativeFinder, holds HoldReleaser, settings Settings, logger zerolog.Logger) *Service {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.CancellationCutoff <= 0 {
		settings.CancellationCutoff = time.Hour
	}
	if settings.AlternativeCount <= 0 {
		settings.AlternativeCount = 5
	}
	return &Service{
		repo:         repo,
		dentists:     dentists,
		alternatives: alternatives,
		holds:        holds,
		settings:     settings,
		logger:       logger.With().Str("component", "appointment").Logger(),
		now:          time.Now,
	}
}

func (s *Service) WithPublisher(p Publisher) *Service {
	s.publisher = p
	return s
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

// CreateAppointment commits a new booking. The active-slot unique index is
// what serializes concurrent requests for the same slot: exactly one insert
// wins and every other caller gets a SlotUnavailableError listing
// alternatives. There is no check-then-insert here. The same write also
// refuses a slot another patient holds for checkout.
func (s *Service) CreateAppointment(ctx context.Context, actor identity.Actor, req CreateRequest) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		s.metrics.ObserveAppointment("create", metrics.OutcomeRejected)
		return nil, err
	}

	date, _ := slottime.ParseDate(req.Date)
	startsAt, _ := slottime.Combine(date, req.Time, s.settings.Location)
	now := s.now()
	if !startsAt.After(now) {
		s.metrics.ObserveAppointment("create", metrics.OutcomeRejected)
		return nil, apperr.Invalid("time", "appointment must be in the future")
	}

	d, err := s.resolveDentist(ctx, req)
	if err != nil {
		return nil, err
	}
	if !d.Schedule.Offers(date, req.Time) {
		s.metrics.ObserveAppointment("create", metrics.OutcomeRejected)
		return nil, apperr.Invalid("time", fmt.Sprintf("%s on %s is not one of this dentist's slots", req.Time, req.Date))
	}

	var patientID *uuid.UUID
	if !actor.Anonymous() {
		id := actor.ID
		patientID = &id
	}

	status := req.PaymentMethod.InitialStatus()
	created, err := s.repo.Insert(ctx, Appointment{
		ID:            uuid.New(),
		DentistID:     d.ID,
		DentistEmail:  d.Email,
		PatientID:     patientID,
		PatientName:   strings.TrimSpace(req.PatientName),
		PatientEmail:  strings.TrimSpace(req.PatientEmail),
		PatientPhone:  strings.TrimSpace(req.PatientPhone),
		Reason:        req.Reason,
		Notes:         req.Notes,
		Date:          date,
		Time:          req.Time,
		Status:        status,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: PaymentPending,
	}, SlotGuard{SlotTime: startsAt, Now: now, PatientID: patientID})
	if err != nil {
		switch {
		case errors.Is(err, ErrSlotTaken):
			s.metrics.ObserveAppointment("create", metrics.OutcomeConflict)
			s.logger.Warn().
				Str("dentist_id", d.ID.String()).
				Str("date", req.Date).
				Str("time", req.Time).
				Msg("concurrent booking attempt lost on active slot index")
			return nil, s.slotUnavailable(ctx, d.ID, date, req.Time,
				"This time slot was just booked by another patient. Please select a different time.")
		case errors.Is(err, ErrSlotHeld):
			s.metrics.ObserveAppointment("create", metrics.OutcomeConflict)
			s.logger.Warn().
				Str("dentist_id", d.ID.String()).
				Str("patient_id", uuidString(patientID)).
				Str("date", req.Date).
				Str("time", req.Time).
				Msg("booking rejected, slot is held by another patient")
			return nil, s.slotUnavailable(ctx, d.ID, date, req.Time, heldMessage)
		}
		s.metrics.ObserveAppointment("create", metrics.OutcomeError)
		s.logger.Error().Err(err).
			Str("dentist_id", d.ID.String()).
			Str("patient_id", uuidString(patientID)).
			Str("date", req.Date).
			Str("time", req.Time).
			Msg("failed to create appointment")
		return nil, fmt.Errorf("create appointment: %w", apperr.ErrInternal)
	}

	s.metrics.ObserveAppointment("create", metrics.OutcomeSuccess)
	s.logger.Info().
		Str("appointment_id", created.ID.String()).
		Str("dentist_id", d.ID.String()).
		Str("date", req.Date).
		Str("time", req.Time).
		Str("status", string(created.Status)).
		Msg("appointment created")

	if patientID != nil && s.holds != nil {
		if err := s.holds.ReleaseForSlot(ctx, d.ID, *patientID, startsAt); err != nil {
			s.logger.Warn().Err(err).
				Str("appointment_id", created.ID.String()).
				Msg("failed to release checkout hold after booking")
		}
	}

	s.emit(ctx, EventAppointmentCreated, created, map[string]any{
		"patient_email":  created.PatientEmail,
		"payment_method": created.PaymentMethod,
	})

	return created, nil
}

func (s *Service) resolveDentist(ctx context.Context, req CreateRequest) (*dentist.Dentist, error) {
	if req.DentistID != "" {
		id, _ := uuid.Parse(req.DentistID)
		d, err := s.dentists.Get(ctx, id)
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Invalid("dentistId", "no dentist with this id")
		}
		return d, err
	}
	return s.dentists.ResolveByEmail(ctx, req.DentistEmail)
}

// GetAppointment returns an appointment visible to actor.
func (s *Service) GetAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, appt) {
		return nil, fmt.Errorf("view appointment %s: %w", id, apperr.ErrForbidden)
	}
	return appt, nil
}

// UpdateAppointment applies a reschedule, a status change and a notes edit,
// in that order, inside one transaction: if any step fails none of them is
// kept. A reschedule goes through the same guarded write as create. Events
// are published only after the transaction commits.
func (s *Service) UpdateAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID, req UpdateRequest) (*Appointment, error) {
	if err := req.Validate(); err != nil {
		s.metrics.ObserveAppointment("update", metrics.OutcomeRejected)
		return nil, err
	}

	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, appt) {
		return nil, fmt.Errorf("update appointment %s: %w", id, apperr.ErrForbidden)
	}

	var (
		updated *Appointment
		stepErr error
		work    unitOfWork
	)
	err = s.repo.InTx(ctx, func(tx Repository) error {
		work = unitOfWork{repo: tx}
		updated, stepErr = s.applyUpdate(ctx, &work, actor, appt, req)
		return stepErr
	})
	if stepErr != nil {
		return nil, stepErr
	}
	if err != nil {
		s.metrics.ObserveAppointment("update", metrics.OutcomeError)
		s.logger.Error().Err(err).Str("appointment_id", id.String()).Msg("failed to commit appointment update")
		return nil, fmt.Errorf("update appointment: %w", apperr.ErrInternal)
	}

	s.flush(ctx, &work)
	s.metrics.ObserveAppointment("update", metrics.OutcomeSuccess)
	return updated, nil
}

func (s *Service) applyUpdate(ctx context.Context, work *unitOfWork, actor identity.Actor, appt *Appointment, req UpdateRequest) (*Appointment, error) {
	var err error
	if req.Date != nil || req.Time != nil {
		appt, err = s.reschedule(ctx, work, appt, req)
		if err != nil {
			return nil, err
		}
	}

	if req.Status != nil && *req.Status != appt.Status {
		switch *req.Status {
		case StatusCancelled:
			appt, err = s.cancel(ctx, work, actor, appt)
		default:
			appt, err = s.transition(ctx, work, actor, appt, *req.Status)
		}
		if err != nil {
			return nil, err
		}
	}

	if req.Notes != nil {
		appt, err = work.repo.UpdateNotes(ctx, appt.ID, *req.Notes)
		if err != nil {
			s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to update notes")
			return nil, fmt.Errorf("update notes: %w", apperr.ErrInternal)
		}
	}
	return appt, nil
}

func (s *Service) reschedule(ctx context.Context, work *unitOfWork, appt *Appointment, req UpdateRequest) (*Appointment, error) {
	if appt.Status == StatusCancelled || appt.Status == StatusCompleted {
		return nil, apperr.Invalid("status", fmt.Sprintf("a %s appointment cannot be rescheduled", appt.Status))
	}

	date := appt.Date
	if req.Date != nil {
		date, _ = slottime.ParseDate(*req.Date)
	}
	clock := appt.Time
	if req.Time != nil {
		clock = *req.Time
	}
	if date.Equal(appt.Date) && clock == appt.Time {
		return appt, nil
	}

	startsAt, _ := slottime.Combine(date, clock, s.settings.Location)
	now := s.now()
	if !startsAt.After(now) {
		return nil, apperr.Invalid("time", "appointment must be in the future")
	}

	d, err := s.dentists.Get(ctx, appt.DentistID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.Invalid("dentistId", "the dentist of this appointment no longer exists")
		}
		s.logger.Error().Err(err).Str("dentist_id", appt.DentistID.String()).Msg("failed to load dentist for reschedule")
		return nil, fmt.Errorf("reschedule appointment: %w", apperr.ErrInternal)
	}
	if !d.Schedule.Offers(date, clock) {
		s.metrics.ObserveAppointment("reschedule", metrics.OutcomeRejected)
		return nil, apperr.Invalid("time", fmt.Sprintf("%s on %s is not one of this dentist's slots", clock, slottime.FormatDate(date)))
	}

	// Whoever moves the booking, only its own patient's hold is let through.
	updated, err := work.repo.Reschedule(ctx, appt.ID, appt.DentistID, date, clock,
		SlotGuard{SlotTime: startsAt, Now: now, PatientID: appt.PatientID})
	if err != nil {
		switch {
		case errors.Is(err, ErrSlotTaken):
			s.metrics.ObserveAppointment("reschedule", metrics.OutcomeConflict)
			s.logger.Warn().
				Str("appointment_id", appt.ID.String()).
				Str("dentist_id", appt.DentistID.String()).
				Str("date", slottime.FormatDate(date)).
				Str("time", clock).
				Msg("concurrent reschedule attempt lost on active slot index")
			return nil, s.slotUnavailable(ctx, appt.DentistID, date, clock,
				"This time slot was just booked. Please select a different time.")
		case errors.Is(err, ErrSlotHeld):
			s.metrics.ObserveAppointment("reschedule", metrics.OutcomeConflict)
			s.logger.Warn().
				Str("appointment_id", appt.ID.String()).
				Str("dentist_id", appt.DentistID.String()).
				Str("date", slottime.FormatDate(date)).
				Str("time", clock).
				Msg("reschedule rejected, slot is held by another patient")
			return nil, s.slotUnavailable(ctx, appt.DentistID, date, clock, heldMessage)
		case errors.Is(err, ErrAppointmentNotFound):
			return nil, apperr.Invalid("status", "appointment was cancelled concurrently")
		}
		s.metrics.ObserveAppointment("reschedule", metrics.OutcomeError)
		s.logger.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Str("dentist_id", appt.DentistID.String()).
			Str("date", slottime.FormatDate(date)).
			Str("time", clock).
			Msg("failed to reschedule appointment")
		return nil, fmt.Errorf("reschedule appointment: %w", apperr.ErrInternal)
	}

	s.metrics.ObserveAppointment("reschedule", metrics.OutcomeSuccess)
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("old_date", appt.DateString()).
		Str("old_time", appt.Time).
		Str("new_date", updated.DateString()).
		Str("new_time", updated.Time).
		Msg("appointment rescheduled")

	work.record(EventAppointmentRescheduled, updated, map[string]any{
		"old_date": appt.DateString(),
		"old_time": appt.Time,
	})
	return updated, nil
}

// CancelAppointment marks an appointment cancelled. Cancelled rows stay in
// history and no longer count toward the active-slot index.
func (s *Service) CancelAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canAccess(actor, appt) {
		return nil, fmt.Errorf("cancel appointment %s: %w", id, apperr.ErrForbidden)
	}

	work := unitOfWork{repo: s.repo}
	cancelled, err := s.cancel(ctx, &work, actor, appt)
	if err != nil {
		return nil, err
	}
	s.flush(ctx, &work)
	return cancelled, nil
}

func (s *Service) cancel(ctx context.Context, work *unitOfWork, actor identity.Actor, appt *Appointment) (*Appointment, error) {
	if appt.Status == StatusCancelled {
		return nil, apperr.Invalid("status", "appointment is already cancelled")
	}

	startsAt, err := appt.StartsAt(s.settings.Location)
	if err != nil {
		s.logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("stored appointment time is malformed")
		return nil, fmt.Errorf("cancel appointment: %w", apperr.ErrInternal)
	}

	now := s.now()
	if startsAt.Sub(now) <= s.settings.CancellationCutoff {
		s.metrics.ObserveAppointment("cancel", metrics.OutcomeRejected)
		return nil, fmt.Errorf("appointment %s starts at %s: %w",
			appt.ID, startsAt.Format(time.RFC3339), apperr.ErrCancellationWindowExpired)
	}

	cancelled, err := s.updateStatus(ctx, work.repo, appt, StatusCancelled, now)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveAppointment("cancel", metrics.OutcomeSuccess)
	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("actor_id", actor.ID.String()).
		Msg("appointment cancelled")

	work.record(EventAppointmentCancelled, cancelled, map[string]any{
		"cancelled_by": actor.ID.String(),
	})
	return cancelled, nil
}

// CompleteAppointment marks a confirmed appointment as done. Only the
// treating dentist or an admin may do this.
func (s *Service) CompleteAppointment(ctx context.Context, actor identity.Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	work := unitOfWork{repo: s.repo}
	completed, err := s.transition(ctx, &work, actor, appt, StatusCompleted)
	if err != nil {
		return nil, err
	}
	s.flush(ctx, &work)
	return completed, nil
}

// transition handles the non-cancel status moves, which are staff actions.
func (s *Service) transition(ctx context.Context, work *unitOfWork, actor identity.Actor, appt *Appointment, next Status) (*Appointment, error) {
	if !actor.Is(appt.DentistID) {
		return nil, fmt.Errorf("set appointment %s to %s: %w", appt.ID, next, apperr.ErrForbidden)
	}
	if !appt.Status.CanTransitionTo(next) {
		return nil, apperr.Invalid("status", fmt.Sprintf("cannot move from %s to %s", appt.Status, next))
	}

	updated, err := s.updateStatus(ctx, work.repo, appt, next, s.now())
	if err != nil {
		return nil, err
	}

	eventType := EventAppointmentStatus
	if next == StatusCompleted {
		eventType = EventAppointmentCompleted
	}
	work.record(eventType, updated, map[string]any{"from": appt.Status})
	return updated, nil
}

func (s *Service) updateStatus(ctx context.Context, repo Repository, appt *Appointment, next Status, at time.Time) (*Appointment, error) {
	updated, err := repo.UpdateStatus(ctx, appt.ID, appt.Status, next, at)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, apperr.Invalid("status", "appointment was modified concurrently, reload and retry")
		}
		s.logger.Error().Err(err).
			Str("appointment_id", appt.ID.String()).
			Str("from", string(appt.Status)).
			Str("to", string(next)).
			Msg("failed to update appointment status")
		return nil, fmt.Errorf("update appointment status: %w", apperr.ErrInternal)
	}
	return updated, nil
}

// ListByDentist lists a dentist's appointments for the dentist or an admin.
func (s *Service) ListByDentist(ctx context.Context, actor identity.Actor, dentistID uuid.UUID, f Filter) ([]Appointment, error) {
	if !actor.Is(dentistID) {
		return nil, fmt.Errorf("list appointments of dentist %s: %w", dentistID, apperr.ErrForbidden)
	}
	list, err := s.repo.ListByDentist(ctx, dentistID, f)
	if err != nil {
		s.logger.Error().Err(err).Str("dentist_id", dentistID.String()).Msg("failed to list dentist appointments")
		return nil, fmt.Errorf("list appointments: %w", apperr.ErrInternal)
	}
	return list, nil
}

// ListByPatient lists a patient's appointments for the patient or an admin.
func (s *Service) ListByPatient(ctx context.Context, actor identity.Actor, patientID uuid.UUID, f Filter) ([]Appointment, error) {
	if !actor.Is(patientID) {
		return nil, fmt.Errorf("list appointments of patient %s: %w", patientID, apperr.ErrForbidden)
	}
	list, err := s.repo.ListByPatient(ctx, patientID, f)
	if err != nil {
		s.logger.Error().Err(err).Str("patient_id", patientID.String()).Msg("failed to list patient appointments")
		return nil, fmt.Errorf("list appointments: %w", apperr.ErrInternal)
	}
	return list, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("appointment %s: %w", id, apperr.ErrNotFound)
		}
		s.logger.Error().Err(err).Str("appointment_id", id.String()).Msg("failed to load appointment")
		return nil, fmt.Errorf("load appointment: %w", apperr.ErrInternal)
	}
	return appt, nil
}

// slotUnavailable builds the conflict error with substitutes for the slot
// that was rejected. A failing finder degrades to an empty list.
func (s *Service) slotUnavailable(ctx context.Context, dentistID uuid.UUID, date time.Time, clock, msg string) error {
	conflict := &apperr.SlotUnavailableError{
		Message:       msg,
		RequestedDate: slottime.FormatDate(date),
		RequestedTime: clock,
		Alternatives:  []apperr.AlternativeSlot{},
	}
	if s.alternatives == nil {
		return conflict
	}

	alts, err := s.alternatives.Alternatives(ctx, dentistID, date, clock, s.settings.AlternativeCount)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("dentist_id", dentistID.String()).
			Str("date", slottime.FormatDate(date)).
			Str("time", clock).
			Msg("failed to compute alternative slots")
		return conflict
	}
	if alts != nil {
		conflict.Alternatives = alts
	}
	return conflict
}

// unitOfWork is the repository a group of writes goes through plus the
// events those writes produced, held back until the writes are durable.
type unitOfWork struct {
	repo   Repository
	events []pendingEvent
}

type pendingEvent struct {
	eventType string
	appt      *Appointment
	extra     map[string]any
}

func (w *unitOfWork) record(eventType string, appt *Appointment, extra map[string]any) {
	w.events = append(w.events, pendingEvent{eventType: eventType, appt: appt, extra: extra})
}

func (s *Service) flush(ctx context.Context, work *unitOfWork) {
	for _, ev := range work.events {
		s.emit(ctx, ev.eventType, ev.appt, ev.extra)
	}
	work.events = nil
}

func (s *Service) emit(ctx context.Context, eventType string, appt *Appointment, extra map[string]any) {
	now := s.now()
	s.logEvent(ctx, appt, eventType, extra, now)

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, newEvent(eventType, appt, now)); err != nil {
		s.logger.Warn().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to publish booking event")
	}
}

func (s *Service) logEvent(ctx context.Context, appt *Appointment, eventType string, extra map[string]any, at time.Time) {
	payload := map[string]any{
		"dentist_id": appt.DentistID.String(),
		"date":       appt.DateString(),
		"time":       appt.Time,
		"status":     appt.Status,
	}
	for k, v := range extra {
		payload[k] = v
	}

	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appt.ID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     at,
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to insert event log")
	}
}

func canAccess(actor identity.Actor, appt *Appointment) bool {
	return actor.IsAdmin() || appt.BelongsTo(actor.ID)
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}
