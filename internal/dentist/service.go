package dentist

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentalcare/slot-booking/internal/apperr"
	"github.com/dentalcare/slot-booking/internal/identity"
)

type Service struct {
	repo   Repository
	cache  Cache
	logger zerolog.Logger
}

func NewService(repo Repository, cache Cache, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger.With().Str("component", "dentist").Logger(),
	}
}

// Get returns a dentist profile, served from cache when fresh.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Dentist, error) {
	if d, ok := s.cache.Get(ctx, id); ok {
		return d, nil
	}

	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDentistNotFound) {
			return nil, fmt.Errorf("dentist %s: %w", id, apperr.ErrNotFound)
		}
		s.logger.Error().Err(err).Str("dentist_id", id.String()).Msg("failed to load dentist")
		return nil, fmt.Errorf("load dentist: %w", apperr.ErrInternal)
	}

	s.cache.Set(ctx, d)
	return d, nil
}

// ResolveByEmail looks a dentist up by email. Bookings address dentists by
// email, so an unknown address is a validation problem, not a 404.
func (s *Service) ResolveByEmail(ctx context.Context, email string) (*Dentist, error) {
	d, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrDentistNotFound) {
			return nil, apperr.Invalid("dentistEmail", "no dentist with this email")
		}
		s.logger.Error().Err(err).Str("dentist_email", email).Msg("failed to resolve dentist by email")
		return nil, fmt.Errorf("resolve dentist: %w", apperr.ErrInternal)
	}

	s.cache.Set(ctx, d)
	return d, nil
}

// Schedule returns the weekly availability used to generate slots.
func (s *Service) Schedule(ctx context.Context, id uuid.UUID) (Schedule, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return Schedule{}, err
	}
	return d.Schedule, nil
}

// UpdateSchedule replaces a dentist's weekly availability. Only the dentist
// or an admin may do this.
func (s *Service) UpdateSchedule(ctx context.Context, actor identity.Actor, id uuid.UUID, doc ScheduleDoc) (*Dentist, error) {
	if !actor.Is(id) {
		return nil, fmt.Errorf("update availability of dentist %s: %w", id, apperr.ErrForbidden)
	}

	sched, err := ParseSchedule(doc)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.UpdateSchedule(ctx, id, sched)
	s.cache.Invalidate(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDentistNotFound) {
			return nil, fmt.Errorf("dentist %s: %w", id, apperr.ErrNotFound)
		}
		s.logger.Error().Err(err).Str("dentist_id", id.String()).Msg("failed to update availability")
		return nil, fmt.Errorf("update availability: %w", apperr.ErrInternal)
	}

	s.logger.Info().
		Str("dentist_id", id.String()).
		Str("actor_id", actor.ID.String()).
		Msg("availability updated")

	return updated, nil
}
