// Package availability expands dentist schedules into bookable slots and
// subtracts what is already taken.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dentalcare/slot-booking/internal/appointment"
	"github.com/dentalcare/slot-booking/internal/apperr"
	"github.com/dentalcare/slot-booking/internal/dentist"
	"github.com/dentalcare/slot-booking/internal/reservation"
	"github.com/dentalcare/slot-booking/internal/slottime"
)

type ScheduleSource interface {
	Schedule(ctx context.Context, dentistID uuid.UUID) (dentist.Schedule, error)
}

type AppointmentSource interface {
	ListActiveByDentistOnDate(ctx context.Context, dentistID uuid.UUID, date time.Time) ([]appointment.Appointment, error)
}

type ReservationSource interface {
	FindByDentist(ctx context.Context, dentistID uuid.UUID) ([]reservation.Reservation, error)
}

// TimeSlot is one generated chunk of a working day.
type TimeSlot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	Available bool      `json:"available"`
}

type Engine struct {
	schedules    ScheduleSource
	appointments AppointmentSource
	reservations ReservationSource
	loc          *time.Location
	logger       zerolog.Logger
	now          func() time.Time
}

func NewEngine(schedules ScheduleSource, appointments AppointmentSource, reservations ReservationSource, loc *time.Location, logger zerolog.Logger) *Engine {
	if loc == nil {
		loc = time.UTC
	}
	return &Engine{
		schedules:    schedules,
		appointments: appointments,
		reservations: reservations,
		loc:          loc,
		logger:       logger.With().Str("component", "availability").Logger(),
		now:          time.Now,
	}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
	}
	return e
}

// Location is the clinic timezone slots are generated in.
func (e *Engine) Location() *time.Location {
	return e.loc
}

// GetAvailableSlots returns the free future slots of a dentist on date in
// chronological order. A day the dentist does not work yields an empty list.
func (e *Engine) GetAvailableSlots(ctx context.Context, dentistID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	slots, err := e.DaySlots(ctx, dentistID, date)
	if err != nil {
		return nil, err
	}

	free := make([]TimeSlot, 0, len(slots))
	for _, s := range slots {
		if s.Available {
			free = append(free, s)
		}
	}
	return free, nil
}

// DaySlots returns every future slot of the day with its availability flag.
func (e *Engine) DaySlots(ctx context.Context, dentistID uuid.UUID, date time.Time) ([]TimeSlot, error) {
	sched, err := e.schedules.Schedule(ctx, dentistID)
	if err != nil {
		return nil, err
	}
	return e.daySlots(ctx, dentistID, sched, slottime.Civil(date))
}

func (e *Engine) daySlots(ctx context.Context, dentistID uuid.UUID, sched dentist.Schedule, date time.Time) ([]TimeSlot, error) {
	candidates := Generate(sched, date, e.loc, e.now())
	if len(candidates) == 0 {
		return []TimeSlot{}, nil
	}

	booked, err := e.appointments.ListActiveByDentistOnDate(ctx, dentistID, date)
	if err != nil {
		e.logger.Error().Err(err).
			Str("dentist_id", dentistID.String()).
			Str("date", slottime.FormatDate(date)).
			Msg("failed to load appointments for availability")
		return nil, fmt.Errorf("load appointments: %w", apperr.ErrInternal)
	}

	held, err := e.reservations.FindByDentist(ctx, dentistID)
	if err != nil {
		return nil, err
	}

	takenClock := make(map[string]struct{}, len(booked))
	for _, a := range booked {
		takenClock[a.Time] = struct{}{}
	}
	heldAt := make(map[int64]struct{}, len(held))
	for _, r := range held {
		heldAt[r.SlotTime.Unix()] = struct{}{}
	}

	for i := range candidates {
		_, isBooked := takenClock[candidates[i].Time]
		_, isHeld := heldAt[candidates[i].Start.Unix()]
		candidates[i].Available = !isBooked && !isHeld
	}
	return candidates, nil
}

// Generate expands the schedule entry for date into fixed-length slots,
// dropping a trailing partial slot and any slot that does not start
// strictly after now. Every returned slot is marked available.
func Generate(sched dentist.Schedule, date time.Time, loc *time.Location, now time.Time) []TimeSlot {
	hours, ok := sched.ForDate(date)
	if !ok {
		return nil
	}

	step := int(sched.SlotDuration() / time.Minute)
	var out []TimeSlot
	for m := hours.Start; m+step <= hours.End; m += step {
		start := slottime.At(date, m, loc)
		if !start.After(now) {
			continue
		}
		out = append(out, TimeSlot{
			Start:     start,
			End:       start.Add(time.Duration(step) * time.Minute),
			Date:      slottime.FormatDate(date),
			Time:      slottime.FormatClock(m),
			Available: true,
		})
	}
	return out
}
