package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalcare/slot-booking/internal/appointment"
	"github.com/dentalcare/slot-booking/internal/apperr"
	"github.com/dentalcare/slot-booking/internal/dentist"
	"github.com/dentalcare/slot-booking/internal/reservation"
	"github.com/dentalcare/slot-booking/internal/slottime"
)

type stubSchedules map[uuid.UUID]dentist.Schedule

func (s stubSchedules) Schedule(_ context.Context, id uuid.UUID) (dentist.Schedule, error) {
	sched, ok := s[id]
	if !ok {
		return dentist.Schedule{}, apperr.ErrNotFound
	}
	return sched, nil
}

type stubAppointments struct {
	byDate map[string][]appointment.Appointment
	err    error
}

func (s stubAppointments) ListActiveByDentistOnDate(_ context.Context, _ uuid.UUID, date time.Time) ([]appointment.Appointment, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.byDate[slottime.FormatDate(date)], nil
}

type stubReservations []reservation.Reservation

func (s stubReservations) FindByDentist(_ context.Context, _ uuid.UUID) ([]reservation.Reservation, error) {
	return s, nil
}

var (
	drID = uuid.MustParse("0c5b2f7e-1a3d-4e8b-9f60-2b4c6d8e0f12")
	// 2030-05-06 is a Monday.
	monday = time.Date(2030, 5, 6, 0, 0, 0, 0, time.UTC)
)

func mondaySchedule(t *testing.T, hours string, minutes int) dentist.Schedule {
	t.Helper()
	sched, err := dentist.ParseSchedule(dentist.ScheduleDoc{
		Days:                map[string]string{"monday": hours, "tuesday": hours},
		SlotDurationMinutes: minutes,
	})
	require.NoError(t, err)
	return sched
}

func times(slots []TimeSlot) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		out[i] = s.Time
	}
	return out
}

func newEngine(t *testing.T, sched dentist.Schedule, appts stubAppointments, holds stubReservations, now time.Time) *Engine {
	t.Helper()
	return NewEngine(stubSchedules{drID: sched}, appts, holds, time.UTC, zerolog.Nop()).
		WithClock(func() time.Time { return now })
}

func TestGetAvailableSlotsDropsPartialTrailingSlot(t *testing.T) {
	e := newEngine(t, mondaySchedule(t, "09:00-10:30", 30), stubAppointments{}, nil, monday.Add(-time.Hour))

	slots, err := e.GetAvailableSlots(context.Background(), drID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:30", "10:00"}, times(slots))
	assert.Equal(t, slots[0].Start.Add(30*time.Minute), slots[0].End)
}

func TestGetAvailableSlotsUnevenDuration(t *testing.T) {
	e := newEngine(t, mondaySchedule(t, "09:00-10:30", 40), stubAppointments{}, nil, monday.Add(-time.Hour))

	slots, err := e.GetAvailableSlots(context.Background(), drID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "09:40"}, times(slots))
}

func TestGetAvailableSlotsExcludesPastAndCurrentInstant(t *testing.T) {
	now := time.Date(2030, 5, 6, 9, 30, 0, 0, time.UTC)
	e := newEngine(t, mondaySchedule(t, "09:00-11:00", 30), stubAppointments{}, nil, now)

	slots, err := e.GetAvailableSlots(context.Background(), drID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"10:00", "10:30"}, times(slots))
}

func TestGetAvailableSlotsSubtractsBookedAndHeld(t *testing.T) {
	appts := stubAppointments{byDate: map[string][]appointment.Appointment{
		"2030-05-06": {{DentistID: drID, Date: monday, Time: "09:30", Status: appointment.StatusConfirmed}},
	}}
	holds := stubReservations{{DentistID: drID, SlotTime: time.Date(2030, 5, 6, 10, 0, 0, 0, time.UTC)}}
	e := newEngine(t, mondaySchedule(t, "09:00-11:00", 30), appts, holds, monday.Add(-time.Hour))

	slots, err := e.GetAvailableSlots(context.Background(), drID, monday)
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:30"}, times(slots))

	all, err := e.DaySlots(context.Background(), drID, monday)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.False(t, all[1].Available)
	assert.False(t, all[2].Available)
}

func TestGetAvailableSlotsDayOff(t *testing.T) {
	e := newEngine(t, mondaySchedule(t, "09:00-11:00", 30), stubAppointments{}, nil, monday.Add(-time.Hour))

	slots, err := e.GetAvailableSlots(context.Background(), drID, monday.AddDate(0, 0, 2))
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestGetAvailableSlotsUnknownDentist(t *testing.T) {
	e := newEngine(t, mondaySchedule(t, "09:00-11:00", 30), stubAppointments{}, nil, monday)

	_, err := e.GetAvailableSlots(context.Background(), uuid.New(), monday)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestGetAvailableSlotsStoreFailure(t *testing.T) {
	e := newEngine(t, mondaySchedule(t, "09:00-11:00", 30), stubAppointments{err: errors.New("timeout")}, nil, monday.Add(-time.Hour))

	_, err := e.GetAvailableSlots(context.Background(), drID, monday)
	assert.ErrorIs(t, err, apperr.ErrInternal)
}

func TestGenerateInClinicZone(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	sched := mondaySchedule(t, "09:00-10:00", 60)
	slots := Generate(sched, monday, loc, monday.Add(-24*time.Hour))
	require.Len(t, slots, 1)
	assert.Equal(t, time.Date(2030, 5, 6, 13, 0, 0, 0, time.UTC), slots[0].Start.UTC())
	assert.Equal(t, "09:00", slots[0].Time)
}
