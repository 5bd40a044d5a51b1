package availability

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentalcare/slot-booking/internal/appointment"
	"github.com/dentalcare/slot-booking/internal/apperr"
)

func TestAlternativesWalkForwardAndSkipRejected(t *testing.T) {
	appts := stubAppointments{byDate: map[string][]appointment.Appointment{
		"2030-05-06": {
			{DentistID: drID, Time: "09:00"},
			{DentistID: drID, Time: "09:30"},
		},
	}}
	e := newEngine(t, mondaySchedule(t, "09:00-11:00", 30), appts, nil, monday.Add(-time.Hour))
	f := NewFinder(e, 7)

	alts, err := f.Alternatives(context.Background(), drID, monday, "09:30", 3)
	require.NoError(t, err)
	assert.Equal(t, []apperr.AlternativeSlot{
		{Date: "2030-05-06", Time: "10:00"},
		{Date: "2030-05-06", Time: "10:30"},
		{Date: "2030-05-07", Time: "09:00"},
	}, alts)
}

func TestAlternativesNeverIncludeRejectedSlot(t *testing.T) {
	e := newEngine(t, mondaySchedule(t, "09:00-11:00", 30), stubAppointments{}, nil, monday.Add(-time.Hour))
	f := NewFinder(e, 0)

	alts, err := f.Alternatives(context.Background(), drID, monday, "10:00", 10)
	require.NoError(t, err)
	assert.Equal(t, []apperr.AlternativeSlot{{Date: "2030-05-06", Time: "10:30"}}, alts)
}

func TestAlternativesExhaustedSupply(t *testing.T) {
	e := newEngine(t, mondaySchedule(t, "09:00-10:00", 30), stubAppointments{}, nil, monday.Add(-time.Hour))
	f := NewFinder(e, 2)

	alts, err := f.Alternatives(context.Background(), drID, monday, "09:30", 10)
	require.NoError(t, err)
	// Monday has nothing after 09:30, Tuesday has two, Wednesday is off.
	assert.Len(t, alts, 2)
	for i := 1; i < len(alts); i++ {
		prev := alts[i-1].Date + " " + alts[i-1].Time
		cur := alts[i].Date + " " + alts[i].Time
		assert.Less(t, prev, cur)
	}
}

func TestAlternativesZeroCount(t *testing.T) {
	e := newEngine(t, mondaySchedule(t, "09:00-10:00", 30), stubAppointments{}, nil, monday.Add(-time.Hour))

	alts, err := NewFinder(e, 7).Alternatives(context.Background(), drID, monday, "09:00", 0)
	require.NoError(t, err)
	assert.Empty(t, alts)
}

type stubLookup struct {
	gotDate  time.Time
	gotClock string
}

func (s *stubLookup) ExistsActiveAt(_ context.Context, _ uuid.UUID, date time.Time, clock string) (bool, error) {
	s.gotDate, s.gotClock = date, clock
	return true, nil
}

func TestOccupancyTranslatesToClinicLocal(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	lookup := &stubLookup{}
	occ := NewOccupancy(lookup, loc)

	booked, err := occ.HasActiveAppointment(context.Background(), drID, time.Date(2030, 5, 6, 22, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, booked)
	assert.Equal(t, "2030-05-07", lookup.gotDate.Format("2006-01-02"))
	assert.Equal(t, "00:30", lookup.gotClock)
}
