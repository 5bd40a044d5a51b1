package availability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dentalcare/slot-booking/internal/slottime"
)

type activeSlotLookup interface {
	ExistsActiveAt(ctx context.Context, dentistID uuid.UUID, date time.Time, clock string) (bool, error)
}

// Occupancy answers whether an appointment sits on an absolute slot instant
// by translating it to the clinic-local (date, time) pair appointments are
// stored under.
type Occupancy struct {
	appointments activeSlotLookup
	loc          *time.Location
}

func NewOccupancy(appointments activeSlotLookup, loc *time.Location) *Occupancy {
	if loc == nil {
		loc = time.UTC
	}
	return &Occupancy{appointments: appointments, loc: loc}
}

func (o *Occupancy) HasActiveAppointment(ctx context.Context, dentistID uuid.UUID, slot time.Time) (bool, error) {
	date, clock := slottime.Split(slot, o.loc)
	return o.appointments.ExistsActiveAt(ctx, dentistID, date, clock)
}
