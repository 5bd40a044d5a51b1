package availability

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dentalcare/slot-booking/internal/apperr"
	"github.com/dentalcare/slot-booking/internal/slottime"
)

// Finder suggests substitutes for a slot that could not be booked. It walks
// forward from the rejected time through the rest of that day and then
// through the following searchDays days.
type Finder struct {
	engine     *Engine
	searchDays int
}

func NewFinder(engine *Engine, searchDays int) *Finder {
	if searchDays < 0 {
		searchDays = 0
	}
	return &Finder{engine: engine, searchDays: searchDays}
}

// Alternatives returns up to count free slots after rejected, in
// chronological order. Running out of supply is not an error.
func (f *Finder) Alternatives(ctx context.Context, dentistID uuid.UUID, date time.Time, rejected string, count int) ([]apperr.AlternativeSlot, error) {
	out := []apperr.AlternativeSlot{}
	if count <= 0 {
		return out, nil
	}

	sched, err := f.engine.schedules.Schedule(ctx, dentistID)
	if err != nil {
		return nil, err
	}

	day := slottime.Civil(date)
	for offset := 0; offset <= f.searchDays; offset++ {
		current := day.AddDate(0, 0, offset)
		slots, err := f.engine.daySlots(ctx, dentistID, sched, current)
		if err != nil {
			return nil, err
		}

		for _, s := range slots {
			if !s.Available {
				continue
			}
			// HH:mm compares chronologically as a string.
			if offset == 0 && s.Time <= rejected {
				continue
			}
			out = append(out, apperr.AlternativeSlot{Date: s.Date, Time: s.Time})
			if len(out) == count {
				return out, nil
			}
		}
	}
	return out, nil
}
