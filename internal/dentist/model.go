package dentist

import (
	"time"

	"github.com/google/uuid"
)

type Dentist struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Specialization *string   `json:"specialization,omitempty"`
	Schedule       Schedule  `json:"schedule"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// clone returns a copy that shares no maps or pointers with d.
func (d Dentist) clone() Dentist {
	out := d
	if d.Specialization != nil {
		spec := *d.Specialization
		out.Specialization = &spec
	}
	if d.Schedule.Days != nil {
		out.Schedule.Days = make(map[time.Weekday]DayHours, len(d.Schedule.Days))
		for wd, h := range d.Schedule.Days {
			out.Schedule.Days[wd] = h
		}
	}
	return out
}
