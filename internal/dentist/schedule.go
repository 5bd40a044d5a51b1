package dentist

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dentalcare/slot-booking/internal/apperr"
	"github.com/dentalcare/slot-booking/internal/slottime"
)

const (
	DefaultSlotMinutes = 30
	MinSlotMinutes     = 5
	MaxSlotMinutes     = 240
)

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// DayHours is one working window, in minutes since midnight. End is exclusive.
type DayHours struct {
	Start int
	End   int
}

func (h DayHours) String() string {
	return slottime.FormatClock(h.Start) + "-" + slottime.FormatClock(h.End)
}

// Schedule is a dentist's weekly recurring availability. It generates
// candidate slots only; it knows nothing about occupancy.
type Schedule struct {
	Days        map[time.Weekday]DayHours
	SlotMinutes int
}

// ScheduleDoc is the JSON shape of a Schedule, keyed by lowercase weekday:
// {"days": {"monday": "09:00-17:00"}, "slotDurationMinutes": 30}
type ScheduleDoc struct {
	Days                map[string]string `json:"days"`
	SlotDurationMinutes int               `json:"slotDurationMinutes"`
}

// ForDate returns the working window for the weekday of date.
func (s Schedule) ForDate(date time.Time) (DayHours, bool) {
	h, ok := s.Days[date.Weekday()]
	return h, ok
}

// SlotDuration is the slot granularity, defaulted when unset.
func (s Schedule) SlotDuration() time.Duration {
	if s.SlotMinutes <= 0 {
		return DefaultSlotMinutes * time.Minute
	}
	return time.Duration(s.SlotMinutes) * time.Minute
}

// Offers reports whether clock (HH:mm) is the start of a slot on date's
// weekday: inside the working window, on the slot grid, with room for a
// whole slot before the window ends.
func (s Schedule) Offers(date time.Time, clock string) bool {
	hours, ok := s.ForDate(date)
	if !ok {
		return false
	}
	m, err := slottime.ParseClock(clock)
	if err != nil {
		return false
	}
	step := int(s.SlotDuration() / time.Minute)
	return m >= hours.Start && m+step <= hours.End && (m-hours.Start)%step == 0
}

// Times renders the per-day ranges as stored in available_times.
func (s Schedule) Times() map[string]string {
	out := make(map[string]string, len(s.Days))
	for name, wd := range weekdayNames {
		if h, ok := s.Days[wd]; ok {
			out[name] = h.String()
		}
	}
	return out
}

func (s Schedule) Doc() ScheduleDoc {
	return ScheduleDoc{Days: s.Times(), SlotDurationMinutes: int(s.SlotDuration() / time.Minute)}
}

func (s Schedule) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Doc())
}

func (s *Schedule) UnmarshalJSON(data []byte) error {
	var doc ScheduleDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	parsed, err := ParseSchedule(doc)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSchedule validates doc: each entry must be HH:mm-HH:mm with start
// strictly before end, and the slot duration must lie in 5..240 minutes.
// A zero duration takes the default.
func ParseSchedule(doc ScheduleDoc) (Schedule, error) {
	verr := &apperr.ValidationError{}

	slot := doc.SlotDurationMinutes
	if slot == 0 {
		slot = DefaultSlotMinutes
	}
	if slot < MinSlotMinutes || slot > MaxSlotMinutes {
		verr.Add("slotDurationMinutes", fmt.Sprintf("must be between %d and %d", MinSlotMinutes, MaxSlotMinutes))
	}

	sched := Schedule{Days: make(map[time.Weekday]DayHours, len(doc.Days)), SlotMinutes: slot}
	for name, raw := range doc.Days {
		field := "days." + name
		wd, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			verr.Add(field, "unknown weekday")
			continue
		}
		if strings.TrimSpace(raw) == "" {
			continue
		}
		hours, err := ParseRange(raw)
		if err != nil {
			verr.Add(field, err.Error())
			continue
		}
		sched.Days[wd] = hours
	}

	if err := verr.OrNil(); err != nil {
		return Schedule{}, err
	}
	return sched, nil
}

// ParseRange parses "09:00-17:00".
func ParseRange(raw string) (DayHours, error) {
	startRaw, endRaw, ok := strings.Cut(strings.TrimSpace(raw), "-")
	if !ok {
		return DayHours{}, fmt.Errorf("expected HH:mm-HH:mm, got %q", raw)
	}
	start, err := slottime.ParseClock(strings.TrimSpace(startRaw))
	if err != nil {
		return DayHours{}, err
	}
	end, err := slottime.ParseClock(strings.TrimSpace(endRaw))
	if err != nil {
		return DayHours{}, err
	}
	if start >= end {
		return DayHours{}, fmt.Errorf("start %s must be before end %s", startRaw, endRaw)
	}
	return DayHours{Start: start, End: end}, nil
}
