// Package slottime converts between the (date, "HH:mm") pair appointments are
// stored under and the absolute instants reservations and schedules use.
package slottime

import (
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// ParseDate parses YYYY-MM-DD into a civil date (midnight UTC), the same
// shape pgx returns for a DATE column.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date %q must be YYYY-MM-DD", s)
	}
	return d, nil
}

// ParseClock parses a zero-padded 24h HH:mm value and returns minutes since
// midnight.
func ParseClock(s string) (int, error) {
	if len(s) != len(ClockLayout) {
		return 0, fmt.Errorf("time %q must be HH:mm", s)
	}
	t, err := time.Parse(ClockLayout, s)
	if err != nil {
		return 0, fmt.Errorf("time %q must be HH:mm", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// FormatClock renders minutes since midnight as HH:mm.
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// FormatDate renders the civil date part of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// Civil strips t down to its calendar date in its own location.
func Civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// At returns the instant of (date, minutes since midnight) in loc.
func At(date time.Time, minutes int, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, minutes, 0, 0, loc)
}

// Combine resolves a stored (date, clock) pair into an instant in loc.
func Combine(date time.Time, clock string, loc *time.Location) (time.Time, error) {
	minutes, err := ParseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return At(date, minutes, loc), nil
}

// Split is the inverse of Combine.
func Split(t time.Time, loc *time.Location) (time.Time, string) {
	local := t.In(loc)
	return Civil(local), local.Format(ClockLayout)
}
