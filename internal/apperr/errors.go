// Package apperr holds the error taxonomy shared by the booking core and the
// HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation                = errors.New("validation failed")
	ErrSlotUnavailable           = errors.New("time slot is unavailable")
	ErrCancellationWindowExpired = errors.New("cancellation window has expired")
	ErrNotFound                  = errors.New("resource not found")
	ErrForbidden                 = errors.New("forbidden")
	ErrInternal                  = errors.New("internal error")
)

// ValidationError reports malformed input with per-field detail.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add records a problem with field and returns the receiver for chaining.
func (e *ValidationError) Add(field, msg string) *ValidationError {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
	return e
}

// OrNil returns nil when no field was flagged.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// Invalid is shorthand for a single-field validation error.
func Invalid(field, msg string) error {
	return (&ValidationError{}).Add(field, msg)
}

// AlternativeSlot is a substitute booking offered after a conflict.
type AlternativeSlot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// SlotUnavailableError is returned when a commit loses on the uniqueness
// constraint. Alternatives and the requested slot are filled on create and
// reschedule paths.
type SlotUnavailableError struct {
	Message       string
	RequestedDate string
	RequestedTime string
	Alternatives  []AlternativeSlot
}

func (e *SlotUnavailableError) Error() string {
	if e.Message == "" {
		return ErrSlotUnavailable.Error()
	}
	return e.Message
}

func (e *SlotUnavailableError) Unwrap() error { return ErrSlotUnavailable }

// SlotUnavailable builds a conflict without alternatives.
func SlotUnavailable(msg string) error {
	return &SlotUnavailableError{Message: msg}
}
