// Package identity carries the caller of a request through the core. How the
// caller was authenticated is not this package's concern.
package identity

import (
	"context"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDentist Role = "dentist"
	RoleAdmin   Role = "admin"
)

type Actor struct {
	ID   uuid.UUID
	Role Role
}

// Anonymous is a guest without a user id, e.g. a walk-in booking.
func (a Actor) Anonymous() bool { return a.ID == uuid.Nil }

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// Is reports whether the actor is the given user, admins included.
func (a Actor) Is(id uuid.UUID) bool {
	return a.IsAdmin() || (!a.Anonymous() && a.ID == id)
}

type ctxKey struct{}

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

func FromContext(ctx context.Context) Actor {
	a, _ := ctx.Value(ctxKey{}).(Actor)
	return a
}

// ParseRole maps a header value onto a known role, defaulting to patient.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleDentist, RoleAdmin:
		return Role(s)
	default:
		return RolePatient
	}
}
