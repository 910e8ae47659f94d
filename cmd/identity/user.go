// Package identity is LinkUp's user-store boundary.
//
// The realtime core never owns user rows; it only resolves opaque user IDs to
// profile summaries through the Finder interface. Profile CRUD lives outside
// this server.
package identity

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// User is the profile summary the realtime core needs: enough to attach an
// identity to a connection and to render a notification actor.
type User struct {
	ID       string
	Username string
	Avatar   string

	CreatedAt time.Time
}

// Finder resolves user IDs against the user store.
type Finder interface {
	// FindByID returns the user for id, or an error wrapping ErrNotFound.
	FindByID(ctx context.Context, id string) (User, error)
}

// ErrNotFound is returned when no user exists for the requested ID.
var ErrNotFound = errors.New("identity: user not found")

// NotFoundError carries the missing ID for logs; it unwraps to ErrNotFound.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return ErrNotFound.Error()
	}
	return fmt.Sprintf("%v: %s", ErrNotFound, e.ID)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
