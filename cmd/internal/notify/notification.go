// Package notify builds and delivers social notifications (follow, like,
// comment, story view): a row is persisted for the recipient's inbox, then a
// best-effort push goes to their live connection.
package notify

import (
	"errors"
	"time"
)

// Notification is one inbox row for a recipient.
type Notification struct {
	ID          string
	RecipientID string
	ActorID     string
	Kind        string

	// Optional subject references, set depending on Kind.
	PostID  string
	StoryID string

	Read      bool
	CreatedAt time.Time
}

var (
	ErrValidation = errors.New("notify: validation failed")
	ErrNotFound   = errors.New("notify: not found")
)

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound reports whether err is a missing-row failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
