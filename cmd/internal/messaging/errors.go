package messaging

import "errors"

var (
	// ErrValidation is returned when a required field is missing or malformed.
	// Surfaced to the caller, never retried.
	ErrValidation = errors.New("messaging: invalid input")

	// ErrSelfConversation is returned when both participants are the same user.
	ErrSelfConversation = errors.New("messaging: cannot start a conversation with yourself")

	// ErrForbidden is returned when an ownership check fails
	// (e.g., unsending somebody else's message).
	ErrForbidden = errors.New("messaging: forbidden")

	// ErrNotFound is returned when a referenced conversation or message is absent.
	ErrNotFound = errors.New("messaging: not found")
)

// IsValidation reports whether err represents ErrValidation (including
// ErrSelfConversation).
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrSelfConversation)
}

// IsForbidden reports whether err represents ErrForbidden.
func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
