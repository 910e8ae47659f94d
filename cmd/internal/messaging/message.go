// Package messaging contains LinkUp's durable direct-message core:
// conversation resolution, message persistence, read state, and unread counts.
//
// Delivery to live connections is NOT this package's job; the Service pushes
// through a Pusher after the durable write succeeded, and a failed push never
// fails the write.
package messaging

import (
	"strings"
	"time"
)

// Conversation is the canonical record for an unordered participant pair.
//
// Invariant: UserA < UserB (lexicographic). The pair {A,B} maps to exactly one
// conversation regardless of which side initiated it; PairKey is the storage
// key that enforces uniqueness under concurrent creation.
type Conversation struct {
	ID    string
	UserA string
	UserB string

	// LastMessageID references the most recent message, empty for a fresh
	// conversation. It may lag behind messages briefly (append-then-link).
	LastMessageID string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Has reports whether userID participates in the conversation.
func (c Conversation) Has(userID string) bool {
	return userID != "" && (c.UserA == userID || c.UserB == userID)
}

// Other returns the participant that is not userID, or "" if userID is not a
// participant.
func (c Conversation) Other(userID string) string {
	switch userID {
	case c.UserA:
		return c.UserB
	case c.UserB:
		return c.UserA
	default:
		return ""
	}
}

// NormalizePair orders two participant IDs into the canonical (low, high)
// form. Every creation path must derive the pair key through this function;
// two code paths normalizing differently would defeat the uniqueness
// constraint.
func NormalizePair(a, b string) (low, high string) {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a <= b {
		return a, b
	}
	return b, a
}

// PairKey derives the storage uniqueness key for an unordered participant pair.
func PairKey(a, b string) string {
	low, high := NormalizePair(a, b)
	return low + "|" + high
}

// Body is the one-way content state of a message: active text, or deleted.
//
// The transition active -> deleted clears the text permanently; there is no
// constructor or method that re-populates text on a deleted body, so the
// irreversibility is structural rather than a flag convention.
type Body struct {
	text      string
	deletedAt time.Time
	deleted   bool
}

// ActiveBody returns a live message body carrying text.
func ActiveBody(text string) Body {
	return Body{text: text}
}

// DeletedBody returns a tombstone body; the original text is gone.
func DeletedBody(at time.Time) Body {
	return Body{deleted: true, deletedAt: at}
}

// Text returns the message text and true for an active body.
// For a deleted body it returns ("", false) regardless of caller.
func (b Body) Text() (string, bool) {
	if b.deleted {
		return "", false
	}
	return b.text, true
}

// DeletedAt returns the deletion timestamp and true for a deleted body.
func (b Body) DeletedAt() (time.Time, bool) {
	if !b.deleted {
		return time.Time{}, false
	}
	return b.deletedAt, true
}

// Deleted reports whether the body is a tombstone.
func (b Body) Deleted() bool { return b.deleted }

// Message is one direct message inside a conversation.
//
// Seen flips false -> true only (MarkSeen); Body transitions active -> deleted
// only (SoftDelete). Neither transition reverses.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           Body
	Seen           bool
	CreatedAt      time.Time
}
