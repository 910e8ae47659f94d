// Package v1 defines the LinkUp realtime protocol v1 contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the protocol version identifier embedded into every envelope.
const Version = "v1"

// Type constants (wire-stable).
const (
	// TypeMessage carries a newly persisted direct message (server -> receiver).
	TypeMessage = "message"
	// TypeMessageRead notifies that the other participant read the conversation (server -> sender).
	TypeMessageRead = "message_read"
	// TypeMessageDeleted notifies that a message was unsent (server -> both participants).
	TypeMessageDeleted = "message_deleted"

	// TypeTypingStart / TypeTypingStop are the typing indicator relay.
	// Client -> server they carry a target user; server -> client they carry the origin user.
	// They are the only events in the protocol with no durable counterpart.
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"

	// TypeNotification carries a social event (follow/like/comment/story_view)
	// to the recipient's live connection (server -> client).
	TypeNotification = "notification"

	// TypeError is a generic error envelope (server -> client).
	TypeError = "error"
)

// Notification kinds carried inside a TypeNotification payload.
const (
	NotifyFollow    = "follow"
	NotifyLike      = "like"
	NotifyComment   = "comment"
	NotifyStoryView = "story_view"
)

// Envelope is the canonical wire wrapper.
type Envelope struct {
	V       string          `json:"v"`
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	TS      time.Time       `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate performs strict structural validation for an Envelope.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.V) == "" {
		return errors.New("missing field: v")
	}
	if e.V != Version {
		return fmt.Errorf("unsupported protocol version: %q", e.V)
	}
	if strings.TrimSpace(e.Type) == "" {
		return errors.New("missing field: type")
	}

	switch e.Type {
	case TypeMessage,
		TypeMessageRead,
		TypeMessageDeleted,
		TypeTypingStart,
		TypeTypingStop,
		TypeNotification,
		TypeError:
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// ValidNotificationKind reports whether kind is a known notification kind.
func ValidNotificationKind(kind string) bool {
	switch kind {
	case NotifyFollow, NotifyLike, NotifyComment, NotifyStoryView:
		return true
	default:
		return false
	}
}
