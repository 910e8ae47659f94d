package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"linkup/cmd/identity"
	"linkup/cmd/identity/ids"
	v1 "linkup/shared/contracts/realtime/v1"
)

// Pusher delivers an envelope to a user's live connection, if any.
// Implementations must never block.
type Pusher interface {
	Push(userID string, env v1.Envelope) bool
}

// Fanout persists a notification and pushes it to the recipient.
//
// The durable write is the source of truth: a failed or skipped push is
// logged and swallowed, never surfaced to the caller.
type Fanout struct {
	log   *slog.Logger
	users identity.Finder
	store Store
	push  Pusher
}

// NewFanout constructs a Fanout over the given collaborators.
func NewFanout(log *slog.Logger, users identity.Finder, store Store, push Pusher) *Fanout {
	return &Fanout{log: log, users: users, store: store, push: push}
}

// NotifyInput describes one social event to fan out.
type NotifyInput struct {
	RecipientID string
	ActorID     string
	Kind        string

	// Subject references, set depending on Kind.
	PostID  string
	StoryID string

	Now time.Time
}

// Notify persists the notification row, then pushes a notification envelope
// to the recipient's live connection.
func (f *Fanout) Notify(ctx context.Context, in NotifyInput) (Notification, error) {
	recipient := strings.TrimSpace(in.RecipientID)
	actor := strings.TrimSpace(in.ActorID)

	if recipient == "" {
		return Notification{}, fmt.Errorf("%w: missing recipient", ErrValidation)
	}
	if actor == "" {
		return Notification{}, fmt.Errorf("%w: missing actor", ErrValidation)
	}
	if recipient == actor {
		return Notification{}, fmt.Errorf("%w: self notification", ErrValidation)
	}
	if !v1.ValidNotificationKind(in.Kind) {
		return Notification{}, fmt.Errorf("%w: unknown kind %q", ErrValidation, in.Kind)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Notification{}, err
	}

	n := Notification{
		ID:          id,
		RecipientID: recipient,
		ActorID:     actor,
		Kind:        in.Kind,
		PostID:      strings.TrimSpace(in.PostID),
		StoryID:     strings.TrimSpace(in.StoryID),
		CreatedAt:   now,
	}

	if err := f.store.Append(ctx, n); err != nil {
		return Notification{}, err
	}

	f.pushEvent(ctx, n, now)
	return n, nil
}

// List returns the recipient's notifications, newest first.
func (f *Fanout) List(ctx context.Context, recipientID string, limit int) ([]Notification, error) {
	return f.store.ListForRecipient(ctx, recipientID, limit)
}

// MarkAllRead flips every unread notification for the recipient.
func (f *Fanout) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	return f.store.MarkAllRead(ctx, recipientID)
}

func (f *Fanout) pushEvent(ctx context.Context, n Notification, now time.Time) {
	actor := v1.ActorView{ID: n.ActorID}
	if u, err := f.users.FindByID(ctx, n.ActorID); err == nil {
		actor.Username = u.Username
		actor.Avatar = u.Avatar
	} else {
		// The push still happens; the client falls back to the actor id.
		f.log.Warn("notify.actor.lookup.fail", "actor_id", n.ActorID, "err", err)
	}

	payload, err := json.Marshal(v1.NotificationPayload{
		Kind:    n.Kind,
		Actor:   actor,
		PostID:  n.PostID,
		StoryID: n.StoryID,
	})
	if err != nil {
		f.log.Error("notify.payload.marshal.fail", "err", err)
		return
	}

	env := v1.Envelope{
		V:       v1.Version,
		Type:    v1.TypeNotification,
		ID:      n.ID,
		TS:      now,
		Payload: payload,
	}

	if !f.push.Push(n.RecipientID, env) {
		f.log.Debug("notify.push.skip", "recipient_id", n.RecipientID, "kind", n.Kind)
	}
}
