package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"linkup/cmd/identity"
	v1 "linkup/shared/contracts/realtime/v1"
)

type capturePusher struct {
	online map[string]bool
	byUser map[string][]v1.Envelope
}

func newCapturePusher(online ...string) *capturePusher {
	p := &capturePusher{online: make(map[string]bool), byUser: make(map[string][]v1.Envelope)}
	for _, u := range online {
		p.online[u] = true
	}
	return p
}

func (p *capturePusher) Push(userID string, env v1.Envelope) bool {
	if !p.online[userID] {
		return false
	}
	p.byUser[userID] = append(p.byUser[userID], env)
	return true
}

func newTestFanout(online ...string) (*Fanout, *capturePusher) {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	users := identity.NewMemoryStore()
	users.Put(identity.User{ID: "actor-1", Username: "alice", Avatar: "https://cdn/a.png"})

	push := newCapturePusher(online...)
	return NewFanout(log, users, NewInMemoryStore(), push), push
}

func TestNotifyPersistsAndPushes(t *testing.T) {
	t.Parallel()

	f, push := newTestFanout("rcpt-1")
	ctx := context.Background()

	n, err := f.Notify(ctx, NotifyInput{
		RecipientID: "rcpt-1",
		ActorID:     "actor-1",
		Kind:        v1.NotifyLike,
		PostID:      "post-9",
	})
	if err != nil {
		t.Fatalf("notify: %v", err)
	}
	if n.ID == "" || n.Read {
		t.Fatalf("unexpected row: %+v", n)
	}

	rows, err := f.List(ctx, "rcpt-1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != n.ID {
		t.Fatalf("expected the persisted row, got %+v", rows)
	}

	envs := push.byUser["rcpt-1"]
	if len(envs) != 1 {
		t.Fatalf("expected 1 pushed envelope, got %d", len(envs))
	}
	if envs[0].Type != v1.TypeNotification {
		t.Fatalf("type=%q", envs[0].Type)
	}

	var p v1.NotificationPayload
	if err := json.Unmarshal(envs[0].Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Kind != v1.NotifyLike || p.PostID != "post-9" {
		t.Fatalf("payload=%+v", p)
	}
	if p.Actor.ID != "actor-1" || p.Actor.Username != "alice" {
		t.Fatalf("actor=%+v", p.Actor)
	}
}

func TestNotifyOfflineRecipientStillPersists(t *testing.T) {
	t.Parallel()

	f, push := newTestFanout() // nobody online
	ctx := context.Background()

	if _, err := f.Notify(ctx, NotifyInput{
		RecipientID: "rcpt-1",
		ActorID:     "actor-1",
		Kind:        v1.NotifyFollow,
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	rows, err := f.List(ctx, "rcpt-1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected the row to persist despite the skipped push")
	}
	if len(push.byUser["rcpt-1"]) != 0 {
		t.Fatalf("nothing should have been pushed")
	}
}

func TestNotifyUnknownActorStillPushes(t *testing.T) {
	t.Parallel()

	f, push := newTestFanout("rcpt-1")
	ctx := context.Background()

	if _, err := f.Notify(ctx, NotifyInput{
		RecipientID: "rcpt-1",
		ActorID:     "ghost",
		Kind:        v1.NotifyComment,
		PostID:      "post-1",
	}); err != nil {
		t.Fatalf("notify: %v", err)
	}

	envs := push.byUser["rcpt-1"]
	if len(envs) != 1 {
		t.Fatalf("expected 1 pushed envelope, got %d", len(envs))
	}

	var p v1.NotificationPayload
	if err := json.Unmarshal(envs[0].Payload, &p); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if p.Actor.ID != "ghost" || p.Actor.Username != "" {
		t.Fatalf("actor=%+v, want bare id fallback", p.Actor)
	}
}

func TestNotifyValidation(t *testing.T) {
	t.Parallel()

	f, _ := newTestFanout("rcpt-1")
	ctx := context.Background()

	tests := []struct {
		name string
		in   NotifyInput
	}{
		{name: "missing recipient", in: NotifyInput{ActorID: "actor-1", Kind: v1.NotifyLike}},
		{name: "missing actor", in: NotifyInput{RecipientID: "rcpt-1", Kind: v1.NotifyLike}},
		{name: "self notification", in: NotifyInput{RecipientID: "actor-1", ActorID: "actor-1", Kind: v1.NotifyLike}},
		{name: "unknown kind", in: NotifyInput{RecipientID: "rcpt-1", ActorID: "actor-1", Kind: "poke"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if _, err := f.Notify(ctx, tc.in); !IsValidation(err) {
				t.Fatalf("err=%v, want validation failure", err)
			}
		})
	}
}

func TestMarkAllReadIdempotent(t *testing.T) {
	t.Parallel()

	f, _ := newTestFanout()
	ctx := context.Background()

	for _, kind := range []string{v1.NotifyFollow, v1.NotifyStoryView} {
		if _, err := f.Notify(ctx, NotifyInput{RecipientID: "rcpt-1", ActorID: "actor-1", Kind: kind, StoryID: "story-1"}); err != nil {
			t.Fatalf("notify %s: %v", kind, err)
		}
	}

	n, err := f.MarkAllRead(ctx, "rcpt-1")
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if n != 2 {
		t.Fatalf("flipped=%d, want 2", n)
	}

	n, err = f.MarkAllRead(ctx, "rcpt-1")
	if err != nil {
		t.Fatalf("mark read repeat: %v", err)
	}
	if n != 0 {
		t.Fatalf("repeat flipped=%d, want 0", n)
	}
}
