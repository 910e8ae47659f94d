package realtime

import (
	"testing"
	"time"

	v1 "linkup/shared/contracts/realtime/v1"
)

func TestRouterPushToOnlineUser(t *testing.T) {
	t.Parallel()

	p := NewPresence(testLogger(), nil)
	r := NewRouter(testLogger(), p, nil)

	c := NewClient("u1", 8)
	p.Register(c)

	env, err := newEnvelope(v1.TypeMessage, map[string]string{"text": "hi"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}

	if !r.Push("u1", env) {
		t.Fatalf("push to online user should succeed")
	}

	select {
	case got := <-c.Send:
		if got.Type != v1.TypeMessage {
			t.Fatalf("type=%q, want %q", got.Type, v1.TypeMessage)
		}
	default:
		t.Fatalf("nothing enqueued")
	}
}

func TestRouterPushToOfflineUserIsNoop(t *testing.T) {
	t.Parallel()

	p := NewPresence(testLogger(), nil)
	r := NewRouter(testLogger(), p, nil)

	env, err := newEnvelope(v1.TypeNotification, map[string]string{}, time.Now().UTC())
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	if r.Push("nobody", env) {
		t.Fatalf("push to offline user must report false")
	}
}

func TestRouterDropsOnBackpressure(t *testing.T) {
	t.Parallel()

	p := NewPresence(testLogger(), nil)
	r := NewRouter(testLogger(), p, nil)

	// Queue below the minimum to exercise the default branch quickly.
	c := &Client{UserID: "u1", ConnID: "conn-1", Send: make(chan v1.Envelope, 1), done: make(chan struct{})}
	p.Register(c)

	env, err := newEnvelope(v1.TypeMessage, map[string]string{"text": "hi"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}

	if !r.Push("u1", env) {
		t.Fatalf("first push should fill the queue")
	}
	if r.Push("u1", env) {
		t.Fatalf("second push must drop, not block")
	}
}

func TestRouterSkipsClosingClient(t *testing.T) {
	t.Parallel()

	p := NewPresence(testLogger(), nil)
	r := NewRouter(testLogger(), p, nil)

	c := NewClient("u1", 8)
	p.Register(c)
	c.Close()

	env, err := newEnvelope(v1.TypeMessage, map[string]string{"text": "hi"}, time.Now().UTC())
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}
	if r.Push("u1", env) {
		t.Fatalf("push to a closing client must report false")
	}
}
