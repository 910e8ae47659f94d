package realtime

import (
	"sync"

	"github.com/google/uuid"

	v1 "linkup/shared/contracts/realtime/v1"
)

// Client represents one connected websocket session for a user.
//
// Design notes:
// - Send is intentionally NOT closed by the server to avoid panics from concurrent routers.
// - done is used to signal goroutines to stop.
// - Close is idempotent.
type Client struct {
	UserID string
	ConnID string
	Send   chan v1.Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient constructs a Client with a fresh connection id and a bounded send queue.
func NewClient(userID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 64
	}
	return &Client{
		UserID: userID,
		ConnID: uuid.NewString(),
		Send:   make(chan v1.Envelope, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Done returns a channel that is closed when the client is shutting down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close signals the client goroutines to stop (idempotent).
// It does NOT close Send to keep routing safe under concurrency.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
