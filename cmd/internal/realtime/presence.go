package realtime

import (
	"log/slog"
	"sync"
)

// Presence maps a user id to their single live connection.
//
// Concurrency guarantees:
// - Register is last-write-wins: a reconnect replaces the previous mapping.
// - Unregister is compare-and-remove: a stale disconnect (older ConnID) never
//   evicts a newer connection for the same user.
// - Lookup is safe under concurrent register/unregister.
type Presence struct {
	log *slog.Logger
	m   *Metrics

	mu     sync.RWMutex
	byUser map[string]*Client
}

// NewPresence constructs an empty registry. Metrics may be nil.
func NewPresence(log *slog.Logger, m *Metrics) *Presence {
	return &Presence{
		log:    log,
		m:      m,
		byUser: make(map[string]*Client),
	}
}

// Register records the client as the user's live connection.
// A previous connection for the same user is closed and returned.
func (p *Presence) Register(c *Client) (evicted *Client) {
	if p == nil || c == nil || c.UserID == "" {
		return nil
	}

	p.mu.Lock()
	prev := p.byUser[c.UserID]
	p.byUser[c.UserID] = c
	online := len(p.byUser)
	p.mu.Unlock()

	if prev != nil && prev.ConnID != c.ConnID {
		// Eviction happens after the map swap so routers never observe a gap.
		prev.Close()
		evicted = prev
		p.log.Info("presence.replace", "user_id", c.UserID, "conn_id", c.ConnID, "evicted_conn_id", prev.ConnID)
	} else {
		p.log.Info("presence.register", "user_id", c.UserID, "conn_id", c.ConnID)
	}

	p.m.SetOnline(online)
	return evicted
}

// Unregister removes the mapping only when it still points at connID.
// It reports whether a mapping was removed.
func (p *Presence) Unregister(userID, connID string) bool {
	if p == nil || userID == "" || connID == "" {
		return false
	}

	var removed *Client

	p.mu.Lock()
	cur := p.byUser[userID]
	if cur != nil && cur.ConnID == connID {
		delete(p.byUser, userID)
		removed = cur
	}
	online := len(p.byUser)
	p.mu.Unlock()

	if removed == nil {
		p.log.Debug("presence.unregister.stale", "user_id", userID, "conn_id", connID)
		return false
	}

	removed.Close()
	p.m.SetOnline(online)
	p.log.Info("presence.unregister", "user_id", userID, "conn_id", connID)
	return true
}

// Lookup returns the user's live connection, or nil when offline.
func (p *Presence) Lookup(userID string) *Client {
	if p == nil || userID == "" {
		return nil
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.byUser[userID]
}

// Online reports whether the user currently has a live connection.
func (p *Presence) Online(userID string) bool {
	return p.Lookup(userID) != nil
}

// Count returns the number of users with a live connection.
func (p *Presence) Count() int {
	if p == nil {
		return 0
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byUser)
}
