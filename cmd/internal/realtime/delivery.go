package realtime

import (
	"log/slog"

	v1 "linkup/shared/contracts/realtime/v1"
)

// Router delivers envelopes to a recipient's live connection.
//
// Delivery is best-effort: an offline recipient is a no-op, and a full send
// queue drops the event rather than blocking the caller. Routing therefore
// never fails the durable operation that triggered it.
type Router struct {
	log      *slog.Logger
	presence *Presence
	m        *Metrics
}

// NewRouter constructs a Router over the presence registry. Metrics may be nil.
func NewRouter(log *slog.Logger, presence *Presence, m *Metrics) *Router {
	return &Router{log: log, presence: presence, m: m}
}

// Push enqueues env for userID and reports whether it was accepted.
func (r *Router) Push(userID string, env v1.Envelope) bool {
	if r == nil {
		return false
	}

	c := r.presence.Lookup(userID)
	if c == nil {
		r.log.Debug("route.offline", "user_id", userID, "type", env.Type)
		return false
	}

	select {
	case <-c.Done():
		r.m.EventDropped(env.Type)
		r.log.Debug("route.drop.closing", "user_id", userID, "conn_id", c.ConnID, "type", env.Type)
		return false
	default:
	}

	select {
	case c.Send <- env:
		r.m.EventDelivered(env.Type)
		return true
	default:
		// Drop rather than block the caller on a slow consumer.
		r.m.EventDropped(env.Type)
		r.log.Info("route.drop.backpressure", "user_id", userID, "conn_id", c.ConnID, "type", env.Type)
		return false
	}
}
