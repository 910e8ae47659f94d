package realtime

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the realtime delivery instruments.
// A nil *Metrics is valid and turns every method into a no-op,
// which keeps tests free of registry plumbing.
type Metrics struct {
	onlineUsers  prometheus.Gauge
	delivered    *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	messagesSent prometheus.Counter
}

// NewMetrics registers the realtime collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		onlineUsers: f.NewGauge(prometheus.GaugeOpts{
			Name: "linkup_online_users",
			Help: "Number of users with a live websocket connection.",
		}),
		delivered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "linkup_events_delivered_total",
			Help: "Events enqueued onto a live connection, by event type.",
		}, []string{"type"}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "linkup_events_dropped_total",
			Help: "Events dropped due to backpressure or a closing connection, by event type.",
		}, []string{"type"}),
		messagesSent: f.NewCounter(prometheus.CounterOpts{
			Name: "linkup_messages_sent_total",
			Help: "Messages accepted for durable storage.",
		}),
	}
}

func (m *Metrics) SetOnline(n int) {
	if m == nil {
		return
	}
	m.onlineUsers.Set(float64(n))
}

func (m *Metrics) EventDelivered(typ string) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(typ).Inc()
}

func (m *Metrics) EventDropped(typ string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(typ).Inc()
}

func (m *Metrics) MessageSent() {
	if m == nil {
		return
	}
	m.messagesSent.Inc()
}
