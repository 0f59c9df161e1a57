// Package metrics exposes prometheus counters for the chat client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chat_client"

// Metrics groups the counters updated by the session and the engine.
type Metrics struct {
	Dials               *prometheus.CounterVec
	ReconnectsScheduled prometheus.Counter
	FramesReceived      prometheus.Counter
	FramesDropped       prometheus.Counter
	MessagesSent        prometheus.Counter
	ForcedLogouts       prometheus.Counter
}

// New creates the counters and registers them with reg. A nil reg leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Dials: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dials_total",
			Help:      "Live channel connection attempts by result.",
		}, []string{"result"}),
		ReconnectsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_scheduled_total",
			Help:      "Reconnect attempts scheduled after a close.",
		}),
		FramesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames read from the live channel.",
		}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Inbound frames discarded as malformed.",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages written to the live channel.",
		}),
		ForcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_logouts_total",
			Help:      "Logouts caused by authentication failures.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Dials, m.ReconnectsScheduled, m.FramesReceived, m.FramesDropped, m.MessagesSent, m.ForcedLogouts)
	}
	return m
}
