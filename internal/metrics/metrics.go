// Package metrics exposes Prometheus instrumentation for the chat server:
// connection and presence gauges, event and message counters, and event
// processing latency.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsActive tracks registered connections.
	ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "groupchat_connections_active",
		Help: "Current number of registered connections",
	})

	// OnlineUsers tracks the size of the online set.
	OnlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "groupchat_online_users",
		Help: "Current number of distinct presence names online",
	})

	// EventsTotal counts engine events by type and outcome.
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "groupchat_events_total",
		Help: "Engine events processed",
	}, []string{"type", "outcome"}) // outcome = error code or "ok"

	// EventDuration records how long the engine spent on one event,
	// including persistence and fan-out.
	EventDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "groupchat_event_duration_seconds",
		Help:    "Engine event processing time in seconds",
		Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"type"})

	// MessagesPersisted counts messages durably appended.
	MessagesPersisted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "groupchat_messages_persisted_total",
		Help: "Messages appended to the message log",
	})

	// FramesDelivered counts frames enqueued to connections.
	FramesDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "groupchat_frames_delivered_total",
		Help: "Frames enqueued to connection outbound queues",
	})

	// QueueOverflows counts forced disconnects of slow consumers.
	QueueOverflows = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "groupchat_queue_overflows_total",
		Help: "Connections dropped because their outbound queue was full",
	})

	// TypingActive tracks names with a live typing signal.
	TypingActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "groupchat_typing_active",
		Help: "Presence names currently marked as typing",
	})

	// RateLimited counts messages rejected by the rate limiter.
	RateLimited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "groupchat_rate_limited_total",
		Help: "Messages rejected by the rate limiter",
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsActive,
		OnlineUsers,
		EventsTotal,
		EventDuration,
		MessagesPersisted,
		FramesDelivered,
		QueueOverflows,
		TypingActive,
		RateLimited,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
