package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tailmate_chat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tailmate_chat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Realtime metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tailmate_chat_connections_active",
			Help: "Live websocket connections registered in presence",
		},
	)

	RoomsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tailmate_chat_rooms_active",
			Help: "Rooms with at least one subscriber",
		},
	)

	MessagesSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tailmate_chat_messages_submitted_total",
			Help: "Message submissions by outcome",
		},
		[]string{"result"}, // ok|invalid|rate_limited|store_error
	)

	Deliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tailmate_chat_deliveries_total",
			Help: "Events handed to connections",
		},
		[]string{"event", "result"},
	)

	TypingSignals = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "tailmate_chat_typing_signals_total",
			Help: "Typing signals forwarded",
		},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tailmate_chat_store_latency_seconds",
			Help:    "Message store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .5},
		},
		[]string{"op"},
	)
)
