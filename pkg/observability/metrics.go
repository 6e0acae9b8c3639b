package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Channel metrics
	ActiveChannels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "savana",
			Subsystem: "realtime",
			Name:      "active_channels",
			Help:      "Number of currently connected channels",
		},
	)

	ActiveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "savana",
			Subsystem: "realtime",
			Name:      "active_rooms",
			Help:      "Number of rooms with at least one member",
		},
	)

	AdmissionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "savana",
			Subsystem: "realtime",
			Name:      "admissions_rejected_total",
			Help:      "Total number of handshakes refused at the session gate",
		},
		[]string{"reason"},
	)

	// Message metrics
	MessagesRelayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "savana",
			Subsystem: "realtime",
			Name:      "messages_relayed_total",
			Help:      "Total number of chat messages relayed to peers",
		},
	)

	AssistantReplies = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "savana",
			Subsystem: "realtime",
			Name:      "assistant_replies_total",
			Help:      "Total number of assistant messages broadcast to rooms",
		},
	)

	DeliveriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "savana",
			Subsystem: "realtime",
			Name:      "deliveries_dropped_total",
			Help:      "Total number of per-member deliveries dropped due to backpressure or send failure",
		},
	)

	// Generation metrics
	GenerationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "savana",
			Subsystem: "ai",
			Name:      "generation_failures_total",
			Help:      "Total number of failed generation gateway calls",
		},
	)

	GenerationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "savana",
			Subsystem: "ai",
			Name:      "generation_latency_seconds",
			Help:      "Generation gateway call latency in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~100s
		},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "savana",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		},
		[]string{"route", "status"},
	)
)
