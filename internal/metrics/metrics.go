package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Pipeline metrics
	MessagesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_messages_processed_total",
			Help: "Messages from watched rooms",
		},
	)

	MessagesFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_messages_filtered_total",
			Help: "Messages filtered, by reason",
		},
		[]string{"reason"},
	)

	OrdersForwarded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_orders_forwarded_total",
			Help: "Orders delivered to at least one destination",
		},
	)

	ClassifierResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_classifier_results_total",
			Help: "Classifier results by intent and failure",
		},
		[]string{"intent", "failure"},
	)

	ClassifierLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_classifier_latency_seconds",
			Help:    "Classifier call latency",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 15},
		},
	)

	DeliveryResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_delivery_results_total",
			Help: "Per-destination delivery results",
		},
		[]string{"result"}, // "ok", "ok_stripped", or a failure reason
	)

	CooldownEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_cooldown_entries",
			Help: "Users tracked in the cool-down map",
		},
	)

	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_events_received_total",
			Help: "Message events received from Feishu",
		},
		[]string{"result"}, // "queued", "duplicate", "dropped"
	)

	ActiveRoomQueues = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_active_room_queues",
			Help: "Rooms with a running ingestion worker",
		},
	)

	HandlerPanics = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "relay_handler_panics_total",
			Help: "Messages whose processing panicked",
		},
	)
)
