package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_dataset_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_dataset_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	// Business metrics
	ChatPagesServed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_dataset_chat_pages_total",
			Help: "Chat list pages served",
		},
		[]string{"direction"}, // "first", "after" or "before"
	)

	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_dataset_exports_total",
			Help: "Dataset exports by outcome",
		},
		[]string{"outcome"}, // "ok", "malformed", "not_found", "error"
	)

	ExportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chat_dataset_export_duration_seconds",
			Help:    "Time spent building a dataset archive",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	ExportedTurns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_dataset_exported_turns_total",
			Help: "Conversation turns written to dataset archives",
		},
	)
)
