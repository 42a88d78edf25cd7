// Package telemetry exports Prometheus metrics for ogloc.
//
// Metrics are registered against the default registry and served by the
// HTTP server on GET /metrics. Libraries never import this package; they
// emit events through pkg/observability and [Register] routes those events
// here.
//
// HTTP metrics are labelled by chi route pattern (/og/{name}), never by the
// raw URL, so crate names cannot blow up label cardinality.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ogloc"

// HTTP server metrics.
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests served, by method, route pattern and status code.",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Histogram of HTTP request latencies, by method and route pattern.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
)

// Pipeline metrics.
//
// ResolveTotal counts metadata lookups by the source that answered ("dump",
// "remote", or "none" when the lookup failed first) and outcome ("ok" or the
// error code).
var (
	ResolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_total",
			Help:      "Total number of metadata lookups, by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	ResolveDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolve_duration_seconds",
			Help:      "Histogram of metadata lookup latencies, by source.",
			Buckets:   []float64{0.0001, 0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 8},
		},
		[]string{"source"},
	)

	RenderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Histogram of image render latencies, by outcome.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"outcome"},
	)
)

// CacheEventsTotal counts render cache events: hit, miss, dedup, evict.
var CacheEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_events_total",
		Help:      "Total number of render cache events, by event kind.",
	},
	[]string{"event"},
)

// RemoteRequestsTotal counts outgoing HTTP calls to the registry API and
// avatar hosts by host and status ("error" when no response arrived).
var RemoteRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "remote_requests_total",
		Help:      "Total number of outgoing HTTP requests, by host and status.",
	},
	[]string{"host", "status"},
)
