package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered on the default registry through promauto and served
// by the HTTP server at /metrics.

var (
	// HTTP requests processed, labeled by method, path and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardgraph_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP response time.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardgraph_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path"},
	)

	// Wall time of a full rebuild, by threshold mode.
	RebuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cardgraph_rebuild_duration_seconds",
			Help:    "Duration of graph rebuilds in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"mode"},
	)

	// Rebuilds by outcome: ok, canceled, failed.
	RebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardgraph_rebuilds_total",
			Help: "Total number of graph rebuilds by outcome",
		},
		[]string{"outcome"},
	)

	// Non-fatal degradations recorded during rebuilds.
	DegradationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cardgraph_degradations_total",
			Help: "Non-fatal degradations recorded during rebuilds",
		},
		[]string{"stage", "reason"},
	)

	// Similarity cutoff chosen by the last rebuild.
	ThresholdTau = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardgraph_threshold_tau",
			Help: "Similarity cutoff chosen by the last rebuild",
		},
	)

	// Node count of the last rebuilt graph.
	GraphNodes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cardgraph_graph_nodes",
			Help: "Number of nodes in the last rebuilt graph",
		},
	)

	// Edge count of the last rebuilt graph, by edge kind.
	GraphEdges = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cardgraph_graph_edges",
			Help: "Number of edges in the last rebuilt graph",
		},
		[]string{"kind"},
	)
)
