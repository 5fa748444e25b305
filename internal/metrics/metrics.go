// Package metrics defines custom Prometheus metrics for ltcatalog.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for request/response size histograms (bytes).
var sizeBuckets = []float64{64, 256, 1024, 4096, 16384, 65536, 262144, 1048576}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltcatalog_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ltcatalog_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPRequestSize observes request body size in bytes.
	HTTPRequestSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ltcatalog_http_request_size_bytes",
			Help:    "Request body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize observes response body size in bytes.
	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ltcatalog_http_response_size_bytes",
			Help:    "Response body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)
)

// Catalog metrics.
var (
	// ProductOperationsTotal counts catalog operations by name and status.
	ProductOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltcatalog_product_operations_total",
			Help: "Catalog operations by type",
		},
		[]string{"operation", "status"},
	)

	// AllocationsTotal counts code allocations by outcome: success,
	// exhausted or conflict.
	AllocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ltcatalog_code_allocations_total",
			Help: "Product code allocations by outcome",
		},
		[]string{"outcome"},
	)

	// CommitAttempts observes how many allocate+insert rounds a create took.
	CommitAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ltcatalog_commit_attempts",
			Help:    "Allocate and insert rounds per product create",
			Buckets: []float64{1, 2, 3, 5, 8},
		},
	)

	// CodesInUse is the number of product codes taken at the last allocation.
	CodesInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ltcatalog_codes_in_use",
			Help: "Product codes in use at the last allocation",
		},
	)
)

// Register registers all Prometheus collectors with the default registry.
// This must be called explicitly (typically from main) so that metrics
// registration can be made conditional on configuration. It is safe to call
// multiple times; subsequent calls are no-ops.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPRequestSize,
			HTTPResponseSize,
			ProductOperationsTotal,
			AllocationsTotal,
			CommitAttempts,
			CodesInUse,
		)
		// Initialize the outcome series so they appear in /metrics output
		// before the first product is created.
		for _, outcome := range []string{"success", "exhausted", "conflict"} {
			AllocationsTotal.WithLabelValues(outcome)
		}
	})
}

// NormalizePath maps actual request paths to normalized path templates
// suitable for use as Prometheus metric labels. This avoids high-cardinality
// labels from individual product codes and search queries.
func NormalizePath(path string) string {
	switch path {
	case "/health", "/api/health":
		return path
	case "/docs", "/docs/":
		return "/docs"
	case "/metrics":
		return "/metrics"
	case "/openapi.json":
		return "/openapi.json"
	case "/api/products", "/api/products/":
		return "/api/products"
	case "/", "":
		return "/"
	}

	if strings.HasPrefix(path, "/docs") {
		return "/docs"
	}

	if rest, ok := strings.CutPrefix(path, "/api/products/"); ok {
		if strings.HasPrefix(rest, "search/") || rest == "search" {
			return "/api/products/search/{query}"
		}
		return "/api/products/{code}"
	}

	return "/other"
}
