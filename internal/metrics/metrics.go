package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"namespace"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"namespace"},
	)

	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_errors_total",
			Help: "Total number of swallowed cache backend errors",
		},
		[]string{"operation"},
	)

	CacheKeysTracked = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_keys_tracked",
			Help: "Number of cache keys tracked by the orchestrator, per namespace",
		},
		[]string{"namespace"},
	)

	CacheCleanupDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cache_cleanup_deleted_total",
			Help: "Total number of keys deleted by cleanup sweeps",
		},
	)

	// Remote key-value backend metrics
	KVRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kv_requests_total",
			Help: "Total number of HTTP requests made to the cache backend",
		},
		[]string{"status"}, // status: success, retry, error
	)

	KVRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kv_retries_total",
			Help: "Total number of cache backend request retries",
		},
	)

	KVRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kv_request_duration_seconds",
			Help:    "Duration of cache backend commands",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"command"},
	)

	KVRateLimitWaits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kv_rate_limit_waits_total",
			Help: "Total number of times a cache backend request waited for the rate limiter",
		},
	)

	KVRetryAfterWaits = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "kv_retry_after_wait_seconds",
			Help:    "Duration of Retry-After waits against the cache backend",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"component"},
	)

	CircuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"component"},
	)

	// Cache warmer metrics
	WarmerRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_warmer_runs_total",
			Help: "Total number of cache warm passes",
		},
		[]string{"status"}, // status: success, partial, failed
	)

	WarmerSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_warmer_skips_total",
			Help: "Total number of skipped warm passes",
		},
		[]string{"reason"}, // reason: in_progress, recently_warmed
	)

	WarmerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cache_warmer_duration_seconds",
			Help:    "Duration of cache warm passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Batch logger metrics
	BatchLogBufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_log_buffer_size",
			Help: "Current number of buffered log entries",
		},
	)

	BatchLogFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_log_entries_flushed_total",
			Help: "Total number of log entries flushed to the document store",
		},
	)

	BatchLogDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "batch_log_entries_dropped_total",
			Help: "Total number of log entries dropped after a failed flush",
		},
	)

	// Document store metrics
	DocstoreOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "docstore_operation_duration_seconds",
			Help:    "Duration of document store operations",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"operation"},
	)

	DocstoreOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docstore_operation_errors_total",
			Help: "Total number of document store operation errors",
		},
		[]string{"operation"},
	)
)
