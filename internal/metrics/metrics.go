// Package metrics exposes the service's Prometheus registry: HTTP request
// counters/latency, and the domain counters/gauges/histograms ingestion,
// the worker, the queue, the cache, and the store feed directly (events
// received/processed, queue depth and operations, database query count and
// latency, connection pool state, worker batch size and error types, cache
// hit/miss).
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// EventsAcceptedTotal and EventsRejectedTotal track batch admission at
	// the HTTP boundary, before anything reaches the queue.
	EventsAcceptedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "events_accepted_total",
		Help: "Total number of events admitted to the queue.",
	})
	EventsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_rejected_total",
			Help: "Total number of events rejected, by reason.",
		},
		[]string{"reason"},
	)

	// EventsReceivedTotal is the per-event counterpart of EventsAcceptedTotal,
	// broken down by analytics level and tool so a low-cardinality dashboard
	// can show traffic mix without scraping the raw events table.
	EventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_received_total",
			Help: "Total number of individual events admitted to the queue, by analytics level and tool.",
		},
		[]string{"analytics_level", "tool"},
	)
	// EventsProcessedTotal counts events the worker has committed to
	// storage, by outcome — distinct from EventsReceivedTotal, which counts
	// admission at the HTTP boundary.
	EventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_processed_total",
			Help: "Total number of events committed to storage by the worker, by status.",
		},
		[]string{"status"},
	)

	QueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Current depth of the durable event queue.",
	})
	QueueOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_operations_total",
			Help: "Total number of queue operations, by operation.",
		},
		[]string{"op"},
	)

	BatchesProcessedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "batches_processed_total",
		Help: "Total number of batches the worker has committed to storage.",
	})
	WorkerBatchSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "worker_batch_size",
		Help:    "Size of batches the worker pulls off the queue per poll.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})
	WorkerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_errors_total",
			Help: "Total number of worker-side failures, by type.",
		},
		[]string{"type"},
	)

	DatabaseQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "database_queries_total",
			Help: "Total number of database queries issued, by operation and table.",
		},
		[]string{"operation", "table"},
	)
	DatabaseQueryDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Duration of database queries, by operation and table.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)
	DatabaseConnectionPool = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "database_connection_pool",
			Help: "Connection pool state, by state (total, idle, waiting).",
		},
		[]string{"state"},
	)

	CacheOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Total number of cache lookups, by result.",
		},
		[]string{"result"},
	)
)

// NewRegistry builds and populates a fresh registry — called once at
// startup, not a global singleton, so tests can build an isolated registry
// per case.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		EventsAcceptedTotal,
		EventsRejectedTotal,
		EventsReceivedTotal,
		EventsProcessedTotal,
		QueueDepth,
		QueueOperationsTotal,
		BatchesProcessedTotal,
		WorkerBatchSize,
		WorkerErrorsTotal,
		DatabaseQueriesTotal,
		DatabaseQueryDurationSeconds,
		DatabaseConnectionPool,
		CacheOperationsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the Prometheus exposition format for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// GinMiddleware records request count and latency for every route.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDurationSeconds.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}
