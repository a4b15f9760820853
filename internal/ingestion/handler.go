// Package ingestion implements the public HTTP surface: the event
// submission endpoint, health and status probes, and the gin router that
// wires the rest of the service's middleware chain around them.
package ingestion

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oceanview/analytics-collector/internal/apperr"
	"github.com/oceanview/analytics-collector/internal/config"
	"github.com/oceanview/analytics-collector/internal/logger"
	"github.com/oceanview/analytics-collector/internal/metrics"
	"github.com/oceanview/analytics-collector/internal/middleware"
	"github.com/oceanview/analytics-collector/internal/queue"
	"github.com/oceanview/analytics-collector/internal/stats"
	"github.com/oceanview/analytics-collector/internal/store"
	"github.com/oceanview/analytics-collector/internal/validator"
	"github.com/oceanview/analytics-collector/internal/worker"
)

// Handler holds every dependency the ingestion endpoints need.
type Handler struct {
	cfg       *config.Config
	queue     *queue.Queue
	store     *store.Store
	limiter   *queue.RateLimiter
	worker    *worker.Worker
	startedAt time.Time
}

func NewHandler(cfg *config.Config, q *queue.Queue, s *store.Store, limiter *queue.RateLimiter, w *worker.Worker) *Handler {
	return &Handler{cfg: cfg, queue: q, store: s, limiter: limiter, worker: w, startedAt: time.Now()}
}

// Router assembles the full middleware chain and route table. Ordering
// mirrors the teacher's chain: request correlation first, then recovery,
// then everything that can short-circuit a request before it reaches a
// handler.
func (h *Handler) Router(statsHandler *stats.Handler) *gin.Engine {
	gin.SetMode(h.ginMode())
	r := gin.New()
	if !h.cfg.TrustProxy {
		// Forwarded-for headers are ignored: ClientIP is the connection's remote address.
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(middleware.RequestID())
	r.Use(recovery())
	r.Use(middleware.StructuredLogger())
	r.Use(metrics.GinMiddleware())
	r.Use(middleware.TimeoutWithDuration(5 * time.Second))
	r.Use(middleware.RequestSizeLimiter(int64(h.cfg.APIBodyLimitKB) * 1024))
	r.Use(corsMiddleware(h.cfg.CORSOrigins))
	r.Use(rateLimitMiddleware(h.limiter))

	r.POST("/v1/events", h.PostEvents)
	r.GET("/v1/health", h.GetHealth)
	r.GET("/v1/status", h.GetStatus)

	r.GET("/v1/stats/overview", statsHandler.GetOverview)
	r.GET("/v1/stats/tools", statsHandler.GetTools)
	r.GET("/v1/stats/tool/:toolName", statsHandler.GetTool)
	r.GET("/v1/stats/errors", statsHandler.GetErrors)
	r.GET("/v1/stats/performance", statsHandler.GetPerformance)

	return r
}

func (h *Handler) ginMode() string {
	if h.cfg.Mode == config.Production {
		return gin.ReleaseMode
	}
	return gin.DebugMode
}

// PostEvents accepts a batch of events, validates the whole thing before
// admitting any of it, and hands the validated batch to the durable queue.
func (h *Handler) PostEvents(c *gin.Context) {
	log := logger.Ingestion()

	var body map[string]interface{}
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		metrics.EventsRejectedTotal.WithLabelValues("malformed_json").Inc()
		appErr := apperr.ValidationFailed("request body must be valid JSON")
		c.JSON(appErr.StatusCode, appErr.ToResponse(h.cfg.Mode == config.Production))
		return
	}

	batch, validationErrs := validator.ValidateBatch(body)
	if len(validationErrs) > 0 {
		metrics.EventsRejectedTotal.WithLabelValues("validation_failed").Inc()
		details := ""
		for i, v := range validationErrs {
			if i > 0 {
				details += "; "
			}
			details += v.String()
		}
		appErr := apperr.ValidationFailed(details)
		c.JSON(appErr.StatusCode, appErr.ToResponse(h.cfg.Mode == config.Production))
		return
	}

	entries := make([]interface{}, len(batch.Events))
	for i, ev := range batch.Events {
		entries[i] = ev
	}

	if err := h.queue.PushBatch(c.Request.Context(), entries); err != nil {
		if err == queue.ErrQueueFull {
			metrics.EventsRejectedTotal.WithLabelValues("queue_full").Inc()
			metrics.QueueOperationsTotal.WithLabelValues("reject").Inc()
			appErr := apperr.QueueFull()
			c.JSON(appErr.StatusCode, appErr.ToResponse(true))
			return
		}
		log.Error().Err(err).Msg("failed to push batch to queue")
		appErr := apperr.ServiceUnavailable("queue")
		c.JSON(appErr.StatusCode, appErr.ToResponse(true))
		return
	}

	metrics.QueueOperationsTotal.WithLabelValues("push").Inc()
	metrics.EventsAcceptedTotal.Add(float64(len(batch.Events)))
	for _, ev := range batch.Events {
		metrics.EventsReceivedTotal.WithLabelValues(string(ev.Level), ev.Tool).Inc()
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":    "accepted",
		"count":     len(batch.Events),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetHealth is the liveness probe: it reports healthy only when both the
// queue and the store can be reached, per the 503-on-unreachable contract.
func (h *Handler) GetHealth(c *gin.Context) {
	ctx := c.Request.Context()

	_, depthErr := h.queue.Depth(ctx)
	dbErr := h.store.Ping()

	if depthErr != nil || dbErr != nil {
		appErr := apperr.ServiceUnavailable("dependency")
		c.JSON(appErr.StatusCode, appErr.ToResponse(true))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// GetStatus reports the operational counters an on-call dashboard polls:
// queue depth, the worker's processed-event count, the time the worker last
// processed a batch, and process uptime. events_processed_24h carries the
// worker's total since this process started; it is not a rolling 24-hour
// window.
func (h *Handler) GetStatus(c *gin.Context) {
	ctx := c.Request.Context()

	depth, _ := h.queue.Depth(ctx)
	metrics.QueueDepth.Set(float64(depth))

	var eventsProcessed24h int64
	var lastEventReceived interface{}
	if h.worker != nil {
		snap := h.worker.Snapshot()
		eventsProcessed24h = snap.TotalProcessed
		if !snap.LastProcessedAt.IsZero() {
			lastEventReceived = snap.LastProcessedAt.Format(time.RFC3339)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"queue_depth":          depth,
		"events_processed_24h": eventsProcessed24h,
		"last_event_received":  lastEventReceived,
		"uptime_seconds":       int64(time.Since(h.startedAt).Seconds()),
	})
}
