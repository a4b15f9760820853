package stats

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oceanview/analytics-collector/internal/aggregator"
	"github.com/oceanview/analytics-collector/internal/apperr"
	"github.com/oceanview/analytics-collector/internal/cache"
	"github.com/oceanview/analytics-collector/internal/config"
	"github.com/oceanview/analytics-collector/internal/logger"
	"github.com/oceanview/analytics-collector/internal/store"
)

const cacheTTL = 60 * time.Second

// Handler serves every /v1/stats/* endpoint from the aggregate tables.
type Handler struct {
	cfg   *config.Config
	store *store.Store
	cache *cache.Cache
}

func NewHandler(cfg *config.Config, s *store.Store, c *cache.Cache) *Handler {
	return &Handler{cfg: cfg, store: s, cache: c}
}

func (h *Handler) parsePeriodOrFail(c *gin.Context) (Period, bool) {
	raw := c.DefaultQuery("period", "24h")
	p, err := ParsePeriod(raw, time.Now())
	if err != nil {
		appErr := apperr.InvalidPeriod(err.Error())
		c.JSON(appErr.StatusCode, appErr.ToResponse(h.cfg.Mode == config.Production))
		return Period{}, false
	}
	return p, true
}

type overviewBody struct {
	Period        string                  `json:"period"`
	StartDate     string                  `json:"start_date"`
	EndDate       string                  `json:"end_date"`
	Summary       overviewSummary         `json:"summary"`
	Tools         []toolSummary           `json:"tools"`
	Errors        []errorSummaryEntry     `json:"errors"`
	CacheHitRate  interface{}             `json:"cache_hit_rate"`
}

type overviewSummary struct {
	TotalCalls   int `json:"total_calls"`
	SuccessCalls int `json:"success_calls"`
	ErrorCalls   int `json:"error_calls"`
}

// GetOverview serves /v1/stats/overview: the global summary, per-tool
// breakdown, and top errors for the requested window.
func (h *Handler) GetOverview(c *gin.Context) {
	period, ok := h.parsePeriodOrFail(c)
	if !ok {
		return
	}

	body, err := Cached(c.Request.Context(), h.cache, cache.ToolTotalsKey("overview:"+period.Raw), cacheTTL, func() (overviewBody, error) {
		return h.buildOverview(c.Request.Context(), period)
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) buildOverview(ctx context.Context, period Period) (overviewBody, error) {
	totals, err := h.store.QueryToolTotals(ctx, period.Start, period.End)
	if err != nil {
		return overviewBody{}, err
	}
	errSummary, err := h.store.QueryErrorSummary(ctx, period.Start, period.End)
	if err != nil {
		return overviewBody{}, err
	}

	body := overviewBody{
		Period:    period.Raw,
		StartDate: period.Start.Format(time.RFC3339),
		EndDate:   period.End.Format(time.RFC3339),
	}

	var hits, misses int
	for _, t := range totals {
		body.Summary.TotalCalls += t.TotalCalls
		body.Summary.SuccessCalls += t.SuccessCalls
		body.Summary.ErrorCalls += t.ErrorCalls
		hits += t.CacheHitCount
		misses += t.CacheMissCount
		body.Tools = append(body.Tools, toToolSummary(t))
	}
	if rate, ok := aggregator.CacheHitRate(hits, misses); ok {
		body.CacheHitRate = rate
	}

	for _, e := range errSummary {
		body.Errors = append(body.Errors, toErrorSummaryEntry(e, body.Summary.ErrorCalls))
	}

	return body, nil
}

type toolSummary struct {
	Name              string      `json:"name"`
	Calls             int         `json:"calls"`
	SuccessRate       interface{} `json:"success_rate"`
	AvgResponseTimeMs interface{} `json:"avg_response_time_ms"`
	P95ResponseTimeMs interface{} `json:"p95_response_time_ms"`
}

func toToolSummary(t store.ToolTotals) toolSummary {
	ts := toolSummary{Name: t.Tool, Calls: t.TotalCalls}
	if rate, ok := aggregator.ServiceSuccessRate(t.SuccessCalls, t.TotalCalls); ok {
		ts.SuccessRate = rate
	}
	if t.AvgResponseTimeMs.Valid {
		ts.AvgResponseTimeMs = t.AvgResponseTimeMs.Float64
	}
	if t.P95ResponseTimeMs.Valid {
		ts.P95ResponseTimeMs = t.P95ResponseTimeMs.Int64
	}
	return ts
}

// GetTools serves /v1/stats/tools: per-tool totals only, no error/overview
// sections — a lighter-weight call than GetOverview for dashboards that
// only need the tool table.
func (h *Handler) GetTools(c *gin.Context) {
	period, ok := h.parsePeriodOrFail(c)
	if !ok {
		return
	}

	type toolsBody struct {
		Tools []toolSummary `json:"tools"`
	}

	body, err := Cached(c.Request.Context(), h.cache, cache.ToolTotalsKey(period.Raw), cacheTTL, func() (toolsBody, error) {
		totals, err := h.store.QueryToolTotals(c.Request.Context(), period.Start, period.End)
		if err != nil {
			return toolsBody{}, err
		}
		out := toolsBody{}
		for _, t := range totals {
			out.Tools = append(out.Tools, toToolSummary(t))
		}
		return out, nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

type errorSummaryEntry struct {
	Type            string      `json:"type"`
	Count           int         `json:"count"`
	Percentage      interface{} `json:"percentage"`
	LastSeen        string      `json:"last_seen"`
	AffectedTools   []string    `json:"affected_tools"`
}

func toErrorSummaryEntry(e store.ErrorTypeSummary, totalErrors int) errorSummaryEntry {
	entry := errorSummaryEntry{
		Type:          e.ErrorType,
		Count:         e.Count,
		LastSeen:      e.LastSeen.Format(time.RFC3339),
		AffectedTools: e.AffectedTools,
	}
	if totalErrors > 0 {
		entry.Percentage = float64(e.Count) / float64(totalErrors) * 100
	}
	return entry
}

// GetErrors serves /v1/stats/errors: the top error types for the window,
// ranked by count, with the share of all errors each type represents.
func (h *Handler) GetErrors(c *gin.Context) {
	period, ok := h.parsePeriodOrFail(c)
	if !ok {
		return
	}

	type errorsBody struct {
		Errors []errorSummaryEntry `json:"errors"`
	}

	body, err := Cached(c.Request.Context(), h.cache, cache.ErrorSummaryKey(period.Raw), cacheTTL, func() (errorsBody, error) {
		rows, err := h.store.QueryErrorSummary(c.Request.Context(), period.Start, period.End)
		if err != nil {
			return errorsBody{}, err
		}
		total := 0
		for _, r := range rows {
			total += r.Count
		}
		out := errorsBody{}
		for _, r := range rows {
			out.Errors = append(out.Errors, toErrorSummaryEntry(r, total))
		}
		return out, nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

type performanceBody struct {
	Tools []performanceEntry `json:"tools"`
}

type performanceEntry struct {
	Name         string      `json:"name"`
	P50          interface{} `json:"p50"`
	P95          interface{} `json:"p95"`
	P99          interface{} `json:"p99"`
	CacheHitRate interface{} `json:"cache_hit_rate"`
}

// GetPerformance serves /v1/stats/performance: percentiles and cache rate
// per tool, sourced from the daily table's recomputed-on-upsert
// percentiles.
func (h *Handler) GetPerformance(c *gin.Context) {
	period, ok := h.parsePeriodOrFail(c)
	if !ok {
		return
	}

	body, err := Cached(c.Request.Context(), h.cache, cache.PerformanceKey(period.Raw), cacheTTL, func() (performanceBody, error) {
		rows, err := h.store.QueryPerformance(c.Request.Context(), period.Start, period.End)
		if err != nil {
			return performanceBody{}, err
		}
		out := performanceBody{}
		for _, r := range rows {
			entry := performanceEntry{Name: r.Tool}
			if r.P50.Valid {
				entry.P50 = r.P50.Int64
			}
			if r.P95.Valid {
				entry.P95 = r.P95.Int64
			}
			if r.P99.Valid {
				entry.P99 = r.P99.Int64
			}
			if rate, ok := aggregator.CacheHitRate(r.CacheHits, r.CacheMisses); ok {
				entry.CacheHitRate = rate
			}
			out.Tools = append(out.Tools, entry)
		}
		return out, nil
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

type toolDetailBody struct {
	Name            string            `json:"name"`
	TotalCalls      int               `json:"total_calls"`
	SuccessRate     interface{}       `json:"success_rate"`
	Timeline        []timelinePoint   `json:"timeline"`
	ErrorBreakdown  []errorSummaryEntry `json:"error_breakdown"`
}

type timelinePoint struct {
	Hour         string `json:"hour"`
	TotalCalls   int    `json:"total_calls"`
	SuccessCalls int    `json:"success_calls"`
	ErrorCalls   int    `json:"error_calls"`
}

// GetTool serves /v1/stats/tool/:toolName: one tool's totals, hourly
// timeline, and error breakdown. The breakdown lists the error types whose
// affected tools include this one; each entry's count covers every tool
// that reported that error type, not only this one.
func (h *Handler) GetTool(c *gin.Context) {
	toolName := c.Param("toolName")
	period, ok := h.parsePeriodOrFail(c)
	if !ok {
		return
	}

	body, err := Cached(c.Request.Context(), h.cache, cache.ToolTimelineKey(toolName, period.Raw), cacheTTL, func() (toolDetailBody, error) {
		return h.buildToolDetail(c.Request.Context(), toolName, period)
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, body)
}

func (h *Handler) buildToolDetail(ctx context.Context, toolName string, period Period) (toolDetailBody, error) {
	timeline, err := h.store.QueryToolTimeline(ctx, toolName, period.Start, period.End)
	if err != nil {
		return toolDetailBody{}, err
	}
	errSummary, err := h.store.QueryErrorSummary(ctx, period.Start, period.End)
	if err != nil {
		return toolDetailBody{}, err
	}

	body := toolDetailBody{Name: toolName}
	var success int
	for _, pt := range timeline {
		body.TotalCalls += pt.TotalCalls
		success += pt.SuccessCalls
		body.Timeline = append(body.Timeline, timelinePoint{
			Hour: pt.Hour.Format(time.RFC3339), TotalCalls: pt.TotalCalls,
			SuccessCalls: pt.SuccessCalls, ErrorCalls: pt.ErrorCalls,
		})
	}
	if rate, ok := aggregator.ServiceSuccessRate(success, body.TotalCalls); ok {
		body.SuccessRate = rate
	}

	for _, e := range errSummary {
		for _, t := range e.AffectedTools {
			if t == toolName {
				body.ErrorBreakdown = append(body.ErrorBreakdown, toErrorSummaryEntry(e, 0))
				break
			}
		}
	}

	return body, nil
}

func (h *Handler) fail(c *gin.Context, err error) {
	logger.Stats().Error().Err(err).Msg("stats query failed")
	appErr := apperr.ServiceUnavailable("store")
	c.JSON(appErr.StatusCode, appErr.ToResponse(true))
}
