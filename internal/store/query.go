package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// ToolTotals is a per-tool row summed across the requested window.
type ToolTotals struct {
	Tool               string
	TotalCalls         int
	SuccessCalls       int
	ErrorCalls         int
	AvgResponseTimeMs  sql.NullFloat64
	P95ResponseTimeMs  sql.NullInt64
	CacheHitCount      int
	CacheMissCount     int
}

// QueryToolTotals sums the hourly aggregates table over [start, end) and
// groups by tool — the backing query for /v1/stats/tools and the tools[]
// section of /v1/stats/overview. Filters are always bound parameters.
func (s *Store) QueryToolTotals(ctx context.Context, start, end time.Time) ([]ToolTotals, error) {
	ctx, cancel := context.WithTimeout(ctx, s.statementTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT tool,
			SUM(total_calls), SUM(success_calls), SUM(error_calls),
			CASE WHEN SUM(response_time_count) = 0 THEN NULL
				ELSE SUM(response_time_sum)::float8 / SUM(response_time_count) END,
			MAX(p95_response_time_ms),
			SUM(cache_hit_count), SUM(cache_miss_count)
		FROM hourly_aggregations
		WHERE hour >= $1 AND hour < $2
		GROUP BY tool
		ORDER BY tool
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("store: query tool totals failed: %w", err)
	}
	defer rows.Close()

	var out []ToolTotals
	for rows.Next() {
		var t ToolTotals
		if err := rows.Scan(&t.Tool, &t.TotalCalls, &t.SuccessCalls, &t.ErrorCalls,
			&t.AvgResponseTimeMs, &t.P95ResponseTimeMs, &t.CacheHitCount, &t.CacheMissCount); err != nil {
			return nil, fmt.Errorf("store: scan tool totals failed: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ErrorTypeSummary is one row of the top-error-types breakdown.
type ErrorTypeSummary struct {
	ErrorType        string
	Count            int
	LastSeen         time.Time
	AffectedTools    []string
}

// QueryErrorSummary groups error_summary rows by error_type over the
// window, returning the union of affected tools per type.
func (s *Store) QueryErrorSummary(ctx context.Context, start, end time.Time) ([]ErrorTypeSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, s.statementTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT error_type, SUM(count), MAX(last_seen), array_agg(DISTINCT tool)
		FROM error_summary
		WHERE hour >= $1 AND hour < $2
		GROUP BY error_type
		ORDER BY SUM(count) DESC
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("store: query error summary failed: %w", err)
	}
	defer rows.Close()

	var out []ErrorTypeSummary
	for rows.Next() {
		var e ErrorTypeSummary
		var tools pq.StringArray
		if err := rows.Scan(&e.ErrorType, &e.Count, &e.LastSeen, &tools); err != nil {
			return nil, fmt.Errorf("store: scan error summary failed: %w", err)
		}
		e.AffectedTools = []string(tools)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ToolTimeline is one hourly bucket in a single tool's time series.
type ToolTimeline struct {
	Hour         time.Time
	TotalCalls   int
	SuccessCalls int
	ErrorCalls   int
}

// QueryToolTimeline returns the hourly series for a single tool over the
// window, ordered chronologically.
func (s *Store) QueryToolTimeline(ctx context.Context, tool string, start, end time.Time) ([]ToolTimeline, error) {
	ctx, cancel := context.WithTimeout(ctx, s.statementTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT hour, total_calls, success_calls, error_calls
		FROM hourly_aggregations
		WHERE tool = $1 AND hour >= $2 AND hour < $3
		ORDER BY hour
	`, tool, start, end)
	if err != nil {
		return nil, fmt.Errorf("store: query tool timeline failed: %w", err)
	}
	defer rows.Close()

	var out []ToolTimeline
	for rows.Next() {
		var t ToolTimeline
		if err := rows.Scan(&t.Hour, &t.TotalCalls, &t.SuccessCalls, &t.ErrorCalls); err != nil {
			return nil, fmt.Errorf("store: scan tool timeline failed: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// PerformanceRow is one tool's percentile/cache-rate summary for the
// performance endpoint, sourced from the daily table (it alone carries
// percentiles beyond p95).
type PerformanceRow struct {
	Tool          string
	P50, P95, P99 sql.NullInt64
	CacheHits     int
	CacheMisses   int
}

// QueryPerformance aggregates the daily table over the window, per tool.
func (s *Store) QueryPerformance(ctx context.Context, start, end time.Time) ([]PerformanceRow, error) {
	ctx, cancel := context.WithTimeout(ctx, s.statementTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT tool,
			MAX(p50_response_time_ms), MAX(p95_response_time_ms), MAX(p99_response_time_ms),
			SUM(cache_hit_count), SUM(cache_miss_count)
		FROM daily_aggregations
		WHERE date >= $1 AND date < $2
		GROUP BY tool
		ORDER BY tool
	`, start, end)
	if err != nil {
		return nil, fmt.Errorf("store: query performance failed: %w", err)
	}
	defer rows.Close()

	var out []PerformanceRow
	for rows.Next() {
		var p PerformanceRow
		if err := rows.Scan(&p.Tool, &p.P50, &p.P95, &p.P99, &p.CacheHits, &p.CacheMisses); err != nil {
			return nil, fmt.Errorf("store: scan performance failed: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
