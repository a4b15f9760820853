package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"github.com/oceanview/analytics-collector/internal/eventmodel"
)

// UpsertHourlyAggregates applies the additive/min/max UPSERT rules for each
// row. Rows are applied in lexicographic key order to reduce deadlock
// probability under concurrent workers writing overlapping keys.
func (s *Store) UpsertHourlyAggregates(ctx context.Context, rows []eventmodel.HourlyAggregateRow) error {
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		return hourlyKey(rows[i]) < hourlyKey(rows[j])
	})

	ctx, cancel := context.WithTimeout(ctx, s.statementTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx failed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hourly_aggregations (
			hour, tool, version, total_calls, success_calls, error_calls,
			response_time_sum, response_time_count, avg_response_time_ms,
			p95_response_time_ms, cache_hit_count, cache_miss_count, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())
		ON CONFLICT (hour, tool, version) DO UPDATE SET
			total_calls = hourly_aggregations.total_calls + excluded.total_calls,
			success_calls = hourly_aggregations.success_calls + excluded.success_calls,
			error_calls = hourly_aggregations.error_calls + excluded.error_calls,
			response_time_sum = hourly_aggregations.response_time_sum + excluded.response_time_sum,
			response_time_count = hourly_aggregations.response_time_count + excluded.response_time_count,
			avg_response_time_ms = CASE
				WHEN hourly_aggregations.response_time_count + excluded.response_time_count = 0 THEN NULL
				ELSE (hourly_aggregations.response_time_sum + excluded.response_time_sum)::float8
					/ (hourly_aggregations.response_time_count + excluded.response_time_count)
			END,
			p95_response_time_ms = excluded.p95_response_time_ms,
			cache_hit_count = hourly_aggregations.cache_hit_count + excluded.cache_hit_count,
			cache_miss_count = hourly_aggregations.cache_miss_count + excluded.cache_miss_count,
			updated_at = now()
	`)
	if err != nil {
		return fmt.Errorf("store: prepare hourly upsert failed: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		hasSample := r.ResponseTimeCount > 0
		var avg interface{}
		if hasSample {
			avg = float64(r.ResponseTimeSum) / float64(r.ResponseTimeCount)
		}
		_, _, p95, _, _ := percentiles(r.ResponseTimes)

		_, err = stmt.ExecContext(ctx, r.Hour, r.Tool, r.Version, r.TotalCalls, r.SuccessCalls, r.ErrorCalls,
			r.ResponseTimeSum, r.ResponseTimeCount, avg, nullUnless(hasSample, p95), r.CacheHits, r.CacheMisses)
		if err != nil {
			return fmt.Errorf("store: hourly upsert failed for %s/%s/%s: %w", r.Hour, r.Tool, r.Version, err)
		}
	}

	return tx.Commit()
}

func hourlyKey(r eventmodel.HourlyAggregateRow) string {
	return r.Hour.String() + "|" + r.Tool + "|" + r.Version
}

// UpsertDailyAggregates computes this batch's percentiles/min/max from
// ResponseTimes before issuing the UPSERT — the stored percentile is
// replaced (not blended) with a recomputation seeded by the incoming
// batch, per the documented recompute-on-upsert approach.
func (s *Store) UpsertDailyAggregates(ctx context.Context, rows []eventmodel.DailyAggregateRow) error {
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		return dailyKey(rows[i]) < dailyKey(rows[j])
	})

	ctx, cancel := context.WithTimeout(ctx, s.statementTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx failed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO daily_aggregations (
			date, tool, version, country, total_calls, success_calls, error_calls,
			p50_response_time_ms, p95_response_time_ms, p99_response_time_ms,
			min_response_time_ms, max_response_time_ms,
			cache_hit_count, cache_miss_count,
			noaa_calls, noaa_success_calls, openmeteo_calls, openmeteo_success_calls,
			total_retries, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19, now())
		ON CONFLICT (date, tool, version, country) DO UPDATE SET
			total_calls = daily_aggregations.total_calls + excluded.total_calls,
			success_calls = daily_aggregations.success_calls + excluded.success_calls,
			error_calls = daily_aggregations.error_calls + excluded.error_calls,
			p50_response_time_ms = excluded.p50_response_time_ms,
			p95_response_time_ms = excluded.p95_response_time_ms,
			p99_response_time_ms = excluded.p99_response_time_ms,
			min_response_time_ms = LEAST(daily_aggregations.min_response_time_ms, excluded.min_response_time_ms),
			max_response_time_ms = GREATEST(daily_aggregations.max_response_time_ms, excluded.max_response_time_ms),
			cache_hit_count = daily_aggregations.cache_hit_count + excluded.cache_hit_count,
			cache_miss_count = daily_aggregations.cache_miss_count + excluded.cache_miss_count,
			noaa_calls = daily_aggregations.noaa_calls + excluded.noaa_calls,
			noaa_success_calls = daily_aggregations.noaa_success_calls + excluded.noaa_success_calls,
			openmeteo_calls = daily_aggregations.openmeteo_calls + excluded.openmeteo_calls,
			openmeteo_success_calls = daily_aggregations.openmeteo_success_calls + excluded.openmeteo_success_calls,
			total_retries = daily_aggregations.total_retries + excluded.total_retries,
			updated_at = now()
	`)
	if err != nil {
		return fmt.Errorf("store: prepare daily upsert failed: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		p50, p95, p99, min, max := percentiles(r.ResponseTimes)
		hasSample := len(r.ResponseTimes) > 0
		noaaCalls, noaaSuccess := r.ServiceCalls[eventmodel.ServiceNOAA], r.ServiceSuccesses[eventmodel.ServiceNOAA]
		omCalls, omSuccess := r.ServiceCalls[eventmodel.ServiceOpenMeteo], r.ServiceSuccesses[eventmodel.ServiceOpenMeteo]

		_, err = stmt.ExecContext(ctx, r.Date, r.Tool, r.Version, r.Country, r.TotalCalls, r.SuccessCalls, r.ErrorCalls,
			nullUnless(hasSample, p50), nullUnless(hasSample, p95), nullUnless(hasSample, p99),
			nullUnless(hasSample, min), nullUnless(hasSample, max),
			r.CacheHits, r.CacheMisses,
			noaaCalls, noaaSuccess, omCalls, omSuccess,
			r.TotalRetries,
		)
		if err != nil {
			return fmt.Errorf("store: daily upsert failed for %s/%s/%s/%s: %w", r.Date, r.Tool, r.Version, r.Country, err)
		}
	}

	return tx.Commit()
}

func dailyKey(r eventmodel.DailyAggregateRow) string {
	return r.Date.String() + "|" + r.Tool + "|" + r.Version + "|" + r.Country
}

func nullUnless(ok bool, v int) interface{} {
	if !ok {
		return nil
	}
	return v
}

// percentiles computes p50/p95/p99 by linear interpolation between the two
// nearest ranks, plus min/max, over an unsorted sample.
func percentiles(sample []int) (p50, p95, p99, min, max int) {
	if len(sample) == 0 {
		return 0, 0, 0, 0, 0
	}
	sorted := append([]int(nil), sample...)
	sort.Ints(sorted)
	min, max = sorted[0], sorted[len(sorted)-1]
	p50 = interpolatedRank(sorted, 0.50)
	p95 = interpolatedRank(sorted, 0.95)
	p99 = interpolatedRank(sorted, 0.99)
	return
}

func interpolatedRank(sorted []int, q float64) int {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(pos)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}
	frac := pos - float64(lo)
	return sorted[lo] + int(frac*float64(sorted[hi]-sorted[lo]))
}

// UpsertErrorSummary applies count-add, min(first_seen), max(last_seen),
// and set-union(affected_versions) UPSERT semantics.
func (s *Store) UpsertErrorSummary(ctx context.Context, rows []eventmodel.ErrorSummaryRow) error {
	if len(rows) == 0 {
		return nil
	}
	sort.Slice(rows, func(i, j int) bool {
		return errorKey(rows[i]) < errorKey(rows[j])
	})

	ctx, cancel := context.WithTimeout(ctx, s.statementTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx failed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO error_summary (hour, tool, error_type, count, first_seen, last_seen, affected_versions, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7, now())
		ON CONFLICT (hour, tool, error_type) DO UPDATE SET
			count = error_summary.count + excluded.count,
			first_seen = LEAST(error_summary.first_seen, excluded.first_seen),
			last_seen = GREATEST(error_summary.last_seen, excluded.last_seen),
			affected_versions = ARRAY(
				SELECT DISTINCT unnest(error_summary.affected_versions || excluded.affected_versions)
			),
			updated_at = now()
	`)
	if err != nil {
		return fmt.Errorf("store: prepare error summary upsert failed: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err = stmt.ExecContext(ctx, r.Hour, r.Tool, r.ErrorType, r.Count, r.FirstSeen, r.LastSeen, pq.Array(r.AffectedVersions))
		if err != nil {
			return fmt.Errorf("store: error summary upsert failed for %s/%s/%s: %w", r.Hour, r.Tool, r.ErrorType, err)
		}
	}

	return tx.Commit()
}

func errorKey(r eventmodel.ErrorSummaryRow) string {
	return r.Hour.String() + "|" + r.Tool + "|" + r.ErrorType
}
