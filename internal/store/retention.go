package store

import (
	"context"
	"fmt"
	"time"
)

// RetentionConfig names the horizon for each table; records whose primary
// time column falls outside the horizon are no longer visible to readers.
type RetentionConfig struct {
	RawEvents        time.Duration
	HourlyAggregates time.Duration
	DailyAggregates  time.Duration
	ErrorSummary     time.Duration
}

// EnforceRetention deletes every row in every table that has aged past its
// configured horizon. Intended to be invoked on a periodic schedule (the
// spec's hourly sweep), not per-request.
func (s *Store) EnforceRetention(ctx context.Context, cfg RetentionConfig) error {
	ctx, cancel := context.WithTimeout(ctx, s.statementTimeout)
	defer cancel()

	now := time.Now().UTC()

	sweeps := []struct {
		table  string
		column string
		cutoff time.Time
	}{
		{"events", "timestamp_hour", now.Add(-cfg.RawEvents)},
		{"hourly_aggregations", "hour", now.Add(-cfg.HourlyAggregates)},
		{"daily_aggregations", "date", now.Add(-cfg.DailyAggregates)},
		{"error_summary", "hour", now.Add(-cfg.ErrorSummary)},
	}

	for _, sweep := range sweeps {
		query := fmt.Sprintf("DELETE FROM %s WHERE %s < $1", sweep.table, sweep.column)
		if _, err := s.db.ExecContext(ctx, query, sweep.cutoff); err != nil {
			return fmt.Errorf("store: retention sweep of %s failed: %w", sweep.table, err)
		}
	}
	return nil
}
