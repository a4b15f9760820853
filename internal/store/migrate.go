package store

import "fmt"

// Migrate runs every CREATE TABLE IF NOT EXISTS statement in dependency
// order and stops at the first failure, returning it wrapped with the
// statement's index. It does not log (this package has no logger
// dependency); the caller reports the error.
func (s *Store) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id BIGSERIAL PRIMARY KEY,
			received_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			timestamp_hour TIMESTAMPTZ NOT NULL,
			version VARCHAR(20) NOT NULL,
			tool VARCHAR(50) NOT NULL,
			status VARCHAR(10) NOT NULL,
			analytics_level VARCHAR(10) NOT NULL,
			response_time_ms INT,
			service VARCHAR(20),
			cache_hit BOOLEAN,
			retry_count INT,
			country VARCHAR(2),
			parameters JSONB,
			session_id VARCHAR(16),
			sequence_number INT,
			error_type VARCHAR(100)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp_hour ON events (timestamp_hour)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tool_timestamp_hour ON events (tool, timestamp_hour)`,

		`CREATE TABLE IF NOT EXISTS hourly_aggregations (
			hour TIMESTAMPTZ NOT NULL,
			tool VARCHAR(50) NOT NULL,
			version VARCHAR(20) NOT NULL,
			total_calls INT NOT NULL DEFAULT 0,
			success_calls INT NOT NULL DEFAULT 0,
			error_calls INT NOT NULL DEFAULT 0,
			response_time_sum BIGINT NOT NULL DEFAULT 0,
			response_time_count INT NOT NULL DEFAULT 0,
			avg_response_time_ms DOUBLE PRECISION,
			p95_response_time_ms INT,
			cache_hit_count INT NOT NULL DEFAULT 0,
			cache_miss_count INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (hour, tool, version)
		)`,

		`CREATE TABLE IF NOT EXISTS daily_aggregations (
			date DATE NOT NULL,
			tool VARCHAR(50) NOT NULL,
			version VARCHAR(20) NOT NULL,
			country VARCHAR(2) NOT NULL DEFAULT '',
			total_calls INT NOT NULL DEFAULT 0,
			success_calls INT NOT NULL DEFAULT 0,
			error_calls INT NOT NULL DEFAULT 0,
			p50_response_time_ms INT,
			p95_response_time_ms INT,
			p99_response_time_ms INT,
			min_response_time_ms INT,
			max_response_time_ms INT,
			cache_hit_count INT NOT NULL DEFAULT 0,
			cache_miss_count INT NOT NULL DEFAULT 0,
			noaa_calls INT NOT NULL DEFAULT 0,
			noaa_success_calls INT NOT NULL DEFAULT 0,
			openmeteo_calls INT NOT NULL DEFAULT 0,
			openmeteo_success_calls INT NOT NULL DEFAULT 0,
			total_retries INT NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (date, tool, version, country)
		)`,

		`CREATE TABLE IF NOT EXISTS error_summary (
			hour TIMESTAMPTZ NOT NULL,
			tool VARCHAR(50) NOT NULL,
			error_type VARCHAR(100) NOT NULL,
			count INT NOT NULL DEFAULT 0,
			first_seen TIMESTAMPTZ NOT NULL,
			last_seen TIMESTAMPTZ NOT NULL,
			affected_versions TEXT[] NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (hour, tool, error_type)
		)`,
	}

	for i, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migration %d failed: %w", i, err)
		}
	}
	return nil
}
