package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oceanview/analytics-collector/internal/eventmodel"
)

// InsertEvents writes every event in the batch inside a single transaction:
// either the whole batch lands, or none of it does, matching the worker's
// retry-the-whole-batch-on-failure contract.
func (s *Store) InsertEvents(ctx context.Context, events []eventmodel.Event) error {
	if len(events) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.statementTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx failed: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (
			timestamp_hour, version, tool, status, analytics_level,
			response_time_ms, service, cache_hit, retry_count, country,
			parameters, session_id, sequence_number, error_type
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`)
	if err != nil {
		return fmt.Errorf("store: prepare insert failed: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		var paramsJSON []byte
		if e.Parameters != nil {
			paramsJSON, err = json.Marshal(e.Parameters)
			if err != nil {
				return fmt.Errorf("store: failed to marshal parameters: %w", err)
			}
		}

		_, err = stmt.ExecContext(ctx,
			e.TimestampHour, e.Version, e.Tool, string(e.Status), string(e.Level),
			nullableInt(e.ResponseTimeMs), nullableService(e.Service), nullableBool(e.CacheHit),
			nullableInt(e.RetryCount), nullableStr(e.Country),
			nullableJSON(paramsJSON), nullableStr(e.SessionID), nullableInt(e.SequenceNumber),
			nullableStr(e.ErrorType),
		)
		if err != nil {
			return fmt.Errorf("store: insert event failed: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit failed: %w", err)
	}
	return nil
}

func nullableInt(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullableBool(p *bool) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullableStr(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullableService(p *eventmodel.Service) interface{} {
	if p == nil {
		return nil
	}
	return string(*p)
}

func nullableJSON(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}
