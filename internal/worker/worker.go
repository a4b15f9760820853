// Package worker implements the batching worker loop: poll the queue,
// persist raw events, update aggregates, and drain cleanly on shutdown.
package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/oceanview/analytics-collector/internal/aggregator"
	"github.com/oceanview/analytics-collector/internal/eventmodel"
	"github.com/oceanview/analytics-collector/internal/logger"
	"github.com/oceanview/analytics-collector/internal/metrics"
	"github.com/oceanview/analytics-collector/internal/queue"
	"github.com/oceanview/analytics-collector/internal/store"
)

// Config tunes the poll/batch/backoff/drain timings.
type Config struct {
	BatchSize      int
	PollInterval   time.Duration
	RetryBackoff   time.Duration
	ShutdownGrace  time.Duration
}

// Worker is the single state machine draining the durable queue. Its
// counters are atomics, not mutex-guarded fields, so the stats reporter and
// the /v1/status handler can read them without contending with the hot
// loop.
type Worker struct {
	queue *queue.Queue
	store *store.Store
	cfg   Config

	inFlight            atomic.Int64
	totalProcessed      atomic.Int64
	errorCount          atomic.Int64
	aggregateErrorCount atomic.Int64
	lastProcessedAt     atomic.Int64 // unix seconds
	shuttingDown        atomic.Bool
}

func New(q *queue.Queue, s *store.Store, cfg Config) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Second
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}
	return &Worker{queue: q, store: s, cfg: cfg}
}

// Stats is a snapshot of the worker's atomic counters, used by both the
// periodic stats reporter and the /v1/status handler.
type Stats struct {
	InFlight            int64
	TotalProcessed      int64
	ErrorCount          int64
	AggregateErrorCount int64
	LastProcessedAt     time.Time
}

func (w *Worker) Snapshot() Stats {
	lastAt := w.lastProcessedAt.Load()
	var lastTime time.Time
	if lastAt != 0 {
		lastTime = time.Unix(lastAt, 0).UTC()
	}
	return Stats{
		InFlight:            w.inFlight.Load(),
		TotalProcessed:      w.totalProcessed.Load(),
		ErrorCount:          w.errorCount.Load(),
		AggregateErrorCount: w.aggregateErrorCount.Load(),
		LastProcessedAt:     lastTime,
	}
}

// Run drives the Idle -> Polling -> Processing -> Idle loop until ctx is
// cancelled, at which point it transitions into Draining and returns only
// after any in-flight batch has finished or the shutdown grace period has
// elapsed.
func (w *Worker) Run(ctx context.Context) {
	log := logger.Worker()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.shuttingDown.Store(true)
			w.drain(log)
			return
		case <-ticker.C:
			w.pollOnce(ctx, log)
		}
	}
}

func (w *Worker) pollOnce(ctx context.Context, log *zerolog.Logger) {
	raw, err := w.queue.PopBatch(ctx, w.cfg.BatchSize)
	if err != nil {
		metrics.WorkerErrorsTotal.WithLabelValues("dequeue").Inc()
		log.Error().Err(err).Msg("dequeue failed")
		return
	}
	if len(raw) == 0 {
		return
	}
	metrics.QueueOperationsTotal.WithLabelValues("pop").Inc()

	if w.shuttingDown.Load() {
		w.requeue(ctx, raw, log)
		return
	}

	w.processBatch(ctx, raw, log)
}

func (w *Worker) drain(log *zerolog.Logger) {
	deadline := time.Now().Add(w.cfg.ShutdownGrace)
	for w.inFlight.Load() > 0 && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if w.inFlight.Load() > 0 {
		log.Warn().Msg("shutdown grace period elapsed with a batch still in flight")
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownGrace)
	defer cancel()
	raw, err := w.queue.PopBatch(ctx, w.cfg.BatchSize)
	if err == nil && len(raw) > 0 {
		w.requeue(ctx, raw, log)
	}
}

func (w *Worker) processBatch(ctx context.Context, raw []json.RawMessage, log *zerolog.Logger) {
	w.inFlight.Add(1)
	defer w.inFlight.Add(-1)

	events, malformed := decodeEvents(raw)
	if malformed > 0 {
		log.Warn().Int("malformed", malformed).Msg("dropped malformed queue entries")
	}
	if len(events) == 0 {
		return
	}
	metrics.WorkerBatchSize.Observe(float64(len(events)))

	if err := timedExec(ctx, "insert_events", "events", func(ctx context.Context) error {
		return w.store.InsertEvents(ctx, events)
	}); err != nil {
		w.errorCount.Add(1)
		metrics.WorkerErrorsTotal.WithLabelValues("database_insert").Inc()
		log.Error().Err(err).Int("batch_size", len(events)).Msg("insert failed, re-queueing batch")
		time.Sleep(w.cfg.RetryBackoff)
		w.requeueEvents(ctx, events, log)
		return
	}
	for _, ev := range events {
		metrics.EventsProcessedTotal.WithLabelValues(string(ev.Status)).Inc()
	}

	hourly, daily, errSummary := aggregator.ApplyBatch(events)
	if err := timedExec(ctx, "upsert_hourly", "hourly_aggregations", func(ctx context.Context) error {
		return w.store.UpsertHourlyAggregates(ctx, hourly)
	}); err != nil {
		w.aggregateErrorCount.Add(1)
		metrics.WorkerErrorsTotal.WithLabelValues("aggregate_update").Inc()
		log.Error().Err(err).Msg("hourly aggregate upsert failed, raw events already persisted")
	}
	if err := timedExec(ctx, "upsert_daily", "daily_aggregations", func(ctx context.Context) error {
		return w.store.UpsertDailyAggregates(ctx, daily)
	}); err != nil {
		w.aggregateErrorCount.Add(1)
		metrics.WorkerErrorsTotal.WithLabelValues("aggregate_update").Inc()
		log.Error().Err(err).Msg("daily aggregate upsert failed, raw events already persisted")
	}
	if err := timedExec(ctx, "upsert_error_summary", "error_summary", func(ctx context.Context) error {
		return w.store.UpsertErrorSummary(ctx, errSummary)
	}); err != nil {
		w.aggregateErrorCount.Add(1)
		metrics.WorkerErrorsTotal.WithLabelValues("aggregate_update").Inc()
		log.Error().Err(err).Msg("error summary upsert failed, raw events already persisted")
	}

	metrics.BatchesProcessedTotal.Inc()
	w.totalProcessed.Add(int64(len(events)))
	w.lastProcessedAt.Store(time.Now().Unix())
}

// timedExec runs op, records database_queries_total and
// database_query_duration_seconds labeled by operation/table regardless of
// outcome, and returns op's error.
func timedExec(ctx context.Context, operation, table string, op func(context.Context) error) error {
	start := time.Now()
	err := op(ctx)
	metrics.DatabaseQueryDurationSeconds.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	metrics.DatabaseQueriesTotal.WithLabelValues(operation, table).Inc()
	return err
}

func (w *Worker) requeue(ctx context.Context, raw []json.RawMessage, log *zerolog.Logger) {
	entries := make([]interface{}, len(raw))
	for i, r := range raw {
		entries[i] = r
	}
	if err := w.queue.PushBatch(ctx, entries); err != nil {
		log.Error().Err(err).Msg("failed to re-queue undelivered batch during shutdown")
	}
}

func (w *Worker) requeueEvents(ctx context.Context, events []eventmodel.Event, log *zerolog.Logger) {
	entries := make([]interface{}, len(events))
	for i, e := range events {
		entries[i] = e
	}
	if err := w.queue.PushBatch(ctx, entries); err != nil {
		log.Error().Err(err).Msg("failed to re-queue batch after insert failure")
	}
}

func decodeEvents(raw []json.RawMessage) ([]eventmodel.Event, int) {
	out := make([]eventmodel.Event, 0, len(raw))
	malformed := 0
	for _, r := range raw {
		var ev eventmodel.Event
		if err := json.Unmarshal(r, &ev); err != nil {
			malformed++
			continue
		}
		out = append(out, ev)
	}
	return out, malformed
}
