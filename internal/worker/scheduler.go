package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/oceanview/analytics-collector/internal/cache"
	"github.com/oceanview/analytics-collector/internal/logger"
	"github.com/oceanview/analytics-collector/internal/metrics"
	"github.com/oceanview/analytics-collector/internal/store"
)

// SchedulerConfig tunes the periodic jobs that run alongside the poll loop.
type SchedulerConfig struct {
	StatsReportInterval time.Duration
	RetentionSweepCron  string
	RetentionLockTTL    time.Duration
	Retention           store.RetentionConfig
}

// Scheduler runs the stats reporter tick and the hourly retention sweep. The
// sweep takes a Redis lock first, since every replica's cron fires at the
// same wall-clock minute and only one of them should run the deletes.
type Scheduler struct {
	worker *Worker
	store  *store.Store
	cache  *cache.Cache
	cfg    SchedulerConfig
	cron   *cron.Cron
	stop   chan struct{}
}

func NewScheduler(w *Worker, s *store.Store, c *cache.Cache, cfg SchedulerConfig) *Scheduler {
	if cfg.StatsReportInterval <= 0 {
		cfg.StatsReportInterval = 60 * time.Second
	}
	if cfg.RetentionSweepCron == "" {
		cfg.RetentionSweepCron = "0 * * * *"
	}
	if cfg.RetentionLockTTL <= 0 {
		cfg.RetentionLockTTL = 10 * time.Minute
	}
	return &Scheduler{
		worker: w,
		store:  s,
		cache:  c,
		cfg:    cfg,
		cron:   cron.New(),
		stop:   make(chan struct{}),
	}
}

// Start launches the stats reporter goroutine and registers the retention
// sweep with the cron scheduler. It returns once both are running.
func (s *Scheduler) Start(ctx context.Context) {
	go s.reportLoop(ctx)

	if _, err := s.cron.AddFunc(s.cfg.RetentionSweepCron, func() {
		s.runRetentionSweep(ctx)
	}); err != nil {
		logger.Worker().Error().Err(err).Msg("failed to register retention sweep, it will never run")
	}
	s.cron.Start()
}

// Stop halts the cron scheduler and the stats reporter goroutine.
func (s *Scheduler) Stop() {
	close(s.stop)
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

func (s *Scheduler) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.StatsReportInterval)
	defer ticker.Stop()

	log := logger.Worker()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			snap := s.worker.Snapshot()
			depth, err := s.worker.queue.Depth(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("stats report: queue depth unavailable")
			}
			log.Info().
				Int64("in_flight", snap.InFlight).
				Int64("total_processed", snap.TotalProcessed).
				Int64("error_count", snap.ErrorCount).
				Int64("queue_depth", depth).
				Msg("worker stats report")
			metrics.QueueDepth.Set(float64(depth))

			if s.store != nil {
				dbStats := s.store.DB().Stats()
				metrics.DatabaseConnectionPool.WithLabelValues("total").Set(float64(dbStats.OpenConnections))
				metrics.DatabaseConnectionPool.WithLabelValues("idle").Set(float64(dbStats.Idle))
				metrics.DatabaseConnectionPool.WithLabelValues("waiting").Set(float64(dbStats.WaitCount))
			}
		}
	}
}

func (s *Scheduler) runRetentionSweep(ctx context.Context) {
	log := logger.Worker()
	if s.cache != nil && s.cache.IsEnabled() {
		acquired, err := s.cache.SetNX(ctx, cache.RetentionLockKey(), "1", s.cfg.RetentionLockTTL)
		if err != nil {
			log.Error().Err(err).Msg("retention sweep: lock acquisition failed, skipping this tick")
			return
		}
		if !acquired {
			log.Debug().Msg("retention sweep: another instance holds the lock")
			return
		}
	}

	sweepCtx, cancel := context.WithTimeout(ctx, s.cfg.RetentionLockTTL)
	defer cancel()
	if err := s.store.EnforceRetention(sweepCtx, s.cfg.Retention); err != nil {
		log.Error().Err(err).Msg("retention sweep failed")
		return
	}
	if s.cache != nil && s.cache.IsEnabled() {
		if err := s.cache.DeletePattern(sweepCtx, cache.StatsPattern()); err != nil {
			log.Warn().Err(err).Msg("retention sweep: failed to invalidate cached stats")
		}
	}
	log.Info().Msg("retention sweep completed")
}
