package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/oceanview/analytics-collector/internal/cache"
	"github.com/oceanview/analytics-collector/internal/config"
	"github.com/oceanview/analytics-collector/internal/ingestion"
	"github.com/oceanview/analytics-collector/internal/logger"
	"github.com/oceanview/analytics-collector/internal/metrics"
	"github.com/oceanview/analytics-collector/internal/queue"
	"github.com/oceanview/analytics-collector/internal/stats"
	"github.com/oceanview/analytics-collector/internal/store"
	"github.com/oceanview/analytics-collector/internal/worker"
)

func main() {
	cfg := config.MustLoad()

	logger.Initialize(cfg.LogLevel, cfg.Mode != config.Production)
	log.Println("Starting analytics collector...")

	log.Println("connecting to database...")
	db, err := store.New(store.Config{
		Host:             cfg.DBHost,
		Port:             cfg.DBPort,
		User:             cfg.DBUser,
		Password:         cfg.DBPassword,
		DBName:           cfg.DBName,
		SSLMode:          cfg.DBSSLMode,
		PoolSize:         cfg.DBPoolSize,
		IdleTimeout:      cfg.DBIdleTimeout,
		StatementTimeout: cfg.DBStatementTimeout,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	log.Println("running migrations...")
	if err := db.Migrate(); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	log.Println("connecting to the event queue...")
	q, err := queue.New(queue.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Key:      cfg.QueueKey,
		MaxSize:  cfg.MaxQueueSize,
	})
	if err != nil {
		log.Fatalf("failed to connect to the event queue: %v", err)
	}
	defer q.Close()

	limiter := queue.NewRateLimiter(q.Client(), cfg.RateLimitPerMinute, cfg.RateLimitBurst)

	statsCache, err := cache.NewCache(cache.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Enabled:  cfg.CacheEnabled,
	})
	if err != nil {
		log.Fatalf("failed to connect to the stats cache: %v", err)
	}
	defer statsCache.Close()

	w := worker.New(q, db, worker.Config{
		BatchSize:     cfg.WorkerBatchSize,
		PollInterval:  cfg.WorkerPollInterval,
		RetryBackoff:  cfg.WorkerRetryBackoff,
		ShutdownGrace: cfg.ShutdownGraceMs,
	})

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go w.Run(workerCtx)

	scheduler := worker.NewScheduler(w, db, statsCache, worker.SchedulerConfig{
		StatsReportInterval: 60 * time.Second,
		RetentionSweepCron:  "0 * * * *",
		Retention: store.RetentionConfig{
			RawEvents:        time.Duration(cfg.RawEventsRetentionDays) * 24 * time.Hour,
			HourlyAggregates: time.Duration(cfg.HourlyAggRetentionDays) * 24 * time.Hour,
			DailyAggregates:  time.Duration(cfg.DailyAggRetentionDays) * 24 * time.Hour,
			ErrorSummary:     time.Duration(cfg.ErrorSummaryRetentionDays) * 24 * time.Hour,
		},
	})
	scheduler.Start(workerCtx)

	statsHandler := stats.NewHandler(cfg, db, statsCache)
	ingestionHandler := ingestion.NewHandler(cfg, q, db, limiter, w)
	router := ingestionHandler.Router(statsHandler)

	srv := &http.Server{
		Addr:    cfg.Host + ":" + cfg.Port,
		Handler: router,

		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Printf("API server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start HTTP server: %v", err)
		}
	}()

	var metricsSrv *http.Server
	if cfg.EnableMetrics {
		metricsHost := "0.0.0.0"
		if cfg.Mode == config.Production {
			metricsHost = "127.0.0.1"
		}
		registry := metrics.NewRegistry()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(registry))
		metricsSrv = &http.Server{
			Addr:    metricsHost + ":" + cfg.MetricsPort,
			Handler: mux,
		}
		go func() {
			log.Printf("metrics server listening on %s", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("metrics server stopped: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	log.Println("shutdown signal received, draining...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGraceMs+10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server forced to shutdown: %v", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	scheduler.Stop()
	cancelWorker()

	log.Println("shutdown complete")
}
