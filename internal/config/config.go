// Package config loads process configuration from the environment into a
// single immutable value, built once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode gates environment-dependent defaults.
type Mode string

const (
	Development Mode = "development"
	Production  Mode = "production"
	Test        Mode = "test"
)

// Config is the fully resolved, immutable process configuration. It is built
// once by Load and passed by pointer into every component constructor.
type Config struct {
	Mode Mode

	Host string
	Port string

	LogLevel string

	DBHost            string
	DBPort            string
	DBUser            string
	DBPassword        string
	DBName            string
	DBSSLMode         string
	DBPoolSize        int
	DBIdleTimeout     time.Duration
	DBStatementTimeout time.Duration

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	QueueKey      string

	MaxQueueSize         int
	WorkerPollInterval   time.Duration
	WorkerBatchSize      int
	WorkerRetryBackoff   time.Duration
	ShutdownGraceMs      time.Duration

	APIBodyLimitKB     int
	RateLimitPerMinute int
	RateLimitBurst     int
	MaxBatchSize       int

	CacheTTLSeconds int
	CacheEnabled    bool

	RawEventsRetentionDays    int
	HourlyAggRetentionDays    int
	DailyAggRetentionDays     int
	ErrorSummaryRetentionDays int

	TrustProxy       bool
	CORSOrigins      []string
	EnableMetrics    bool
	MetricsPort      string
}

// Load reads every recognized environment variable and returns a validated
// Config, or the first error encountered. Required variables that are
// missing, and integers that fail to parse, are both treated as fatal —
// never silently defaulted.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Mode = Mode(firstNonEmpty(os.Getenv("MODE"), os.Getenv("NODE_ENV"), string(Development)))
	if cfg.Mode != Development && cfg.Mode != Production && cfg.Mode != Test {
		cfg.Mode = Development
	}

	cfg.Host = getEnv("HOST", defaultHost(cfg.Mode))
	cfg.Port = getEnv("PORT", "8080")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	cfg.DBHost = getEnv("DB_HOST", "localhost")
	cfg.DBPort = getEnv("DB_PORT", "5432")
	cfg.DBUser = getEnv("DB_USER", "analytics")
	cfg.DBName = getEnv("DB_NAME", "analytics")
	cfg.DBSSLMode = getEnv("DB_SSL_MODE", "disable")

	dbPassword, ok := os.LookupEnv("DB_PASSWORD")
	if !ok || dbPassword == "" {
		if cfg.Mode == Production {
			return nil, fmt.Errorf("config: DB_PASSWORD is required in production mode")
		}
	}
	cfg.DBPassword = dbPassword

	var err error
	if cfg.DBPoolSize, err = getEnvInt("DB_POOL_SIZE", 10); err != nil {
		return nil, err
	}
	var idleTimeoutSec int
	if idleTimeoutSec, err = getEnvInt("DB_IDLE_TIMEOUT_SECONDS", 60); err != nil {
		return nil, err
	}
	cfg.DBIdleTimeout = time.Duration(idleTimeoutSec) * time.Second
	var stmtTimeoutSec int
	if stmtTimeoutSec, err = getEnvInt("DB_STATEMENT_TIMEOUT_SECONDS", 10); err != nil {
		return nil, err
	}
	cfg.DBStatementTimeout = time.Duration(stmtTimeoutSec) * time.Second

	cfg.RedisHost = getEnv("REDIS_HOST", "localhost")
	cfg.RedisPort = getEnv("REDIS_PORT", "6379")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	cfg.QueueKey = getEnv("QUEUE_KEY", "analytics:events:queue")

	if cfg.MaxQueueSize, err = getEnvInt("MAX_QUEUE_SIZE", 10000); err != nil {
		return nil, err
	}
	var pollMs int
	if pollMs, err = getEnvInt("WORKER_POLL_INTERVAL_MS", 1000); err != nil {
		return nil, err
	}
	cfg.WorkerPollInterval = time.Duration(pollMs) * time.Millisecond
	if cfg.WorkerBatchSize, err = getEnvInt("WORKER_BATCH_SIZE", 50); err != nil {
		return nil, err
	}
	var backoffSec int
	if backoffSec, err = getEnvInt("WORKER_RETRY_BACKOFF_SECONDS", 5); err != nil {
		return nil, err
	}
	cfg.WorkerRetryBackoff = time.Duration(backoffSec) * time.Second
	var graceMs int
	if graceMs, err = getEnvInt("SHUTDOWN_GRACE_MS", 30000); err != nil {
		return nil, err
	}
	cfg.ShutdownGraceMs = time.Duration(graceMs) * time.Millisecond

	if cfg.APIBodyLimitKB, err = getEnvInt("API_BODY_LIMIT_KB", 100); err != nil {
		return nil, err
	}
	if cfg.RateLimitPerMinute, err = getEnvInt("RATE_LIMIT_PER_MINUTE", 60); err != nil {
		return nil, err
	}
	if cfg.RateLimitBurst, err = getEnvInt("RATE_LIMIT_BURST", 10); err != nil {
		return nil, err
	}
	if cfg.MaxBatchSize, err = getEnvInt("MAX_BATCH_SIZE", 100); err != nil {
		return nil, err
	}

	if cfg.CacheTTLSeconds, err = getEnvInt("CACHE_TTL_SECONDS", 300); err != nil {
		return nil, err
	}
	cfg.CacheEnabled = getEnvBool("CACHE_ENABLED", true)

	if cfg.RawEventsRetentionDays, err = getEnvInt("RAW_EVENTS_RETENTION_DAYS", 90); err != nil {
		return nil, err
	}
	if cfg.HourlyAggRetentionDays, err = getEnvInt("HOURLY_AGGREGATIONS_RETENTION_DAYS", 30); err != nil {
		return nil, err
	}
	if cfg.DailyAggRetentionDays, err = getEnvInt("DAILY_AGGREGATIONS_RETENTION_DAYS", 730); err != nil {
		return nil, err
	}
	if cfg.ErrorSummaryRetentionDays, err = getEnvInt("ERROR_SUMMARY_RETENTION_DAYS", 90); err != nil {
		return nil, err
	}

	cfg.TrustProxy = getEnvBool("TRUST_PROXY", false)
	origins := getEnv("CORS_ORIGIN", "")
	if origins == "" {
		cfg.CORSOrigins = nil
	} else {
		for _, o := range strings.Split(origins, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}
	if cfg.Mode == Production {
		if cfg.TrustProxy {
			return nil, fmt.Errorf("config: TRUST_PROXY must not be enabled in production unless a proxy is verified to strip client-forged headers")
		}
		for _, o := range cfg.CORSOrigins {
			if o == "*" {
				return nil, fmt.Errorf("config: CORS_ORIGIN must not be '*' in production mode")
			}
		}
		if len(cfg.CORSOrigins) == 0 {
			return nil, fmt.Errorf("config: CORS_ORIGIN is required in production mode")
		}
		if cfg.QueueKey == "" {
			return nil, fmt.Errorf("config: QUEUE_KEY must not be empty in production mode")
		}
	}

	cfg.EnableMetrics = getEnvBool("ENABLE_METRICS", true)
	cfg.MetricsPort = getEnv("METRICS_PORT", "9090")

	return cfg, nil
}

// MustLoad wraps Load and terminates the process on any configuration error,
// matching the fail-fast startup idiom used throughout this service.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config: fatal:", err)
		os.Exit(1)
	}
	return cfg
}

func defaultHost(mode Mode) string {
	if mode == Production {
		return "127.0.0.1"
	}
	return "0.0.0.0"
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s must be an integer, got %q: %w", key, v, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return defaultValue
	}
	return v == "true" || v == "1" || v == "yes"
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
