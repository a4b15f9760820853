// Package store wraps the PostgreSQL connection pool and every typed
// operation over the raw events and aggregate tables.
package store

import (
	"database/sql"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

// Config holds database connection configuration.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	PoolSize           int
	IdleTimeout        time.Duration
	StatementTimeout   time.Duration
}

// Store wraps *sql.DB with the time-series operations the worker,
// aggregator hand-off, and stats reader need.
type Store struct {
	db               *sql.DB
	statementTimeout time.Duration
}

var hostnameRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9\-\.]{0,253}[a-zA-Z0-9])?$`)
var identRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateConfig guards against connection-string injection by constraining
// every field that gets interpolated into the DSN to a safe character set
// before it ever reaches fmt.Sprintf.
func validateConfig(cfg Config) error {
	if cfg.Host == "" {
		return fmt.Errorf("store: host cannot be empty")
	}
	if net.ParseIP(cfg.Host) == nil && !hostnameRegex.MatchString(cfg.Host) {
		return fmt.Errorf("store: invalid host: %s", cfg.Host)
	}

	if cfg.Port == "" {
		return fmt.Errorf("store: port cannot be empty")
	}
	port, err := strconv.Atoi(cfg.Port)
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("store: invalid port: %s", cfg.Port)
	}

	if cfg.User == "" || !identRegex.MatchString(cfg.User) {
		return fmt.Errorf("store: invalid user: %s", cfg.User)
	}
	if cfg.DBName == "" || !identRegex.MatchString(cfg.DBName) {
		return fmt.Errorf("store: invalid database name: %s", cfg.DBName)
	}

	validSSLModes := []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	if cfg.SSLMode != "" {
		found := false
		for _, m := range validSSLModes {
			if cfg.SSLMode == m {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("store: invalid SSL mode: %s", cfg.SSLMode)
		}
	}
	return nil
}

// New opens and pings a connection pool, after validating cfg.
func New(cfg Config) (*Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("store: invalid configuration: %w", err)
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, sslMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("store: failed to open connection: %w", err)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize / 2)
	db.SetConnMaxLifetime(5 * time.Minute)
	idleTimeout := cfg.IdleTimeout
	if idleTimeout <= 0 {
		idleTimeout = time.Minute
	}
	db.SetConnMaxIdleTime(idleTimeout)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: failed to ping database: %w", err)
	}

	stmtTimeout := cfg.StatementTimeout
	if stmtTimeout <= 0 {
		stmtTimeout = 10 * time.Second
	}

	return &Store{db: db, statementTimeout: stmtTimeout}, nil
}

// NewForTesting builds a Store from an already-open *sql.DB (typically a
// sqlmock connection) — test-only dependency injection, never for
// production use.
func NewForTesting(db *sql.DB) *Store {
	return &Store{db: db, statementTimeout: 10 * time.Second}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Ping() error {
	return s.db.Ping()
}

// placeholders renders "$start, ..., $start+count-1" for a multi-row INSERT.
func placeholders(start, count int) string {
	parts := make([]string, count)
	for i := 0; i < count; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
