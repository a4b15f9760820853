// Package logger configures the process-wide structured logger and hands out
// component-scoped sub-loggers.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Global logger instance
var (
	Log zerolog.Logger
)

// redactedFields lists the keys whose values SafeField replaces with a fixed
// marker, regardless of log level, rather than erroring, so a single careless
// call site can't take down logging. Fields not routed through SafeField are
// not filtered.
var redactedFields = map[string]struct{}{
	"ip":             {},
	"remote_addr":    {},
	"forwarded_for":  {},
	"x_forwarded_for": {},
	"body":           {},
	"latitude":       {},
	"longitude":      {},
	"lat":            {},
	"lon":            {},
	"location":       {},
	"user_id":        {},
	"email":          {},
	"name":           {},
	"address":        {},
	"phone":          {},
	"city":           {},
	"zip":            {},
	"postal":         {},
}

// Initialize sets up the global logger with configuration. pretty selects
// console-formatted output for local development; production runs emit one
// JSON object per line.
func Initialize(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	if pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	}

	Log = log.With().
		Str("service", "analytics-collector").
		Logger()

	Log.Info().
		Str("level", logLevel.String()).
		Bool("pretty", pretty).
		Msg("logger initialized")
}

// GetLogger returns the global logger instance.
func GetLogger() *zerolog.Logger {
	return &Log
}

// SafeField returns (key, value) unless key is on the redaction list, in
// which case the value is replaced with a fixed marker. Call sites that
// build log fields from request-derived maps should route every field
// through this instead of trusting the caller never sends a PII key.
func SafeField(key, value string) (string, string) {
	if _, blocked := redactedFields[key]; blocked {
		return key, "[redacted]"
	}
	return key, value
}

// Ingestion creates a logger for the HTTP ingestion endpoint.
func Ingestion() *zerolog.Logger {
	l := Log.With().Str("component", "ingestion").Logger()
	return &l
}

// Worker creates a logger for the batching worker loop.
func Worker() *zerolog.Logger {
	l := Log.With().Str("component", "worker").Logger()
	return &l
}

// Store creates a logger for the time-series store gateway.
func Store() *zerolog.Logger {
	l := Log.With().Str("component", "store").Logger()
	return &l
}

// Queue creates a logger for the durable queue gateway.
func Queue() *zerolog.Logger {
	l := Log.With().Str("component", "queue").Logger()
	return &l
}

// Stats creates a logger for the stats reader.
func Stats() *zerolog.Logger {
	l := Log.With().Str("component", "stats").Logger()
	return &l
}

// Aggregator creates a logger for the aggregation pipeline.
func Aggregator() *zerolog.Logger {
	l := Log.With().Str("component", "aggregator").Logger()
	return &l
}
