// Package cache provides the Redis-backed read-through cache shared by the
// stats reader and the distributed lock guarding the retention sweep.
//
// Key Naming Convention:
//   - Format: {prefix}:{resource}:{identifier}
//   - Example: stats:tool_totals:24h
//   - Example: stats:timeline:get_forecast:7d
package cache

import "fmt"

// Key prefixes for the two resource families this service caches.
const (
	PrefixStats = "stats"
	PrefixLock  = "lock"
)

// ToolTotalsKey caches the aggregate call/success/error counts over period.
func ToolTotalsKey(period string) string {
	return fmt.Sprintf("%s:tool_totals:%s", PrefixStats, period)
}

// ErrorSummaryKey caches the error-type breakdown over period.
func ErrorSummaryKey(period string) string {
	return fmt.Sprintf("%s:error_summary:%s", PrefixStats, period)
}

// ToolTimelineKey caches one tool's hourly call timeline over period.
func ToolTimelineKey(tool, period string) string {
	return fmt.Sprintf("%s:timeline:%s:%s", PrefixStats, tool, period)
}

// PerformanceKey caches the response-time percentile rows over period.
func PerformanceKey(period string) string {
	return fmt.Sprintf("%s:performance:%s", PrefixStats, period)
}

// StatsPattern matches every cached stats response, for invalidation after
// a retention sweep changes what a period query would return.
func StatsPattern() string {
	return fmt.Sprintf("%s:*", PrefixStats)
}

// RetentionLockKey is the SetNX key that lets only one worker instance run
// the retention sweep in a given run, even though every instance's cron
// schedule fires at the same wall-clock minute.
func RetentionLockKey() string {
	return fmt.Sprintf("%s:retention_sweep", PrefixLock)
}
