// Package eventmodel defines the shapes shared by every stage of the
// pipeline: the three analytics-level event variants, and the rows the
// aggregator produces for the store gateway to upsert.
package eventmodel

import "time"

// AnalyticsLevel discriminates which optional fields an event carries.
type AnalyticsLevel string

const (
	LevelMinimal  AnalyticsLevel = "minimal"
	LevelStandard AnalyticsLevel = "standard"
	LevelDetailed AnalyticsLevel = "detailed"
)

// Status is the closed enum for an event's outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Service is the closed enum of upstream services an event may report
// calling into (standard/detailed levels only).
type Service string

const (
	ServiceNOAA      Service = "noaa"
	ServiceOpenMeteo Service = "openmeteo"
)

// Tools is the closed enum of recognized tool identifiers. Kept as a slice
// (rather than a Go-level enum type) because the set is expected to grow
// without a code change to every call site that checks membership.
var Tools = []string{
	"get_forecast",
	"get_alerts",
	"get_current_conditions",
	"get_historical",
	"geocode_location",
}

// IsValidTool reports whether tool is in the closed set.
func IsValidTool(tool string) bool {
	for _, t := range Tools {
		if t == tool {
			return true
		}
	}
	return false
}

// Event is the normalized, typed form of a single validated submission. All
// three analytics levels are represented by one struct with pointer fields
// for anything not common to every level — the validator is responsible for
// only populating fields appropriate to Level, and for already having
// rejected anything that shouldn't be present.
type Event struct {
	Version        string
	Tool           string
	Status         Status
	TimestampHour  time.Time
	Level          AnalyticsLevel

	// standard/detailed
	ResponseTimeMs *int
	Service        *Service
	CacheHit       *bool
	RetryCount     *int
	Country        *string
	ErrorType      *string

	// detailed only
	Parameters     map[string]interface{}
	SessionID      *string
	SequenceNumber *int
}

// HourlyAggregateRow is one row the aggregator proposes for
// hourly_aggregations, keyed by (Hour, Tool, Version).
type HourlyAggregateRow struct {
	Hour        time.Time
	Tool        string
	Version     string
	TotalCalls  int
	SuccessCalls int
	ErrorCalls  int
	ResponseTimeSum int64
	ResponseTimeCount int

	ResponseTimes []int // batch sample feeding p95, same as DailyAggregateRow

	CacheHits   int
	CacheMisses int
}

// DailyAggregateRow is one row the aggregator proposes for
// daily_aggregations, keyed by (Date, Tool, Version, Country).
type DailyAggregateRow struct {
	Date    time.Time
	Tool    string
	Version string
	Country string

	TotalCalls   int
	SuccessCalls int
	ErrorCalls   int

	ResponseTimes []int // batch sample feeding p50/p95/p99 + min/max

	CacheHits   int
	CacheMisses int

	ServiceCalls      map[Service]int
	ServiceSuccesses  map[Service]int

	TotalRetries int
}

// ErrorSummaryRow is one row the aggregator proposes for error_summary,
// keyed by (Hour, Tool, ErrorType).
type ErrorSummaryRow struct {
	Hour             time.Time
	Tool             string
	ErrorType        string
	Count            int
	FirstSeen        time.Time
	LastSeen         time.Time
	AffectedVersions []string
}
