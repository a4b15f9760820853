// Package stats implements the read-only HTTP endpoints over the aggregate
// tables, each wrapped in a short-TTL read-through cache.
package stats

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var periodPattern = regexp.MustCompile(`^(\d+)([hd])$`)

// Period is a resolved, bounded time window ending now.
type Period struct {
	Raw   string
	Start time.Time
	End   time.Time
}

// ParsePeriod validates period against the `^\d+[hd]$` shape and the bound
// each unit carries (hours: 1-720, days: 1-365) before any query is
// planned — an unbounded value here is a direct DoS vector against the
// aggregate tables.
func ParsePeriod(raw string, now time.Time) (Period, error) {
	m := periodPattern.FindStringSubmatch(raw)
	if m == nil {
		return Period{}, fmt.Errorf("period must match ^\\d+[hd]$, got %q", raw)
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return Period{}, fmt.Errorf("period integer portion is invalid: %w", err)
	}

	var duration time.Duration
	switch m[2] {
	case "h":
		if n < 1 || n > 720 {
			return Period{}, fmt.Errorf("hour period must be between 1 and 720, got %d", n)
		}
		duration = time.Duration(n) * time.Hour
	case "d":
		if n < 1 || n > 365 {
			return Period{}, fmt.Errorf("day period must be between 1 and 365, got %d", n)
		}
		duration = time.Duration(n) * 24 * time.Hour
	}

	end := now.UTC()
	return Period{Raw: raw, Start: end.Add(-duration), End: end}, nil
}
