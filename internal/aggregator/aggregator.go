// Package aggregator contains the pure, deterministic functions that turn a
// batch of validated events into the rowsets the store gateway upserts.
// Nothing here performs I/O — the worker owns calling the store with these
// rows.
package aggregator

import (
	"sort"
	"time"

	"github.com/oceanview/analytics-collector/internal/eventmodel"
)

// ApplyBatch groups batch (in its queued order) into hourly, daily, and
// error-summary rows using the grouping keys and derived metrics named by
// the aggregation rules. Returned rows are not yet sorted into UPSERT
// order — the store gateway does that immediately before issuing SQL, so
// that aggregation logic here stays independent of storage concerns.
func ApplyBatch(batch []eventmodel.Event) (hourly []eventmodel.HourlyAggregateRow, daily []eventmodel.DailyAggregateRow, errSummary []eventmodel.ErrorSummaryRow) {
	hourlyGroups := make(map[string]*eventmodel.HourlyAggregateRow)
	dailyGroups := make(map[string]*eventmodel.DailyAggregateRow)
	errorGroups := make(map[string]*eventmodel.ErrorSummaryRow)

	var hourlyOrder, dailyOrder, errorOrder []string

	for _, ev := range batch {
		hKey := hourlyGroupKey(ev)
		hRow, ok := hourlyGroups[hKey]
		if !ok {
			hRow = &eventmodel.HourlyAggregateRow{Hour: ev.TimestampHour, Tool: ev.Tool, Version: ev.Version}
			hourlyGroups[hKey] = hRow
			hourlyOrder = append(hourlyOrder, hKey)
		}
		applyToHourly(hRow, ev)

		country := ""
		if ev.Country != nil {
			country = *ev.Country
		}
		dKey := dailyGroupKey(ev, country)
		dRow, ok := dailyGroups[dKey]
		if !ok {
			dRow = &eventmodel.DailyAggregateRow{
				Date: ev.TimestampHour.Truncate(24 * time.Hour), Tool: ev.Tool, Version: ev.Version, Country: country,
				ServiceCalls: make(map[eventmodel.Service]int), ServiceSuccesses: make(map[eventmodel.Service]int),
			}
			dailyGroups[dKey] = dRow
			dailyOrder = append(dailyOrder, dKey)
		}
		applyToDaily(dRow, ev)

		if ev.Status == eventmodel.StatusError && ev.ErrorType != nil && *ev.ErrorType != "" {
			eKey := errorGroupKey(ev)
			eRow, ok := errorGroups[eKey]
			if !ok {
				eRow = &eventmodel.ErrorSummaryRow{
					Hour: ev.TimestampHour, Tool: ev.Tool, ErrorType: *ev.ErrorType,
					FirstSeen: ev.TimestampHour, LastSeen: ev.TimestampHour,
				}
				errorGroups[eKey] = eRow
				errorOrder = append(errorOrder, eKey)
			}
			applyToErrorSummary(eRow, ev)
		}
	}

	for _, k := range hourlyOrder {
		hourly = append(hourly, *hourlyGroups[k])
	}
	for _, k := range dailyOrder {
		daily = append(daily, *dailyGroups[k])
	}
	for _, k := range errorOrder {
		errSummary = append(errSummary, *errorGroups[k])
	}
	return hourly, daily, errSummary
}

func hourlyGroupKey(ev eventmodel.Event) string {
	return ev.TimestampHour.String() + "|" + ev.Tool + "|" + ev.Version
}

func dailyGroupKey(ev eventmodel.Event, country string) string {
	return ev.TimestampHour.Truncate(24*time.Hour).String() + "|" + ev.Tool + "|" + ev.Version + "|" + country
}

func errorGroupKey(ev eventmodel.Event) string {
	return ev.TimestampHour.String() + "|" + ev.Tool + "|" + *ev.ErrorType
}

func applyToHourly(row *eventmodel.HourlyAggregateRow, ev eventmodel.Event) {
	row.TotalCalls++
	if ev.Status == eventmodel.StatusSuccess {
		row.SuccessCalls++
	} else {
		row.ErrorCalls++
	}
	if ev.ResponseTimeMs != nil {
		row.ResponseTimeSum += int64(*ev.ResponseTimeMs)
		row.ResponseTimeCount++
		row.ResponseTimes = append(row.ResponseTimes, *ev.ResponseTimeMs)
	}
	if ev.CacheHit != nil {
		if *ev.CacheHit {
			row.CacheHits++
		} else {
			row.CacheMisses++
		}
	}
}

func applyToDaily(row *eventmodel.DailyAggregateRow, ev eventmodel.Event) {
	row.TotalCalls++
	if ev.Status == eventmodel.StatusSuccess {
		row.SuccessCalls++
	} else {
		row.ErrorCalls++
	}
	if ev.ResponseTimeMs != nil {
		row.ResponseTimes = append(row.ResponseTimes, *ev.ResponseTimeMs)
	}
	if ev.CacheHit != nil {
		if *ev.CacheHit {
			row.CacheHits++
		} else {
			row.CacheMisses++
		}
	}
	if ev.Service != nil {
		row.ServiceCalls[*ev.Service]++
		if ev.Status == eventmodel.StatusSuccess {
			row.ServiceSuccesses[*ev.Service]++
		}
	}
	if ev.RetryCount != nil {
		row.TotalRetries += *ev.RetryCount
	}
}

func applyToErrorSummary(row *eventmodel.ErrorSummaryRow, ev eventmodel.Event) {
	row.Count++
	if ev.TimestampHour.Before(row.FirstSeen) {
		row.FirstSeen = ev.TimestampHour
	}
	if ev.TimestampHour.After(row.LastSeen) {
		row.LastSeen = ev.TimestampHour
	}
	row.AffectedVersions = appendUniqueSorted(row.AffectedVersions, ev.Version)
}

func appendUniqueSorted(versions []string, v string) []string {
	for _, existing := range versions {
		if existing == v {
			return versions
		}
	}
	versions = append(versions, v)
	sort.Strings(versions)
	return versions
}

// CacheHitRate computes hits/(hits+misses), returning (0, false) when the
// denominator is zero so callers can format a null rate rather than a
// divide-by-zero NaN.
func CacheHitRate(hits, misses int) (float64, bool) {
	total := hits + misses
	if total == 0 {
		return 0, false
	}
	return float64(hits) / float64(total), true
}

// ServiceSuccessRate computes a single service's success rate from its own
// counters — never aliased from the overall success rate, per the
// per-service correctness invariant.
func ServiceSuccessRate(successCount, totalCount int) (float64, bool) {
	if totalCount == 0 {
		return 0, false
	}
	return float64(successCount) / float64(totalCount), true
}
