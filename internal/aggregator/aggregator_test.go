package aggregator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanview/analytics-collector/internal/eventmodel"
)

func sampleEvents(n int, status eventmodel.Status, hour time.Time) []eventmodel.Event {
	out := make([]eventmodel.Event, 0, n)
	for i := 0; i < n; i++ {
		rt := 100 + i
		out = append(out, eventmodel.Event{
			TimestampHour: hour, Tool: "get_forecast", Version: "1.0.0",
			Status: status, Level: eventmodel.LevelStandard, ResponseTimeMs: &rt,
		})
	}
	return out
}

func TestApplyBatch_HourlyCountsPartitionByStatus(t *testing.T) {
	hour := time.Date(2025, 11, 11, 14, 0, 0, 0, time.UTC)
	batch := append(sampleEvents(3, eventmodel.StatusSuccess, hour), sampleEvents(2, eventmodel.StatusError, hour)...)

	hourly, _, _ := ApplyBatch(batch)

	require.Len(t, hourly, 1)
	assert.Equal(t, 5, hourly[0].TotalCalls)
	assert.Equal(t, 3, hourly[0].SuccessCalls)
	assert.Equal(t, 2, hourly[0].ErrorCalls)
	assert.Equal(t, hourly[0].SuccessCalls+hourly[0].ErrorCalls, hourly[0].TotalCalls)
}

// TestApplyBatch_CommutativeUnderSubdivision verifies P7: processing a
// multiset as one batch vs. as two sub-batches yields the same counts once
// the resulting rows are combined the way the store's additive UPSERT
// would combine them.
func TestApplyBatch_CommutativeUnderSubdivision(t *testing.T) {
	hour := time.Date(2025, 11, 11, 14, 0, 0, 0, time.UTC)
	all := append(sampleEvents(4, eventmodel.StatusSuccess, hour), sampleEvents(1, eventmodel.StatusError, hour)...)

	wholeHourly, _, _ := ApplyBatch(all)

	sub1Hourly, _, _ := ApplyBatch(all[:2])
	sub2Hourly, _, _ := ApplyBatch(all[2:])

	combinedTotal := sub1Hourly[0].TotalCalls + sub2Hourly[0].TotalCalls
	combinedSuccess := sub1Hourly[0].SuccessCalls + sub2Hourly[0].SuccessCalls
	combinedError := sub1Hourly[0].ErrorCalls + sub2Hourly[0].ErrorCalls

	require.Len(t, wholeHourly, 1)
	assert.Equal(t, wholeHourly[0].TotalCalls, combinedTotal)
	assert.Equal(t, wholeHourly[0].SuccessCalls, combinedSuccess)
	assert.Equal(t, wholeHourly[0].ErrorCalls, combinedError)
}

func TestApplyBatch_ErrorSummaryUnionsAffectedVersions(t *testing.T) {
	hour := time.Date(2025, 11, 11, 14, 0, 0, 0, time.UTC)
	errType := "TIMEOUT"
	batch := []eventmodel.Event{
		{TimestampHour: hour, Tool: "get_forecast", Version: "1.0.0", Status: eventmodel.StatusError, Level: eventmodel.LevelStandard, ErrorType: &errType},
		{TimestampHour: hour, Tool: "get_forecast", Version: "1.0.0", Status: eventmodel.StatusError, Level: eventmodel.LevelStandard, ErrorType: &errType},
		{TimestampHour: hour, Tool: "get_forecast", Version: "1.0.1", Status: eventmodel.StatusError, Level: eventmodel.LevelStandard, ErrorType: &errType},
	}

	_, _, errSummary := ApplyBatch(batch)

	require.Len(t, errSummary, 1)
	assert.Equal(t, 3, errSummary[0].Count)
	assert.Equal(t, []string{"1.0.0", "1.0.1"}, errSummary[0].AffectedVersions)
}

func TestApplyBatch_DailyGroupsByCountryIncludingEmpty(t *testing.T) {
	hour := time.Date(2025, 11, 11, 14, 0, 0, 0, time.UTC)
	us := "US"
	batch := []eventmodel.Event{
		{TimestampHour: hour, Tool: "get_forecast", Version: "1.0.0", Status: eventmodel.StatusSuccess, Level: eventmodel.LevelStandard, Country: &us},
		{TimestampHour: hour, Tool: "get_forecast", Version: "1.0.0", Status: eventmodel.StatusSuccess, Level: eventmodel.LevelMinimal},
	}

	_, daily, _ := ApplyBatch(batch)

	require.Len(t, daily, 2)
	countries := map[string]int{}
	for _, d := range daily {
		countries[d.Country] = d.TotalCalls
	}
	assert.Equal(t, 1, countries["US"])
	assert.Equal(t, 1, countries[""])
}

func TestServiceSuccessRate_IsPerServiceNotAliasedFromOverall(t *testing.T) {
	rate, ok := ServiceSuccessRate(3, 4)
	require.True(t, ok)
	assert.InDelta(t, 0.75, rate, 0.0001)

	_, ok = ServiceSuccessRate(0, 0)
	assert.False(t, ok)
}

func TestCacheHitRate_NullWhenBothZero(t *testing.T) {
	_, ok := CacheHitRate(0, 0)
	assert.False(t, ok)

	rate, ok := CacheHitRate(3, 1)
	require.True(t, ok)
	assert.InDelta(t, 0.75, rate, 0.0001)
}
