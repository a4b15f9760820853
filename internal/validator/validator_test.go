package validator

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseBody(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &body))
	return body
}

func TestValidateBatch_HappyMinimal(t *testing.T) {
	body := parseBody(t, `{"events":[{"version":"1.0.0","tool":"get_forecast","status":"success","timestamp_hour":"2025-11-11T14:00:00Z","analytics_level":"minimal"}]}`)

	batch, errs := ValidateBatch(body)
	require.Empty(t, errs)
	require.Len(t, batch.Events, 1)
	assert.Equal(t, "get_forecast", batch.Events[0].Tool)
}

func TestValidateBatch_RejectsPIIAtAnyDepth(t *testing.T) {
	body := parseBody(t, `{"events":[{"version":"1.0.0","tool":"get_forecast","status":"success","timestamp_hour":"2025-11-11T14:00:00Z","analytics_level":"detailed","parameters":{"nested":{"latitude":40.7}}}]}`)

	_, errs := ValidateBatch(body)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Rule, "PII")
}

func TestValidateBatch_RejectsNonHourAlignedTimestamp(t *testing.T) {
	body := parseBody(t, `{"events":[{"version":"1.0.0","tool":"get_forecast","status":"success","timestamp_hour":"2025-11-11T14:05:00Z","analytics_level":"minimal"}]}`)

	_, errs := ValidateBatch(body)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Rule, "rounded to the hour")
}

func TestValidateBatch_RejectsUnknownEnumValues(t *testing.T) {
	body := parseBody(t, `{"events":[{"version":"1.0.0","tool":"not_a_real_tool","status":"success","timestamp_hour":"2025-11-11T14:00:00Z","analytics_level":"minimal"}]}`)

	_, errs := ValidateBatch(body)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Rule, "tool must be one of")
}

func TestValidateBatch_RequiresErrorTypeOnErrorStatus(t *testing.T) {
	body := parseBody(t, `{"events":[{"version":"1.0.0","tool":"get_forecast","status":"error","timestamp_hour":"2025-11-11T14:00:00Z","analytics_level":"standard"}]}`)

	_, errs := ValidateBatch(body)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Rule, "error_type is required")
}

func TestValidateBatch_RejectsEmptyAndOversizedBatches(t *testing.T) {
	empty := parseBody(t, `{"events":[]}`)
	_, errs := ValidateBatch(empty)
	require.Len(t, errs, 1)

	events := make([]string, 0, 101)
	ev := `{"version":"1.0.0","tool":"get_forecast","status":"success","timestamp_hour":"2025-11-11T14:00:00Z","analytics_level":"minimal"}`
	for i := 0; i < 101; i++ {
		events = append(events, ev)
	}
	raw := `{"events":[` + joinWithCommas(events) + `]}`
	oversized := parseBody(t, raw)
	_, errs = ValidateBatch(oversized)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Rule, "100 event limit")
}

func TestValidateBatch_AcceptsDetailedEventWithinLimits(t *testing.T) {
	body := parseBody(t, `{"events":[{
		"version":"1.2.3","tool":"get_forecast","status":"success",
		"timestamp_hour":"2025-11-11T14:00:00Z","analytics_level":"detailed",
		"response_time_ms":120,"service":"noaa","cache_hit":true,"retry_count":0,
		"country":"US","parameters":{"units":"metric"},
		"session_id":"abcdef0123456789","sequence_number":3
	}]}`)

	batch, errs := ValidateBatch(body)
	require.Empty(t, errs)
	require.Len(t, batch.Events, 1)
	ev := batch.Events[0]
	require.NotNil(t, ev.ResponseTimeMs)
	assert.Equal(t, 120, *ev.ResponseTimeMs)
	require.NotNil(t, ev.SessionID)
	assert.Equal(t, "abcdef0123456789", *ev.SessionID)
}

func joinWithCommas(items []string) string {
	out := ""
	for i, it := range items {
		if i > 0 {
			out += ","
		}
		out += it
	}
	return out
}
