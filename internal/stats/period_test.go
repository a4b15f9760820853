package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePeriod_AcceptsHoursWithinBounds(t *testing.T) {
	now := time.Date(2025, 11, 11, 14, 0, 0, 0, time.UTC)
	p, err := ParsePeriod("24h", now)
	require.NoError(t, err)
	assert.Equal(t, now, p.End)
	assert.Equal(t, now.Add(-24*time.Hour), p.Start)
}

func TestParsePeriod_AcceptsDaysWithinBounds(t *testing.T) {
	now := time.Date(2025, 11, 11, 14, 0, 0, 0, time.UTC)
	p, err := ParsePeriod("7d", now)
	require.NoError(t, err)
	assert.Equal(t, now.Add(-7*24*time.Hour), p.Start)
}

func TestParsePeriod_RejectsOutOfBoundHours(t *testing.T) {
	_, err := ParsePeriod("721h", time.Now())
	assert.Error(t, err)
}

func TestParsePeriod_RejectsOutOfBoundDays(t *testing.T) {
	_, err := ParsePeriod("366d", time.Now())
	assert.Error(t, err)
}

func TestParsePeriod_RejectsMalformedStrings(t *testing.T) {
	for _, raw := range []string{"", "24", "h24", "-5h", "24hh", "24 h"} {
		_, err := ParsePeriod(raw, time.Now())
		assert.Error(t, err, raw)
	}
}

func TestParsePeriod_RejectsZero(t *testing.T) {
	_, err := ParsePeriod("0h", time.Now())
	assert.Error(t, err)
}
