package worker

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecodeEvents_SkipsMalformedEntriesWithoutFailingTheBatch(t *testing.T) {
	good := json.RawMessage(`{"tool":"get_forecast","version":"1.0.0","status":"success","analytics_level":"minimal"}`)
	bad := json.RawMessage(`{not json`)

	events, malformed := decodeEvents([]json.RawMessage{good, bad, good})

	assert.Len(t, events, 2)
	assert.Equal(t, 1, malformed)
}

func TestSnapshot_ReflectsCountersWithoutRunningTheLoop(t *testing.T) {
	w := New(nil, nil, Config{})
	w.totalProcessed.Store(42)
	w.errorCount.Store(1)
	w.lastProcessedAt.Store(time.Date(2025, 11, 11, 12, 0, 0, 0, time.UTC).Unix())

	snap := w.Snapshot()

	assert.Equal(t, int64(42), snap.TotalProcessed)
	assert.Equal(t, int64(1), snap.ErrorCount)
	assert.False(t, snap.LastProcessedAt.IsZero())
}

func TestDefaults_AppliedWhenConfigFieldsAreZero(t *testing.T) {
	w := New(nil, nil, Config{})
	assert.Equal(t, 50, w.cfg.BatchSize)
	assert.Equal(t, time.Second, w.cfg.PollInterval)
	assert.Equal(t, 30*time.Second, w.cfg.ShutdownGrace)
}
