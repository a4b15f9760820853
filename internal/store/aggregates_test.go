package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanview/analytics-collector/internal/eventmodel"
)

func TestUpsertHourlyAggregates_IssuesUpsertPerRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	hour := time.Date(2025, 11, 11, 14, 0, 0, 0, time.UTC)

	rows := []eventmodel.HourlyAggregateRow{
		{Hour: hour, Tool: "get_forecast", Version: "1.0.0", TotalCalls: 3, SuccessCalls: 3, ErrorCalls: 0,
			ResponseTimeSum: 360, ResponseTimeCount: 3, ResponseTimes: []int{100, 120, 140}},
	}

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO hourly_aggregations")
	mock.ExpectExec("INSERT INTO hourly_aggregations").
		WithArgs(hour, "get_forecast", "1.0.0", 3, 3, 0, int64(360), 3, float64(120), 138, 0, 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = s.UpsertHourlyAggregates(context.Background(), rows)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPercentiles_LinearInterpolation(t *testing.T) {
	sample := []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
	p50, p95, p99, min, max := percentiles(sample)

	assert.Equal(t, 10, min)
	assert.Equal(t, 100, max)
	assert.InDelta(t, 55, p50, 5)
	assert.InDelta(t, 95, p95, 6)
	assert.InDelta(t, 99, p99, 2)
}

func TestPercentiles_EmptySampleIsZeroValue(t *testing.T) {
	p50, p95, p99, min, max := percentiles(nil)
	assert.Equal(t, 0, p50)
	assert.Equal(t, 0, p95)
	assert.Equal(t, 0, p99)
	assert.Equal(t, 0, min)
	assert.Equal(t, 0, max)
}
