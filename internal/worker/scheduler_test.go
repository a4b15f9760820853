package worker

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/oceanview/analytics-collector/internal/store"
)

func TestRunRetentionSweep_RunsWithoutLockWhenCacheDisabled(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"events", "hourly_aggregations", "daily_aggregations", "error_summary"} {
		mock.ExpectExec("DELETE FROM " + table).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	s := store.NewForTesting(db)
	sched := NewScheduler(New(nil, s, Config{}), s, nil, SchedulerConfig{
		Retention: store.RetentionConfig{
			RawEvents: 24 * time.Hour, HourlyAggregates: 24 * time.Hour,
			DailyAggregates: 24 * time.Hour, ErrorSummary: 24 * time.Hour,
		},
	})

	sched.runRetentionSweep(context.Background())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewScheduler_AppliesDefaults(t *testing.T) {
	sched := NewScheduler(New(nil, nil, Config{}), nil, nil, SchedulerConfig{})
	require.Equal(t, 60*time.Second, sched.cfg.StatsReportInterval)
	require.Equal(t, "0 * * * *", sched.cfg.RetentionSweepCron)
}
