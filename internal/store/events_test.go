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

func TestInsertEvents_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	ctx := context.Background()

	responseTime := 120
	events := []eventmodel.Event{
		{
			TimestampHour:  time.Date(2025, 11, 11, 14, 0, 0, 0, time.UTC),
			Version:        "1.0.0",
			Tool:           "get_forecast",
			Status:         eventmodel.StatusSuccess,
			Level:          eventmodel.LevelStandard,
			ResponseTimeMs: &responseTime,
		},
	}

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO events")
	mock.ExpectExec("INSERT INTO events").
		WithArgs(events[0].TimestampHour, "1.0.0", "get_forecast", "success", "standard",
			120, nil, nil, nil, nil, nil, nil, nil, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err = s.InsertEvents(ctx, events)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEvents_RollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	ctx := context.Background()

	events := []eventmodel.Event{
		{TimestampHour: time.Now(), Version: "1.0.0", Tool: "get_forecast", Status: eventmodel.StatusSuccess, Level: eventmodel.LevelMinimal},
	}

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO events")
	mock.ExpectExec("INSERT INTO events").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = s.InsertEvents(ctx, events)

	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertEvents_EmptyBatchIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForTesting(db)
	err = s.InsertEvents(context.Background(), nil)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
