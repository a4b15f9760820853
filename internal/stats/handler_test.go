package stats

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanview/analytics-collector/internal/config"
	"github.com/oceanview/analytics-collector/internal/store"
)

func newTestHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := store.NewForTesting(db)
	return NewHandler(&config.Config{Mode: config.Test}, s, nil), mock
}

func TestGetOverview_RejectsInvalidPeriodBeforeQuerying(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, mock := newTestHandler(t)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/stats/overview?period=721h", nil)

	h.GetOverview(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_period")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOverview_SumsToolTotalsIntoSummary(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h, mock := newTestHandler(t)

	start := time.Now().Add(-24 * time.Hour)

	toolRows := sqlmock.NewRows([]string{"tool", "sum", "sum_2", "sum_3", "avg", "p95", "sum_4", "sum_5"}).
		AddRow("get_forecast", 10, 8, 2, 120.5, 150, 3, 1)
	mock.ExpectQuery("SELECT tool,").WillReturnRows(toolRows)

	errRows := sqlmock.NewRows([]string{"error_type", "sum", "last_seen", "tools"}).
		AddRow("TIMEOUT", 2, start, "{get_forecast}")
	mock.ExpectQuery("SELECT error_type,").WillReturnRows(errRows)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/stats/overview?period=24h", nil)

	h.GetOverview(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_calls":10`)
	assert.Contains(t, w.Body.String(), `"name":"get_forecast"`)
	assert.NoError(t, mock.ExpectationsWereMet())
}
