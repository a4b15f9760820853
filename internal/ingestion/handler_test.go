package ingestion

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanview/analytics-collector/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{Mode: config.Test}
}

// TestPostEvents_RejectsMalformedJSON exercises the handler's first
// validation gate without needing a live queue or database connection,
// since a JSON decode failure returns before either is touched.
func TestPostEvents_RejectsMalformedJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handler{cfg: testConfig()}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewBufferString("{not json"))

	h.PostEvents(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_failed")
}

func TestPostEvents_RejectsBatchThatFailsValidation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := &Handler{cfg: testConfig()}

	body := `{"events": [{"tool": "unknown_tool", "version": "1.0.0"}]}`
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v1/events", bytes.NewBufferString(body))

	h.PostEvents(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "validation_failed")
}

