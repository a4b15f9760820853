package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewRegistry_ExposesDomainCounters(t *testing.T) {
	reg := NewRegistry()

	EventsAcceptedTotal.Add(3)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "events_accepted_total")
}

func TestEventsRejectedTotal_TracksReasonLabel(t *testing.T) {
	EventsRejectedTotal.WithLabelValues("validation_failed").Inc()
	got := testutil.ToFloat64(EventsRejectedTotal.WithLabelValues("validation_failed"))
	assert.GreaterOrEqual(t, got, float64(1))
}
