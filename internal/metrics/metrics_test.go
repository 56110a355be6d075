package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.ObserveAdmission("admitted")
	m.ObserveAdmission("admitted")
	m.ObserveAdmission("limit_reached")
	m.ObserveAdmission("")
	m.ObserveCallback("paid")
	m.ObserveUsageReset(7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.admissions.WithLabelValues("admitted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.admissions.WithLabelValues("limit_reached")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callbacks.WithLabelValues("paid")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.usageResets))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAdmission("admitted")
		m.ObserveCallback("paid")
		m.ObserveUsageReset(1)
		m.ObserveRequest("/x", http.MethodGet, 200, time.Millisecond)
	})
	assert.Nil(t, m.Registry())
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveRequest("/api/plans", http.MethodGet, 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `slowly_http_requests_total{method="GET",route="/api/plans",status="200"} 1`)
}
