package metrics

import (
	"io"
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
	m.JobStarted()
	m.JobStarted()
	m.JobFinished("done")
	m.Event("partial_articles")
	m.Event("partial_articles")
	m.Malformed()
	m.Published(PublishForced)
	m.LogDropped()
	m.Reapplied(true, 120*time.Millisecond)
	m.Extracted(false)
	m.Verified(true)

	assert.InDelta(t, 2, testutil.ToFloat64(m.jobsStarted), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.jobsActive), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.jobsFinished.WithLabelValues("done")), 0.001)
	assert.InDelta(t, 2, testutil.ToFloat64(m.events.WithLabelValues("partial_articles")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.publishes.WithLabelValues(PublishForced)), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.extractions.WithLabelValues("error")), 0.001)
	assert.InDelta(t, 1, testutil.ToFloat64(m.verifications.WithLabelValues("ok")), 0.001)
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.JobStarted()
		m.JobFinished("failed")
		m.Event("log")
		m.Malformed()
		m.Published(PublishThrottled)
		m.LogDropped()
		m.Reapplied(false, time.Second)
		m.Extracted(true)
		m.Verified(false)
	})
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.Event("done")

	ts := httptest.NewServer(m.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `newsdigest_stream_events_total{type="done"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
