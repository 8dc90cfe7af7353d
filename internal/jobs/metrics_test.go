package jobmetrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestTrackerRecordsSuccessAndFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("payables:mark-overdue").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("payables:mark-overdue").End(boom), boom)

	body := scrape(t, reg)
	require.Contains(t, body, `shopledger_jobs_total{job="payables:mark-overdue",status="success"} 1`)
	require.Contains(t, body, `shopledger_jobs_total{job="payables:mark-overdue",status="failure"} 1`)
	require.Contains(t, body, `shopledger_jobs_failures_total{job="payables:mark-overdue"} 1`)
}

func TestAffectedIgnoresNonPositiveCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.AddAffected("payables:mark-overdue", 0)
	m.AddAffected("payables:mark-overdue", 3)
	m.Skipped("payables:mark-overdue")

	body := scrape(t, reg)
	require.Contains(t, body, `shopledger_job_rows_affected_total{job="payables:mark-overdue"} 3`)
	require.Contains(t, body, `shopledger_jobs_skipped_total{job="payables:mark-overdue"} 1`)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	require.NoError(t, m.Track("noop").End(nil))
	m.AddAffected("noop", 1)
	m.Skipped("noop")
}
