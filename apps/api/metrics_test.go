package main

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsMiddlewareLabelsByRoute(t *testing.T) {
	ta := newTestApp(t)

	ta.do(http.MethodGet, "/api/v1/reports/1", "", "")
	ta.do(http.MethodGet, "/api/v1/reports/2", "", "")
	ta.do(http.MethodGet, "/nowhere", "", "")

	assert.Equal(t, float64(2), testutil.ToFloat64(ta.metrics.httpRequests.WithLabelValues("/api/v1/reports/:id", http.MethodGet, "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(ta.metrics.httpRequests.WithLabelValues("unmatched", http.MethodGet, "404")))
}

func TestMetricsEndpoint(t *testing.T) {
	ta := newTestApp(t)

	_, _, err := ta.updateReportStatus(context.Background(), "1", StatusResolved, "")
	require.NoError(t, err)

	rec := ta.do(http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()

	assert.Contains(t, body, `civicreport_reports_status_changes_total{status="Resolved"} 1`)
	assert.Contains(t, body, `civicreport_reports_current{status="Resolved"} 3`)
	assert.Contains(t, body, `civicreport_reports_current{status="Submitted"} 2`)
	assert.True(t, strings.Contains(body, "go_goroutines"), "runtime collectors should be registered")
}

func TestObserveReportsResetsGauges(t *testing.T) {
	m := newAppMetrics()

	m.observeReports(sampleReports())
	assert.Equal(t, float64(3), testutil.ToFloat64(m.reportsByStatus.WithLabelValues(string(StatusSubmitted))))

	m.observeReports(nil)
	for _, status := range reportStatuses {
		assert.Zero(t, testutil.ToFloat64(m.reportsByStatus.WithLabelValues(string(status))))
	}
}

func TestNewAppMetricsIsolatedRegistries(t *testing.T) {
	first := newAppMetrics()
	second := newAppMetrics()

	first.rateLimited.Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(first.rateLimited))
	assert.Zero(t, testutil.ToFloat64(second.rateLimited))
}
