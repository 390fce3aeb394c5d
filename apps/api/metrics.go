package main

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "civicreport"

// appMetrics owns its registry so several Apps can live in one test binary.
type appMetrics struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	reportsSubmitted *prometheus.CounterVec
	statusChanges    *prometheus.CounterVec
	reportsByStatus  *prometheus.GaugeVec
	classifications  *prometheus.CounterVec
	emailsSent       *prometheus.CounterVec
	rateLimited      prometheus.Counter
	streamClients    prometheus.Gauge
}

func newAppMetrics() *appMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &appMetrics{
		registry: reg,
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"route"}),
		reportsSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "reports",
			Name:      "submitted_total",
			Help:      "Reports accepted, by category.",
		}, []string{"category"}),
		statusChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "reports",
			Name:      "status_changes_total",
			Help:      "Admin status updates, by new status.",
		}, []string{"status"}),
		reportsByStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "reports",
			Name:      "current",
			Help:      "Reports in the store, by status. Updated on every save.",
		}, []string{"status"}),
		classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "classifier",
			Name:      "results_total",
			Help:      "Simulated classifier results, by top category.",
		}, []string{"category"}),
		emailsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "mailer",
			Name:      "emails_total",
			Help:      "Notification emails, by kind and result.",
		}, []string{"kind", "result"}),
		rateLimited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-IP limiter.",
		}),
		streamClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected admin report stream clients.",
		}),
	}
}

func (m *appMetrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (m *appMetrics) handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// observeReports resets the per-status gauges from a full snapshot.
func (m *appMetrics) observeReports(reports []Report) {
	counts := make(map[Status]int, len(reportStatuses))
	for _, r := range reports {
		counts[r.Status]++
	}
	for _, status := range reportStatuses {
		m.reportsByStatus.WithLabelValues(string(status)).Set(float64(counts[status]))
	}
}

func (m *appMetrics) observeEmail(kind string, err error) {
	result := "sent"
	if err != nil {
		result = "failed"
	}
	m.emailsSent.WithLabelValues(kind, result).Inc()
}
