// Package metrics holds the Prometheus collectors exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors. Use New with a dedicated registry in tests.
type Metrics struct {
	StoreOps      *prometheus.CounterVec
	HTTPRequests  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
	AtRiskReports *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StoreOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_store_operations_total",
			Help: "Attendance store operations by name and result.",
		}, []string{"op", "result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "attendance_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		AtRiskReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "attendance_at_risk_reports_total",
			Help: "Students reported below the at-risk threshold, by subject.",
		}, []string{"subject"}),
	}
	reg.MustRegister(m.StoreOps, m.HTTPRequests, m.HTTPDuration, m.AtRiskReports)
	return m
}

// ObserveStoreOp counts one store operation. It matches the signature of
// attendance.WithObserver.
func (m *Metrics) ObserveStoreOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StoreOps.WithLabelValues(op, result).Inc()
}
