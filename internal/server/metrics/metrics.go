// Package metrics exposes Prometheus counters for token issuance,
// validation and rotation, plus HTTP request instrumentation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the collectors. It satisfies services.Recorder.
type Metrics struct {
	gatherer prometheus.Gatherer

	magicLinksIssued   *prometheus.CounterVec
	sessionValidations *prometheus.CounterVec
	refreshRotations   *prometheus.CounterVec

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		magicLinksIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "magiclink_issued_total",
			Help: "Magic-link tokens issued, by purpose.",
		}, []string{"purpose"}),
		sessionValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "magiclink_session_validations_total",
			Help: "Token validations, by result.",
		}, []string{"result"}),
		refreshRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "magiclink_refresh_rotations_total",
			Help: "Refresh token redemptions, by result.",
		}, []string{"result"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_in_flight_requests",
			Help: "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}

	reg.MustRegister(
		m.magicLinksIssued,
		m.sessionValidations,
		m.refreshRotations,
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
	)
	return m
}

func (m *Metrics) MagicLinkIssued(purpose string) {
	m.magicLinksIssued.WithLabelValues(purpose).Inc()
}

func (m *Metrics) SessionValidated(result string) {
	m.sessionValidations.WithLabelValues(result).Inc()
}

func (m *Metrics) RefreshRotated(result string) {
	m.refreshRotations.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Instrument records in-flight requests, counts and latency. Routes are
// labelled by the ServeMux pattern so path parameters do not explode labels.
func (m *Metrics) Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		path := r.Pattern
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(sw.code)

		m.httpRequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
		m.httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
