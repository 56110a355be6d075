package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the server. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	admissions      *prometheus.CounterVec
	callbacks       *prometheus.CounterVec
	usageResets     prometheus.Counter
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them, plus the Go and process collectors, on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slowly_key_admissions_total",
				Help: "API key admission decisions by outcome",
			},
			[]string{"outcome"},
		),
		callbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slowly_payment_callbacks_total",
				Help: "Payment gateway callbacks by outcome",
			},
			[]string{"outcome"},
		),
		usageResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "slowly_usage_reset_keys_total",
			Help: "Number of keys whose usage counter was reset",
		}),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slowly_http_requests_total",
				Help: "HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slowly_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}
	m.registry.MustRegister(
		m.admissions, m.callbacks, m.usageResets, m.requestsTotal, m.requestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveAdmission counts one admission decision.
func (m *Metrics) ObserveAdmission(outcome string) {
	if m == nil || outcome == "" {
		return
	}
	m.admissions.WithLabelValues(outcome).Inc()
}

// ObserveCallback counts one payment callback.
func (m *Metrics) ObserveCallback(outcome string) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues(outcome).Inc()
}

// ObserveUsageReset adds n reset keys.
func (m *Metrics) ObserveUsageReset(n int) {
	if m == nil {
		return
	}
	m.usageResets.Add(float64(n))
}

// ObserveRequest records a served HTTP request.
func (m *Metrics) ObserveRequest(route, method string, status int, latency time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(latency.Seconds())
}
