package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
// All observe methods are safe on a nil receiver.
type Metrics struct {
	// RequestLatency tracks HTTP request latency by route and status
	RequestLatency *prometheus.HistogramVec
	// TokenRefreshes counts refresh-token exchanges by outcome
	TokenRefreshes *prometheus.CounterVec
	// UpstreamRequests counts calls to the accounting API by entity and status
	UpstreamRequests *prometheus.CounterVec
	// APIKeyAuth counts api key validation results
	APIKeyAuth *prometheus.CounterVec
	// BackgroundDropped counts best-effort tasks dropped on a full queue
	BackgroundDropped prometheus.Counter

	registry *prometheus.Registry
}

func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"route", "method", "status"},
		),
		TokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refresh_total",
				Help:      "OAuth refresh-token exchanges by outcome",
			},
			[]string{"outcome"},
		),
		UpstreamRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Requests issued to the accounting API",
			},
			[]string{"entity", "status"},
		),
		APIKeyAuth: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "api_key_auth_total",
				Help:      "API key authentication results",
			},
			[]string{"result"},
		),
		BackgroundDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "background_tasks_dropped_total",
				Help:      "Best-effort tasks dropped because the queue was full",
			},
		),
	}

	registry.MustRegister(
		m.RequestLatency,
		m.TokenRefreshes,
		m.UpstreamRequests,
		m.APIKeyAuth,
		m.BackgroundDropped,
		collectors.NewGoCollector(),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveRequest(route, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestLatency.WithLabelValues(route, method, strconv.Itoa(status)).Observe(d.Seconds())
}

func (m *Metrics) ObserveRefresh(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUpstream(entity string, status int) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.UpstreamRequests.WithLabelValues(entity, label).Inc()
}

func (m *Metrics) ObserveAuth(result string) {
	if m == nil {
		return
	}
	m.APIKeyAuth.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveDropped() {
	if m == nil {
		return
	}
	m.BackgroundDropped.Inc()
}
