package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's prometheus collectors on a private registry.
type Metrics struct {
	registry    *prometheus.Registry
	Requests    *prometheus.CounterVec
	LatencyMS   *prometheus.HistogramVec
	Transitions *prometheus.CounterVec
}

func NewMetrics(service string) *Metrics {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderlifecycle",
		Subsystem: service,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"route", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orderlifecycle",
		Subsystem: service,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"route"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orderlifecycle",
		Subsystem: service,
		Name:      "order_transitions_total",
		Help:      "Order status transition attempts by target status and outcome.",
	}, []string{"target", "outcome"})

	registry := prometheus.NewRegistry()
	registry.MustRegister(requests, latency, transitions)
	return &Metrics{
		registry:    registry,
		Requests:    requests,
		LatencyMS:   latency,
		Transitions: transitions,
	}
}

// ObserveTransition counts a transition attempt; outcome is "ok" or an error kind.
func (m *Metrics) ObserveTransition(target, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(target, outcome).Inc()
}

// Handler exposes the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
