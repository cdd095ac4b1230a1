package web

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metricsCollector struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestsTotal   *prometheus.CounterVec
	calculations    *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
}

func newMetricsCollector(registry *prometheus.Registry) *metricsCollector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &metricsCollector{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "isolator_request_duration_seconds",
				Help: "Time spent processing request",
			},
			[]string{"route"},
		),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "isolator_requests_total",
				Help: "Total number of requests",
			},
			[]string{"route", "code"},
		),
		calculations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "isolator_calculations_total",
				Help: "Modal calculations by outcome",
			},
			[]string{"outcome"},
		),
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "isolator_webhook_events_total",
				Help: "Payment webhook events by type",
			},
			[]string{"type"},
		),
	}
	registry.MustRegister(m.requestDuration, m.requestsTotal, m.calculations, m.webhookEvents)
	return m
}

func (m *metricsCollector) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsCollector) recordCalculation(outcome string) {
	m.calculations.WithLabelValues(outcome).Inc()
}

func (m *metricsCollector) recordWebhookEvent(eventType string) {
	m.webhookEvents.WithLabelValues(eventType).Inc()
}

// instrument observes the duration and status code of every request handled by h under `route`.
func (m *metricsCollector) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	labels := prometheus.Labels{"route": route}
	return promhttp.InstrumentHandlerDuration(m.requestDuration.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(m.requestsTotal.MustCurryWith(labels), h))
}
