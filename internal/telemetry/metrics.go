package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	CourierErrors   *prometheus.CounterVec
	WebhooksTotal   *prometheus.CounterVec
}

// NewMetrics creates metrics registered on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates metrics on a caller-owned registry, so
// tests can register without colliding on the global one.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipping_requests_total",
				Help: "Total number of delivery operations by operation, courier, and status",
			},
			[]string{"operation", "courier", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shipping_request_duration_seconds",
				Help:    "Delivery operation duration in seconds by operation and courier",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "courier"},
		),
		CourierErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipping_courier_errors_total",
				Help: "Total courier API errors by courier and error type",
			},
			[]string{"courier", "error_type"},
		),
		WebhooksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipping_webhooks_total",
				Help: "Inbound courier webhooks by courier and verification outcome",
			},
			[]string{"courier", "verified"},
		),
	}
}

// RecordRequest records a delivery operation metric.
func (m *Metrics) RecordRequest(operation, courier, status string, duration float64) {
	m.RequestsTotal.WithLabelValues(operation, courier, status).Inc()
	m.RequestDuration.WithLabelValues(operation, courier).Observe(duration)
}

// RecordError records a courier error metric.
func (m *Metrics) RecordError(courier, errorType string) {
	m.CourierErrors.WithLabelValues(courier, errorType).Inc()
}

// RecordWebhook records an inbound webhook and its verification outcome.
func (m *Metrics) RecordWebhook(courier string, verified bool) {
	verifiedLabel := "false"
	if verified {
		verifiedLabel = "true"
	}
	m.WebhooksTotal.WithLabelValues(courier, verifiedLabel).Inc()
}
