package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics stores Prometheus collectors used across the service.
type Metrics struct {
	WebhookEvents    *prometheus.CounterVec
	MessagesIngested *prometheus.CounterVec
	StatusUpdates    *prometheus.CounterVec
	Conversions      *prometheus.CounterVec
	CAPIRequests     *prometheus.CounterVec
	CAPILatency      *prometheus.HistogramVec
	GraphRequests    *prometheus.CounterVec
	GraphLatency     *prometheus.HistogramVec
	Errors           *prometheus.CounterVec
}

var (
	regOnce         sync.Once
	metricsInstance *Metrics
)

// Registry builds and registers the metrics singleton with optional namespace.
func Registry(namespace string) *Metrics {
	regOnce.Do(func() {
		metricsInstance = &Metrics{
			WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Total webhook deliveries by classification.",
			}, []string{"kind"}),
			MessagesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "messages_ingested_total",
				Help:      "Total inbound messages persisted by type.",
			}, []string{"type"}),
			StatusUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "status_updates_total",
				Help:      "Total delivery status updates by outcome.",
			}, []string{"outcome"}),
			Conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversion_events_total",
				Help:      "Total conversion event attempts by event name and outcome.",
			}, []string{"event", "outcome"}),
			CAPIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capi_requests_total",
				Help:      "Total Conversions API requests by status.",
			}, []string{"status"}),
			CAPILatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "capi_request_duration_seconds",
				Help:      "Latency distribution for Conversions API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"status"}),
			GraphRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "graph_requests_total",
				Help:      "Total WhatsApp Graph API requests by endpoint and status.",
			}, []string{"endpoint", "status"}),
			GraphLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "graph_request_duration_seconds",
				Help:      "Latency distribution for WhatsApp Graph API requests.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "status"}),
			Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total errors grouped by component.",
			}, []string{"component"}),
		}

		prometheus.MustRegister(
			metricsInstance.WebhookEvents,
			metricsInstance.MessagesIngested,
			metricsInstance.StatusUpdates,
			metricsInstance.Conversions,
			metricsInstance.CAPIRequests,
			metricsInstance.CAPILatency,
			metricsInstance.GraphRequests,
			metricsInstance.GraphLatency,
			metricsInstance.Errors,
		)
	})
	return metricsInstance
}
