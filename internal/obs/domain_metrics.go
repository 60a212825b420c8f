package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutSessionTotal counts checkout session creation outcomes per product.
	CheckoutSessionTotal *prometheus.CounterVec
	// CheckoutSessionLatency records provider round-trip latency in milliseconds.
	CheckoutSessionLatency *prometheus.HistogramVec
	// WebhookEventTotal counts inbound payment webhook outcomes by event type.
	WebhookEventTotal *prometheus.CounterVec
	// FulfillmentTotal counts fulfillment attempts by delivery channel.
	FulfillmentTotal *prometheus.CounterVec
	// ConversionTotal counts server-side conversion reports by platform.
	ConversionTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutSessionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_session_total",
			Help:      "Count of checkout session creation outcomes.",
		}, []string{"product", "result"})
		CheckoutSessionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_session_duration_ms",
			Help:      "Latency of checkout session creation in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
		}, []string{"result"})
		WebhookEventTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_event_total",
			Help:      "Count of processed payment webhooks by event type and outcome.",
		}, []string{"type", "result"})
		FulfillmentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fulfillment_total",
			Help:      "Count of fulfillment notifications by channel and outcome.",
		}, []string{"channel", "result"})
		ConversionTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversion_total",
			Help:      "Count of conversion reports by platform and outcome.",
		}, []string{"platform", "result"})

		CheckoutSessionTotal = register(reg, CheckoutSessionTotal)
		CheckoutSessionLatency = register(reg, CheckoutSessionLatency)
		WebhookEventTotal = register(reg, WebhookEventTotal)
		FulfillmentTotal = register(reg, FulfillmentTotal)
		ConversionTotal = register(reg, ConversionTotal)
	})
}

// Count increments a labelled counter when it has been registered.
func Count(vec *prometheus.CounterVec, labels ...string) {
	if vec == nil {
		return
	}
	vec.WithLabelValues(labels...).Inc()
}
