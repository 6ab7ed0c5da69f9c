package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ItemsEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollbar_items_enqueued_total",
			Help: "Total number of items accepted onto the dispatch queue.",
		},
	)

	ItemsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollbar_items_rejected_total",
			Help: "Total number of items refused at send time by reason.",
		},
		[]string{"reason"}, // queue_full, closed, encode, max_depth
	)

	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollbar_deliveries_total",
			Help: "Total number of settled deliveries by outcome.",
		},
		[]string{"outcome"}, // delivered, access_denied, rate_limited, ...
	)

	DeliveryLatencySeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rollbar_delivery_latency_seconds",
			Help:    "Latency of item POSTs to the collector.",
			Buckets: prometheus.DefBuckets,
		},
	)

	ItemsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollbar_items_in_flight",
			Help: "Items accepted but not yet settled.",
		},
	)

	InternalErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollbar_internal_errors_total",
			Help: "Internal invariant violations by kind.",
		},
		[]string{"kind"},
	)
)

func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		ItemsEnqueuedTotal,
		ItemsRejectedTotal,
		DeliveriesTotal,
		DeliveryLatencySeconds,
		ItemsInFlight,
		InternalErrorsTotal,
	)
}

// RecordEnqueued counts an accepted item
func RecordEnqueued() {
	ItemsEnqueuedTotal.Inc()
	ItemsInFlight.Inc()
}

// RecordRejected counts an item refused at send time
func RecordRejected(reason string) {
	ItemsRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordDelivery counts a settled delivery and observes its latency
func RecordDelivery(outcome string, latency time.Duration) {
	DeliveriesTotal.WithLabelValues(outcome).Inc()
	DeliveryLatencySeconds.Observe(latency.Seconds())
	ItemsInFlight.Dec()
}

// RecordInternalError counts an invariant violation
func RecordInternalError(kind string) {
	InternalErrorsTotal.WithLabelValues(kind).Inc()
}
