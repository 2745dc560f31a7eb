package eventbus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_events_published_total",
			Help: "Total number of events handed to a subscriber",
		},
		[]string{"subscriber"},
	)

	eventsHandledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_events_handled_total",
			Help: "Total number of subscriber callbacks completed",
		},
		[]string{"subscriber", "status"}, // status: success|failure
	)

	handleDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "eventbus_handle_duration_seconds",
			Help:    "Subscriber callback duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		},
		[]string{"subscriber"},
	)

	eventsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_events_dropped_total",
			Help: "Total number of events dropped before reaching a subscriber",
		},
		[]string{"subscriber", "reason"}, // reason: pool_full|shutdown
	)

	subscriberPanicsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_subscriber_panics_total",
			Help: "Total number of recovered subscriber panics",
		},
		[]string{"subscriber"},
	)

	activeHandlers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventbus_active_handlers",
			Help: "Number of subscriber callbacks currently running",
		},
	)

	orderedQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "eventbus_ordered_queue_depth",
			Help: "Events waiting in the queue of an ordered subscriber",
		},
		[]string{"subscriber"},
	)

	subscribersRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eventbus_subscribers",
			Help: "Number of registered subscribers",
		},
	)
)

func RecordPublished(subscriber string) {
	eventsPublishedTotal.WithLabelValues(subscriber).Inc()
}

func RecordSuccess(subscriber string, duration time.Duration) {
	eventsHandledTotal.WithLabelValues(subscriber, "success").Inc()
	handleDuration.WithLabelValues(subscriber).Observe(duration.Seconds())
}

func RecordFailure(subscriber string, duration time.Duration) {
	eventsHandledTotal.WithLabelValues(subscriber, "failure").Inc()
	handleDuration.WithLabelValues(subscriber).Observe(duration.Seconds())
}

func RecordDropped(subscriber, reason string) {
	eventsDroppedTotal.WithLabelValues(subscriber, reason).Inc()
}

func RecordPanic(subscriber string) {
	subscriberPanicsTotal.WithLabelValues(subscriber).Inc()
}

func IncrementActiveHandlers() {
	activeHandlers.Inc()
}

func DecrementActiveHandlers() {
	activeHandlers.Dec()
}

func setSubscribers(n int) {
	subscribersRegistered.Set(float64(n))
}

func setQueueDepth(subscriber string, n int) {
	orderedQueueDepth.WithLabelValues(subscriber).Set(float64(n))
}
