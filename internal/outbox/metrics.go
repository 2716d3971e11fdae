package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	publishedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "green_activity",
		Name:      "activity_events_published_total",
		Help:      "Activity lifecycle events (recorded, vote cast, finalized) published to Kafka, by event type.",
	}, []string{"event_type"})

	publishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "green_activity",
		Name:      "activity_events_publish_failures_total",
		Help:      "Activity lifecycle events whose Kafka write failed, by event type.",
	}, []string{"event_type"})

	deadLettered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "green_activity",
		Name:      "activity_events_dead_lettered_total",
		Help:      "Activity lifecycle events parked in outbox_dlq instead of Kafka, by destination topic.",
	}, []string{"topic"})

	relayBatchSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "green_activity",
		Name:      "activity_event_relay_batch_seconds",
		Help:      "Time to publish one claimed batch of activity events and mark it sent.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	})
)

func init() {
	prometheus.MustRegister(publishedEvents, publishFailures, deadLettered, relayBatchSeconds)
}

func recordPublished(messages []Message) {
	for _, msg := range messages {
		publishedEvents.WithLabelValues(msg.EventType).Inc()
	}
}

func recordPublishFailure(messages []Message) {
	for _, msg := range messages {
		publishFailures.WithLabelValues(msg.EventType).Inc()
	}
}
