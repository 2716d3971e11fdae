package consumer

import "github.com/prometheus/client_golang/prometheus"

var (
	consumedEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "green_activity",
		Name:      "activity_events_consumed_total",
		Help:      "Activity lifecycle events applied by a projection and committed, by projection topic and event type.",
	}, []string{"topic", "event_type"})

	projectionFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "green_activity",
		Name:      "activity_projection_failures_total",
		Help:      "Activity events a projection could not apply and left uncommitted for redelivery.",
	}, []string{"topic", "event_type"})

	undecodableEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "green_activity",
		Name:      "activity_events_undecodable_total",
		Help:      "Records skipped because they lacked the schema framing or event headers.",
	}, []string{"topic"})

	projectionWatermark = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "green_activity",
		Name:      "activity_projection_watermark_seconds",
		Help:      "Kafka timestamp of the newest activity event a projection has committed.",
	}, []string{"topic"})
)

func init() {
	prometheus.MustRegister(consumedEvents, projectionFailures, undecodableEvents, projectionWatermark)
}

func recordConsumed(msg Message) {
	consumedEvents.WithLabelValues(msg.Topic, msg.EventType).Inc()
	if !msg.Timestamp.IsZero() {
		projectionWatermark.WithLabelValues(msg.Topic).Set(float64(msg.Timestamp.Unix()))
	}
}

func recordProjectionFailure(msg Message) {
	projectionFailures.WithLabelValues(msg.Topic, msg.EventType).Inc()
}

func recordUndecodable(topic string) {
	undecodableEvents.WithLabelValues(topic).Inc()
}
