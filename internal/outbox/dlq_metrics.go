package outbox

import "github.com/prometheus/client_golang/prometheus"

// DLQ entry outcomes.
const (
	dlqOutcomeRequeued    = "requeued"
	dlqOutcomeRetry       = "retry_scheduled"
	dlqOutcomeQuarantined = "quarantined"
)

var (
	dlqOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "green_activity",
		Subsystem: "dlq",
		Name:      "entries_total",
		Help:      "DLQ entries handled by the retry manager, labeled by topic, event type and outcome.",
	}, []string{"topic", "event_type", "outcome"})

	dlqBacklogGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "green_activity",
		Subsystem: "dlq",
		Name:      "queued_messages",
		Help:      "Entries still eligible for retry in the DLQ.",
	})
)

func init() {
	prometheus.MustRegister(dlqOutcomes, dlqBacklogGauge)
}

func recordDLQOutcome(entry dlqEntry, outcome string) {
	dlqOutcomes.WithLabelValues(entry.Topic, entry.EventType, outcome).Inc()
}
