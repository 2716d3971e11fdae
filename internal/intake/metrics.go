package intake

import "github.com/prometheus/client_golang/prometheus"

const (
	resultRecorded = "recorded"
	resultRejected = "rejected"
	resultFailed   = "failed"
)

var tracesCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "green_activity",
	Subsystem: "intake",
	Name:      "traces_total",
	Help:      "Sensor traces received over MQTT by result.",
}, []string{"result"})

func init() {
	prometheus.MustRegister(tracesCounter)
}

func recordTrace(result string) {
	tracesCounter.WithLabelValues(result).Inc()
}
