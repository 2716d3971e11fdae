// Package observability holds Prometheus metrics for the activity pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric exported by the service.
const Namespace = "green_activity"

var (
	activityPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "persistence",
		Name:      "last_activity_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity persisted to Postgres.",
	})
	activitiesRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "activities",
		Name:      "recorded_total",
		Help:      "Activities created, labeled by submission path and activity type.",
	}, []string{"path", "type"})

	votesCast = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "voting",
		Name:      "votes_total",
		Help:      "Counted votes, labeled by value.",
	}, []string{"value"})
	duplicateVotes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "voting",
		Name:      "duplicate_votes_total",
		Help:      "Votes rejected because the user had already voted.",
	})
	ignoredVotes = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "voting",
		Name:      "ignored_votes_total",
		Help:      "Votes received after the activity left voting.",
	})
	transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "voting",
		Name:      "transitions_total",
		Help:      "Quorum transitions out of voting, labeled by resulting status.",
	}, []string{"status"})
	transitionsLost = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "voting",
		Name:      "transition_races_lost_total",
		Help:      "Quorum evaluations that found the activity already closed.",
	})
	pointsAwarded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "voting",
		Name:      "points_awarded_total",
		Help:      "Points credited to owners of approved activities.",
	})
	notarizationFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "notary",
		Name:      "failures_total",
		Help:      "Best-effort notarization calls that failed.",
	})

	sweptActivities = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "sweeper",
		Name:      "expired_activities_total",
		Help:      "Voting activities reaped after their TTL, labeled by policy.",
	}, []string{"policy"})
	lastSweepGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Subsystem: "sweeper",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the last completed sweep.",
	})
)

func init() {
	prometheus.MustRegister(
		activityPersistGauge,
		activitiesRecorded,
		votesCast,
		duplicateVotes,
		ignoredVotes,
		transitions,
		transitionsLost,
		pointsAwarded,
		notarizationFailures,
		sweptActivities,
		lastSweepGauge,
	)
}

// RecordActivityPersisted updates the persistence watermark gauge.
func RecordActivityPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	activityPersistGauge.Set(float64(ts.Unix()))
}

// RecordActivityRecorded counts a newly created activity.
func RecordActivityRecorded(path, activityType string) {
	activitiesRecorded.WithLabelValues(path, activityType).Inc()
}

func RecordVote(value string) { votesCast.WithLabelValues(value).Inc() }

func RecordDuplicateVote() { duplicateVotes.Inc() }

func RecordVoteIgnored() { ignoredVotes.Inc() }

func RecordTransition(status string) { transitions.WithLabelValues(status).Inc() }

func RecordTransitionLost() { transitionsLost.Inc() }

func RecordPointsAwarded(points int) { pointsAwarded.Add(float64(points)) }

func RecordNotarizationFailure() { notarizationFailures.Inc() }

// RecordSweep counts reaped activities and stamps the sweep time.
func RecordSweep(policy string, reaped int, at time.Time) {
	sweptActivities.WithLabelValues(policy).Add(float64(reaped))
	if !at.IsZero() {
		lastSweepGauge.Set(float64(at.Unix()))
	}
}
