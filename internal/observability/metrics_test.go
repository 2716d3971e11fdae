package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecordActivityRecorded(t *testing.T) {
	before := testutil.ToFloat64(activitiesRecorded.WithLabelValues("sensor", "biking"))
	RecordActivityRecorded("sensor", "biking")
	require.InDelta(t, before+1, testutil.ToFloat64(activitiesRecorded.WithLabelValues("sensor", "biking")), 1e-9)
}

func TestVotingCounters(t *testing.T) {
	beforeYes := testutil.ToFloat64(votesCast.WithLabelValues("yes"))
	beforePoints := testutil.ToFloat64(pointsAwarded)
	beforeVerified := testutil.ToFloat64(transitions.WithLabelValues("verified"))

	RecordVote("yes")
	RecordVote("yes")
	RecordPointsAwarded(50)
	RecordTransition("verified")

	require.InDelta(t, beforeYes+2, testutil.ToFloat64(votesCast.WithLabelValues("yes")), 1e-9)
	require.InDelta(t, beforePoints+50, testutil.ToFloat64(pointsAwarded), 1e-9)
	require.InDelta(t, beforeVerified+1, testutil.ToFloat64(transitions.WithLabelValues("verified")), 1e-9)
}

func TestRecordSweepStampsGauge(t *testing.T) {
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	before := testutil.ToFloat64(sweptActivities.WithLabelValues("reject"))

	RecordSweep("reject", 3, at)

	require.InDelta(t, before+3, testutil.ToFloat64(sweptActivities.WithLabelValues("reject")), 1e-9)
	require.InDelta(t, float64(at.Unix()), testutil.ToFloat64(lastSweepGauge), 1e-9)
}

func TestRecordActivityPersistedIgnoresZeroTime(t *testing.T) {
	RecordActivityPersisted(time.Unix(1700000000, 0))
	RecordActivityPersisted(time.Time{})
	require.InDelta(t, 1700000000, testutil.ToFloat64(activityPersistGauge), 1e-9)
}
