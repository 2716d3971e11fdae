package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func trace(start time.Time, speeds ...float64) []Sample {
	out := make([]Sample, len(speeds))
	for i, s := range speeds {
		out[i] = Sample{
			Speed:     s,
			Latitude:  37.7749 + float64(i)*0.0001,
			Longitude: -122.4194 - float64(i)*0.0001,
			Timestamp: start.Add(time.Duration(i) * time.Minute),
		}
	}
	return out
}

func TestExtractRejectsEmptyTrace(t *testing.T) {
	_, err := Extract(nil)
	require.ErrorIs(t, err, ErrEmptyTrace)

	_, err = Extract([]Sample{})
	require.ErrorIs(t, err, ErrEmptyTrace)
}

func TestExtractComputesPopulationStatistics(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	samples := trace(start, 15, 18, 12)
	samples[0].Acceleration = ptr(0.5)
	samples[1].Acceleration = ptr(0.3)
	samples[2].Acceleration = ptr(-0.2)
	samples[0].Altitude = ptr(10)
	samples[2].Altitude = ptr(15)

	f, err := Extract(samples)
	require.NoError(t, err)

	require.InDelta(t, 15.0, f.AvgSpeed, 1e-9)
	require.InDelta(t, 18.0, f.MaxSpeed, 1e-9)
	// (0 + 9 + 9) / 3, divisor n.
	require.InDelta(t, 6.0, f.SpeedVariance, 1e-9)
	// mean 0.2: (0.09 + 0.01 + 0.16) / 3
	require.InDelta(t, 0.26/3, f.AccelerationVariance, 1e-9)
	require.InDelta(t, 5.0, f.AltitudeChange, 1e-9)
	require.InDelta(t, 2.0, f.DurationMinutes, 1e-9)
}

func TestExtractTreatsMissingReadingsAsZero(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	samples := trace(start, 5, 5)
	samples[1].Acceleration = ptr(2)
	samples[1].Altitude = ptr(-30)

	f, err := Extract(samples)
	require.NoError(t, err)
	require.InDelta(t, 1.0, f.AccelerationVariance, 1e-9)
	require.InDelta(t, 30.0, f.AltitudeChange, 1e-9)
}

func TestExtractSingleSample(t *testing.T) {
	f, err := Extract([]Sample{{Speed: 7, Timestamp: time.Now()}})
	require.NoError(t, err)
	require.Equal(t, 7.0, f.AvgSpeed)
	require.Zero(t, f.SpeedVariance)
	require.Zero(t, f.DurationMinutes)
}

func TestExtractReversedTraceHasNegativeDuration(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	samples := trace(start, 4, 4, 4)
	samples[0], samples[2] = samples[2], samples[0]

	f, err := Extract(samples)
	require.NoError(t, err)
	require.InDelta(t, -2.0, f.DurationMinutes, 1e-9)
}

func TestExtractBounds(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	inputs := [][]float64{
		{0},
		{0, 0, 0},
		{1, 100, 3, 55, 0.5},
		{42, 42, 42, 42},
		{3.3, 7.1, 2.2, 90, 12},
	}
	for _, speeds := range inputs {
		samples := trace(start, speeds...)
		for i := range samples {
			samples[i].Acceleration = ptr(float64(i) - 1.5)
		}
		f, err := Extract(samples)
		require.NoError(t, err)
		require.GreaterOrEqual(t, f.SpeedVariance, 0.0)
		require.GreaterOrEqual(t, f.AccelerationVariance, 0.0)
		for _, c := range []Classifier{FeatureRules{}, SpeedRules{}} {
			got := c.Classify(f)
			require.GreaterOrEqual(t, got.Confidence, 0.0)
			require.LessOrEqual(t, got.Confidence, 1.0)
		}
	}
}
