package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFeatureRulesOrder(t *testing.T) {
	tests := []struct {
		name       string
		features   Features
		wantType   ActivityType
		wantConfid float64
	}{
		{name: "steady highway", features: Features{AvgSpeed: 45, SpeedVariance: 6}, wantType: Driving, wantConfid: 0.95},
		{name: "fast but erratic falls to default", features: Features{AvgSpeed: 60, SpeedVariance: 30}, wantType: Walking, wantConfid: 0.60},
		{name: "cycling", features: Features{AvgSpeed: 15, SpeedVariance: 6}, wantType: Biking, wantConfid: 0.85},
		{name: "cycling upper bound", features: Features{AvgSpeed: 35, SpeedVariance: 14.9}, wantType: Biking, wantConfid: 0.85},
		{name: "walking wins over transit overlap", features: Features{AvgSpeed: 6, SpeedVariance: 25}, wantType: Walking, wantConfid: 0.80},
		{name: "bus stop and go", features: Features{AvgSpeed: 20, SpeedVariance: 40}, wantType: PublicTransport, wantConfid: 0.70},
		{name: "standing still", features: Features{AvgSpeed: 0.5}, wantType: Walking, wantConfid: 0.60},
		{name: "gap between walking and biking", features: Features{AvgSpeed: 9, SpeedVariance: 1}, wantType: Walking, wantConfid: 0.60},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := FeatureRules{}.Classify(tc.features)
			require.Equal(t, tc.wantType, got.Type)
			require.Equal(t, tc.wantConfid, got.Confidence)
			require.Equal(t, tc.features, got.Features)
		})
	}
}

func TestSpeedRules(t *testing.T) {
	tests := []struct {
		speed      float64
		wantType   ActivityType
		wantConfid float64
	}{
		{speed: 40, wantType: Driving, wantConfid: 0.9},
		{speed: 31, wantType: Walking, wantConfid: 0.6},
		{speed: 30, wantType: Biking, wantConfid: 0.85},
		{speed: 10, wantType: Biking, wantConfid: 0.85},
		{speed: 8, wantType: Walking, wantConfid: 0.8},
		{speed: 3, wantType: Walking, wantConfid: 0.8},
		{speed: 1, wantType: Walking, wantConfid: 0.6},
	}
	for _, tc := range tests {
		got := SpeedRules{}.Classify(Features{AvgSpeed: tc.speed, SpeedVariance: 100})
		require.Equal(t, tc.wantType, got.Type, "speed %v", tc.speed)
		require.Equal(t, tc.wantConfid, got.Confidence, "speed %v", tc.speed)
	}
}

func TestClassifyTraceScenarios(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	biking, err := ClassifyTrace(FeatureRules{}, trace(start, 15, 18, 12))
	require.NoError(t, err)
	require.Equal(t, Biking, biking.Type)
	require.Equal(t, 0.85, biking.Confidence)

	driving, err := ClassifyTrace(FeatureRules{}, trace(start, 45, 42, 48))
	require.NoError(t, err)
	require.Equal(t, Driving, driving.Type)
	require.Equal(t, 0.95, driving.Confidence)

	_, err = ClassifyTrace(SpeedRules{}, nil)
	require.ErrorIs(t, err, ErrEmptyTrace)
}

func TestClassifierDeterminism(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	samples := trace(start, 4.2, 5.5, 3.9, 6.1, 27, 2.2)

	for _, name := range Strategies() {
		c, err := Lookup(name)
		require.NoError(t, err)

		first, err := ClassifyTrace(c, samples)
		require.NoError(t, err)
		for i := 0; i < 20; i++ {
			again, err := ClassifyTrace(c, samples)
			require.NoError(t, err)
			require.Equal(t, first.Type, again.Type)
			require.Equal(t, first.Confidence, again.Confidence)
		}
	}
}

func TestLookup(t *testing.T) {
	c, err := Lookup(" Speed ")
	require.NoError(t, err)
	require.Equal(t, StrategySpeed, c.Name())

	c, err = Lookup("features")
	require.NoError(t, err)
	require.Equal(t, StrategyFeatures, c.Name())

	_, err = Lookup("neural")
	require.Error(t, err)
	require.Equal(t, []string{"features", "speed"}, Strategies())
}
