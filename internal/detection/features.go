// Package detection turns raw movement-sensor traces into an activity type.
package detection

import (
	"errors"
	"math"
	"time"

	"github.com/montanaflynn/stats"
)

// ErrEmptyTrace is returned when a trace carries no samples.
var ErrEmptyTrace = errors.New("sensor trace is empty")

// Sample is one reading from a device. Speed is km/h, acceleration m/s² and
// altitude metres. Optional readings are nil when the device did not report
// them.
type Sample struct {
	Speed        float64   `json:"speed"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Timestamp    time.Time `json:"timestamp"`
	Acceleration *float64  `json:"acceleration,omitempty"`
	Altitude     *float64  `json:"altitude,omitempty"`
}

// Features aggregates a trace into the motion statistics the classifiers use.
type Features struct {
	AvgSpeed             float64 `json:"avgSpeed"`
	MaxSpeed             float64 `json:"maxSpeed"`
	SpeedVariance        float64 `json:"speedVariance"`
	AccelerationVariance float64 `json:"accelerationVariance"`
	AltitudeChange       float64 `json:"altitudeChange"`
	DurationMinutes      float64 `json:"duration"`
}

// Extract computes Features over an ordered trace. Variances are population
// variances. Missing acceleration and altitude readings count as zero.
// Duration is last minus first timestamp and is negative for reversed traces.
func Extract(samples []Sample) (Features, error) {
	if len(samples) == 0 {
		return Features{}, ErrEmptyTrace
	}

	speeds := make(stats.Float64Data, len(samples))
	accelerations := make(stats.Float64Data, len(samples))
	for i, s := range samples {
		speeds[i] = s.Speed
		accelerations[i] = valueOrZero(s.Acceleration)
	}

	avg, err := speeds.Mean()
	if err != nil {
		return Features{}, err
	}
	maxSpeed, err := speeds.Max()
	if err != nil {
		return Features{}, err
	}
	speedVariance, err := speeds.PopulationVariance()
	if err != nil {
		return Features{}, err
	}
	accelVariance, err := accelerations.PopulationVariance()
	if err != nil {
		return Features{}, err
	}

	first, last := samples[0], samples[len(samples)-1]

	return Features{
		AvgSpeed:             avg,
		MaxSpeed:             maxSpeed,
		SpeedVariance:        speedVariance,
		AccelerationVariance: accelVariance,
		AltitudeChange:       math.Abs(valueOrZero(last.Altitude) - valueOrZero(first.Altitude)),
		DurationMinutes:      last.Timestamp.Sub(first.Timestamp).Minutes(),
	}, nil
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
