package detection

import (
	"fmt"
	"sort"
	"strings"
)

// ActivityType is the label a classifier assigns to a trace.
type ActivityType string

const (
	Walking         ActivityType = "walking"
	Biking          ActivityType = "biking"
	Driving         ActivityType = "driving"
	PublicTransport ActivityType = "public_transport"
)

// Classification is the outcome of running a classifier over a trace.
type Classification struct {
	Type       ActivityType `json:"type"`
	Confidence float64      `json:"confidence"`
	Features   Features     `json:"features"`
}

// Classifier maps extracted features to an activity type.
type Classifier interface {
	Name() string
	Classify(Features) Classification
}

// Strategy names.
const (
	StrategyFeatures = "features"
	StrategySpeed    = "speed"
)

// FeatureRules evaluates the four ordered threshold rules over speed mean and
// variance. The first matching rule wins because the ranges overlap.
type FeatureRules struct{}

// Name implements Classifier.
func (FeatureRules) Name() string { return StrategyFeatures }

// Classify implements Classifier.
func (FeatureRules) Classify(f Features) Classification {
	out := Classification{Features: f}
	switch {
	case f.AvgSpeed >= 40 && f.SpeedVariance < 10:
		out.Type, out.Confidence = Driving, 0.95
	case f.AvgSpeed >= 10 && f.AvgSpeed <= 35 && f.SpeedVariance < 15:
		out.Type, out.Confidence = Biking, 0.85
	case f.AvgSpeed >= 2 && f.AvgSpeed <= 8:
		out.Type, out.Confidence = Walking, 0.80
	case f.AvgSpeed >= 5 && f.AvgSpeed <= 50 && f.SpeedVariance > 20:
		out.Type, out.Confidence = PublicTransport, 0.70
	default:
		out.Type, out.Confidence = Walking, 0.60
	}
	return out
}

// SpeedRules is the speed-only table used by the sensor intake path.
type SpeedRules struct{}

// Name implements Classifier.
func (SpeedRules) Name() string { return StrategySpeed }

// Classify implements Classifier.
func (SpeedRules) Classify(f Features) Classification {
	out := Classification{Features: f}
	switch {
	case f.AvgSpeed >= 40:
		out.Type, out.Confidence = Driving, 0.9
	case f.AvgSpeed >= 10 && f.AvgSpeed <= 30:
		out.Type, out.Confidence = Biking, 0.85
	case f.AvgSpeed >= 3 && f.AvgSpeed <= 8:
		out.Type, out.Confidence = Walking, 0.8
	default:
		out.Type, out.Confidence = Walking, 0.6
	}
	return out
}

var strategies = map[string]Classifier{
	StrategyFeatures: FeatureRules{},
	StrategySpeed:    SpeedRules{},
}

// Lookup returns the classifier registered under name.
func Lookup(name string) (Classifier, error) {
	c, ok := strategies[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown classifier strategy %q (known: %s)", name, strings.Join(Strategies(), ", "))
	}
	return c, nil
}

// Strategies lists registered strategy names in sorted order.
func Strategies() []string {
	names := make([]string, 0, len(strategies))
	for name := range strategies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClassifyTrace extracts features from samples and classifies them.
func ClassifyTrace(c Classifier, samples []Sample) (Classification, error) {
	f, err := Extract(samples)
	if err != nil {
		return Classification{}, err
	}
	return c.Classify(f), nil
}
