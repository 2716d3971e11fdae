// Package reward holds the carbon and point lookup tables.
package reward

import "strings"

// Rates is what an activity type earns. CarbonPerKm is kg CO2 avoided per km
// relative to driving; callers multiply it by the trip distance.
type Rates struct {
	CarbonPerKm float64 `json:"carbonSavedPerKm"`
	Points      int     `json:"points"`
}

// CarbonSaved applies the per-km rate to a trip distance.
func (r Rates) CarbonSaved(distanceKm float64) float64 {
	if distanceKm <= 0 {
		return 0
	}
	return r.CarbonPerKm * distanceKm
}

var carbonPerKm = map[string]float64{
	"biking":           0.2,
	"walking":          0.3,
	"public_transport": 0.15,
}

var flatPoints = map[string]int{
	"biking":           10,
	"walking":          15,
	"public_transport": 8,
}

var aliases = map[string]string{
	"cycling": "biking",
	"bus":     "public_transport",
}

// Calculate looks up the rates for an activity type. Average speed is accepted
// for tiered tables but does not affect the current ones. Driving and unknown
// types earn nothing.
func Calculate(activityType string, avgSpeed float64) Rates {
	key := Normalize(activityType)
	return Rates{
		CarbonPerKm: carbonPerKm[key],
		Points:      flatPoints[key],
	}
}

// Normalize lower-cases a type name and resolves aliases.
func Normalize(activityType string) string {
	key := strings.ToLower(strings.TrimSpace(activityType))
	if canonical, ok := aliases[key]; ok {
		return canonical
	}
	return key
}
