// Package geo computes great-circle distances over sensor routes.
package geo

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// EarthRadiusKm is the mean Earth radius used by Distance.
const EarthRadiusKm = 6371.0

// Distance returns the Haversine distance in kilometres between two
// latitude/longitude pairs given in degrees.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLon := toRadians(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// PointDistance is Distance over orb points, which store [lon, lat].
func PointDistance(a, b orb.Point) float64 {
	return Distance(a.Lat(), a.Lon(), b.Lat(), b.Lon())
}

// RouteDistance sums consecutive segment distances. Routes with fewer than
// two points have zero length.
func RouteDistance(route orb.LineString) float64 {
	if len(route) < 2 {
		return 0
	}
	total := 0.0
	for i := 1; i < len(route); i++ {
		total += PointDistance(route[i-1], route[i])
	}
	return total
}

// NewPoint builds an orb point from latitude and longitude.
func NewPoint(lat, lon float64) orb.Point {
	return orb.Point{lon, lat}
}

// RouteFeature renders a route as a GeoJSON feature. Empty routes yield nil.
func RouteFeature(route orb.LineString, properties map[string]any) *geojson.Feature {
	if len(route) == 0 {
		return nil
	}
	feature := geojson.NewFeature(route)
	for k, v := range properties {
		feature.Properties[k] = v
	}
	return feature
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
