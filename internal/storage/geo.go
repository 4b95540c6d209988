package storage

import (
	"math"

	geo "github.com/kellydunn/golang-geo"
)

// kmPerDegree is the length of one degree of latitude on a 6371 km sphere.
const kmPerDegree = 2 * math.Pi * 6371 / 360

// Kilometers is the great-circle distance between two points.
func Kilometers(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.NewPoint(lat1, lon1).GreatCircleDistance(geo.NewPoint(lat2, lon2))
}

// latitudeWindow is the half-height in degrees of the band that can hold
// points within radiusKm. Areas outside it are skipped before the exact
// distance test.
func latitudeWindow(radiusKm float64) float64 {
	return radiusKm / kmPerDegree
}
