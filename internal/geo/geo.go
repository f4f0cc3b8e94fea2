// Package geo holds the great-circle helpers used for proximity and risk math.
// Inputs are plain WGS84-like degrees; nothing is validated or reprojected.
package geo

import "math"

const EarthRadiusKm = 6371.0

var sectors = []string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// DistanceKm returns the haversine distance between two points.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := deg2rad(lat2 - lat1)
	dLon := deg2rad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(deg2rad(lat1))*math.Cos(deg2rad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// BearingDeg returns the initial bearing from point 1 to point 2 in [0, 360).
func BearingDeg(lat1, lon1, lat2, lon2 float64) float64 {
	dLon := deg2rad(lon2 - lon1)
	y := math.Sin(dLon) * math.Cos(deg2rad(lat2))
	x := math.Cos(deg2rad(lat1))*math.Sin(deg2rad(lat2)) -
		math.Sin(deg2rad(lat1))*math.Cos(deg2rad(lat2))*math.Cos(dLon)
	return math.Mod(rad2deg(math.Atan2(y, x))+360, 360)
}

// Sector maps a bearing onto one of the eight compass sectors.
func Sector(bearing float64) string {
	idx := int(math.Round(bearing/45.0)) % 8
	if idx < 0 {
		idx += 8
	}
	return sectors[idx]
}

func deg2rad(deg float64) float64 { return deg * math.Pi / 180 }
func rad2deg(rad float64) float64 { return rad * 180 / math.Pi }
