package calculator

import (
	"math"

	"delivery-match/internal/models"
)

const EarthRadiusKm = 6371.0

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// HaversineKm computes the great-circle distance between two points in kilometers.
func HaversineKm(p, q models.Coordinate) float64 {
	lat1 := toRadians(p.Lat)
	lat2 := toRadians(q.Lat)
	return haversineRad(lat1, toRadians(p.Lon), math.Cos(lat1), lat2, toRadians(q.Lon), math.Cos(lat2))
}

// haversineRad takes radians and the precomputed cosine of each latitude.
func haversineRad(lat1, lon1, cosLat1, lat2, lon2, cosLat2 float64) float64 {
	sinDLat := math.Sin((lat2 - lat1) / 2)
	sinDLon := math.Sin((lon2 - lon1) / 2)

	a := sinDLat*sinDLat + cosLat1*cosLat2*sinDLon*sinDLon
	c := 2 * math.Asin(math.Min(1, math.Sqrt(a)))

	return EarthRadiusKm * c
}
