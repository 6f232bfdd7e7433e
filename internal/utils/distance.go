package utils

import (
	"math"
)

func CalculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	return haversineDistance(lat1, lon1, lat2, lon2)
}

func haversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	// Convert to radians
	lat1Rad := lat1 * math.Pi / 180
	lon1Rad := lon1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	lon2Rad := lon2 * math.Pi / 180

	// Differences
	dLat := lat2Rad - lat1Rad
	dLon := lon2Rad - lon1Rad

	// Haversine formula
	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	// Distance in kilometers
	distance := EarthRadiusKM * c
	return distance
}

func IsValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// DistanceToSegmentKM returns the shortest distance from a point to the
// segment A-B. The segment is projected onto a plane tangent at the point,
// which is accurate for the short legs a dispatch route is made of.
func DistanceToSegmentKM(pLat, pLon, aLat, aLon, bLat, bLon float64) float64 {
	kmPerDegLat := EarthRadiusKM * math.Pi / 180
	kmPerDegLon := kmPerDegLat * math.Cos(pLat*math.Pi/180)

	ax := (aLon - pLon) * kmPerDegLon
	ay := (aLat - pLat) * kmPerDegLat
	bx := (bLon - pLon) * kmPerDegLon
	by := (bLat - pLat) * kmPerDegLat

	dx, dy := bx-ax, by-ay
	lengthSq := dx*dx + dy*dy
	if lengthSq == 0 {
		return CalculateDistance(pLat, pLon, aLat, aLon)
	}

	// Parameter of the projection of the origin onto A-B, clamped to the segment.
	t := -(ax*dx + ay*dy) / lengthSq
	t = math.Max(0, math.Min(1, t))

	cx := ax + t*dx
	cy := ay + t*dy
	return math.Sqrt(cx*cx + cy*cy)
}

// SegmentIntersectsRadius reports whether the circle of radiusKM around the
// center touches the segment A-B.
func SegmentIntersectsRadius(centerLat, centerLon, radiusKM, aLat, aLon, bLat, bLon float64) bool {
	return DistanceToSegmentKM(centerLat, centerLon, aLat, aLon, bLat, bLon) <= radiusKM
}

// TravelMinutes converts a distance to minutes at a constant speed.
func TravelMinutes(distanceKM float64, averageSpeedKMH float64) float64 {
	if averageSpeedKMH <= 0 {
		averageSpeedKMH = DefaultAverageSpeedKMH
	}
	return distanceKM / averageSpeedKMH * 60
}

// RoundTo rounds v to the given number of decimal places.
func RoundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
