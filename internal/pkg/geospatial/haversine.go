package geospatial

import "math"

// Mean Earth radius in meters (IUGG R1).
const earthRadiusM = 6371000.0

// metersPerDegLat is the length of one degree of latitude. Longitude
// degrees shrink with the cosine of the latitude.
const metersPerDegLat = earthRadiusM * math.Pi / 180

// Haversine returns the great-circle distance in meters between two
// WGS84 points. The spherical model is accurate to well under a percent
// at city scale, which is all station-to-station math needs.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	sinLat := math.Sin(toRad(lat2-lat1) / 2)
	sinLon := math.Sin(toRad(lon2-lon1) / 2)

	a := sinLat*sinLat + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*sinLon*sinLon
	if a > 1 {
		a = 1
	}
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

// BoundingBox returns the box that encloses a circle of radiusMeters
// around a point. Used as a coarse index-friendly prefilter; callers
// still apply an exact distance check inside the box.
func BoundingBox(lat, lon, radiusMeters float64) (minLat, minLon, maxLat, maxLon float64) {
	latDelta := radiusMeters / metersPerDegLat
	lonDelta := radiusMeters / (metersPerDegLat * math.Cos(toRad(lat)))

	return lat - latDelta, lon - lonDelta, lat + latDelta, lon + lonDelta
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}
