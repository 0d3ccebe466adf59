package domain

import "math"

// EarthRadiusKm is the mean earth radius used for great-circle distances.
const EarthRadiusKm = 6371.0

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// IsUnknown reports whether c is the (0,0) sentinel used for a missing location.
func (c Coordinate) IsUnknown() bool {
	return c.Lat == 0 && c.Lon == 0
}

// DistanceKm returns the haversine distance between c and o in kilometres.
func (c Coordinate) DistanceKm(o Coordinate) float64 {
	dLat := toRadians(o.Lat - c.Lat)
	dLon := toRadians(o.Lon - c.Lon)
	lat1 := toRadians(c.Lat)
	lat2 := toRadians(o.Lat)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1)*math.Cos(lat2)
	return EarthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
