package ctdf

import "math"

const earthRadiusMetres = 6371e3

type Location struct {
	Latitude  float64 `json:"lat" bson:"lat" yaml:"lat" groups:"basic"`
	Longitude float64 `json:"lng" bson:"lng" yaml:"lng" groups:"basic"`
}

func (l Location) Valid() bool {
	if math.IsNaN(l.Latitude) || math.IsNaN(l.Longitude) || math.IsInf(l.Latitude, 0) || math.IsInf(l.Longitude, 0) {
		return false
	}

	return l.Latitude >= -90 && l.Latitude <= 90 && l.Longitude >= -180 && l.Longitude <= 180
}

// Interpolate returns the point a fraction of the way from l to to, linear
// per axis. A fraction of 1 returns to exactly.
func (l Location) Interpolate(to Location, fraction float64) Location {
	if fraction >= 1 {
		return to
	}
	if fraction <= 0 {
		return l
	}

	return Location{
		Latitude:  l.Latitude + (to.Latitude-l.Latitude)*fraction,
		Longitude: l.Longitude + (to.Longitude-l.Longitude)*fraction,
	}
}

// Bearing is the initial great-circle bearing from l to to in degrees
// clockwise from north, normalised to [0, 360)
func (l Location) Bearing(to Location) float64 {
	lat1 := toRadians(l.Latitude)
	lat2 := toRadians(to.Latitude)
	deltaLng := toRadians(to.Longitude - l.Longitude)

	y := math.Sin(deltaLng) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(deltaLng)

	return NormaliseBearing(toDegrees(math.Atan2(y, x)))
}

// Distance in metres using the haversine formula
func (l Location) Distance(to Location) float64 {
	lat1 := toRadians(l.Latitude)
	lat2 := toRadians(to.Latitude)
	deltaLat := toRadians(to.Latitude - l.Latitude)
	deltaLng := toRadians(to.Longitude - l.Longitude)

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(deltaLng/2)*math.Sin(deltaLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMetres * c
}

func NormaliseBearing(bearing float64) float64 {
	bearing = math.Mod(bearing, 360)
	if bearing < 0 {
		bearing += 360
	}
	if bearing >= 360 {
		bearing = 0
	}

	return bearing
}

// BearingDifference calculates the smallest angle between two bearings
func BearingDifference(b1, b2 float64) float64 {
	diff := math.Abs(b1 - b2)
	if diff > 180 {
		diff = 360 - diff
	}
	return diff
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

func toDegrees(radians float64) float64 {
	return radians * 180 / math.Pi
}
