// Package utils holds small geographic helpers shared by the vehicle index
// and trail code.
package utils

import (
	"errors"
	"math"
)

// RadiusOfEarthInMeters is the mean Earth radius used for distances.
const RadiusOfEarthInMeters = 6371010.0

// CoordinateBounds is a latitude/longitude box, inclusive on every edge.
type CoordinateBounds struct {
	MinLat float64
	MaxLat float64
	MinLon float64
	MaxLon float64
}

// Validate reports an inverted or out-of-range box.
func (b CoordinateBounds) Validate() error {
	switch {
	case b.MinLat > b.MaxLat || b.MinLon > b.MaxLon:
		return errors.New("bounds are inverted")
	case b.MinLat < -90 || b.MaxLat > 90:
		return errors.New("latitude out of range")
	case b.MinLon < -180 || b.MaxLon > 180:
		return errors.New("longitude out of range")
	}
	return nil
}

// Contains reports whether the point lies inside b.
func (b CoordinateBounds) Contains(lat, lon float64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Distance returns the great-circle distance in meters between two points.
// Points less than 0.2 degrees apart on both axes use the equirectangular
// approximation.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * (math.Pi / 180)
	lat2Rad := lat2 * (math.Pi / 180)

	if math.Abs(lat2-lat1) < 0.2 && math.Abs(lon2-lon1) < 0.2 {
		x := (lon2 - lon1) * (math.Pi / 180) * math.Cos((lat1Rad+lat2Rad)/2)
		y := (lat2 - lat1) * (math.Pi / 180)
		return RadiusOfEarthInMeters * math.Sqrt(x*x+y*y)
	}

	deltaLon := (lon2 - lon1) * (math.Pi / 180)
	y := math.Sqrt(math.Pow(math.Cos(lat2Rad)*math.Sin(deltaLon), 2) +
		math.Pow(math.Cos(lat1Rad)*math.Sin(lat2Rad)-math.Sin(lat1Rad)*math.Cos(lat2Rad)*math.Cos(deltaLon), 2))
	x := math.Sin(lat1Rad)*math.Sin(lat2Rad) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Cos(deltaLon)
	return RadiusOfEarthInMeters * math.Atan2(y, x)
}

// CalculateBounds returns the box enclosing a circle of distance meters
// around lat/lon.
func CalculateBounds(lat, lon, distance float64) CoordinateBounds {
	latRadians := lat * math.Pi / 180
	lonRadians := lon * math.Pi / 180

	latOffset := distance / RadiusOfEarthInMeters
	lonOffset := distance / (math.Cos(latRadians) * RadiusOfEarthInMeters)

	return CoordinateBounds{
		MinLat: (latRadians - latOffset) * 180 / math.Pi,
		MaxLat: (latRadians + latOffset) * 180 / math.Pi,
		MinLon: (lonRadians - lonOffset) * 180 / math.Pi,
		MaxLon: (lonRadians + lonOffset) * 180 / math.Pi,
	}
}

// PathLength sums the distance along consecutive [lat, lon] points.
func PathLength(points [][]float64) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1][0], points[i-1][1], points[i][0], points[i][1])
	}
	return total
}

// Bearing returns the initial compass bearing in degrees [0, 360) from the
// first point to the second.
func Bearing(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(deltaLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(deltaLon)
	b := math.Atan2(y, x) * 180 / math.Pi
	if b < 0 {
		b += 360
	}
	return b
}
