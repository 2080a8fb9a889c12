package geospatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/samirrijal/parkpass/internal/core/domain"
)

// Unit is a distance unit accepted by Distance.
type Unit string

const (
	Miles      Unit = "miles"
	Kilometers Unit = "kilometers"
	Meters     Unit = "meters"
)

const metersPerMile = 1609.344

// Distance returns the great-circle distance between two (lat, lng)
// coordinates in the requested unit. Unknown units and NaN inputs yield NaN.
//
// This is the only place that flips coordinate order: orb points are
// (lng, lat), everything else in the module is (lat, lng).
func Distance(from, to domain.Coordinate, unit Unit) float64 {
	meters := geo.DistanceHaversine(toPoint(from), toPoint(to))
	return FromMeters(meters, unit)
}

// FromMeters converts a metre value into unit.
func FromMeters(m float64, unit Unit) float64 {
	switch unit {
	case Miles:
		return m / metersPerMile
	case Kilometers:
		return m / 1000
	case Meters:
		return m
	default:
		return math.NaN()
	}
}

// ToMeters converts a value expressed in unit into metres.
func ToMeters(v float64, unit Unit) float64 {
	switch unit {
	case Miles:
		return v * metersPerMile
	case Kilometers:
		return v * 1000
	case Meters:
		return v
	default:
		return math.NaN()
	}
}

func toPoint(c domain.Coordinate) orb.Point {
	return orb.Point{c.Lng(), c.Lat()}
}
