package domain

import "fmt"

// Coordinate is a geographic position stored as (lat, lng), matching the
// order of park centers in the source data. JSON form is [lat, lng].
type Coordinate [2]float64

// NewCoordinate builds a Coordinate from latitude and longitude.
func NewCoordinate(lat, lng float64) Coordinate {
	return Coordinate{lat, lng}
}

// Lat returns the latitude component.
func (c Coordinate) Lat() float64 { return c[0] }

// Lng returns the longitude component.
func (c Coordinate) Lng() float64 { return c[1] }

// Valid reports whether the coordinate lies within WGS 84 ranges.
func (c Coordinate) Valid() bool {
	return c[0] >= -90 && c[0] <= 90 && c[1] >= -180 && c[1] <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c[0], c[1])
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// Contains reports whether c falls inside the box (edges inclusive).
func (b Bounds) Contains(c Coordinate) bool {
	return c.Lat() >= b.MinLat && c.Lat() <= b.MaxLat &&
		c.Lng() >= b.MinLon && c.Lng() <= b.MaxLon
}

// Valid reports whether the box is non-inverted.
func (b Bounds) Valid() bool {
	return b.MinLat <= b.MaxLat && b.MinLon <= b.MaxLon
}
