package geospatial

import (
	"math"

	"github.com/paulmach/orb"

	"github.com/samirrijal/parkpass/internal/core/domain"
)

// BoundingBox returns a box containing every point within radiusMeters of
// center. The longitude half-width is asin(sin(r/R)/cos(lat)); a circle
// reaching a pole spans every longitude.
func BoundingBox(center domain.Coordinate, radiusMeters float64) domain.Bounds {
	lat, lon := center.Lat(), center.Lng()
	d := radiusMeters / orb.EarthRadius
	latDelta := toDeg(d)

	b := domain.Bounds{
		MinLat: lat - latDelta,
		MaxLat: lat + latDelta,
	}
	if b.MinLat <= -90 || b.MaxLat >= 90 {
		b.MinLat = math.Max(b.MinLat, -90)
		b.MaxLat = math.Min(b.MaxLat, 90)
		b.MinLon, b.MaxLon = -180, 180
		return b
	}

	lonDelta := toDeg(math.Asin(math.Sin(d) / math.Cos(toRad(lat))))
	b.MinLon, b.MaxLon = lon-lonDelta, lon+lonDelta
	return b
}

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDeg(rad float64) float64 {
	return rad * 180 / math.Pi
}
