package evidence

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/grievancegenie/platform/internal/shared/types"
)

// DistanceMeters is the great-circle distance between two points.
func DistanceMeters(a, b types.GeoPoint) float64 {
	return geo.DistanceHaversine(orb.Point{a.Lng, a.Lat}, orb.Point{b.Lng, b.Lat})
}

// WithinRadius reports whether b lies within radius meters of a.
func WithinRadius(a, b types.GeoPoint, radius float64) bool {
	return DistanceMeters(a, b) <= radius
}
