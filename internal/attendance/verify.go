package attendance

import (
	"campusattend/internal/event"
	"campusattend/internal/geo"
	"campusattend/internal/location"
)

// VerifyResult is the outcome of the distance-within-radius check.
type VerifyResult struct {
	DistanceM float64
	Verified  bool
}

// Verify computes the great-circle distance from the student's position to
// the event geofence center and checks it against the allowed radius. The
// boundary is inclusive: distance exactly equal to the radius verifies.
func Verify(pos location.Position, loc event.Location) VerifyResult {
	d := geo.DistanceMeters(pos.Latitude, pos.Longitude, loc.Latitude, loc.Longitude)
	return VerifyResult{
		DistanceM: d,
		Verified:  d <= loc.RadiusM,
	}
}
