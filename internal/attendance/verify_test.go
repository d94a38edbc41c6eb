package attendance

import (
	"math"
	"testing"

	"campusattend/internal/event"
	"campusattend/internal/geo"
	"campusattend/internal/location"
)

// metersPerDegreeLat converts a northward offset to degrees; along a
// meridian the Haversine distance degenerates to R*dphi, so offsets built
// this way produce near-exact distances.
const metersPerDegreeLat = geo.EarthRadiusMeters * math.Pi / 180

func positionAt(center event.Location, northMeters float64) location.Position {
	return location.Position{
		Latitude:  center.Latitude + northMeters/metersPerDegreeLat,
		Longitude: center.Longitude,
	}
}

func TestVerify(t *testing.T) {
	center := event.Location{Latitude: 12.9716, Longitude: 77.5946, RadiusM: 100}

	cases := []struct {
		name     string
		distance float64
		want     bool
	}{
		{"well inside", 40, true},
		{"near the edge", 85, true},
		{"outside", 150, false},
		{"far outside", 5000, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Verify(positionAt(center, tc.distance), center)
			if res.Verified != tc.want {
				t.Fatalf("Verified = %v, want %v (distance %f)", res.Verified, tc.want, res.DistanceM)
			}
			if math.Abs(res.DistanceM-tc.distance) > 0.5 {
				t.Fatalf("DistanceM = %f, want ~%f", res.DistanceM, tc.distance)
			}
		})
	}
}

func TestVerifyBoundaryInclusive(t *testing.T) {
	center := event.Location{Latitude: 12.9716, Longitude: 77.5946}
	pos := positionAt(center, 100)

	// Pin the radius to the exactly computed distance: the boundary case
	// must verify.
	center.RadiusM = geo.DistanceMeters(pos.Latitude, pos.Longitude, center.Latitude, center.Longitude)
	if res := Verify(pos, center); !res.Verified {
		t.Fatalf("distance == radius must verify, got %+v", res)
	}

	center.RadiusM = math.Nextafter(center.RadiusM, 0)
	if res := Verify(pos, center); res.Verified {
		t.Fatalf("distance just over radius must not verify, got %+v", res)
	}
}
