package geo

import (
	"math"
	"testing"
)

func TestDistanceMeters(t *testing.T) {
	cases := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
		tolerance              float64
	}{
		{
			name: "same point is zero",
			lat1: 12.9716, lon1: 77.5946, lat2: 12.9716, lon2: 77.5946,
			want: 0, tolerance: 0.001,
		},
		{
			name: "one degree of latitude",
			lat1: 0, lon1: 0, lat2: 1, lon2: 0,
			want: 111194.93, tolerance: 1,
		},
		{
			name: "bangalore to chennai",
			lat1: 12.9716, lon1: 77.5946, lat2: 13.0827, lon2: 80.2707,
			want: 290_000, tolerance: 5_000,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DistanceMeters(tc.lat1, tc.lon1, tc.lat2, tc.lon2)
			if math.Abs(got-tc.want) > tc.tolerance {
				t.Fatalf("DistanceMeters = %f, want %f ± %f", got, tc.want, tc.tolerance)
			}
		})
	}
}

func TestDistanceSymmetry(t *testing.T) {
	pairs := [][4]float64{
		{12.9716, 77.5946, 13.0827, 80.2707},
		{-33.8688, 151.2093, 51.5074, -0.1278},
		{0, 0, 0, 180},
	}
	for _, p := range pairs {
		ab := DistanceMeters(p[0], p[1], p[2], p[3])
		ba := DistanceMeters(p[2], p[3], p[0], p[1])
		if math.Abs(ab-ba) > 1e-6 {
			t.Fatalf("asymmetric distance: %f vs %f for %v", ab, ba, p)
		}
	}
}

func TestDistanceNaNPropagates(t *testing.T) {
	if !math.IsNaN(DistanceMeters(math.NaN(), 0, 0, 0)) {
		t.Fatal("NaN input should propagate NaN")
	}
}

func TestValidCoordinate(t *testing.T) {
	cases := []struct {
		lat, lon float64
		want     bool
	}{
		{0, 0, true},
		{90, 180, true},
		{-90, -180, true},
		{90.01, 0, false},
		{0, -180.5, false},
		{-91, 200, false},
	}
	for _, tc := range cases {
		if got := ValidCoordinate(tc.lat, tc.lon); got != tc.want {
			t.Errorf("ValidCoordinate(%f, %f) = %v, want %v", tc.lat, tc.lon, got, tc.want)
		}
	}
}
