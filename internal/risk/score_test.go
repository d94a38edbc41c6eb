package risk

import (
	"testing"
	"time"
)

func TestScore(t *testing.T) {
	scheduled := time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		c    Candidate
		want int
	}{
		{
			name: "clean on-time marking",
			c: Candidate{
				DistanceM: 75, RadiusM: 100, AccuracyM: 10,
				MarkedAt:    scheduled.Add(5 * time.Minute),
				ScheduledAt: &scheduled,
			},
			want: 0,
		},
		{
			name: "borderline distance, low accuracy, 90 minutes late",
			c: Candidate{
				DistanceM: 90, RadiusM: 100, AccuracyM: 60,
				MarkedAt:    scheduled.Add(90 * time.Minute),
				ScheduledAt: &scheduled,
			},
			want: 45,
		},
		{
			name: "90 minutes early counts as skew too",
			c: Candidate{
				DistanceM: 10, RadiusM: 100, AccuracyM: 5,
				MarkedAt:    scheduled.Add(-90 * time.Minute),
				ScheduledAt: &scheduled,
			},
			want: 10,
		},
		{
			name: "each fraud flag adds 25",
			c: Candidate{
				DistanceM: 10, RadiusM: 100, AccuracyM: 5,
				FraudFlags:  []string{"location_spoofing", "device_mismatch"},
				MarkedAt:    scheduled,
				ScheduledAt: &scheduled,
			},
			want: 50,
		},
		{
			name: "clamped at 100",
			c: Candidate{
				DistanceM: 95, RadiusM: 100, AccuracyM: 200,
				FraudFlags:  []string{"location_spoofing", "time_anomaly", "device_mismatch", "multiple_attempts"},
				MarkedAt:    scheduled.Add(3 * time.Hour),
				ScheduledAt: &scheduled,
			},
			want: 100,
		},
		{
			name: "missing schedule skips the skew factor",
			c: Candidate{
				DistanceM: 10, RadiusM: 100, AccuracyM: 5,
				MarkedAt: scheduled.Add(6 * time.Hour),
			},
			want: 0,
		},
		{
			name: "distance exactly at 80 percent is not borderline",
			c: Candidate{
				DistanceM: 80, RadiusM: 100, AccuracyM: 5,
				MarkedAt:    scheduled,
				ScheduledAt: &scheduled,
			},
			want: 0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(tc.c); got != tc.want {
				t.Fatalf("Score = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestScoreDeterministic(t *testing.T) {
	scheduled := time.Date(2025, 3, 10, 17, 0, 0, 0, time.UTC)
	c := Candidate{
		DistanceM: 90, RadiusM: 100, AccuracyM: 60,
		FraudFlags:  []string{"time_anomaly"},
		MarkedAt:    scheduled.Add(2 * time.Hour),
		ScheduledAt: &scheduled,
	}
	first := Score(c)
	for i := 0; i < 100; i++ {
		if got := Score(c); got != first {
			t.Fatalf("score changed between calls: %d vs %d", got, first)
		}
	}
	if first < 0 || first > 100 {
		t.Fatalf("score %d outside [0,100]", first)
	}
}
