// Package risk implements the attendance fraud risk heuristic.
//
// The score is an explicit additive function over four auditable factors,
// clamped to [0,100]. It is exactly reproducible for identical inputs:
// no randomness, no external calls.
package risk

import "time"

// Factor weights and thresholds.
const (
	borderlineDistanceRatio = 0.8
	borderlineDistancePts   = 20

	lowAccuracyMeters = 50.0
	lowAccuracyPts    = 15

	perFraudFlagPts = 25

	timeSkewLimit = 60 * time.Minute
	timeSkewPts   = 10

	maxScore = 100
)

// Candidate carries everything the scorer looks at.
type Candidate struct {
	DistanceM  float64
	RadiusM    float64
	AccuracyM  float64
	FraudFlags []string
	MarkedAt   time.Time
	// ScheduledAt is the event's scheduled start; nil when schedule data is
	// unavailable, in which case the time-skew factor contributes 0.
	ScheduledAt *time.Time
}

// Score returns the risk score for a candidate, in [0,100].
func Score(c Candidate) int {
	score := 0

	// Verified, but only just: positions near the fence edge are the easiest
	// to fake from outside it.
	if c.RadiusM > 0 && c.DistanceM > borderlineDistanceRatio*c.RadiusM {
		score += borderlineDistancePts
	}

	if c.AccuracyM > lowAccuracyMeters {
		score += lowAccuracyPts
	}

	score += len(c.FraudFlags) * perFraudFlagPts

	if c.ScheduledAt != nil {
		skew := c.MarkedAt.Sub(*c.ScheduledAt)
		if skew < 0 {
			skew = -skew
		}
		if skew > timeSkewLimit {
			score += timeSkewPts
		}
	}

	if score > maxScore {
		score = maxScore
	}
	return score
}
