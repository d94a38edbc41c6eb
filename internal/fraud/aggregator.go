// Package fraud surfaces suspicious attendance patterns for operator
// review. It only derives report data; nothing here mutates records.
package fraud

import (
	"context"
	"math"
	"time"

	"campusattend/internal/attendance"
)

// DefaultPageSize caps report cost; a tunable, not a correctness
// constraint. Selection thresholds live in the attendance package so the
// SQL scan and this partitioning share them.
const DefaultPageSize = 50

// Params filters the scan. Nil time bounds and empty ClubID mean unfiltered.
type Params struct {
	From   *time.Time
	To     *time.Time
	ClubID string
	Limit  int
}

// Source fetches candidate records, ordered by risk score descending then
// marked-at descending, already capped.
type Source interface {
	ListSuspicious(ctx context.Context, from, to *time.Time, clubID string, limit int) ([]attendance.Attendance, error)
}

// Report partitions suspicious records by signal type. A record can appear
// in several partitions.
type Report struct {
	TotalSuspicious    int                     `json:"total_suspicious"`
	UniqueStudents     int                     `json:"unique_students"`
	MeanRiskScore      float64                 `json:"mean_risk_score"`
	HighRiskScore      []attendance.Attendance `json:"high_risk_score"`
	LowAccuracy        []attendance.Attendance `json:"low_accuracy"`
	SuspiciousDistance []attendance.Attendance `json:"suspicious_distance"`
	FlaggedAttendance  []attendance.Attendance `json:"flagged_attendance"`
}

// Aggregator runs the batch scan.
type Aggregator struct {
	source Source
}

// NewAggregator creates an aggregator.
func NewAggregator(source Source) *Aggregator {
	return &Aggregator{source: source}
}

// Report fetches suspicious records and builds the partitioned summary.
func (a *Aggregator) Report(ctx context.Context, p Params) (Report, error) {
	if p.Limit <= 0 {
		p.Limit = DefaultPageSize
	}
	recs, err := a.source.ListSuspicious(ctx, p.From, p.To, p.ClubID, p.Limit)
	if err != nil {
		return Report{}, err
	}
	return Partition(recs), nil
}

// Partition classifies already-fetched records. Pure; exposed separately so
// the classification rules are testable without a database.
func Partition(recs []attendance.Attendance) Report {
	rep := Report{TotalSuspicious: len(recs)}
	students := make(map[string]struct{})
	riskSum := 0

	for _, rec := range recs {
		students[rec.StudentID] = struct{}{}
		riskSum += rec.RiskScore

		if rec.RiskScore > attendance.HighRiskThreshold {
			rep.HighRiskScore = append(rep.HighRiskScore, rec)
		}
		if rec.Position.AccuracyM > attendance.LowAccuracyMeters {
			rep.LowAccuracy = append(rep.LowAccuracy, rec)
		}
		if rec.Verified && rec.DistanceM > attendance.BorderlineDistanceRatio*rec.EventLocation.RadiusM {
			rep.SuspiciousDistance = append(rep.SuspiciousDistance, rec)
		}
		if len(rec.FraudFlags) > 0 {
			rep.FlaggedAttendance = append(rep.FlaggedAttendance, rec)
		}
	}

	rep.UniqueStudents = len(students)
	if len(recs) > 0 {
		rep.MeanRiskScore = math.Round(float64(riskSum)/float64(len(recs))*100) / 100
	}
	return rep
}
