package fraud

import (
	"context"
	"testing"
	"time"

	"campusattend/internal/attendance"
	"campusattend/internal/event"
	"campusattend/internal/location"
)

func rec(student string, riskScore int, accuracy, distance, radius float64, flags ...string) attendance.Attendance {
	return attendance.Attendance{
		ID:            "att-" + student,
		StudentID:     student,
		EventID:       "evt-1",
		Verified:      true,
		RiskScore:     riskScore,
		Position:      location.Position{AccuracyM: accuracy},
		EventLocation: event.Location{RadiusM: radius},
		DistanceM:     distance,
		FraudFlags:    flags,
		MarkedAt:      time.Now(),
	}
}

func TestPartition(t *testing.T) {
	recs := []attendance.Attendance{
		rec("s1", 85, 10, 40, 100),                      // high risk only
		rec("s2", 30, 150, 40, 100),                     // low accuracy only
		rec("s3", 20, 10, 90, 100),                      // borderline distance only
		rec("s4", 10, 10, 40, 100, "location_spoofing"), // flagged only
		rec("s1", 95, 200, 85, 100, "time_anomaly"),     // everything at once
	}

	rep := Partition(recs)

	if rep.TotalSuspicious != 5 {
		t.Fatalf("TotalSuspicious = %d, want 5", rep.TotalSuspicious)
	}
	if rep.UniqueStudents != 4 {
		t.Fatalf("UniqueStudents = %d, want 4 (s1 appears twice)", rep.UniqueStudents)
	}
	if len(rep.HighRiskScore) != 2 {
		t.Fatalf("HighRiskScore = %d entries, want 2", len(rep.HighRiskScore))
	}
	if len(rep.LowAccuracy) != 2 {
		t.Fatalf("LowAccuracy = %d entries, want 2", len(rep.LowAccuracy))
	}
	if len(rep.SuspiciousDistance) != 2 {
		t.Fatalf("SuspiciousDistance = %d entries, want 2", len(rep.SuspiciousDistance))
	}
	if len(rep.FlaggedAttendance) != 2 {
		t.Fatalf("FlaggedAttendance = %d entries, want 2", len(rep.FlaggedAttendance))
	}

	wantMean := float64(85+30+20+10+95) / 5
	if rep.MeanRiskScore != wantMean {
		t.Fatalf("MeanRiskScore = %f, want %f", rep.MeanRiskScore, wantMean)
	}
}

func TestPartitionBoundaries(t *testing.T) {
	recs := []attendance.Attendance{
		rec("s1", attendance.HighRiskThreshold, 10, 40, 100), // exactly 70: not high risk
		rec("s2", 10, attendance.LowAccuracyMeters, 40, 100), // exactly 100m: not low accuracy
		rec("s3", 10, 10, 80, 100),                           // exactly 80%: not borderline
	}
	rep := Partition(recs)
	if len(rep.HighRiskScore) != 0 || len(rep.LowAccuracy) != 0 || len(rep.SuspiciousDistance) != 0 {
		t.Fatalf("thresholds must be strict: %+v", rep)
	}
}

func TestPartitionUnverifiedNotSuspiciousDistance(t *testing.T) {
	r := rec("s1", 10, 10, 95, 100)
	r.Verified = false
	rep := Partition([]attendance.Attendance{r})
	if len(rep.SuspiciousDistance) != 0 {
		t.Fatal("suspicious distance only applies to verified records")
	}
}

func TestPartitionEmpty(t *testing.T) {
	rep := Partition(nil)
	if rep.TotalSuspicious != 0 || rep.MeanRiskScore != 0 || rep.UniqueStudents != 0 {
		t.Fatalf("empty partition should be all zeros: %+v", rep)
	}
}

type fakeSource struct {
	gotLimit int
	recs     []attendance.Attendance
}

func (f *fakeSource) ListSuspicious(ctx context.Context, from, to *time.Time, clubID string, limit int) ([]attendance.Attendance, error) {
	f.gotLimit = limit
	return f.recs, nil
}

func TestReportDefaultsLimit(t *testing.T) {
	src := &fakeSource{recs: []attendance.Attendance{rec("s1", 90, 10, 40, 100)}}
	agg := NewAggregator(src)

	rep, err := agg.Report(context.Background(), Params{})
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if src.gotLimit != DefaultPageSize {
		t.Fatalf("limit = %d, want default %d", src.gotLimit, DefaultPageSize)
	}
	if rep.TotalSuspicious != 1 || len(rep.HighRiskScore) != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
}
