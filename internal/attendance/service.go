package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"campusattend/internal/event"
	"campusattend/internal/geocode"
	"campusattend/internal/ledger"
	"campusattend/internal/location"
	"campusattend/internal/metrics"
	"campusattend/internal/queue"
	"campusattend/internal/risk"
)

// EventSource is the read-only view of the external event collaborator.
type EventSource interface {
	Get(ctx context.Context, id string) (*event.Event, error)
	IsRegistered(ctx context.Context, eventID, studentID string) (bool, error)
}

// Store persists attendance. Create writes the record and its point grant
// atomically and must return ErrAlreadyMarked when the (student, event)
// uniqueness constraint rejects a duplicate.
type Store interface {
	Get(ctx context.Context, id string) (*Attendance, error)
	GetByStudentEvent(ctx context.Context, studentID, eventID string) (*Attendance, error)
	Create(ctx context.Context, rec Attendance, grant ledger.Grant) (Attendance, error)
	UpdateFraudFlags(ctx context.Context, id string, flags []string, riskScore int) (*Attendance, error)
}

// Publisher enqueues enrichment work. queue.Queue satisfies it.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// MarkRequest is one attendance marking attempt for an authenticated student.
type MarkRequest struct {
	StudentID string
	EventID   string
	Position  location.Position
	Address   *geocode.Address
	Device    Device
}

// MarkResult is the successful outcome of a marking attempt.
type MarkResult struct {
	Attendance    Attendance `json:"attendance"`
	PointsAwarded int        `json:"points_awarded"`
}

// Service orchestrates attendance marking: precondition checks, distance
// verification, risk scoring, atomic persistence with point crediting, and
// queueing of address enrichment.
type Service struct {
	events EventSource
	store  Store
	pub    Publisher
	now    func() time.Time
}

// NewService creates a service. pub may be nil when enrichment is disabled.
func NewService(events EventSource, store Store, pub Publisher) *Service {
	return &Service{events: events, store: store, pub: pub, now: time.Now}
}

// Mark runs the marking state machine. Preconditions are checked in order
// and short-circuit with a distinct rejection; no side effects happen until
// all of them pass.
func (s *Service) Mark(ctx context.Context, req MarkRequest) (MarkResult, error) {
	evt, err := s.events.Get(ctx, req.EventID)
	if err != nil {
		return MarkResult{}, fmt.Errorf("fetch event: %w", err)
	}
	if evt == nil {
		metrics.MarkAttempts.WithLabelValues("event_not_found").Inc()
		return MarkResult{}, ErrEventNotFound
	}

	registered, err := s.events.IsRegistered(ctx, req.EventID, req.StudentID)
	if err != nil {
		return MarkResult{}, fmt.Errorf("check registration: %w", err)
	}
	if !registered {
		metrics.MarkAttempts.WithLabelValues("not_registered").Inc()
		return MarkResult{}, ErrNotRegistered
	}

	// Fast path for retried clients. The DB uniqueness constraint remains
	// the authoritative guard against concurrent duplicates.
	existing, err := s.store.GetByStudentEvent(ctx, req.StudentID, req.EventID)
	if err != nil {
		return MarkResult{}, fmt.Errorf("check existing attendance: %w", err)
	}
	if existing != nil {
		metrics.MarkAttempts.WithLabelValues("already_marked").Inc()
		return MarkResult{}, ErrAlreadyMarked
	}

	vr := Verify(req.Position, evt.Location)
	if !vr.Verified {
		metrics.MarkAttempts.WithLabelValues("too_far").Inc()
		return MarkResult{}, &TooFarError{
			DistanceM: int(math.Round(vr.DistanceM)),
			RadiusM:   int(math.Round(evt.Location.RadiusM)),
		}
	}

	now := s.now().UTC()
	rec := Attendance{
		ID:            uuid.NewString(),
		StudentID:     req.StudentID,
		EventID:       req.EventID,
		Status:        StatusPresent,
		MarkedAt:      now,
		Position:      req.Position,
		EventLocation: evt.Location,
		DistanceM:     math.Round(vr.DistanceM),
		Address:       req.Address,
		Verified:      true,
		Device:        req.Device,
	}
	rec.RiskScore = risk.Score(risk.Candidate{
		DistanceM:   rec.DistanceM,
		RadiusM:     evt.Location.RadiusM,
		AccuracyM:   req.Position.AccuracyM,
		FraudFlags:  rec.FraudFlags,
		MarkedAt:    now,
		ScheduledAt: evt.ScheduledAt,
	})

	grant := ledger.Grant{
		StudentID:   req.StudentID,
		EventID:     req.EventID,
		ClubID:      evt.ClubID,
		Points:      evt.Points,
		Reason:      ledger.ReasonAttendance,
		Description: "Attendance marked for " + evt.Name,
	}

	stored, err := s.store.Create(ctx, rec, grant)
	if err != nil {
		if errors.Is(err, ErrAlreadyMarked) {
			metrics.MarkAttempts.WithLabelValues("already_marked").Inc()
			return MarkResult{}, ErrAlreadyMarked
		}
		return MarkResult{}, fmt.Errorf("persist attendance: %w", err)
	}

	metrics.MarkAttempts.WithLabelValues("recorded").Inc()
	metrics.RiskScores.Observe(float64(stored.RiskScore))

	// Best-effort address enrichment; a full queue or dead broker never
	// fails a recorded marking.
	if s.pub != nil && stored.Address == nil {
		if err := s.pub.Publish(ctx, queue.Message{Type: queue.TypeGeocode, Body: []byte(stored.ID)}); err != nil {
			log.Printf("attendance: enrichment publish failed for %s: %v", stored.ID, err)
		}
	}

	return MarkResult{Attendance: stored, PointsAwarded: evt.Points}, nil
}

// Annotate replaces an attendance record's fraud flags (operator action)
// and recomputes its risk score from the stored facts.
func (s *Service) Annotate(ctx context.Context, id string, flags []string) (*Attendance, error) {
	for _, f := range flags {
		if !ValidFlag(f) {
			return nil, fmt.Errorf("unknown fraud flag %q", f)
		}
	}

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	var scheduledAt *time.Time
	if evt, err := s.events.Get(ctx, rec.EventID); err == nil && evt != nil {
		scheduledAt = evt.ScheduledAt
	}

	score := risk.Score(risk.Candidate{
		DistanceM:   rec.DistanceM,
		RadiusM:     rec.EventLocation.RadiusM,
		AccuracyM:   rec.Position.AccuracyM,
		FraudFlags:  flags,
		MarkedAt:    rec.MarkedAt,
		ScheduledAt: scheduledAt,
	})
	return s.store.UpdateFraudFlags(ctx, id, flags, score)
}
