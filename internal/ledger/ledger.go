// Package ledger persists activity point grants. Grants are append-only:
// a credit is never edited or deleted, corrections are new grants.
package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Grant reasons carried over from the campus points system.
const (
	ReasonAttendance    = "attendance"
	ReasonParticipation = "participation"
	ReasonWinner        = "winner"
	ReasonRunnerUp      = "runner_up"
	ReasonCompletion    = "completion"
	ReasonBonus         = "bonus"
	ReasonPenalty       = "penalty"
)

// Grant is a single append-only credit of points to a student.
type Grant struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	EventID     string    `json:"event_id"`
	ClubID      string    `json:"club_id"`
	Points      int       `json:"points"`
	Reason      string    `json:"reason"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repository persists grants in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// InsertGrantTx writes a grant inside the caller's transaction so the
// credit commits or rolls back together with the attendance row.
func (r *Repository) InsertGrantTx(ctx context.Context, tx *sql.Tx, g Grant) (Grant, error) {
	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	row := tx.QueryRowContext(ctx, `
		INSERT INTO point_grants (id, student_id, event_id, club_id, points, reason, description)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING created_at
	`, g.ID, g.StudentID, g.EventID, g.ClubID, g.Points, g.Reason, g.Description)
	if err := row.Scan(&g.CreatedAt); err != nil {
		return Grant{}, err
	}
	return g, nil
}

// TotalPoints sums all credited points for a student.
func (r *Repository) TotalPoints(ctx context.Context, studentID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(points), 0) FROM point_grants WHERE student_id = $1
	`, studentID)
	var total int
	if err := row.Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListByStudent returns a student's grants, newest first.
func (r *Repository) ListByStudent(ctx context.Context, studentID string, limit int) ([]Grant, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, student_id, event_id, club_id, points, reason, description, created_at
		FROM point_grants
		WHERE student_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, studentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Grant
	for rows.Next() {
		var g Grant
		if err := rows.Scan(&g.ID, &g.StudentID, &g.EventID, &g.ClubID, &g.Points, &g.Reason, &g.Description, &g.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, g)
	}
	return res, rows.Err()
}

// MissingGrant is an attendance row without its attendance-reason credit.
type MissingGrant struct {
	AttendanceID string
	StudentID    string
	EventID      string
	ClubID       string
	Points       int
	EventName    string
}

// FindMissingGrants returns attendance records whose point grant is absent.
// The attendance+grant pair commits in one transaction during marking, so
// rows here indicate operational damage (manual surgery, partial restore)
// that the reconciliation loop repairs.
func (r *Repository) FindMissingGrants(ctx context.Context, limit int) ([]MissingGrant, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.student_id, a.event_id, e.club_id, e.points, e.name
		FROM attendance_records a
		JOIN events e ON e.id = a.event_id
		LEFT JOIN point_grants g
			ON g.student_id = a.student_id AND g.event_id = a.event_id AND g.reason = $1
		WHERE g.id IS NULL
		ORDER BY a.created_at
		LIMIT $2
	`, ReasonAttendance, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []MissingGrant
	for rows.Next() {
		var m MissingGrant
		if err := rows.Scan(&m.AttendanceID, &m.StudentID, &m.EventID, &m.ClubID, &m.Points, &m.EventName); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// InsertCompensatingGrant issues the missing credit found by reconciliation.
// The unique (student_id, event_id, reason) index makes the repair
// idempotent: re-running reconciliation cannot double-credit.
func (r *Repository) InsertCompensatingGrant(ctx context.Context, m MissingGrant) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO point_grants (id, student_id, event_id, club_id, points, reason, description)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (student_id, event_id, reason) DO NOTHING
	`, uuid.NewString(), m.StudentID, m.EventID, m.ClubID, m.Points, ReasonAttendance,
		"Reconciled attendance credit for "+m.EventName)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
