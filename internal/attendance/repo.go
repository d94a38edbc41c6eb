package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"campusattend/internal/geocode"
	"campusattend/internal/ledger"
)

const pgUniqueViolation = "23505"

// Suspicion thresholds shared by the fraud scan and its partitioning.
const (
	HighRiskThreshold       = 70
	LowAccuracyMeters       = 100.0
	BorderlineDistanceRatio = 0.8
)

// Repository persists attendance records in Postgres. The unique index on
// (student_id, event_id) is the at-most-once guard for concurrent marking;
// application-level prechecks are only a fast path.
type Repository struct {
	db     *sql.DB
	grants *ledger.Repository
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB, grants *ledger.Repository) *Repository {
	return &Repository{db: db, grants: grants}
}

const attendanceColumns = `
	id, student_id, event_id, status, marked_at,
	stu_latitude, stu_longitude, accuracy_m, captured_at,
	evt_latitude, evt_longitude, radius_m, distance_m,
	addr_country, addr_state, addr_city, addr_road, addr_display,
	verified, risk_score, fraud_flags,
	device_user_agent, device_ip, device_platform, created_at`

// Create writes the attendance record and its point grant in one
// transaction. A duplicate (student, event) pair surfaces as
// ErrAlreadyMarked, whichever writer loses the race.
func (r *Repository) Create(ctx context.Context, rec Attendance, grant ledger.Grant) (Attendance, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Attendance{}, err
	}
	defer tx.Rollback()

	var country, state, city, road, display *string
	if rec.Address != nil {
		country, state, city, road, display = &rec.Address.Country, &rec.Address.State,
			&rec.Address.City, &rec.Address.Road, &rec.Address.DisplayName
	}

	row := tx.QueryRowContext(ctx, `
		INSERT INTO attendance_records (
			id, student_id, event_id, status, marked_at,
			stu_latitude, stu_longitude, accuracy_m, captured_at,
			evt_latitude, evt_longitude, radius_m, distance_m,
			addr_country, addr_state, addr_city, addr_road, addr_display,
			verified, risk_score, fraud_flags,
			device_user_agent, device_ip, device_platform
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
		RETURNING created_at
	`, rec.ID, rec.StudentID, rec.EventID, rec.Status, rec.MarkedAt,
		rec.Position.Latitude, rec.Position.Longitude, rec.Position.AccuracyM, nullTime(rec.Position.CapturedAt),
		rec.EventLocation.Latitude, rec.EventLocation.Longitude, rec.EventLocation.RadiusM, rec.DistanceM,
		country, state, city, road, display,
		rec.Verified, rec.RiskScore, joinFlags(rec.FraudFlags),
		rec.Device.UserAgent, rec.Device.IP, rec.Device.Platform)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return Attendance{}, ErrAlreadyMarked
		}
		return Attendance{}, err
	}

	if _, err := r.grants.InsertGrantTx(ctx, tx, grant); err != nil {
		return Attendance{}, fmt.Errorf("credit points: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Attendance{}, err
	}
	return rec, nil
}

// Get returns an attendance record by id, or nil when missing.
func (r *Repository) Get(ctx context.Context, id string) (*Attendance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance_records WHERE id = $1`, id)
	return scanOne(row)
}

// GetByStudentEvent returns the record for a (student, event) pair, or nil.
func (r *Repository) GetByStudentEvent(ctx context.Context, studentID, eventID string) (*Attendance, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+attendanceColumns+` FROM attendance_records WHERE student_id = $1 AND event_id = $2`,
		studentID, eventID)
	return scanOne(row)
}

// ListByStudent returns a student's attendance, newest first.
func (r *Repository) ListByStudent(ctx context.Context, studentID string, limit, offset int) ([]Attendance, error) {
	return r.list(ctx,
		`SELECT `+attendanceColumns+` FROM attendance_records
		 WHERE student_id = $1 ORDER BY marked_at DESC LIMIT $2 OFFSET $3`,
		studentID, clampLimit(limit), clampOffset(offset))
}

// ListByEvent returns an event's attendance, newest first.
func (r *Repository) ListByEvent(ctx context.Context, eventID string, limit, offset int) ([]Attendance, error) {
	return r.list(ctx,
		`SELECT `+attendanceColumns+` FROM attendance_records
		 WHERE event_id = $1 ORDER BY marked_at DESC LIMIT $2 OFFSET $3`,
		eventID, clampLimit(limit), clampOffset(offset))
}

// UpdateAddress attaches a reverse-geocoded address after the fact.
func (r *Repository) UpdateAddress(ctx context.Context, id string, addr geocode.Address) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET addr_country = $2, addr_state = $3, addr_city = $4, addr_road = $5, addr_display = $6
		WHERE id = $1
	`, id, addr.Country, addr.State, addr.City, addr.Road, addr.DisplayName)
	return err
}

// UpdateFraudFlags replaces the flag set and stored risk score.
func (r *Repository) UpdateFraudFlags(ctx context.Context, id string, flags []string, riskScore int) (*Attendance, error) {
	_, err := r.db.ExecContext(ctx, `
		UPDATE attendance_records SET fraud_flags = $2, risk_score = $3 WHERE id = $1
	`, id, joinFlags(flags), riskScore)
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, id)
}

// EventStats summarizes attendance for one event.
type EventStats struct {
	TotalAttended int     `json:"total_attended"`
	MeanRiskScore float64 `json:"average_risk_score"`
}

// StatsByEvent computes attendance counts and mean risk for an event.
func (r *Repository) StatsByEvent(ctx context.Context, eventID string) (EventStats, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(AVG(risk_score), 0)
		FROM attendance_records WHERE event_id = $1
	`, eventID)
	var st EventStats
	if err := row.Scan(&st.TotalAttended, &st.MeanRiskScore); err != nil {
		return EventStats{}, err
	}
	return st, nil
}

// ListSuspicious fetches records matching any suspicion criterion, ordered
// by risk score descending then marked-at descending, capped at limit.
func (r *Repository) ListSuspicious(ctx context.Context, from, to *time.Time, clubID string, limit int) ([]Attendance, error) {
	query := `SELECT ` + prefixColumns("a") + `
		FROM attendance_records a
		JOIN events e ON e.id = a.event_id
		WHERE (a.risk_score > $1
			OR a.accuracy_m > $2
			OR (a.verified AND a.distance_m > $3 * a.radius_m)
			OR a.fraud_flags <> '')`
	args := []any{HighRiskThreshold, LowAccuracyMeters, BorderlineDistanceRatio}
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND a.marked_at >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND a.marked_at <= $%d", len(args))
	}
	if clubID != "" {
		args = append(args, clubID)
		query += fmt.Sprintf(" AND e.club_id = $%d", len(args))
	}
	args = append(args, clampLimit(limit))
	query += fmt.Sprintf(" ORDER BY a.risk_score DESC, a.marked_at DESC LIMIT $%d", len(args))

	return r.list(ctx, query, args...)
}

// prefixColumns qualifies the shared column list with a table alias.
func prefixColumns(alias string) string {
	cols := strings.Split(attendanceColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Attendance, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Attendance
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, *rec)
	}
	return res, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row *sql.Row) (*Attendance, error) {
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func scanRecord(s scanner) (*Attendance, error) {
	var rec Attendance
	var capturedAt sql.NullTime
	var country, state, city, road, display sql.NullString
	var flags string
	if err := s.Scan(&rec.ID, &rec.StudentID, &rec.EventID, &rec.Status, &rec.MarkedAt,
		&rec.Position.Latitude, &rec.Position.Longitude, &rec.Position.AccuracyM, &capturedAt,
		&rec.EventLocation.Latitude, &rec.EventLocation.Longitude, &rec.EventLocation.RadiusM, &rec.DistanceM,
		&country, &state, &city, &road, &display,
		&rec.Verified, &rec.RiskScore, &flags,
		&rec.Device.UserAgent, &rec.Device.IP, &rec.Device.Platform, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if capturedAt.Valid {
		rec.Position.CapturedAt = capturedAt.Time
	}
	if country.Valid || display.Valid {
		rec.Address = &geocode.Address{
			Country:     country.String,
			State:       state.String,
			City:        city.String,
			Road:        road.String,
			DisplayName: display.String,
		}
	}
	rec.FraudFlags = splitFlags(flags)
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func joinFlags(flags []string) string {
	return strings.Join(flags, ",")
}

func splitFlags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func clampOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
