package event

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Location is an event's registered geofence.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	RadiusM   float64 `json:"radius"`
}

// Event is the read-only view the attendance core consumes. Ownership of
// event CRUD lives outside this service.
type Event struct {
	ID          string     `json:"id"`
	ClubID      string     `json:"club_id"`
	Name        string     `json:"name"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
	Location    Location   `json:"location"`
	Points      int        `json:"points"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Repository reads event data from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns an event by id, or nil when it does not exist.
func (r *Repository) Get(ctx context.Context, id string) (*Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, club_id, name, scheduled_at, latitude, longitude, radius_m, points, created_at
		FROM events WHERE id = $1
	`, id)
	var evt Event
	if err := row.Scan(&evt.ID, &evt.ClubID, &evt.Name, &evt.ScheduledAt,
		&evt.Location.Latitude, &evt.Location.Longitude, &evt.Location.RadiusM,
		&evt.Points, &evt.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &evt, nil
}

// IsRegistered reports whether the student is on the event's registration list.
func (r *Repository) IsRegistered(ctx context.Context, eventID, studentID string) (bool, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM event_registrations WHERE event_id = $1 AND student_id = $2
		)
	`, eventID, studentID)
	var ok bool
	if err := row.Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// RegistrationCount returns how many students registered for the event.
func (r *Repository) RegistrationCount(ctx context.Context, eventID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM event_registrations WHERE event_id = $1
	`, eventID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
