package attendance

import (
	"time"

	"campusattend/internal/event"
	"campusattend/internal/geocode"
	"campusattend/internal/location"
)

// Attendance statuses. The marking flow only ever writes StatusPresent;
// the other values exist for operator corrections outside this service.
const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
	StatusLate    = "late"
)

// Fraud flag vocabulary. Flags are attached by operators or external
// detectors, never computed here; the scorer only consumes them.
const (
	FlagLocationSpoofing = "location_spoofing"
	FlagTimeAnomaly      = "time_anomaly"
	FlagDeviceMismatch   = "device_mismatch"
	FlagMultipleAttempts = "multiple_attempts"
)

// ValidFlag reports whether a flag belongs to the fixed vocabulary.
func ValidFlag(f string) bool {
	switch f {
	case FlagLocationSpoofing, FlagTimeAnomaly, FlagDeviceMismatch, FlagMultipleAttempts:
		return true
	}
	return false
}

// Device is request-side metadata recorded with the attendance.
type Device struct {
	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

// Attendance is the persisted record of a verified marking. EventLocation
// is a snapshot frozen at marking time: later edits to the event's geofence
// do not invalidate past records.
type Attendance struct {
	ID            string            `json:"id"`
	StudentID     string            `json:"student_id"`
	EventID       string            `json:"event_id"`
	Status        string            `json:"status"`
	MarkedAt      time.Time         `json:"marked_at"`
	Position      location.Position `json:"student_location"`
	EventLocation event.Location    `json:"event_location"`
	DistanceM     float64           `json:"distance"`
	Address       *geocode.Address  `json:"location_address,omitempty"`
	Verified      bool              `json:"verified"`
	RiskScore     int               `json:"risk_score"`
	FraudFlags    []string          `json:"fraud_flags,omitempty"`
	Device        Device            `json:"device_info"`
	CreatedAt     time.Time         `json:"created_at"`
}
