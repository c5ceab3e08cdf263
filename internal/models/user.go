package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// User is one enrollable identity.
type User struct {
	ID               uuid.UUID       `json:"id" db:"id"`
	DisplayName      string          `json:"display_name" db:"display_name"`
	Username         string          `json:"username" db:"username"`
	Email            *string         `json:"email,omitempty" db:"email"`
	Phone            *string         `json:"phone,omitempty" db:"phone"`
	DateOfBirth      *string         `json:"date_of_birth,omitempty" db:"date_of_birth"`
	EmergencyContact json.RawMessage `json:"emergency_contact,omitempty" db:"emergency_contact"`
	PreferredLang    *string         `json:"preferred_language,omitempty" db:"preferred_language"`
	Verified         bool            `json:"verified" db:"verified"`
	TotalAttendance  int             `json:"total_attendance" db:"total_attendance"`
	LastAttendanceAt *time.Time      `json:"last_attendance_at,omitempty" db:"last_attendance_at"`
	CreatedAt        time.Time       `json:"created_at" db:"created_at"`
}

// UserImage is one stored photo belonging to a user. StorageKey is unique.
type UserImage struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	StorageKey string    `json:"storage_key" db:"storage_key"`
	PublicURL  string    `json:"public_url" db:"public_url"`
	Width      int       `json:"width" db:"width"`
	Height     int       `json:"height" db:"height"`
	MimeType   string    `json:"mime_type" db:"mime_type"`
	IsProfile  bool      `json:"is_profile" db:"is_profile"`
	ByteSize   int       `json:"byte_size" db:"byte_size"`
	UploadedAt time.Time `json:"uploaded_at" db:"uploaded_at"`
}

// Embedding provenance tags. They record which flow produced a vector.
const (
	SourceEnroll  = "enroll"
	SourceCapture = "capture"
	SourceAttach  = "attach"
	SourceMigrate = "migrate"
)

// Embedding is one face encoding belonging to a user. Vectors are written
// once and never mutated; a user may hold any number of them.
type Embedding struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Vector    []float32 `json:"-" db:"embedding"`
	Source    string    `json:"source" db:"source"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AttendanceEntry is one accepted attendance/login log row.
type AttendanceEntry struct {
	ID       uuid.UUID `json:"id" db:"id"`
	UserID   uuid.UUID `json:"user_id" db:"user_id"`
	Method   string    `json:"method" db:"method"`
	Distance float64   `json:"distance" db:"distance"`
	LoggedAt time.Time `json:"logged_at" db:"logged_at"`
}

// AttendanceEvent is the queue payload published when a login is accepted.
type AttendanceEvent struct {
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Method      string    `json:"method"`
	Distance    float64   `json:"distance"`
	LoggedAt    time.Time `json:"logged_at"`
}
