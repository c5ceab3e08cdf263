package dto

import (
	"encoding/json"

	"github.com/google/uuid"
)

type EnrollRequest struct {
	DisplayName      string          `json:"display_name" binding:"required"`
	Username         string          `json:"username" binding:"required"`
	Email            string          `json:"email"`
	Phone            string          `json:"phone"`
	DateOfBirth      string          `json:"date_of_birth"`
	EmergencyContact json.RawMessage `json:"emergency_contact,omitempty"`
	PreferredLang    string          `json:"preferred_language"`
	ConsentTerms     bool            `json:"consent_terms"`
	// FaceImage is an inline data URL. TempStoragePath alternatively names a
	// previously uploaded object.
	FaceImage       string `json:"face_image"`
	TempStoragePath string `json:"temp_storage_path"`
}

// EnrollResponse reports the furthest completed enrollment step so callers
// can distinguish full success from accepted partial outcomes.
type EnrollResponse struct {
	OK          bool      `json:"ok"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Step        string    `json:"step"`
	NoFace      bool      `json:"no_face,omitempty"`
	ImageURL    string    `json:"image_url,omitempty"`
	StorageKey  string    `json:"storage_key,omitempty"`
	Warning     string    `json:"warning,omitempty"`
}

type CaptureRequest struct {
	UserID    string `json:"user_id"`
	FaceImage string `json:"face_image" binding:"required"`
}

type AttachImageRequest struct {
	FaceImage       string `json:"face_image"`
	TempStoragePath string `json:"temp_storage_path"`
}

type UploadRequest struct {
	FaceImage string `json:"face_image" binding:"required"`
}

type UploadResponse struct {
	OK          bool   `json:"ok"`
	StoragePath string `json:"temp_storage_path"`
	PublicURL   string `json:"public_url"`
}

type UpdateUserRequest struct {
	DisplayName      *string         `json:"display_name"`
	Email            *string         `json:"email"`
	Phone            *string         `json:"phone"`
	DateOfBirth      *string         `json:"date_of_birth"`
	EmergencyContact json.RawMessage `json:"emergency_contact,omitempty"`
	PreferredLang    *string         `json:"preferred_language"`
}

type UserResponse struct {
	ID               uuid.UUID       `json:"id"`
	DisplayName      string          `json:"display_name"`
	Username         string          `json:"username"`
	Email            *string         `json:"email,omitempty"`
	Phone            *string         `json:"phone,omitempty"`
	DateOfBirth      *string         `json:"date_of_birth,omitempty"`
	EmergencyContact json.RawMessage `json:"emergency_contact,omitempty"`
	PreferredLang    *string         `json:"preferred_language,omitempty"`
	Verified         bool            `json:"verified"`
	TotalAttendance  int             `json:"total_attendance"`
	CreatedAt        string          `json:"created_at"`
}

type ImageResponse struct {
	ID         uuid.UUID `json:"id"`
	StorageKey string    `json:"storage_key"`
	PublicURL  string    `json:"public_url"`
	IsProfile  bool      `json:"is_profile"`
	UploadedAt string    `json:"uploaded_at"`
}

type EmbeddingMetaResponse struct {
	ID           uuid.UUID `json:"id"`
	Source       string    `json:"source"`
	HasEmbedding bool      `json:"has_embedding"`
	CreatedAt    string    `json:"created_at"`
}
