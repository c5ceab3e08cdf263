package dto

import "github.com/google/uuid"

type LoginRequest struct {
	FaceImage string `json:"face_image" binding:"required"`
	// Threshold is the maximum accepted Euclidean distance. Zero means the
	// server default. Applied strictly after the nearest-neighbor query.
	Threshold float64 `json:"threshold"`
	Limit     int     `json:"limit"`
}

type LoginResponse struct {
	OK       bool      `json:"ok"`
	User     LoginUser `json:"user"`
	Distance float64   `json:"distance"`
	Logged   bool      `json:"attendance_logged"`
}

type LoginUser struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Username    string    `json:"username"`
}

// NoMatchResponse carries the nearest distance so callers can calibrate
// thresholds even when the match was rejected.
type NoMatchResponse struct {
	OK          bool     `json:"ok"`
	Code        string   `json:"error"`
	MinDistance *float64 `json:"min_distance,omitempty"`
}

type DetectRequest struct {
	FaceImage string `json:"face_image" binding:"required"`
}

type FaceBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

type DetectResponse struct {
	OK    bool      `json:"ok"`
	Faces []FaceBox `json:"faces"`
}

// WSEvent is the attendance-feed frame broadcast to websocket clients.
type WSEvent struct {
	Type        string    `json:"type"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	Distance    float64   `json:"distance"`
	LoggedAt    string    `json:"logged_at"`
}
