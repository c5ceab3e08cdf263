package handlers

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/pkg/dto"
)

// decodeDataURL decodes an inline image, with or without the
// "data:image/...;base64," prefix.
func decodeDataURL(s string) ([]byte, error) {
	if idx := strings.Index(s, ","); idx >= 0 && strings.HasPrefix(s, "data:") {
		s = s[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64 image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image payload")
	}
	return data, nil
}

func toUserResponse(u *models.User) dto.UserResponse {
	return dto.UserResponse{
		ID:               u.ID,
		DisplayName:      u.DisplayName,
		Username:         u.Username,
		Email:            u.Email,
		Phone:            u.Phone,
		DateOfBirth:      u.DateOfBirth,
		EmergencyContact: u.EmergencyContact,
		PreferredLang:    u.PreferredLang,
		Verified:         u.Verified,
		TotalAttendance:  u.TotalAttendance,
		CreatedAt:        u.CreatedAt.Format(time.RFC3339),
	}
}

func toImageResponse(img *models.UserImage) dto.ImageResponse {
	return dto.ImageResponse{
		ID:         img.ID,
		StorageKey: img.StorageKey,
		PublicURL:  img.PublicURL,
		IsProfile:  img.IsProfile,
		UploadedAt: img.UploadedAt.Format(time.RFC3339),
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
