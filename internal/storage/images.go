package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/your-org/faceid/internal/models"
)

// InsertUserImage writes the image row. The blob itself is already stored;
// a failure here leaves an orphaned object for out-of-band cleanup.
func (s *PostgresStore) InsertUserImage(ctx context.Context, img *models.UserImage) error {
	if img.ID == uuid.Nil {
		img.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO user_images (id, user_id, storage_key, public_url, width, height, mime_type, is_profile, byte_size)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING uploaded_at`,
		img.ID, img.UserID, img.StorageKey, img.PublicURL, img.Width, img.Height, img.MimeType, img.IsProfile, img.ByteSize,
	).Scan(&img.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert user image: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserImage(ctx context.Context, id uuid.UUID) (*models.UserImage, error) {
	img := &models.UserImage{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id, storage_key, public_url, width, height, mime_type, is_profile, byte_size, uploaded_at
		 FROM user_images WHERE id = $1`, id,
	).Scan(&img.ID, &img.UserID, &img.StorageKey, &img.PublicURL, &img.Width, &img.Height,
		&img.MimeType, &img.IsProfile, &img.ByteSize, &img.UploadedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get user image: %w", err)
	}
	return img, nil
}

func (s *PostgresStore) ListUserImages(ctx context.Context, userID uuid.UUID) ([]models.UserImage, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, storage_key, public_url, width, height, mime_type, is_profile, byte_size, uploaded_at
		 FROM user_images WHERE user_id = $1 ORDER BY uploaded_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user images: %w", err)
	}
	defer rows.Close()

	var images []models.UserImage
	for rows.Next() {
		var img models.UserImage
		if err := rows.Scan(&img.ID, &img.UserID, &img.StorageKey, &img.PublicURL, &img.Width, &img.Height,
			&img.MimeType, &img.IsProfile, &img.ByteSize, &img.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan user image: %w", err)
		}
		images = append(images, img)
	}
	return images, nil
}

func (s *PostgresStore) DeleteUserImage(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM user_images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
