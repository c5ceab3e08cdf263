package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/faceid/internal/config"
)

// presignedTTL bounds signed URLs when the bucket has no public base URL.
const presignedTTL = 24 * time.Hour

type MinIOStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &MinIOStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
	}
	return nil
}

// PutObject uploads data under the given key.
func (s *MinIOStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, s.bucket, key, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// GetObject retrieves data by key.
func (s *MinIOStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// DeleteObject removes a single object. Best-effort; callers treat failures
// as a cleanup task, never as a reason to keep the database row.
func (s *MinIOStore) DeleteObject(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// DeleteObjects removes multiple objects in one batch request, returning
// the keys that were actually removed.
func (s *MinIOStore) DeleteObjects(ctx context.Context, keys []string) ([]string, error) {
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)

	failed := map[string]bool{}
	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if result.Err != nil {
			failed[result.ObjectName] = true
		}
	}

	removed := make([]string, 0, len(keys))
	for _, key := range keys {
		if !failed[key] {
			removed = append(removed, key)
		}
	}
	if len(failed) > 0 {
		return removed, fmt.Errorf("failed to delete %d of %d objects", len(failed), len(keys))
	}
	return removed, nil
}

// ResolveURL returns a URL clients can fetch the object from: a long-lived
// public URL when the bucket is exposed, a time-bounded presigned URL
// otherwise. On signing failure the raw key is returned so clients can at
// least reference the object.
func (s *MinIOStore) ResolveURL(ctx context.Context, key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + s.bucket + "/" + key
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, presignedTTL, nil)
	if err != nil {
		return key
	}
	return u.String()
}

// Ping checks MinIO connectivity.
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}
