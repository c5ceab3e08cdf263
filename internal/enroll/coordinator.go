// Package enroll drives the multi-step enrollment sequence. Each step
// commits in its own transaction: a later failure never rolls back an
// earlier success, because redoing the whole multi-second pipeline
// (detector escalation included) on any single-step failure is the more
// expensive bug.
package enroll

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/internal/vision"
)

// Step is the furthest committed state of one enrollment attempt.
type Step string

const (
	StepStart           Step = "start"
	StepIdentityWritten Step = "identity_written"
	StepImageWritten    Step = "image_written"
	StepEncodingWritten Step = "encoding_written"
	StepDone            Step = "done"
)

// ErrStorageNotConfigured means no blob store was provisioned, so the image
// step cannot run.
var ErrStorageNotConfigured = errors.New("blob storage not configured")

// Store is the slice of the relational layer the coordinator writes through.
type Store interface {
	UpsertUser(ctx context.Context, p storage.UpsertUserParams) (*models.User, error)
	InsertUserImage(ctx context.Context, img *models.UserImage) error
	SaveEmbedding(ctx context.Context, userID uuid.UUID, vec []float32, source string) (uuid.UUID, error)
}

// BlobStore stores raw image bytes and resolves client-facing URLs.
type BlobStore interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	ResolveURL(ctx context.Context, key string) string
}

// ExtractFunc maps image bytes to an encoding, vision.ErrNoFace, or a
// processing error.
type ExtractFunc func(imageData []byte) ([]float32, error)

type Coordinator struct {
	db      Store
	blobs   BlobStore // nil when no blob store is configured
	extract ExtractFunc
}

func NewCoordinator(db Store, blobs BlobStore, extract ExtractFunc) *Coordinator {
	return &Coordinator{db: db, blobs: blobs, extract: extract}
}

// Request is one enrollment attempt. ImageBytes may be nil for an
// identity-only registration.
type Request struct {
	Identity   storage.UpsertUserParams
	ImageBytes []byte
	Source     string
	IsProfile  bool
}

// Outcome reports the furthest completed step plus any partial-failure
// details. A populated ImageErr or EmbeddingErr with an earlier Step is an
// accepted terminal state, not a transport error.
type Outcome struct {
	User         *models.User
	Image        *models.UserImage
	EmbeddingID  uuid.UUID
	Step         Step
	NoFace       bool
	ImageErr     error
	EmbeddingErr error
}

// Run executes the attempt: identity upsert, then image, then encoding.
// Only an identity-step failure returns an error; everything past that
// point is reported through the Outcome.
func (c *Coordinator) Run(ctx context.Context, req Request) (*Outcome, error) {
	out := &Outcome{Step: StepStart}

	user, err := c.db.UpsertUser(ctx, req.Identity)
	if err != nil {
		observability.Enrollments.WithLabelValues(string(StepStart)).Inc()
		return nil, err
	}
	out.User = user
	out.Step = StepIdentityWritten

	if len(req.ImageBytes) > 0 {
		c.attachSteps(ctx, user.ID, req.ImageBytes, req.Source, req.IsProfile, out)
		if out.Step == StepEncodingWritten {
			out.Step = StepDone
		}
	}

	observability.Enrollments.WithLabelValues(string(out.Step)).Inc()
	return out, nil
}

// AttachImage runs only the image and encoding steps against an existing
// identity. Same partial-failure semantics as Run.
func (c *Coordinator) AttachImage(ctx context.Context, userID uuid.UUID, imageData []byte, source string, isProfile bool) *Outcome {
	out := &Outcome{Step: StepIdentityWritten}
	c.attachSteps(ctx, userID, imageData, source, isProfile, out)
	if out.Step == StepEncodingWritten {
		out.Step = StepDone
	}
	return out
}

func (c *Coordinator) attachSteps(ctx context.Context, userID uuid.UUID, data []byte, source string, isProfile bool, out *Outcome) {
	if c.blobs == nil {
		out.ImageErr = ErrStorageNotConfigured
		return
	}

	width, height := 0, 0
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		width, height = cfg.Width, cfg.Height
	}
	mimeType := http.DetectContentType(data)

	key := userID.String() + "/" + storageFilename()
	if err := c.blobs.PutObject(ctx, key, data, mimeType); err != nil {
		out.ImageErr = err
		return
	}

	img := &models.UserImage{
		UserID:     userID,
		StorageKey: key,
		PublicURL:  c.blobs.ResolveURL(ctx, key),
		Width:      width,
		Height:     height,
		MimeType:   mimeType,
		IsProfile:  isProfile,
		ByteSize:   len(data),
	}
	if err := c.db.InsertUserImage(ctx, img); err != nil {
		// The blob is already stored; the orphaned object is left for
		// out-of-band reconciliation rather than deleted synchronously.
		slog.Warn("image row insert failed, blob orphaned", "key", key, "user_id", userID, "error", err)
		out.ImageErr = err
		return
	}
	out.Image = img
	out.Step = StepImageWritten

	encoding, err := c.extract(data)
	if err != nil {
		if errors.Is(err, vision.ErrNoFace) {
			// Valid terminal outcome: identity and image stand, the caller
			// is told to prompt for a better photo.
			out.NoFace = true
			return
		}
		out.EmbeddingErr = err
		return
	}

	embID, err := c.db.SaveEmbedding(ctx, userID, encoding, source)
	if err != nil {
		slog.Error("embedding persist failed, identity and image remain committed",
			"user_id", userID, "error", err)
		out.EmbeddingErr = err
		return
	}
	out.EmbeddingID = embID
	out.Step = StepEncodingWritten
}

func storageFilename() string {
	return time.Now().UTC().Format("20060102T150405") + "_" + uuid.New().String() + ".jpg"
}
