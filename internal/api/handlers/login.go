package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/attendance"
	"github.com/your-org/faceid/internal/config"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/observability"
	"github.com/your-org/faceid/internal/queue"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/internal/vision"
	"github.com/your-org/faceid/pkg/dto"
)

// matchStore is the slice of the relational layer the login flow reads.
type matchStore interface {
	Nearest(ctx context.Context, vec []float32, limit int) ([]storage.Match, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type LoginHandler struct {
	db       matchStore
	producer *queue.Producer // nil when NATS is not configured
	throttle *attendance.Throttle
	cfg      config.RecognitionConfig

	// ExtractFn computes the face encoding; DetectFn returns face regions.
	// Both are nil until the vision models are loaded.
	ExtractFn func(imageData []byte) ([]float32, error)
	DetectFn  func(imageData []byte) ([]vision.Region, error)
}

func NewLoginHandler(db matchStore, producer *queue.Producer, throttle *attendance.Throttle, cfg config.RecognitionConfig) *LoginHandler {
	return &LoginHandler{db: db, producer: producer, throttle: throttle, cfg: cfg}
}

// Login matches the submitted face against stored encodings. The nearest
// neighbor is fetched with its raw distance and the acceptance threshold is
// applied here, not in the query.
func (h *LoginHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewError(dto.ErrMissingImage))
		return
	}

	if h.ExtractFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision models not loaded"})
		return
	}

	imageData, err := decodeDataURL(req.FaceImage)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrBadImage, err.Error()))
		return
	}

	encoding, err := h.ExtractFn(imageData)
	if err != nil {
		switch {
		case errors.Is(err, vision.ErrBadImage):
			c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrBadImage, err.Error()))
		case errors.Is(err, vision.ErrNoFace):
			observability.LoginAttempts.WithLabelValues("no_face").Inc()
			c.JSON(http.StatusUnprocessableEntity, dto.NewError(dto.ErrNoFace))
		default:
			c.JSON(http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrDB, err.Error()))
		}
		return
	}

	threshold := req.Threshold
	if threshold <= 0 {
		threshold = h.cfg.DistanceThreshold
	}
	limit := req.Limit
	if limit <= 0 {
		limit = h.cfg.MatchLimit
	}

	matches, err := h.db.Nearest(c.Request.Context(), encoding, limit)
	if err != nil {
		if errors.Is(err, storage.ErrVectorUnsupported) {
			c.JSON(http.StatusNotImplemented, dto.NewError(dto.ErrUnsupportedOperation))
			return
		}
		c.JSON(http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrDB, err.Error()))
		return
	}

	if len(matches) == 0 {
		observability.LoginAttempts.WithLabelValues("no_match").Inc()
		c.JSON(http.StatusNotFound, dto.NoMatchResponse{Code: dto.ErrNoMatch})
		return
	}

	best := matches[0]
	if best.Distance > threshold {
		observability.LoginAttempts.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusNotFound, dto.NoMatchResponse{Code: dto.ErrNoMatch, MinDistance: &best.Distance})
		return
	}

	user, err := h.db.GetUser(c.Request.Context(), best.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrDB, err.Error()))
		return
	}
	if user == nil {
		// Embedding row outlived its identity. Treat as no match.
		slog.Warn("matched embedding references missing user", "embedding_id", best.EmbeddingID, "user_id", best.UserID)
		c.JSON(http.StatusNotFound, dto.NoMatchResponse{Code: dto.ErrNoMatch})
		return
	}

	observability.LoginAttempts.WithLabelValues("accepted").Inc()
	logged := h.queueAttendance(c, user, best.Distance)

	c.JSON(http.StatusOK, dto.LoginResponse{
		OK: true,
		User: dto.LoginUser{
			ID:          user.ID,
			DisplayName: user.DisplayName,
			Username:    user.Username,
		},
		Distance: best.Distance,
		Logged:   logged,
	})
}

// queueAttendance publishes the accepted login for asynchronous logging.
// Attendance problems never fail the login itself.
func (h *LoginHandler) queueAttendance(c *gin.Context, user *models.User, distance float64) bool {
	now := time.Now()

	due, err := h.throttle.ShouldLog(c.Request.Context(), user.ID, now)
	if err != nil {
		slog.Error("attendance throttle check failed", "user_id", user.ID, "error", err)
		return false
	}
	if !due {
		return false
	}
	if h.producer == nil {
		slog.Warn("attendance event dropped, queue not configured", "user_id", user.ID)
		return false
	}

	event := models.AttendanceEvent{
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		Method:      "face",
		Distance:    distance,
		LoggedAt:    now,
	}
	if err := h.producer.PublishAttendance(c.Request.Context(), user.ID.String(), event); err != nil {
		slog.Error("publish attendance event failed", "user_id", user.ID, "error", err)
		return false
	}
	return true
}

// Detect returns face regions without touching identities. Read-only.
func (h *LoginHandler) Detect(c *gin.Context) {
	var req dto.DetectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewError(dto.ErrMissingImage))
		return
	}

	if h.DetectFn == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vision models not loaded"})
		return
	}

	imageData, err := decodeDataURL(req.FaceImage)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrBadImage, err.Error()))
		return
	}

	regions, err := h.DetectFn(imageData)
	if err != nil {
		if errors.Is(err, vision.ErrBadImage) {
			c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrBadImage, err.Error()))
			return
		}
		c.JSON(http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrDB, err.Error()))
		return
	}

	faces := make([]dto.FaceBox, 0, len(regions))
	for _, r := range regions {
		faces = append(faces, dto.FaceBox{X1: r.X1, Y1: r.Y1, X2: r.X2, Y2: r.Y2})
	}
	c.JSON(http.StatusOK, dto.DetectResponse{OK: true, Faces: faces})
}
