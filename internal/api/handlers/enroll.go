package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/your-org/faceid/internal/enroll"
	"github.com/your-org/faceid/internal/models"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/pkg/dto"
)

// tempPrefix is where pre-uploaded images live until an enrollment claims
// them. Objects under it are never referenced by database rows.
const tempPrefix = "tmp/"

type EnrollHandler struct {
	db    *storage.PostgresStore
	minio *storage.MinIOStore // nil when blob storage isn't configured
	coord *enroll.Coordinator
}

func NewEnrollHandler(db *storage.PostgresStore, minio *storage.MinIOStore, coord *enroll.Coordinator) *EnrollHandler {
	return &EnrollHandler{db: db, minio: minio, coord: coord}
}

// Enroll registers an identity, optionally with a face image. Partial
// completion past the identity step is reported as success with the
// furthest step reached.
func (h *EnrollHandler) Enroll(c *gin.Context) {
	var req dto.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrMissingFields, err.Error()))
		return
	}

	imageData, ok := h.imageBytes(c, req.FaceImage, req.TempStoragePath)
	if !ok {
		return
	}

	out, err := h.coord.Run(c.Request.Context(), enroll.Request{
		Identity: storage.UpsertUserParams{
			DisplayName:      req.DisplayName,
			Username:         req.Username,
			Email:            strPtr(req.Email),
			Phone:            strPtr(req.Phone),
			DateOfBirth:      strPtr(req.DateOfBirth),
			EmergencyContact: req.EmergencyContact,
			PreferredLang:    strPtr(req.PreferredLang),
			Verified:         req.ConsentTerms,
		},
		ImageBytes: imageData,
		Source:     models.SourceEnroll,
		IsProfile:  true,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrDB, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, enrollResponse(out))
}

// Capture records a face image, creating a provisional identity when the
// request names no existing user.
func (h *EnrollHandler) Capture(c *gin.Context) {
	var req dto.CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewError(dto.ErrMissingImage))
		return
	}

	imageData, err := decodeDataURL(req.FaceImage)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrBadImage, err.Error()))
		return
	}

	if req.UserID != "" {
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrUserMissing, "invalid user id"))
			return
		}
		user, err := h.db.GetUser(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrDB, err.Error()))
			return
		}
		if user == nil {
			c.JSON(http.StatusNotFound, dto.NewError(dto.ErrUserMissing))
			return
		}

		out := h.coord.AttachImage(c.Request.Context(), userID, imageData, models.SourceCapture, false)
		out.User = user
		c.JSON(http.StatusCreated, enrollResponse(out))
		return
	}

	// No identity named: enroll a provisional one keyed on a generated
	// handle so the capture is never lost.
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	out, err := h.coord.Run(c.Request.Context(), enroll.Request{
		Identity: storage.UpsertUserParams{
			DisplayName: "Unclaimed capture " + suffix,
			Username:    "temp_" + suffix,
		},
		ImageBytes: imageData,
		Source:     models.SourceCapture,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrDB, err.Error()))
		return
	}
	c.JSON(http.StatusCreated, enrollResponse(out))
}

// AttachImage adds a face image to an existing identity. Owner-only.
func (h *EnrollHandler) AttachImage(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrUserMissing, "invalid user id"))
		return
	}

	var req dto.AttachImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewError(dto.ErrMissingImage))
		return
	}

	user, err := h.db.GetUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrDB, err.Error()))
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, dto.NewError(dto.ErrUserMissing))
		return
	}

	imageData, ok := h.imageBytes(c, req.FaceImage, req.TempStoragePath)
	if !ok {
		return
	}
	if imageData == nil {
		c.JSON(http.StatusBadRequest, dto.NewError(dto.ErrMissingImage))
		return
	}

	out := h.coord.AttachImage(c.Request.Context(), userID, imageData, models.SourceAttach, false)
	out.User = user
	c.JSON(http.StatusCreated, enrollResponse(out))
}

// Upload stages an image under the temp prefix for a later enrollment.
func (h *EnrollHandler) Upload(c *gin.Context) {
	var req dto.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewError(dto.ErrMissingImage))
		return
	}
	if h.minio == nil {
		c.JSON(http.StatusServiceUnavailable, dto.NewError(dto.ErrStorageNotConfigured))
		return
	}

	imageData, err := decodeDataURL(req.FaceImage)
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrBadImage, err.Error()))
		return
	}

	key := tempPrefix + uuid.New().String() + ".jpg"
	if err := h.minio.PutObject(c.Request.Context(), key, imageData, http.DetectContentType(imageData)); err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrStorageNotConfigured, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, dto.UploadResponse{
		OK:          true,
		StoragePath: key,
		PublicURL:   h.minio.ResolveURL(c.Request.Context(), key),
	})
}

// imageBytes resolves the request image from an inline data URL or a staged
// temp object. Writes the error response itself and reports ok=false when
// the caller should stop. A request with neither source yields (nil, true).
func (h *EnrollHandler) imageBytes(c *gin.Context, faceImage, tempPath string) ([]byte, bool) {
	switch {
	case faceImage != "":
		data, err := decodeDataURL(faceImage)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrBadImage, err.Error()))
			return nil, false
		}
		return data, true

	case tempPath != "":
		if h.minio == nil {
			c.JSON(http.StatusServiceUnavailable, dto.NewError(dto.ErrStorageNotConfigured))
			return nil, false
		}
		if !strings.HasPrefix(tempPath, tempPrefix) {
			c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrMissingImage, "temp path outside upload area"))
			return nil, false
		}
		data, err := h.minio.GetObject(c.Request.Context(), tempPath)
		if err != nil {
			c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrMissingImage, "temp upload not found"))
			return nil, false
		}
		return data, true
	}
	return nil, true
}

func enrollResponse(out *enroll.Outcome) dto.EnrollResponse {
	resp := dto.EnrollResponse{
		OK:     true,
		Step:   string(out.Step),
		NoFace: out.NoFace,
	}
	if out.User != nil {
		resp.UserID = out.User.ID
		resp.DisplayName = out.User.DisplayName
	}
	if out.Image != nil {
		resp.ImageURL = out.Image.PublicURL
		resp.StorageKey = out.Image.StorageKey
	}
	if out.ImageErr != nil {
		resp.Warning = "image step failed: " + out.ImageErr.Error()
	} else if out.EmbeddingErr != nil {
		resp.Warning = "encoding step failed: " + out.EmbeddingErr.Error()
	}
	return resp
}
