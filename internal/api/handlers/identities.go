package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/your-org/faceid/internal/auth"
	"github.com/your-org/faceid/internal/storage"
	"github.com/your-org/faceid/pkg/dto"
)

type IdentityHandler struct {
	db    *storage.PostgresStore
	minio *storage.MinIOStore // nil when blob storage isn't configured
}

func NewIdentityHandler(db *storage.PostgresStore, minio *storage.MinIOStore) *IdentityHandler {
	return &IdentityHandler{db: db, minio: minio}
}

func (h *IdentityHandler) Get(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
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

	c.JSON(http.StatusOK, toUserResponse(user))
}

func (h *IdentityHandler) Update(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrMissingFields, err.Error()))
		return
	}

	updated, err := h.db.UpdateUser(c.Request.Context(), userID, storage.UpdateUserParams{
		DisplayName:      req.DisplayName,
		Email:            req.Email,
		Phone:            req.Phone,
		DateOfBirth:      req.DateOfBirth,
		EmergencyContact: req.EmergencyContact,
		PreferredLang:    req.PreferredLang,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrMissingFields, err.Error()))
		return
	}
	if !updated {
		c.JSON(http.StatusNotFound, dto.NewError(dto.ErrUserMissing))
		return
	}

	user, err := h.db.GetUser(c.Request.Context(), userID)
	if err != nil || user == nil {
		c.JSON(http.StatusInternalServerError, dto.NewError(dto.ErrDB))
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// Delete removes the identity with its embeddings and image rows, then makes
// a best-effort pass over the blobs. A blob that survives is reported, not
// retried.
func (h *IdentityHandler) Delete(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	keys, err := h.db.DeleteUser(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, dto.NewError(dto.ErrUserMissing))
			return
		}
		c.JSON(http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrDB, err.Error()))
		return
	}

	removed := []string{}
	if len(keys) > 0 && h.minio != nil {
		removed, err = h.minio.DeleteObjects(c.Request.Context(), keys)
		if err != nil {
			slog.Warn("blob cleanup incomplete after identity delete", "user_id", userID, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":         "deleted",
		"images_total":   len(keys),
		"images_removed": len(removed),
	})
}

func (h *IdentityHandler) ListImages(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	images, err := h.db.ListUserImages(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrDB, err.Error()))
		return
	}

	resp := make([]dto.ImageResponse, 0, len(images))
	for i := range images {
		resp = append(resp, toImageResponse(&images[i]))
	}
	c.JSON(http.StatusOK, gin.H{"images": resp, "total": len(resp)})
}

// ListEmbeddings returns embedding metadata only; vector payloads never
// leave the database.
func (h *IdentityHandler) ListEmbeddings(c *gin.Context) {
	userID, ok := pathUserID(c)
	if !ok {
		return
	}

	metas, err := h.db.ListEmbeddingMeta(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrDB, err.Error()))
		return
	}

	resp := make([]dto.EmbeddingMetaResponse, 0, len(metas))
	for _, m := range metas {
		resp = append(resp, dto.EmbeddingMetaResponse{
			ID:           m.ID,
			Source:       m.Source,
			HasEmbedding: true,
			CreatedAt:    m.CreatedAt.Format(time.RFC3339),
		})
	}
	c.JSON(http.StatusOK, gin.H{"embeddings": resp, "total": len(resp)})
}

// DeleteImage removes one image row and its blob. Ownership is checked
// against the image's user, since the path carries the image id.
func (h *IdentityHandler) DeleteImage(c *gin.Context) {
	imageID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrImageMissing, "invalid image id"))
		return
	}

	img, err := h.db.GetUserImage(c.Request.Context(), imageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrDB, err.Error()))
		return
	}
	if img == nil {
		c.JSON(http.StatusNotFound, dto.NewError(dto.ErrImageMissing))
		return
	}

	if auth.IdentityClaim(c) != img.UserID.String() {
		c.JSON(http.StatusForbidden, dto.NewError(dto.ErrForbidden))
		return
	}

	if err := h.db.DeleteUserImage(c.Request.Context(), imageID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, dto.NewError(dto.ErrImageMissing))
			return
		}
		c.JSON(http.StatusInternalServerError, dto.NewErrorDetail(dto.ErrDB, err.Error()))
		return
	}

	if h.minio != nil {
		if err := h.minio.DeleteObject(c.Request.Context(), img.StorageKey); err != nil {
			slog.Warn("blob cleanup failed after image delete", "key", img.StorageKey, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func pathUserID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, dto.NewErrorDetail(dto.ErrUserMissing, "invalid user id"))
		return uuid.Nil, false
	}
	return id, true
}
