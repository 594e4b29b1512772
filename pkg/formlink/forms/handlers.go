// Package forms lets organizers view submitted forms and their photos.
package forms

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/formlink/pkg/formlink/auth"
	"github.com/mikepea/formlink/pkg/formlink/logging/sl"
	"github.com/mikepea/formlink/pkg/formlink/models"
	"github.com/mikepea/formlink/pkg/formlink/storage"
	"gorm.io/gorm"
)

// DefaultDownloadExtension is used when a photo's type cannot be sniffed
const DefaultDownloadExtension = "jpg"

// Handler handles form requests
type Handler struct {
	db    *gorm.DB
	blobs storage.BlobStore
	log   *slog.Logger
}

// NewHandler creates a new forms handler
func NewHandler(db *gorm.DB, blobs storage.BlobStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{db: db, blobs: blobs, log: log.With(sl.Module("forms"))}
}

// ownedForm loads the form named by the :id param if the current user owns
// its group or, for forms without a group, the link it came through.
func (h *Handler) ownedForm(c *gin.Context) (models.Form, bool) {
	userID, _ := auth.GetUserID(c)

	var form models.Form
	if err := h.db.Where("id = ?", c.Param("id")).First(&form).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Form not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch form"})
		}
		return models.Form{}, false
	}

	var owned int64
	var err error
	if form.GroupID != nil {
		err = h.db.Model(&models.Group{}).Where("id = ? AND user_id = ?", *form.GroupID, userID).Count(&owned).Error
	} else {
		err = h.db.Model(&models.Link{}).Where("id = ? AND user_id = ?", form.LinkID, userID).Count(&owned).Error
	}
	if err != nil {
		h.log.Error("failed to check form ownership", slog.String("form_id", form.ID), sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch form"})
		return models.Form{}, false
	}
	if owned == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Form not found"})
		return models.Form{}, false
	}
	return form, true
}

// loadPhoto reads the stored photo of form, writing the error response on failure
func (h *Handler) loadPhoto(c *gin.Context, form models.Form) ([]byte, bool) {
	data, err := h.blobs.Get(c.Request.Context(), form.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Photo not found"})
		} else {
			h.log.Error("failed to read photo", slog.String("form_id", form.ID), sl.Err(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read photo"})
		}
		return nil, false
	}
	return data, true
}

// Get returns a submitted form
// @Summary Get a form
// @Tags forms
// @Produce json
// @Param id path string true "Form ID"
// @Success 200 {object} models.Form
// @Failure 404 {object} map[string]string "Form not found"
// @Security BearerAuth
// @Router /forms/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	form, ok := h.ownedForm(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, form)
}

// Photo serves a form's photo inline with its sniffed content type
// @Summary View a form photo
// @Tags forms
// @Produce image/jpeg,image/png,image/gif,image/webp,image/bmp,image/svg+xml
// @Param id path string true "Form ID"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string "Photo not found"
// @Security BearerAuth
// @Router /forms/{id}/photo [get]
func (h *Handler) Photo(c *gin.Context) {
	form, ok := h.ownedForm(c)
	if !ok {
		return
	}
	data, ok := h.loadPhoto(c, form)
	if !ok {
		return
	}

	c.Header("X-Content-Type-Options", "nosniff")
	c.Data(http.StatusOK, storage.MIMEOr(data, "application/octet-stream"), data)
}

// Download serves a form's photo as an attachment named after its sniffed type
// @Summary Download a form photo
// @Tags forms
// @Produce octet-stream
// @Param id path string true "Form ID"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string "Photo not found"
// @Security BearerAuth
// @Router /forms/{id}/photo/download [get]
func (h *Handler) Download(c *gin.Context) {
	form, ok := h.ownedForm(c)
	if !ok {
		return
	}
	data, ok := h.loadPhoto(c, form)
	if !ok {
		return
	}

	filename := fmt.Sprintf("%s.%s", form.ID, storage.ExtensionOr(data, DefaultDownloadExtension))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Data(http.StatusOK, storage.MIMEOr(data, "application/octet-stream"), data)
}

// RegisterRoutes registers form routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id", h.Get)
	rg.GET("/:id/photo", h.Photo)
	rg.GET("/:id/photo/download", h.Download)
}
