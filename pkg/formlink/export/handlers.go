package export

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/formlink/pkg/formlink/auth"
	"github.com/mikepea/formlink/pkg/formlink/logging/sl"
	"github.com/mikepea/formlink/pkg/formlink/metrics"
	"github.com/mikepea/formlink/pkg/formlink/models"
	"gorm.io/gorm"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	zipContentType  = "application/zip"
)

// Handler handles export requests
type Handler struct {
	db     *gorm.DB
	lookup ImageLookup
	log    *slog.Logger
}

// NewHandler creates a new export handler
func NewHandler(db *gorm.DB, lookup ImageLookup, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{db: db, lookup: lookup, log: log.With(sl.Module("export"))}
}

// loadGroupForms returns the caller's group and its forms, newest first.
// It writes the error response and returns false when that is not possible.
func (h *Handler) loadGroupForms(c *gin.Context) (models.Group, []models.Form, bool) {
	userID, _ := auth.GetUserID(c)

	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return models.Group{}, nil, false
	}

	var group models.Group
	if err := h.db.Where("id = ? AND user_id = ?", groupID, userID).First(&group).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return models.Group{}, nil, false
	}

	var forms []models.Form
	if err := h.db.Where("group_id = ?", group.ID).Order("submitted_at DESC, id DESC").Find(&forms).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch forms"})
		return models.Group{}, nil, false
	}
	return group, forms, true
}

// Spreadsheet exports a group's forms as an xlsx workbook
// @Summary Export group spreadsheet
// @Tags export
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path int true "Group ID"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /groups/{id}/export/spreadsheet [get]
func (h *Handler) Spreadsheet(c *gin.Context) {
	group, forms, ok := h.loadGroupForms(c)
	if !ok {
		return
	}

	data, err := BuildSpreadsheet(group, forms)
	if err != nil {
		h.log.Error("failed to build spreadsheet", slog.Uint64("group_id", uint64(group.ID)), sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build spreadsheet"})
		return
	}
	metrics.ObserveExport("spreadsheet")

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=group-%d-submissions.xlsx", group.ID))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// Photos exports a group's photos as a zip archive
// @Summary Export group photos
// @Tags export
// @Produce application/zip
// @Param id path int true "Group ID"
// @Success 200 {file} file
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /groups/{id}/export/photos [get]
func (h *Handler) Photos(c *gin.Context) {
	group, forms, ok := h.loadGroupForms(c)
	if !ok {
		return
	}

	var buf bytes.Buffer
	skipped, err := WritePhotoArchive(c.Request.Context(), &buf, forms, h.lookup)
	if err != nil {
		h.log.Error("failed to build photo archive", slog.Uint64("group_id", uint64(group.ID)), sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build photo archive"})
		return
	}
	if len(skipped) > 0 {
		h.log.Warn("photos missing from archive", slog.Uint64("group_id", uint64(group.ID)), slog.Int("skipped", len(skipped)))
		metrics.ObserveSkippedPhotos(len(skipped))
	}
	metrics.ObserveExport("photos")

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=group-%d-photos.zip", group.ID))
	c.Data(http.StatusOK, zipContentType, buf.Bytes())
}

// RegisterRoutes registers export routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/groups/:id/export/spreadsheet", h.Spreadsheet)
	rg.GET("/groups/:id/export/photos", h.Photos)
}
