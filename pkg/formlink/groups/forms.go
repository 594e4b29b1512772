package groups

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/formlink/pkg/formlink/models"
)

const (
	defaultFormsPerPage = 20
	maxFormsPerPage     = 100
)

// FormListResponse is one page of a group's submissions
type FormListResponse struct {
	Forms   []models.Form `json:"forms"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
	Total   int64         `json:"total"`
}

// ListForms returns the submissions of a group, newest first
// @Summary List group submissions
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Param page query int false "Page number" default(1)
// @Param per_page query int false "Page size" default(20)
// @Success 200 {object} FormListResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id}/forms [get]
func (h *Handler) ListForms(c *gin.Context) {
	group, ok := h.findOwnedGroup(c)
	if !ok {
		return
	}

	page := queryInt(c, "page", 1)
	perPage := queryInt(c, "per_page", defaultFormsPerPage)
	if perPage > maxFormsPerPage {
		perPage = maxFormsPerPage
	}

	var total int64
	if err := h.db.Model(&models.Form{}).Where("group_id = ?", group.ID).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count forms"})
		return
	}

	forms := []models.Form{}
	err := h.db.Where("group_id = ?", group.ID).
		Order("submitted_at DESC, id DESC").
		Offset((page - 1) * perPage).
		Limit(perPage).
		Find(&forms).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch forms"})
		return
	}

	c.JSON(http.StatusOK, FormListResponse{Forms: forms, Page: page, PerPage: perPage, Total: total})
}

// queryInt reads a positive integer query parameter, or def when absent or invalid
func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}

// RegisterFormRoutes registers the group submission routes
func (h *Handler) RegisterFormRoutes(rg *gin.RouterGroup) {
	rg.GET("/:id/forms", h.ListForms)
}
