package groups

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/formlink/pkg/formlink/auth"
	"github.com/mikepea/formlink/pkg/formlink/lifecycle"
	"github.com/mikepea/formlink/pkg/formlink/models"
	"gorm.io/gorm"
)

// Handler handles group-related requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateGroupRequest represents the request to create a group
type CreateGroupRequest struct {
	Name            string `json:"name" binding:"required,max=120"`
	Description     string `json:"description" binding:"max=500"`
	MaxCapacity     int    `json:"max_capacity" binding:"min=0"`
	ExpirationType  string `json:"expiration_type" binding:"omitempty,oneof=never hours"`
	ExpirationHours *int   `json:"expiration_hours"`
}

// UpdateGroupRequest represents the request to update a group.
// Omitted fields are left unchanged.
type UpdateGroupRequest struct {
	Name            *string `json:"name" binding:"omitempty,max=120"`
	Description     *string `json:"description" binding:"omitempty,max=500"`
	MaxCapacity     *int    `json:"max_capacity" binding:"omitempty,min=0"`
	ExpirationType  *string `json:"expiration_type" binding:"omitempty,oneof=never hours"`
	ExpirationHours *int    `json:"expiration_hours"`
}

// GroupResponse represents a group in API responses
type GroupResponse struct {
	ID              uint      `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	MaxCapacity     int       `json:"max_capacity"`
	CurrentCount    int       `json:"current_count"`
	Remaining       *int      `json:"remaining"` // null when unlimited
	IsFull          bool      `json:"is_full"`
	ExpirationType  string    `json:"expiration_type"`
	ExpirationHours *int      `json:"expiration_hours,omitempty"`
	LinkCount       int       `json:"link_count"`
	CreatedAt       time.Time `json:"created_at"`
}

func (h *Handler) toResponse(group models.Group) GroupResponse {
	var linkCount int64
	h.db.Model(&models.Link{}).Where("group_id = ?", group.ID).Count(&linkCount)

	resp := GroupResponse{
		ID:              group.ID,
		Name:            group.Name,
		Description:     group.Description,
		MaxCapacity:     group.MaxCapacity,
		CurrentCount:    group.CurrentCount,
		IsFull:          lifecycle.IsFull(group),
		ExpirationType:  string(group.ExpirationType),
		ExpirationHours: group.ExpirationHours,
		LinkCount:       int(linkCount),
		CreatedAt:       group.CreatedAt,
	}
	if remaining := lifecycle.Remaining(group); remaining >= 0 {
		resp.Remaining = &remaining
	}
	return resp
}

// findOwnedGroup loads the group named by the :id param if the current user
// owns it. It writes the error response and returns false otherwise.
func (h *Handler) findOwnedGroup(c *gin.Context) (models.Group, bool) {
	userID, _ := auth.GetUserID(c)
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return models.Group{}, false
	}

	var group models.Group
	if err := h.db.Where("id = ? AND user_id = ?", groupID, userID).First(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch group"})
		}
		return models.Group{}, false
	}
	return group, true
}

// List returns all groups owned by the current user
// @Summary List groups
// @Description Get all groups owned by the current user, newest first
// @Tags groups
// @Produce json
// @Success 200 {array} GroupResponse
// @Security BearerAuth
// @Router /groups [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var groups []models.Group
	if err := h.db.Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&groups).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}

	resp := make([]GroupResponse, len(groups))
	for i, g := range groups {
		resp[i] = h.toResponse(g)
	}

	c.JSON(http.StatusOK, resp)
}

// Create creates a new group owned by the current user
// @Summary Create a group
// @Description Create a new group with a capacity and an expiration policy for its links
// @Tags groups
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} GroupResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /groups [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group := models.Group{
		UserID:         userID,
		Name:           strings.TrimSpace(req.Name),
		Description:    strings.TrimSpace(req.Description),
		MaxCapacity:    req.MaxCapacity,
		ExpirationType: models.ExpirationType(req.ExpirationType),
	}
	if group.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name is required"})
		return
	}
	if group.ExpirationType == "" {
		group.ExpirationType = models.ExpirationNever
	}
	if group.ExpirationType == models.ExpirationHours {
		group.ExpirationHours = req.ExpirationHours
	}
	if err := lifecycle.PolicyForGroup(group).Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.db.Create(&group).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(group))
}

// Get returns a specific group
// @Summary Get a group
// @Description Get details of a group owned by the current user
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} GroupResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	group, ok := h.findOwnedGroup(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, h.toResponse(group))
}

// Update updates a group
// @Summary Update a group
// @Description Update a group owned by the current user. Links already issued keep their end of life.
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body UpdateGroupRequest true "Updated group details"
// @Success 200 {object} GroupResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	group, ok := h.findOwnedGroup(c)
	if !ok {
		return
	}

	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Update fields if provided
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Name cannot be empty"})
			return
		}
		group.Name = name
	}
	if req.Description != nil {
		group.Description = strings.TrimSpace(*req.Description)
	}
	if req.MaxCapacity != nil {
		group.MaxCapacity = *req.MaxCapacity
	}
	if req.ExpirationType != nil {
		group.ExpirationType = models.ExpirationType(*req.ExpirationType)
	}
	if req.ExpirationHours != nil {
		group.ExpirationHours = req.ExpirationHours
	}
	if group.ExpirationType == models.ExpirationNever {
		group.ExpirationHours = nil
	}
	if err := lifecycle.PolicyForGroup(group).Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// current_count is owned by the submission path and never written here
	err := h.db.Model(&group).Updates(map[string]interface{}{
		"name":             group.Name,
		"description":      group.Description,
		"max_capacity":     group.MaxCapacity,
		"expiration_type":  group.ExpirationType,
		"expiration_hours": group.ExpirationHours,
	}).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update group"})
		return
	}

	h.db.First(&group, group.ID)
	c.JSON(http.StatusOK, h.toResponse(group))
}

// RegisterRoutes registers group routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", h.Update)
}
