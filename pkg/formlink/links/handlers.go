package links

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/formlink/pkg/formlink/auth"
	"github.com/mikepea/formlink/pkg/formlink/lifecycle"
	"github.com/mikepea/formlink/pkg/formlink/metrics"
	"github.com/mikepea/formlink/pkg/formlink/models"
	"gorm.io/gorm"
)

// DefaultPerPage is the number of links listed per page
const DefaultPerPage = 8

// tokenBytes of randomness give a 22 character URL-safe token
const tokenBytes = 16

// Handler handles link-related requests
type Handler struct {
	db      *gorm.DB
	perPage int
	now     func() time.Time
}

// NewHandler creates a new links handler
func NewHandler(db *gorm.DB, perPage int) *Handler {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &Handler{db: db, perPage: perPage, now: time.Now}
}

// CreateLinkRequest asks for a single-use link valid for the given duration
type CreateLinkRequest struct {
	lifecycle.Duration
}

// LinkResponse represents a link in API responses
type LinkResponse struct {
	Token       string    `json:"token"`
	Path        string    `json:"path"`
	Kind        string    `json:"kind"`
	GroupID     *uint     `json:"group_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	EndAt       time.Time `json:"end_at"`
	Used        bool      `json:"used"`
	Active      bool      `json:"active"`
	Submitted   bool      `json:"submitted"`
	Submissions int64     `json:"submissions"`
}

// LinkListResponse is one page of the current user's links
type LinkListResponse struct {
	Links      []LinkResponse `json:"links"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	Total      int64          `json:"total"`
	TotalPages int            `json:"total_pages"`
}

func (h *Handler) linkToResponse(link models.Link) LinkResponse {
	var submissions int64
	h.db.Model(&models.Form{}).Where("link_id = ?", link.ID).Count(&submissions)

	return LinkResponse{
		Token:       link.ID,
		Path:        "/f/" + link.ID,
		Kind:        link.Kind().String(),
		GroupID:     link.GroupID,
		CreatedAt:   link.CreatedAt,
		EndAt:       link.EndAt,
		Used:        link.Used,
		Active:      lifecycle.IsActive(link, h.now()),
		Submitted:   submissions > 0,
		Submissions: submissions,
	}
}

// generateToken returns a random URL-safe link token
func generateToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// createLink stores a new link under a fresh token
func (h *Handler) createLink(link *models.Link) error {
	for attempts := 0; attempts < 5; attempts++ {
		token, err := generateToken()
		if err != nil {
			return err
		}
		var existing int64
		h.db.Model(&models.Link{}).Where("id = ?", token).Count(&existing)
		if existing > 0 {
			continue
		}
		link.ID = token
		return h.db.Create(link).Error
	}
	return errors.New("could not generate a unique link token")
}

// ownedGroup loads the group named by the :id param if the current user owns it.
// It writes the error response and returns false otherwise.
func (h *Handler) ownedGroup(c *gin.Context) (models.Group, bool) {
	userID, _ := auth.GetUserID(c)
	groupID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return models.Group{}, false
	}

	var group models.Group
	if err := h.db.Where("id = ? AND user_id = ?", groupID, userID).First(&group).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Group not found"})
		return models.Group{}, false
	}
	return group, true
}

// ListByGroup returns all links issued for a group
// @Summary List links in a group
// @Description Get all links issued for a group owned by the current user
// @Tags links
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {array} LinkResponse
// @Failure 400 {object} map[string]string "Invalid group ID"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id}/links [get]
func (h *Handler) ListByGroup(c *gin.Context) {
	group, ok := h.ownedGroup(c)
	if !ok {
		return
	}

	var links []models.Link
	if err := h.db.Where("group_id = ?", group.ID).Order("created_at DESC").Find(&links).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch links"})
		return
	}

	responses := make([]LinkResponse, len(links))
	for i, link := range links {
		responses[i] = h.linkToResponse(link)
	}

	c.JSON(http.StatusOK, responses)
}

// CreateForGroup issues a reusable link that feeds a group
// @Summary Issue a group link
// @Description Issue a link whose end of life follows the group's expiration policy
// @Tags links
// @Produce json
// @Param id path int true "Group ID"
// @Success 201 {object} LinkResponse
// @Failure 400 {object} map[string]string "Invalid expiration policy"
// @Failure 404 {object} map[string]string "Group not found"
// @Failure 409 {object} map[string]string "Group is full"
// @Security BearerAuth
// @Router /groups/{id}/links [post]
func (h *Handler) CreateForGroup(c *gin.Context) {
	userID, _ := auth.GetUserID(c)
	group, ok := h.ownedGroup(c)
	if !ok {
		return
	}

	if lifecycle.IsFull(group) {
		c.JSON(http.StatusConflict, gin.H{"error": "Group is full"})
		return
	}

	now := h.now().UTC()
	endAt, err := lifecycle.PolicyForGroup(group).EndAt(now)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link := models.Link{
		CreatedAt: now,
		EndAt:     endAt,
		UserID:    userID,
		GroupID:   &group.ID,
	}
	if err := h.createLink(&link); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create link"})
		return
	}
	metrics.ObserveLinkIssued(link.Kind().String())

	c.JSON(http.StatusCreated, h.linkToResponse(link))
}

// Create issues a single-use link
// @Summary Issue a single-use link
// @Description Issue a link that accepts one submission within the given duration
// @Tags links
// @Accept json
// @Produce json
// @Param request body CreateLinkRequest true "Link lifetime"
// @Success 201 {object} LinkResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /links [post]
func (h *Handler) Create(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := h.now().UTC()
	endAt, err := req.Duration.EndAt(now)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	link := models.Link{
		CreatedAt: now,
		EndAt:     endAt,
		UserID:    userID,
	}
	if err := h.createLink(&link); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create link"})
		return
	}
	metrics.ObserveLinkIssued(link.Kind().String())

	c.JSON(http.StatusCreated, h.linkToResponse(link))
}

// List returns the current user's links, newest first
// @Summary List my links
// @Tags links
// @Produce json
// @Param page query int false "Page number" default(1)
// @Success 200 {object} LinkListResponse
// @Security BearerAuth
// @Router /links [get]
func (h *Handler) List(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	var total int64
	if err := h.db.Model(&models.Link{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count links"})
		return
	}

	var links []models.Link
	err = h.db.Where("user_id = ?", userID).
		Order("created_at DESC, id").
		Offset((page - 1) * h.perPage).
		Limit(h.perPage).
		Find(&links).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch links"})
		return
	}

	responses := make([]LinkResponse, len(links))
	for i, link := range links {
		responses[i] = h.linkToResponse(link)
	}

	c.JSON(http.StatusOK, LinkListResponse{
		Links:      responses,
		Page:       page,
		PerPage:    h.perPage,
		Total:      total,
		TotalPages: int((total + int64(h.perPage) - 1) / int64(h.perPage)),
	})
}

// Get returns a link by its token
// @Summary Get a link
// @Tags links
// @Produce json
// @Param token path string true "Link token"
// @Success 200 {object} LinkResponse
// @Failure 404 {object} map[string]string "Link not found"
// @Security BearerAuth
// @Router /links/{token} [get]
func (h *Handler) Get(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	var link models.Link
	if err := h.db.Where("id = ? AND user_id = ?", c.Param("token"), userID).First(&link).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Link not found"})
		return
	}

	c.JSON(http.StatusOK, h.linkToResponse(link))
}

// RegisterRoutes registers link routes
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	// Group-scoped routes
	rg.GET("/groups/:id/links", h.ListByGroup)
	rg.POST("/groups/:id/links", h.CreateForGroup)

	// Token-based routes
	rg.GET("/links", h.List)
	rg.POST("/links", h.Create)
	rg.GET("/links/:token", h.Get)
}
