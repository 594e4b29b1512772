package admin

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/formlink/pkg/formlink/auth"
	"github.com/mikepea/formlink/pkg/formlink/logging/sl"
	"github.com/mikepea/formlink/pkg/formlink/models"
	"github.com/mikepea/formlink/pkg/formlink/storage"
	"gorm.io/gorm"
)

// Handler serves the admin-only maintenance API
type Handler struct {
	db    *gorm.DB
	blobs storage.BlobStore
	log   *slog.Logger
}

func NewHandler(db *gorm.DB, blobs storage.BlobStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{db: db, blobs: blobs, log: log.With(sl.Module("admin"))}
}

// UserResponse is an organizer account as seen by admins
type UserResponse struct {
	ID         uint       `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	SystemRole string     `json:"system_role"`
	CreatedAt  time.Time  `json:"created_at"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
	LinkCount  int64      `json:"link_count"`
	GroupCount int64      `json:"group_count"`
}

type UpdateUserRequest struct {
	Name       *string `json:"name"`
	SystemRole *string `json:"system_role"`
}

type StatsResponse struct {
	TotalUsers  int64 `json:"total_users"`
	AdminUsers  int64 `json:"admin_users"`
	TotalGroups int64 `json:"total_groups"`
	FullGroups  int64 `json:"full_groups"`
	TotalLinks  int64 `json:"total_links"`
	GroupLinks  int64 `json:"group_links"`
	LegacyLinks int64 `json:"legacy_links"`
	UsedLinks   int64 `json:"used_links"`
	ActiveLinks int64 `json:"active_links"`
	TotalForms  int64 `json:"total_forms"`
}

// userColumns selects the user together with how many links and groups they own
const userColumns = `users.id, users.email, users.name, users.system_role, users.created_at, users.last_seen_at,
	(SELECT COUNT(*) FROM links WHERE links.user_id = users.id) AS link_count,
	(SELECT COUNT(*) FROM "groups" WHERE "groups".user_id = users.id) AS group_count`

func (h *Handler) users() *gorm.DB {
	return h.db.Model(&models.User{}).Select(userColumns)
}

// loadUser resolves the :id parameter, writing the error response itself when it fails
func (h *Handler) loadUser(c *gin.Context) (UserResponse, bool) {
	var user UserResponse
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return user, false
	}

	res := h.users().Where("users.id = ?", id).Limit(1).Scan(&user)
	switch {
	case res.Error != nil:
		h.log.Error("load user", slog.Uint64("user_id", id), sl.Err(res.Error))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch user"})
		return user, false
	case res.RowsAffected == 0:
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return user, false
	}
	return user, true
}

// ListUsers returns every organizer, newest first, filtered by ?q= and ?role=
// @Summary List users
// @Tags admin
// @Produce json
// @Param q query string false "Substring of email or name"
// @Param role query string false "admin or user"
// @Success 200 {array} UserResponse
// @Security BearerAuth
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	query := h.users().Order("users.created_at DESC")
	if q := c.Query("q"); q != "" {
		pattern := "%" + q + "%"
		query = query.Where("users.email LIKE ? OR users.name LIKE ?", pattern, pattern)
	}
	if role := c.Query("role"); role != "" {
		query = query.Where("users.system_role = ?", role)
	}

	users := []UserResponse{}
	if err := query.Scan(&users).Error; err != nil {
		h.log.Error("list users", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}
	c.JSON(http.StatusOK, users)
}

// @Summary Get user
// @Tags admin
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} UserResponse
// @Failure 404 {object} map[string]string
// @Security BearerAuth
// @Router /admin/users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	if user, ok := h.loadUser(c); ok {
		c.JSON(http.StatusOK, user)
	}
}

// UpdateUser renames an organizer or changes their role. Admins cannot demote themselves.
// @Summary Update user
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UpdateUserRequest true "Fields to change"
// @Success 200 {object} UserResponse
// @Security BearerAuth
// @Router /admin/users/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.SystemRole != nil {
		role := models.SystemRole(*req.SystemRole)
		if role != models.SystemRoleAdmin && role != models.SystemRoleUser {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid system role"})
			return
		}
		if self, _ := auth.GetUserID(c); self == user.ID && role != models.SystemRoleAdmin {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot demote yourself"})
			return
		}
		updates["system_role"] = role
	}

	if len(updates) > 0 {
		if err := h.db.Model(&models.User{ID: user.ID}).Updates(updates).Error; err != nil {
			h.log.Error("update user", slog.Uint64("user_id", uint64(user.ID)), sl.Err(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
		if req.SystemRole != nil && *req.SystemRole != user.SystemRole {
			h.log.Info("system role changed",
				slog.Uint64("user_id", uint64(user.ID)),
				slog.String("from", user.SystemRole),
				slog.String("to", *req.SystemRole),
			)
		}
	}

	if user, ok = h.loadUser(c); ok {
		c.JSON(http.StatusOK, user)
	}
}

// GetStats returns system-wide statistics (admin only)
// @Summary System statistics
// @Tags admin
// @Produce json
// @Success 200 {object} StatsResponse
// @Security BearerAuth
// @Router /admin/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	var stats StatsResponse
	now := time.Now().UTC()

	h.db.Model(&models.User{}).Count(&stats.TotalUsers)
	h.db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&stats.AdminUsers)
	h.db.Model(&models.Group{}).Count(&stats.TotalGroups)
	h.db.Model(&models.Group{}).Where("max_capacity > 0 AND current_count >= max_capacity").Count(&stats.FullGroups)

	h.db.Model(&models.Link{}).Count(&stats.TotalLinks)
	h.db.Model(&models.Link{}).Where("group_id IS NOT NULL").Count(&stats.GroupLinks)
	h.db.Model(&models.Link{}).Where("group_id IS NULL").Count(&stats.LegacyLinks)
	h.db.Model(&models.Link{}).Where("used = ?", true).Count(&stats.UsedLinks)
	h.db.Model(&models.Link{}).Where("used = ? AND end_at > ?", false, now).Count(&stats.ActiveLinks)

	h.db.Model(&models.Form{}).Count(&stats.TotalForms)

	c.JSON(http.StatusOK, stats)
}

// Orphans reports inconsistencies between links, forms and group counters (admin only)
// @Summary Orphan report
// @Tags admin
// @Produce json
// @Success 200 {object} OrphanReport
// @Security BearerAuth
// @Router /admin/orphans [get]
func (h *Handler) Orphans(c *gin.Context) {
	report, err := FindOrphans(c.Request.Context(), h.db)
	if err != nil {
		h.log.Error("failed to build orphan report", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build orphan report"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// RepairOrphans fixes the repairable entries of the orphan report (admin only)
// @Summary Repair orphans
// @Description Resets used single-use links that have no form and deletes forms whose link no longer exists, together with their photos
// @Tags admin
// @Produce json
// @Success 200 {object} RepairResult
// @Security BearerAuth
// @Router /admin/orphans/repair [post]
func (h *Handler) RepairOrphans(c *gin.Context) {
	result, err := RepairOrphans(c.Request.Context(), h.db, h.blobs)
	if err != nil {
		h.log.Error("failed to repair orphans", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to repair orphans"})
		return
	}
	h.log.Info("orphans repaired",
		slog.Int("links_reset", result.LinksReset),
		slog.Int("forms_deleted", result.FormsDeleted),
	)
	c.JSON(http.StatusOK, result)
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.GET("/orphans", h.Orphans)
	rg.POST("/orphans/repair", h.RepairOrphans)
}
