package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/formlink/pkg/formlink/logging/sl"
	"github.com/mikepea/formlink/pkg/formlink/models"
	"gorm.io/gorm"
)

// Handler serves organizer accounts: sign-up, sign-in and the profile
type Handler struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewHandler(db *gorm.DB, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{db: db, log: log.With(sl.Module("auth"))}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// ChangePasswordRequest requires the current password before a new one is set
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8"`
}

// AuthResponse carries a freshly signed token and the organizer it belongs to
type AuthResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type UserResponse struct {
	ID         uint       `json:"id"`
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	SystemRole string     `json:"system_role"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// ProfileResponse is the organizer's account plus how much they have issued
type ProfileResponse struct {
	UserResponse
	GroupCount int64 `json:"group_count"`
	LinkCount  int64 `json:"link_count"`
}

func newUserResponse(user models.User) UserResponse {
	return UserResponse{
		ID:         user.ID,
		Email:      user.Email,
		Name:       user.Name,
		SystemRole: string(user.SystemRole),
		LastSeenAt: user.LastSeenAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// session signs a token for user and wraps it into the response body
func session(user models.User) (AuthResponse, error) {
	token, err := GenerateToken(user.ID, user.Email, string(user.SystemRole))
	if err != nil {
		return AuthResponse{}, err
	}
	return AuthResponse{Token: token, User: newUserResponse(user)}, nil
}

// Register creates an organizer account
// @Summary Register a new organizer
// @Description Create an organizer account and receive a JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration details"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "Email already registered"
// @Router /auth/register [post]
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	email := normalizeEmail(req.Email)

	var taken int64
	h.db.Model(&models.User{}).Where("email = ?", email).Count(&taken)
	if taken > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		h.log.Error("hash password", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	user := models.User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		SystemRole:   models.SystemRoleUser,
	}
	if err := h.db.Create(&user).Error; err != nil {
		h.log.Error("create organizer", slog.String("email", email), sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	resp, err := session(user)
	if err != nil {
		h.log.Error("sign token", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	h.log.Info("organizer registered", slog.Uint64("user_id", uint64(user.ID)))
	c.JSON(http.StatusCreated, resp)
}

// Login exchanges credentials for a token
// @Summary Login
// @Description Authenticate with email and password to receive a JWT token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login credentials"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /auth/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Unknown email and wrong password get the same answer
	var user models.User
	err := h.db.Where("email = ?", normalizeEmail(req.Email)).First(&user).Error
	if err != nil || !CheckPassword(req.Password, user.PasswordHash) {
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			h.log.Error("look up organizer", sl.Err(err))
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid email or password"})
		return
	}

	now := time.Now().UTC()
	if err := h.db.Model(&user).UpdateColumn("last_seen_at", now).Error; err != nil {
		h.log.Warn("record last seen", sl.Err(err))
	}
	user.LastSeenAt = &now

	resp, err := session(user)
	if err != nil {
		h.log.Error("sign token", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the signed-in organizer with counts of their groups and links
// @Summary Get current organizer
// @Tags auth
// @Produce json
// @Success 200 {object} ProfileResponse
// @Failure 401 {object} map[string]string "Authentication required"
// @Security BearerAuth
// @Router /auth/me [get]
func (h *Handler) Me(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	profile := ProfileResponse{UserResponse: newUserResponse(user)}
	h.db.Model(&models.Group{}).Where("user_id = ?", user.ID).Count(&profile.GroupCount)
	h.db.Model(&models.Link{}).Where("user_id = ?", user.ID).Count(&profile.LinkCount)

	c.JSON(http.StatusOK, profile)
}

// ChangePassword replaces the organizer's password
// @Summary Change password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ChangePasswordRequest true "Current and new password"
// @Success 204
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Current password is wrong"
// @Security BearerAuth
// @Router /auth/me/password [put]
func (h *Handler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if !CheckPassword(req.CurrentPassword, user.PasswordHash) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Current password is incorrect"})
		return
	}

	hash, err := HashPassword(req.NewPassword)
	if err != nil {
		h.log.Error("hash password", sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}
	if err := h.db.Model(&user).UpdateColumn("password_hash", hash).Error; err != nil {
		h.log.Error("store password", slog.Uint64("user_id", uint64(user.ID)), sl.Err(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update password"})
		return
	}
	h.log.Info("password changed", slog.Uint64("user_id", uint64(user.ID)))
	c.Status(http.StatusNoContent)
}

// Logout is a no-op on the server; tokens expire on their own
// @Summary Logout
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logged out successfully"
// @Router /auth/logout [post]
func (h *Handler) Logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// currentUser loads the organizer behind the token, answering the request itself on failure
func (h *Handler) currentUser(c *gin.Context) (models.User, bool) {
	var user models.User
	userID, ok := GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return user, false
	}
	if err := h.db.First(&user, userID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return user, false
	}
	return user, true
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/register", h.Register)
	rg.POST("/login", h.Login)
	rg.POST("/logout", h.Logout)

	me := rg.Group("/me", AuthMiddleware(), TouchLastSeen(h.db))
	me.GET("", h.Me)
	me.PUT("/password", h.ChangePassword)
}
