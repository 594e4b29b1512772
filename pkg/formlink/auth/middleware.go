package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/formlink/pkg/formlink/models"
	"gorm.io/gorm"
)

// Keys under which AuthMiddleware stores the token claims in the gin context
const (
	ContextKeyUserID     = "user_id"
	ContextKeyEmail      = "email"
	ContextKeySystemRole = "system_role"
)

// lastSeenInterval limits how often an authenticated request updates last_seen_at
const lastSeenInterval = time.Minute

var (
	errNoCredentials   = errors.New("authorization header required")
	errMalformedHeader = errors.New("invalid authorization header format")
)

// bearerToken extracts the token from an "Authorization: Bearer <token>" header
func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errNoCredentials
	}
	scheme, token, found := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "bearer") || token == "" {
		return "", errMalformedHeader
	}
	return token, nil
}

func deny(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// AuthMiddleware rejects requests without a valid organizer token
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c.GetHeader("Authorization"))
		switch {
		case errors.Is(err, errNoCredentials):
			deny(c, http.StatusUnauthorized, "Authorization header required")
			return
		case err != nil:
			deny(c, http.StatusUnauthorized, "Invalid authorization header format")
			return
		}

		claims, err := ValidateToken(token)
		switch {
		case errors.Is(err, ErrExpiredToken):
			deny(c, http.StatusUnauthorized, "Token has expired")
			return
		case err != nil:
			deny(c, http.StatusUnauthorized, "Invalid token")
			return
		}

		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyEmail, claims.Email)
		c.Set(ContextKeySystemRole, claims.SystemRole)
		c.Next()
	}
}

// RequireAdmin must run after AuthMiddleware
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := GetSystemRole(c)
		if !ok {
			deny(c, http.StatusUnauthorized, "Authentication required")
			return
		}
		if role != string(models.SystemRoleAdmin) {
			deny(c, http.StatusForbidden, "Admin access required")
			return
		}
		c.Next()
	}
}

func GetUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextKeyUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

func GetEmail(c *gin.Context) (string, bool) {
	return contextString(c, ContextKeyEmail)
}

func GetSystemRole(c *gin.Context) (string, bool) {
	return contextString(c, ContextKeySystemRole)
}

func contextString(c *gin.Context, key string) (string, bool) {
	v, ok := c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// TouchLastSeen records the time of the organizer's latest authenticated request.
// It must run after AuthMiddleware. Write failures do not fail the request.
func TouchLastSeen(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, ok := GetUserID(c); ok {
			now := time.Now().UTC()
			db.Model(&models.User{}).
				Where("id = ? AND (last_seen_at IS NULL OR last_seen_at < ?)", userID, now.Add(-lastSeenInterval)).
				UpdateColumn("last_seen_at", now)
		}
		c.Next()
	}
}
