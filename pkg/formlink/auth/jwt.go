package auth

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

const (
	defaultTokenTTL = 24 * time.Hour
	tokenIssuer     = "formlink"
	devSecret       = "formlink-dev-secret-change-in-production"
)

// Claims identify the organizer a token was issued to
type Claims struct {
	UserID     uint   `json:"user_id"`
	Email      string `json:"email"`
	SystemRole string `json:"system_role"`
	jwt.RegisteredClaims
}

type signingSettings struct {
	secret []byte
	ttl    time.Duration
}

var (
	settingsMu sync.RWMutex
	settings   = signingSettings{ttl: defaultTokenTTL}
)

// Configure sets the signing secret and token lifetime used from now on.
// An empty secret falls back to JWT_SECRET; a zero ttl keeps 24 hours.
func Configure(secret string, ttl time.Duration) {
	next := signingSettings{ttl: defaultTokenTTL}
	if secret != "" {
		next.secret = []byte(secret)
	}
	if ttl > 0 {
		next.ttl = ttl
	}

	settingsMu.Lock()
	settings = next
	settingsMu.Unlock()
}

func currentSettings() signingSettings {
	settingsMu.RLock()
	s := settings
	settingsMu.RUnlock()

	if s.secret == nil {
		if env := os.Getenv("JWT_SECRET"); env != "" {
			s.secret = []byte(env)
		} else {
			s.secret = []byte(devSecret)
		}
	}
	return s
}

// GenerateToken signs an HS256 token for the organizer
func GenerateToken(userID uint, email string, systemRole string) (string, error) {
	s := currentSettings()
	now := time.Now()
	claims := Claims{
		UserID:     userID,
		Email:      email,
		SystemRole: systemRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ValidateToken checks signature, algorithm and expiry, returning the claims
func ValidateToken(tokenString string) (*Claims, error) {
	secret := currentSettings().secret
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(tokenIssuer))

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil, !token.Valid:
		return nil, ErrInvalidToken
	}
	return claims, nil
}
