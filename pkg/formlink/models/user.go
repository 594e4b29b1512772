package models

import (
	"time"
)

// SystemRole represents a user's system-wide role
type SystemRole string

const (
	SystemRoleAdmin SystemRole = "admin"
	SystemRoleUser  SystemRole = "user"
)

// User represents an organizer account
type User struct {
	ID           uint       `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Email        string     `gorm:"size:120;uniqueIndex;not null" json:"email"`
	PasswordHash string     `gorm:"size:256" json:"-"`
	Name         string     `gorm:"not null" json:"name"`
	SystemRole   SystemRole `gorm:"type:varchar(20);default:'user'" json:"system_role"`
	LastSeenAt   *time.Time `json:"last_seen_at"`

	// Relationships
	Groups []Group `gorm:"foreignKey:UserID" json:"groups,omitempty"`
	Links  []Link  `gorm:"foreignKey:UserID" json:"links,omitempty"`
}
