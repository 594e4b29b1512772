package models

import (
	"time"
)

// ExpirationType selects how the end of life of a group's links is computed
type ExpirationType string

const (
	ExpirationNever ExpirationType = "never"
	ExpirationHours ExpirationType = "hours"
)

// Group is an organizer-defined collection target.
// Links issued for a group share its capacity; MaxCapacity 0 means unlimited.
type Group struct {
	ID              uint           `gorm:"primarykey" json:"id"`
	CreatedAt       time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	UserID          uint           `gorm:"not null;index" json:"user_id"`
	Name            string         `gorm:"size:120;not null;index" json:"name"`
	Description     string         `gorm:"size:500" json:"description"`
	MaxCapacity     int            `gorm:"not null;default:0" json:"max_capacity"`
	CurrentCount    int            `gorm:"not null;default:0" json:"current_count"`
	ExpirationType  ExpirationType `gorm:"type:varchar(20);not null;default:'never'" json:"expiration_type"`
	ExpirationHours *int           `json:"expiration_hours"`

	// Relationships
	Creator User   `gorm:"foreignKey:UserID" json:"-"`
	Links   []Link `gorm:"foreignKey:GroupID" json:"links,omitempty"`
	Forms   []Form `gorm:"foreignKey:GroupID" json:"forms,omitempty"`
}
