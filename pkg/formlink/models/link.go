package models

import (
	"time"
)

// LinkKind distinguishes single-use links from links that feed a group
type LinkKind int

const (
	// LinkLegacy accepts at most one submission, gated by the Used flag
	LinkLegacy LinkKind = iota
	// LinkGroupScoped accepts submissions until the group is full or the link expires
	LinkGroupScoped
)

func (k LinkKind) String() string {
	switch k {
	case LinkGroupScoped:
		return "group"
	default:
		return "legacy"
	}
}

// Link is a shareable invitation to submit a form.
// The ID is the random URL-safe token handed out to recipients.
type Link struct {
	ID        string    `gorm:"primarykey;size:22" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	EndAt     time.Time `gorm:"index;not null" json:"end_at"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	GroupID   *uint     `gorm:"index" json:"group_id"`
	Used      bool      `gorm:"not null;default:false" json:"used"`

	// Relationships
	Creator User   `gorm:"foreignKey:UserID" json:"-"`
	Group   *Group `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}

// Kind reports whether the link is legacy or group-scoped
func (l Link) Kind() LinkKind {
	if l.GroupID != nil {
		return LinkGroupScoped
	}
	return LinkLegacy
}
