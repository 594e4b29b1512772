package models

import (
	"time"
)

// Form is one submitted identity payload. It is written once and never updated.
// The photo is stored in the blob store under the same ID.
type Form struct {
	ID               string    `gorm:"primarykey;size:26" json:"id"`
	FirstName        string    `gorm:"size:50;not null" json:"first_name"`
	MiddleName       *string   `gorm:"size:50" json:"middle_name"`
	LastName         string    `gorm:"size:50;not null" json:"last_name"`
	EyeColor         string    `gorm:"size:30;not null" json:"eye_color"`
	HairColor        string    `gorm:"size:30;not null" json:"hair_color"`
	Address          *string   `gorm:"size:200" json:"address"`
	DateOfBirth      time.Time `gorm:"not null" json:"date_of_birth"`
	Height           float64   `gorm:"not null" json:"height"`
	Weight           float64   `gorm:"not null" json:"weight"`
	Gender           string    `gorm:"size:10;not null" json:"gender"`
	State            string    `gorm:"size:2;not null" json:"state"`
	City             string    `gorm:"size:100;not null" json:"city"`
	ZipCode          string    `gorm:"size:10;not null" json:"zip_code"`
	OrganDonor       bool      `gorm:"not null" json:"organ_donor"`
	CorrectiveLenses bool      `gorm:"not null" json:"corrective_lenses"`
	GroupID          *uint     `gorm:"index" json:"group_id"`
	LinkID           string    `gorm:"size:22;index" json:"link_id"`
	SubmittedAt      time.Time `gorm:"index;not null" json:"submitted_at"`

	// Relationships
	Group *Group `gorm:"foreignKey:GroupID" json:"-"`
}
