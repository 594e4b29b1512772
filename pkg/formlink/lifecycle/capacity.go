package lifecycle

import (
	"errors"

	"github.com/mikepea/formlink/pkg/formlink/models"
	"gorm.io/gorm"
)

// ErrGroupFull is returned when a group has no remaining capacity
var ErrGroupFull = errors.New("group is full")

// IsFull reports whether the group has reached its maximum capacity.
// A MaxCapacity of zero means unlimited.
func IsFull(group models.Group) bool {
	if group.MaxCapacity == 0 {
		return false
	}
	return group.CurrentCount >= group.MaxCapacity
}

// Remaining returns the number of submissions the group can still accept,
// or -1 when the group is unlimited.
func Remaining(group models.Group) int {
	if group.MaxCapacity == 0 {
		return -1
	}
	if group.CurrentCount >= group.MaxCapacity {
		return 0
	}
	return group.MaxCapacity - group.CurrentCount
}

// RecordSubmission increments the group's count by exactly one.
// The increment is a single conditional UPDATE so concurrent writers cannot
// push the count past MaxCapacity; run it inside the transaction that
// inserts the form.
func RecordSubmission(tx *gorm.DB, groupID uint) error {
	res := tx.Model(&models.Group{}).
		Where("id = ? AND (max_capacity = 0 OR current_count < max_capacity)", groupID).
		UpdateColumn("current_count", gorm.Expr("current_count + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrGroupFull
	}
	return nil
}

// ConsumeLink flips a legacy link's used flag.
// It returns false when the link was already used.
func ConsumeLink(tx *gorm.DB, linkID string) (bool, error) {
	res := tx.Model(&models.Link{}).
		Where("id = ? AND used = ?", linkID, false).
		UpdateColumn("used", true)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
