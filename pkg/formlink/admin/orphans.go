package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/mikepea/formlink/pkg/formlink/models"
	"github.com/mikepea/formlink/pkg/formlink/storage"
	"gorm.io/gorm"
)

// CounterDrift is a group whose stored submission count differs from its forms
type CounterDrift struct {
	GroupID uint `json:"group_id"`
	Stored  int  `json:"stored"`
	Actual  int  `json:"actual"`
}

// OrphanReport lists records left inconsistent by failed or interrupted writes
type OrphanReport struct {
	UsedLinksWithoutForm []string       `json:"used_links_without_form"`
	FormsWithoutLink     []string       `json:"forms_without_link"`
	CounterDrift         []CounterDrift `json:"counter_drift"`
}

// RepairResult summarizes a repair run
type RepairResult struct {
	LinksReset   int      `json:"links_reset"`
	FormsDeleted int      `json:"forms_deleted"`
	PhotoErrors  []string `json:"photo_errors,omitempty"`
}

// FindOrphans builds the orphan report.
// Counter drift is reported only; counts are never decremented.
func FindOrphans(ctx context.Context, db *gorm.DB) (OrphanReport, error) {
	db = db.WithContext(ctx)
	report := OrphanReport{
		UsedLinksWithoutForm: []string{},
		FormsWithoutLink:     []string{},
		CounterDrift:         []CounterDrift{},
	}

	err := db.Model(&models.Link{}).
		Where("group_id IS NULL AND used = ?", true).
		Where("NOT EXISTS (SELECT 1 FROM forms WHERE forms.link_id = links.id)").
		Order("id").
		Pluck("id", &report.UsedLinksWithoutForm).Error
	if err != nil {
		return report, fmt.Errorf("used links without form: %w", err)
	}

	err = db.Model(&models.Form{}).
		Where("NOT EXISTS (SELECT 1 FROM links WHERE links.id = forms.link_id)").
		Order("id").
		Pluck("id", &report.FormsWithoutLink).Error
	if err != nil {
		return report, fmt.Errorf("forms without link: %w", err)
	}

	err = db.Model(&models.Group{}).
		Select(`"groups".id AS group_id, "groups".current_count AS stored, ` +
			`(SELECT COUNT(*) FROM forms WHERE forms.group_id = "groups".id) AS actual`).
		Where(`"groups".current_count <> (SELECT COUNT(*) FROM forms WHERE forms.group_id = "groups".id)`).
		Order(`"groups".id`).
		Scan(&report.CounterDrift).Error
	if err != nil {
		return report, fmt.Errorf("counter drift: %w", err)
	}

	return report, nil
}

// RepairOrphans re-opens used single-use links that never received a form and
// deletes forms whose link is gone, together with their photos.
// A photo that cannot be deleted is reported but does not stop the run.
func RepairOrphans(ctx context.Context, db *gorm.DB, blobs storage.BlobStore) (RepairResult, error) {
	var result RepairResult

	report, err := FindOrphans(ctx, db)
	if err != nil {
		return result, err
	}

	if len(report.UsedLinksWithoutForm) > 0 {
		res := db.WithContext(ctx).Model(&models.Link{}).
			Where("id IN ? AND used = ?", report.UsedLinksWithoutForm, true).
			Update("used", false)
		if res.Error != nil {
			return result, fmt.Errorf("reset links: %w", res.Error)
		}
		result.LinksReset = int(res.RowsAffected)
	}

	for _, id := range report.FormsWithoutLink {
		if err := db.WithContext(ctx).Delete(&models.Form{}, "id = ?", id).Error; err != nil {
			return result, fmt.Errorf("delete form %s: %w", id, err)
		}
		result.FormsDeleted++

		if blobs == nil {
			continue
		}
		if err := blobs.Delete(ctx, id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			result.PhotoErrors = append(result.PhotoErrors, id)
		}
	}

	return result, nil
}
