// Package submissions records identity forms submitted through links.
package submissions

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mikepea/formlink/pkg/formlink/lifecycle"
	"github.com/mikepea/formlink/pkg/formlink/logging/sl"
	"github.com/mikepea/formlink/pkg/formlink/metrics"
	"github.com/mikepea/formlink/pkg/formlink/models"
	"github.com/mikepea/formlink/pkg/formlink/storage"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// Recorder validates submissions against their link and persists them
// together with the submitted photo.
type Recorder struct {
	db    *gorm.DB
	blobs storage.BlobStore
	log   *slog.Logger
	newID func(now time.Time) (string, error)
}

// NewRecorder creates a Recorder backed by db and blobs
func NewRecorder(db *gorm.DB, blobs storage.BlobStore, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		db:    db,
		blobs: blobs,
		log:   log.With(sl.Module("submissions")),
		newID: newULID,
	}
}

// ResolveLink loads the link for a token, including its group
func (r *Recorder) ResolveLink(ctx context.Context, token string) (*models.Link, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrLinkNotFound
	}

	var link models.Link
	if err := r.db.WithContext(ctx).Preload("Group").Where("id = ?", token).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return &link, nil
}

// CheckUsable reports why a link cannot take a submission at now, or nil
func CheckUsable(link models.Link, now time.Time) error {
	if !lifecycle.IsActive(link, now) {
		return ErrLinkExpiredOrUsed
	}
	if link.Kind() == models.LinkGroupScoped && link.Group != nil && lifecycle.IsFull(*link.Group) {
		return ErrGroupFull
	}
	return nil
}

// Submit records one form for the link identified by token.
// The form row, the photo, the group counter and the link's used flag are
// committed together; on any failure none of them are left behind.
func (r *Recorder) Submit(ctx context.Context, token string, payload Payload, image []byte, now time.Time) (*models.Form, error) {
	form, err := r.submit(ctx, token, payload, image, now)
	metrics.ObserveSubmission(outcome(err))
	return form, err
}

func (r *Recorder) submit(ctx context.Context, token string, payload Payload, image []byte, now time.Time) (*models.Form, error) {
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	link, err := r.ResolveLink(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := CheckUsable(*link, now); err != nil {
		return nil, err
	}

	format, ok := storage.Sniff(image)
	if !ok || !storage.IsAllowedImage(format) {
		return nil, ErrInvalidImageFormat
	}

	payload.Normalize()
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	id, err := r.newID(now)
	if err != nil {
		return nil, fmt.Errorf("%w: generate id: %v", ErrPersistence, err)
	}
	form := payload.toForm(id, *link, now)

	stored := false
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		switch link.Kind() {
		case models.LinkGroupScoped:
			if err := lifecycle.RecordSubmission(tx, *link.GroupID); err != nil {
				if errors.Is(err, lifecycle.ErrGroupFull) {
					return ErrGroupFull
				}
				return err
			}
		default:
			consumed, err := lifecycle.ConsumeLink(tx, link.ID)
			if err != nil {
				return err
			}
			if !consumed {
				return ErrLinkExpiredOrUsed
			}
		}

		if err := tx.Create(&form).Error; err != nil {
			return err
		}

		if err := r.blobs.Put(ctx, form.ID, image); err != nil {
			return fmt.Errorf("store image: %w", err)
		}
		stored = true
		return nil
	})
	if err != nil {
		if stored {
			if delErr := r.blobs.Delete(context.WithoutCancel(ctx), form.ID); delErr != nil {
				r.log.Error("failed to remove image after rollback", slog.String("form_id", form.ID), sl.Err(delErr))
			}
		}
		if errors.Is(err, ErrGroupFull) || errors.Is(err, ErrLinkExpiredOrUsed) {
			return nil, err
		}
		r.log.Error("submission rolled back", sl.Secret("link", link.ID), sl.Err(err))
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	r.log.Info("form submitted",
		slog.String("form_id", form.ID),
		slog.String("kind", link.Kind().String()),
		slog.String("format", format.Extension),
	)
	return &form, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "accepted"
	case errors.Is(err, ErrLinkNotFound):
		return "link_not_found"
	case errors.Is(err, ErrLinkExpiredOrUsed):
		return "link_inactive"
	case errors.Is(err, ErrGroupFull):
		return "group_full"
	case errors.Is(err, ErrInvalidImageFormat):
		return "invalid_image"
	case errors.Is(err, ErrValidation):
		return "invalid_payload"
	default:
		return "error"
	}
}

func newULID(now time.Time) (string, error) {
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
