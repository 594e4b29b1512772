package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/mikepea/formlink/pkg/formlink/models"
	"github.com/mikepea/formlink/pkg/formlink/storage"
)

// DefaultPhotoExtension names archive entries whose type cannot be sniffed
const DefaultPhotoExtension = "png"

// entryTime is the modification time written on every archive entry
var entryTime = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ImageLookup returns the stored photo of a form
type ImageLookup interface {
	Get(ctx context.Context, id string) ([]byte, error)
}

// BuildPhotoArchive zips the photos of forms, in order. Forms without a
// stored photo are skipped; any other lookup error aborts the archive.
func BuildPhotoArchive(ctx context.Context, forms []models.Form, lookup ImageLookup) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := WritePhotoArchive(ctx, &buf, forms, lookup); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WritePhotoArchive writes the archive built by BuildPhotoArchive to w and
// returns the IDs of the forms skipped for lack of a photo.
func WritePhotoArchive(ctx context.Context, w io.Writer, forms []models.Form, lookup ImageLookup) ([]string, error) {
	zw := zip.NewWriter(w)
	var skipped []string

	for _, form := range forms {
		data, err := lookup.Get(ctx, form.ID)
		if errors.Is(err, storage.ErrNotFound) {
			skipped = append(skipped, form.ID)
			continue
		}
		if err != nil {
			zw.Close()
			return nil, fmt.Errorf("read photo %s: %w", form.ID, err)
		}

		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     EntryName(form, storage.ExtensionOr(data, DefaultPhotoExtension)),
			Method:   zip.Deflate,
			Modified: entryTime,
		})
		if err != nil {
			zw.Close()
			return nil, err
		}
		if _, err := entry.Write(data); err != nil {
			zw.Close()
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, err
	}
	return skipped, nil
}

// EntryName names the archive entry for a form's photo as
// first_last_id.ext using the full form ID.
func EntryName(form models.Form, ext string) string {
	return fmt.Sprintf("%s_%s_%s.%s", safeName(form.FirstName), safeName(form.LastName), form.ID, ext)
}

var nameReplacer = strings.NewReplacer("/", "-", `\`, "-", "..", "-")

func safeName(s string) string {
	return nameReplacer.Replace(strings.TrimSpace(s))
}
