// Package storage keeps submitted photos as opaque blobs keyed by form ID.
// Blob names never carry an extension; the file type is always sniffed from
// the content when it is read back.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when no blob exists for an ID
	ErrNotFound = errors.New("blob not found")
	// ErrExists is returned when a blob is written twice under the same ID
	ErrExists = errors.New("blob already exists")
	// ErrInvalidKey is returned for IDs that cannot be used as blob names
	ErrInvalidKey = errors.New("invalid blob key")
)

// BlobStore stores write-once blobs keyed by submission ID
type BlobStore interface {
	Put(ctx context.Context, id string, data []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

func validateKey(id string) error {
	if strings.TrimSpace(id) == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, id)
	}
	return nil
}
