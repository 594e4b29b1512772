package storage

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Format is a file type detected from content
type Format struct {
	MIME      string
	Extension string // without the leading dot
}

// allowedImages lists the extensions accepted for submitted photos
var allowedImages = map[string]bool{
	"jpg":  true,
	"png":  true,
	"gif":  true,
	"svg":  true,
	"bmp":  true,
	"webp": true,
}

// Sniff detects the file type of data by inspecting its content.
// It returns false when the type cannot be determined.
func Sniff(data []byte) (Format, bool) {
	if len(data) == 0 {
		return Format{}, false
	}
	m := mimetype.Detect(data)
	ext := strings.TrimPrefix(m.Extension(), ".")
	if ext == "" || m.Is("application/octet-stream") {
		return Format{}, false
	}
	mime, _, _ := strings.Cut(m.String(), ";")
	return Format{MIME: mime, Extension: ext}, true
}

// IsAllowedImage reports whether the format is an accepted photo type
func IsAllowedImage(f Format) bool {
	return allowedImages[f.Extension]
}

// ExtensionOr returns the sniffed extension of data, or fallback when unknown
func ExtensionOr(data []byte, fallback string) string {
	if f, ok := Sniff(data); ok {
		return f.Extension
	}
	return fallback
}

// MIMEOr returns the sniffed MIME type of data, or fallback when unknown
func MIMEOr(data []byte, fallback string) string {
	if f, ok := Sniff(data); ok {
		return f.MIME
	}
	return fallback
}
