package submissions

import (
	"errors"
	"strings"
)

var (
	ErrLinkNotFound       = errors.New("link not found")
	ErrLinkExpiredOrUsed  = errors.New("link expired or already used")
	ErrGroupFull          = errors.New("group is full")
	ErrInvalidImageFormat = errors.New("invalid image format")
	ErrValidation         = errors.New("validation failed")
	ErrPersistence        = errors.New("could not save submission")
)

// ValidationError lists the payload fields that failed validation
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

// Is lets errors.Is match ValidationError against ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
