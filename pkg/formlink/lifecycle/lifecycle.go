// Package lifecycle decides whether links may accept submissions and whether
// groups still have room for them.
package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"github.com/mikepea/formlink/pkg/formlink/models"
)

// NeverExpiresAfter is the end-of-life offset used for links that do not expire.
// A capped offset keeps timestamp arithmetic well defined in every database.
const NeverExpiresAfter = 10 * 365 * 24 * time.Hour

// MaxExpirationHours is the longest hour-based lifetime a group may configure
const MaxExpirationHours = int(NeverExpiresAfter / time.Hour)

// ErrInvalidPolicy is returned for expiration settings that cannot produce an end of life
var ErrInvalidPolicy = errors.New("invalid expiration policy")

// Policy is a resolved expiration policy
type Policy struct {
	Type  models.ExpirationType
	Hours int
}

// PolicyForGroup returns the expiration policy configured on a group
func PolicyForGroup(group models.Group) Policy {
	p := Policy{Type: group.ExpirationType}
	if p.Type == "" {
		p.Type = models.ExpirationNever
	}
	if group.ExpirationHours != nil {
		p.Hours = *group.ExpirationHours
	}
	return p
}

// Validate checks the policy is usable for link issuance
func (p Policy) Validate() error {
	switch p.Type {
	case models.ExpirationNever:
		return nil
	case models.ExpirationHours:
		if p.Hours <= 0 {
			return fmt.Errorf("%w: expiration hours must be a positive integer", ErrInvalidPolicy)
		}
		if p.Hours > MaxExpirationHours {
			return fmt.Errorf("%w: expiration hours must not exceed %d", ErrInvalidPolicy, MaxExpirationHours)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown expiration type %q", ErrInvalidPolicy, p.Type)
	}
}

// EndAt computes the end of life of a link created at createdAt under this policy
func (p Policy) EndAt(createdAt time.Time) (time.Time, error) {
	if err := p.Validate(); err != nil {
		return time.Time{}, err
	}
	createdAt = createdAt.UTC()
	if p.Type == models.ExpirationHours {
		return createdAt.Add(time.Duration(p.Hours) * time.Hour), nil
	}
	return createdAt.Add(NeverExpiresAfter), nil
}

// Duration is the explicit lifetime requested for a legacy link
type Duration struct {
	Weeks   int `json:"weeks" binding:"min=0"`
	Days    int `json:"days" binding:"min=0"`
	Hours   int `json:"hours" binding:"min=0"`
	Minutes int `json:"minutes" binding:"min=0"`
	Seconds int `json:"seconds" binding:"min=0"`
}

// Validate checks every component is within range and the combined
// lifetime is positive and no longer than NeverExpiresAfter
func (d Duration) Validate() error {
	parts := []struct {
		n    int
		unit time.Duration
	}{
		{d.Weeks, 7 * 24 * time.Hour},
		{d.Days, 24 * time.Hour},
		{d.Hours, time.Hour},
		{d.Minutes, time.Minute},
		{d.Seconds, time.Second},
	}
	var total time.Duration
	for _, p := range parts {
		if p.n < 0 {
			return fmt.Errorf("%w: link lifetime fields must not be negative", ErrInvalidPolicy)
		}
		// Compare before multiplying so large values cannot wrap
		if int64(p.n) > int64(NeverExpiresAfter/p.unit) {
			return fmt.Errorf("%w: link lifetime must not exceed %s", ErrInvalidPolicy, NeverExpiresAfter)
		}
		total += time.Duration(p.n) * p.unit
	}
	if total <= 0 {
		return fmt.Errorf("%w: link lifetime must be positive", ErrInvalidPolicy)
	}
	if total > NeverExpiresAfter {
		return fmt.Errorf("%w: link lifetime must not exceed %s", ErrInvalidPolicy, NeverExpiresAfter)
	}
	return nil
}

// Total returns the combined duration. Only meaningful after Validate succeeds.
func (d Duration) Total() time.Duration {
	return time.Duration(d.Weeks)*7*24*time.Hour +
		time.Duration(d.Days)*24*time.Hour +
		time.Duration(d.Hours)*time.Hour +
		time.Duration(d.Minutes)*time.Minute +
		time.Duration(d.Seconds)*time.Second
}

// EndAt computes the end of life of a legacy link created at createdAt
func (d Duration) EndAt(createdAt time.Time) (time.Time, error) {
	if err := d.Validate(); err != nil {
		return time.Time{}, err
	}
	return createdAt.UTC().Add(d.Total()), nil
}

// IsActive reports whether the link may still accept a submission at now.
// A link whose end of life equals now is expired.
func IsActive(link models.Link, now time.Time) bool {
	if link.Used {
		return false
	}
	return link.EndAt.UTC().After(now.UTC())
}
