package character

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/lorekeeper/chronicle/pkg/apperr"
)

const (
	MaxPOINameLen        = 200
	MaxPOIDescriptionLen = 2000
	MaxPOITags           = 20
	MaxPOITagLen         = 50
)

// PointOfInterest is a discoverable location record. Identity is by
// server-assigned id only; duplicate names are permitted.
type PointOfInterest struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	Visited     bool      `json:"visited"`
	Tags        []string  `json:"tags,omitempty"`
}

// Validate checks name/description length bounds and tag constraints.
func (p *PointOfInterest) Validate() error {
	if n := utf8.RuneCountInString(p.Name); n < 1 || n > MaxPOINameLen {
		return apperr.Invalid("name", "must be 1-%d characters (got %d)", MaxPOINameLen, n)
	}
	if n := utf8.RuneCountInString(p.Description); n < 1 || n > MaxPOIDescriptionLen {
		return apperr.Invalid("description", "must be 1-%d characters (got %d)", MaxPOIDescriptionLen, n)
	}
	return ValidatePOITags(p.Tags)
}

// ValidatePOITags checks the tag-list bound and each tag's constraints.
// Shared by POI create and update.
func ValidatePOITags(tags []string) error {
	if len(tags) > MaxPOITags {
		return apperr.Invalid("tags", "at most %d tags are allowed (got %d)", MaxPOITags, len(tags))
	}
	for i, tag := range tags {
		path := fmt.Sprintf("tags[%d]", i)
		if strings.TrimSpace(tag) == "" {
			return apperr.Invalid(path, "must not be empty or whitespace")
		}
		if n := utf8.RuneCountInString(tag); n > MaxPOITagLen {
			return apperr.Invalid(path, "must be at most %d characters (got %d)", MaxPOITagLen, n)
		}
	}
	return nil
}
