package domain

import (
	"slices"
	"strings"
	"time"

	apperrors "github.com/grievancegenie/platform/internal/shared/errors"
)

// Rating is the citizen's assessment of a resolution. Immutable once stored.
type Rating struct {
	Overall       int       `json:"overall"`
	Speed         int       `json:"speed"`
	Quality       int       `json:"quality"`
	Communication int       `json:"communication"`
	Tags          []string  `json:"tags"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

func (r Rating) Validate() error {
	details := map[string]string{}
	for name, v := range map[string]int{
		"overall":       r.Overall,
		"speed":         r.Speed,
		"quality":       r.Quality,
		"communication": r.Communication,
	} {
		if v < 1 || v > 5 {
			details[name] = "must be between 1 and 5"
		}
	}
	if len(details) > 0 {
		return apperrors.Validation("invalid rating", details)
	}
	return nil
}

// normalizeTags trims, drops empties and removes duplicates.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t != "" && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}
