package persistence

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	slugPattern    = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	nonSlugPattern = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeSlug trims whitespace, lowercases the value, and ensures it matches
// the canonical URL-safe slug pattern used for institution identifiers.
func NormalizeSlug(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("slug is required")
	}

	normalized := strings.ToLower(trimmed)
	if !slugPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid slug %q: must match ^[a-z0-9]+(?:-[a-z0-9]+)*$", input)
	}

	return normalized, nil
}

// SlugFromName derives a slug from a display name. It returns "" when nothing usable remains.
func SlugFromName(name string) string {
	s := nonSlugPattern.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(s, "-")
}
