package tenant

import (
	"strings"

	"github.com/google/uuid"
)

// ShortID returns the first 8 hexadecimal characters of a UUID (without dashes).
func ShortID(id uuid.UUID) string {
	hex := strings.ReplaceAll(id.String(), "-", "")
	return hex[:8]
}

// BuildBasePrefix returns `<envKey>/<slug>-<shortId>/`.
func BuildBasePrefix(envKey, slug string, shortID string) string {
	envKey = strings.Trim(strings.TrimSpace(envKey), "/")
	return envKey + "/" + slug + "-" + shortID + "/"
}
