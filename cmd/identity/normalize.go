package identity

import "strings"

// NormalizeUsername performs case-insensitive canonicalization for lookups.
// Display keeps the original spelling.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
