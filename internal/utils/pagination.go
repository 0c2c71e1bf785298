// Package utils holds small helpers shared across layers: query-parameter
// parsing and the canonical name key used for recipient lookups.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or not a
// number. Handlers use it for optional query parameters such as ?limit= and
// ?k=, where a malformed value should fall back rather than fail the request.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
