// Package scan turns raw scanner input into canonical unit identifiers.
package scan

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var idPattern = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// Extract returns the first canonical identifier found anywhere in raw,
// lowercased. Scanners may wrap the code in control characters or embed it
// in a URL, so the identifier is never assumed to be the whole input.
func Extract(raw string) (string, bool) {
	m := idPattern.FindString(raw)
	if m == "" {
		return "", false
	}
	return Normalize(m)
}

// Normalize validates an identifier that is expected to already be canonical
// (8-4-4-4-12 hex groups) and returns its lowercase form.
func Normalize(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if len(id) != 36 || !idPattern.MatchString(id) {
		return "", false
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}
