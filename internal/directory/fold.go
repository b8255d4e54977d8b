package directory

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// fold reduces s to a form where "Pediatría" and "pediatria" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return folder.String(strings.TrimSpace(stripped))
}

// matches reports whether any of values contains query, ignoring case and accents.
// An empty query matches everything.
func matches(query string, values ...string) bool {
	q := fold(query)
	if q == "" {
		return true
	}
	for _, v := range values {
		if strings.Contains(fold(v), q) {
			return true
		}
	}
	return false
}
