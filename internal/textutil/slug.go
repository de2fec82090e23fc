// Package textutil provides small text normalization helpers used when
// deriving filesystem names from page titles.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slug converts an arbitrary page name into a lowercase filesystem-safe slug.
// Diacritics are stripped, runs of non-alphanumeric characters collapse to a
// single underscore, and leading/trailing underscores are trimmed.
func Slug(name string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, err := transform.String(t, name)
	if err != nil {
		ascii = name
	}

	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(ascii) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}
