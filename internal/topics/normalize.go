// Package topics canonicalizes content titles and decides whether a
// candidate topic duplicates something the site already covers.
package topics

import "strings"

// Normalize canonicalizes a title or slug into a comparable form:
// lower-cased, stripped of everything outside [a-z0-9 ], whitespace
// collapsed and trimmed. Total and idempotent; empty input yields "".
func Normalize(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true // leading whitespace is dropped
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case r == ' ', r == '\t', r == '\n', r == '\r':
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		default:
			// Stripped characters do not become separators; the following
			// whitespace (if any) still collapses into one space.
		}
	}

	return strings.TrimRight(b.String(), " ")
}
