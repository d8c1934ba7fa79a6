// Package normalize cleans free-text artist and track names before they are
// sent to a provider search endpoint.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// quoteMarks lists every quote variant removed from queries: straight,
// curly, low-9, primes, guillemets and CJK corner/angle brackets.
const quoteMarks = "\"'`´" +
	"‘’‚‛“”„‟" +
	"′″" +
	"«»‹›" +
	"「」『』〈〉《》" +
	"＂＇"

// Query returns s in NFC form with quote marks stripped, runs of whitespace
// collapsed to a single space, and surrounding space trimmed.
func Query(s string) string {
	s = norm.NFC.String(s)

	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if strings.ContainsRune(quoteMarks, r) {
			continue
		}
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// Key returns the case-insensitive identity used to deduplicate names.
func Key(s string) string {
	return strings.ToLower(Query(s))
}
