package indexer

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Preprocess normalizes a field value: Unicode NFC, trimmed, internal whitespace collapsed
// to single spaces. Composed and decomposed Hangul compare equal afterwards.
func Preprocess(text string) string {
	text = strings.TrimSpace(norm.NFC.String(text))
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
