// Package utils provides shared text and logging helpers.
package utils

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/width"
)

// Truncate returns s cut to at most maxRunes runes, with "..." appended if it was cut.
// If maxRunes is 0 or negative, s is returned unchanged.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRunes]) + "..."
}

// RuneWidth is the number of terminal columns r occupies: 2 for East Asian
// wide and fullwidth characters, 0 for combining marks, 1 otherwise.
func RuneWidth(r rune) int {
	switch {
	case r == 0 || (r >= 0x0300 && r <= 0x036F) || (r >= 0x1160 && r <= 0x11FF):
		return 0
	}
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return 2
	}
	return 1
}

// DisplayWidth is the number of terminal columns s occupies.
func DisplayWidth(s string) int {
	n := 0
	for _, r := range s {
		n += RuneWidth(r)
	}
	return n
}

// FitWidth truncates or pads s with spaces so that it occupies exactly cols columns.
// A truncated string ends in "…".
func FitWidth(s string, cols int) string {
	if cols <= 0 {
		return ""
	}
	w := DisplayWidth(s)
	if w <= cols {
		return s + strings.Repeat(" ", cols-w)
	}
	var b strings.Builder
	used := 0
	for _, r := range s {
		rw := RuneWidth(r)
		if used+rw > cols-1 {
			break
		}
		b.WriteRune(r)
		used += rw
	}
	b.WriteString("…")
	used++
	b.WriteString(strings.Repeat(" ", cols-used))
	return b.String()
}
