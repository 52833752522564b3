package models

import "strings"

// Fold is the single case-folding rule used for matching and ordering.
// Stores that evaluate matching natively must produce the same results.
func Fold(s string) string {
	return strings.ToLower(s)
}

// ContainsFold reports whether needle occurs in haystack ignoring case.
func ContainsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(Fold(haystack), Fold(needle))
}

// CompareFold compares a and b ignoring case.
func CompareFold(a, b string) int {
	return strings.Compare(Fold(a), Fold(b))
}
