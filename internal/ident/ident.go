// Package ident holds the small text helpers shared by login and the
// challenge verifier. All functions are pure and never fail: malformed
// input degrades to an empty or short string.
package ident

import "strings"

// Normalize lowercases and trims text for case/whitespace-insensitive
// username comparison.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// DigitsOnly strips every non-digit rune, coercing free-form ID input
// into a comparable digit string.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsTenDigitID reports whether the digit-only form of s is exactly ten
// characters, the shape a national ID must have to take part in the
// challenge protocol.
func IsTenDigitID(s string) bool {
	return len(DigitsOnly(s)) == 10
}
