// Package engine implements the pure matching and inference functions:
// transfer-pair detection, payee duplicate clustering and historical
// payee/category pattern learning. Nothing in this package performs I/O
// or holds shared state; every function is deterministic for a given
// input.
package engine

import "strings"

// NormalizeName reduces a payee display name for fuzzy comparison:
// lowercase, letters/digits/spaces only, repeated whitespace collapsed,
// trimmed.
func NormalizeName(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	lastSpace := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		case r == ' ' || r == '\t':
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

// PatternKey reduces a payee name to its grouping key for pattern
// learning: lowercase alphanumerics with no spaces at all, so "Uber
// Eats" and "UBEREATS" land in the same bucket.
func PatternKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
