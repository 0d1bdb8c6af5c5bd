// Package normalize produces the comparison key used to match guesses against labels.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// combiningDiacritics is the Combining Diacritical Marks block, U+0300..U+036F.
var combiningDiacritics = &unicode.RangeTable{
	R16: []unicode.Range16{{Lo: 0x0300, Hi: 0x036f, Stride: 1}},
}

// Key lower-cases text, applies compatibility decomposition, strips combining
// diacritics, collapses whitespace runs and trims. Key is total and idempotent.
func Key(text string) string {
	if text == "" {
		return ""
	}
	// Some compatibility forms decompose to upper-case letters, so fold twice.
	out := fold(fold(text))
	return strings.Join(strings.Fields(out), " ")
}

func fold(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(combiningDiacritics)))
	out, _, err := transform.String(t, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// RuneLen is the length measure used by the length-delta gates.
func RuneLen(key string) int {
	return len([]rune(key))
}

// LengthDelta returns the absolute difference in rune length between two keys.
func LengthDelta(a, b string) int {
	d := RuneLen(a) - RuneLen(b)
	if d < 0 {
		return -d
	}
	return d
}
