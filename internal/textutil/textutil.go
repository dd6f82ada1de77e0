// Package textutil holds the text folding shared by parsing, duplicate detection and merchant matching.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lowercases s and strips diacritics, so "Café Zürich" becomes "cafe zurich".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// Normalize lowercases s, replaces every non-alphanumeric rune with a space and collapses whitespace.
// Accents are kept so that non-Latin descriptions still compare meaningfully.
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if space && b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(r)
			space = false
			continue
		}
		space = true
	}
	return b.String()
}

// CollapseSpaces trims s and reduces internal whitespace runs to a single space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// ContainsWord reports whether the folded text contains phrase on word boundaries.
// Both arguments are expected to be folded already.
func ContainsWord(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	padded := " " + Normalize(text) + " "
	return strings.Contains(padded, " "+Normalize(phrase)+" ")
}
