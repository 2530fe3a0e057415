// Package textnorm splits raw OCR text into lines and folds strings into the
// forms used for pattern matching and product-name comparison.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// StripAccents removes combining marks, so "LÁCTEOS" becomes "LACTEOS".
// A fresh transformer is built per call because transform.Chain is stateful.
func StripAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// CollapseSpaces trims s and replaces every whitespace run with one space.
func CollapseSpaces(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Normalize returns the upper-cased, accent-free, whitespace-collapsed form of
// text. Store detection and line patterns are written against this form.
func Normalize(text string) string {
	return CollapseSpaces(strings.ToUpper(StripAccents(text)))
}

// Fold is the lower-case counterpart of Normalize, used for name comparison.
func Fold(text string) string {
	return CollapseSpaces(strings.ToLower(StripAccents(text)))
}

// ToLines splits text into trimmed, non-empty lines in their original order.
// Internal whitespace is left alone: some receipts align columns with runs of
// spaces and the parsers rely on it.
func ToLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(strings.ReplaceAll(l, "\r", ""))
		if l == "" {
			continue
		}
		lines = append(lines, l)
	}
	return lines
}

// NormalizedLines is ToLines followed by Normalize on every line.
func NormalizedLines(text string) []string {
	lines := ToLines(text)
	for i, l := range lines {
		lines[i] = Normalize(l)
	}
	return lines
}
