// Package palette holds the fixed competency colors used to classify
// taxonomy groups and rotating aggregates.
package palette

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const (
	// Neutral paints anything unlit.
	Neutral = "#6f7a84"
	// DefaultAccent is used when nothing else resolves a color.
	DefaultAccent = "#00ff41"
	// Backplate is the fixed fill of background/foreground panels.
	Backplate = "#000"
)

// Category pairs a label keyword with its color.
type Category struct {
	Keyword string
	Color   string
}

// Categories is ordered; the first keyword contained in a label wins.
var Categories = []Category{
	{Keyword: "comprendre", Color: "#ff77d1"},
	{Keyword: "concevoir", Color: "#ffd700"},
	{Keyword: "exprimer", Color: "#8a2be2"},
	{Keyword: "developper", Color: "#00ff41"},
	{Keyword: "développer", Color: "#00ff41"},
	{Keyword: "entreprendre", Color: "#06D1FF"},
}

// Classify returns the category whose keyword appears in label. Matching is
// case-insensitive and tolerant of missing accents.
func Classify(label string) (Category, bool) {
	lower := strings.ToLower(label)
	folded := Fold(label)
	if lower == "" {
		return Category{}, false
	}
	for _, c := range Categories {
		if strings.Contains(lower, c.Keyword) || strings.Contains(folded, c.Keyword) {
			return c, true
		}
	}
	return Category{}, false
}

// Color is Classify reduced to the color string.
func Color(label string) (string, bool) {
	c, ok := Classify(label)
	return c.Color, ok
}

// Fold lowercases s and strips combining marks, so "Développer" and
// "developper" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// SameColor compares two CSS color strings, ignoring case and whitespace.
func SameColor(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
