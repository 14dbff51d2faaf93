// Package skill identifies skill codes in the tree: normalization, the
// ordered extraction strategies that recover a code from an element, and the
// classification of elements into visual kinds.
package skill

import (
	"regexp"
	"strings"
)

// Code is a normalized skill identifier such as AC12 or AC12.1.
type Code string

var (
	codePattern   = regexp.MustCompile(`(?i)(AC\d+(?:\.\d+)?)`)
	storeKeyStart = regexp.MustCompile(`(?i)^AC\d+`)
	// caseSensitive mirrors the value filter of storage notifications.
	caseSensitive = regexp.MustCompile(`AC\d+`)
)

// Normalize uppercases and trims raw without validating it.
func Normalize(raw string) Code {
	return Code(strings.ToUpper(strings.TrimSpace(raw)))
}

// Find returns the first code embedded in s.
func Find(s string) (Code, bool) {
	m := codePattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return Code(strings.ToUpper(m[1])), true
}

// FindAll returns every code embedded in s, in order.
func FindAll(s string) []Code {
	matches := codePattern.FindAllString(s, -1)
	out := make([]Code, 0, len(matches))
	for _, m := range matches {
		out = append(out, Code(strings.ToUpper(m)))
	}
	return out
}

// ParseList splits a comma separated reference list.
func ParseList(s string) []Code {
	var out []Code
	for _, part := range strings.Split(s, ",") {
		if c := Normalize(part); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// IsStoreKey reports whether a store key holds a score (AC-prefixed,
// case-insensitive). Note keys such as AC11_note also match.
func IsStoreKey(key string) bool {
	return storeKeyStart.MatchString(key)
}

// Mentions reports whether s contains a code, ignoring case.
func Mentions(s string) bool {
	return codePattern.MatchString(s)
}

// MentionsExact is Mentions with a case-sensitive prefix.
func MentionsExact(s string) bool {
	return caseSensitive.MatchString(s)
}

// Strings converts codes to plain strings.
func Strings(codes []Code) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = string(c)
	}
	return out
}
