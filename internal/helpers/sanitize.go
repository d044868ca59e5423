package helpers

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// stripTags drops every element and attribute; the policy is safe for concurrent use.
var stripTags = bluemonday.StrictPolicy()

// StripTags removes all markup from s, including script and style bodies.
func StripTags(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return strings.TrimSpace(stripTags.Sanitize(s))
}

// CleanText turns scraped markup or text into a single-spaced plain string.
// Entities escaped by the sanitiser are decoded again so "&amp;" reads as "&".
func CleanText(s string) string {
	return strings.Join(strings.Fields(html.UnescapeString(StripTags(s))), " ")
}

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Ellipsize truncates s to n runes and marks the cut with "…".
func Ellipsize(s string, n int) string {
	if cut := Truncate(s, n); cut != s {
		return cut + "…"
	}
	return s
}
