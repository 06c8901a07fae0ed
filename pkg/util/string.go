package util

import (
	"html"
	"regexp"
	"strings"
)

var (
	slugPattern     = regexp.MustCompile(`[^a-z0-9\p{Han}]+`) // Allow Chinese characters
	scriptPattern   = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	quotePattern    = regexp.MustCompile(`^["']+|["']+$`)
	fencePattern    = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
	emphasisPattern = regexp.MustCompile(`\*\*|__|\x60`)
	headingPattern  = regexp.MustCompile(`(?m)^#{1,6}\s*`)
)

const maxSlugRunes = 50

// GenerateSlug creates a URL-friendly slug from title, at most
// maxSlugRunes characters long.
func GenerateSlug(title string) string {
	slug := strings.ToLower(title)
	slug = slugPattern.ReplaceAllString(slug, "-")
	slug = strings.Trim(slug, "-")

	if runes := []rune(slug); len(runes) > maxSlugRunes {
		slug = string(runes[:maxSlugRunes])
		slug = strings.Trim(slug, "-")
	}

	return slug
}

// StripTags removes HTML markup, including script and style bodies, and
// unescapes entities.
func StripTags(s string) string {
	s = scriptPattern.ReplaceAllString(s, "")
	s = tagPattern.ReplaceAllString(s, " ")
	return html.UnescapeString(s)
}

// NormalizeWhitespace collapses runs of whitespace into single spaces.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TrimWords keeps the first n words of s, appending an ellipsis when
// anything was cut.
func TrimWords(s string, n int) string {
	words := strings.Fields(StripTags(s))
	if len(words) <= n {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:n], " ") + "…"
}

// SanitizeText strips markup and normalizes whitespace.
func SanitizeText(s string) string {
	return NormalizeWhitespace(StripTags(s))
}

// CleanModelText removes code fences, markdown emphasis and surrounding
// quotes from a model's free-text answer.
func CleanModelText(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); len(m) == 2 {
		s = m[1]
	}
	s = headingPattern.ReplaceAllString(s, "")
	s = emphasisPattern.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)
	s = quotePattern.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
