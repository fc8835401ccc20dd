package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer strips markup from free-text fields such as names and page paths.
// The policy is safe for concurrent use.
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer builds a sanitizer that removes every HTML element.
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize removes tags and returns the plain text, trimmed. Entities produced
// by the policy are decoded so apostrophes and ampersands survive unchanged.
func (s *TextSanitizer) Sanitize(value string) string {
	if s == nil || s.policy == nil {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(value)))
}
