package mailbox

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	blockBreaks  = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|h[1-6]|li|tr)\s*>`)
	inlineSpace  = regexp.MustCompile(`[ \t]+`)
	spacedBreaks = regexp.MustCompile(` ?\n ?`)
	excessBreaks = regexp.MustCompile(`\n{3,}`)
	stripAllTags = bluemonday.StrictPolicy()
)

// HTMLToText renders an HTML body as readable plain text.
func HTMLToText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blockBreaks.ReplaceAllString(s, "\n")
	s = stripAllTags.Sanitize(s)
	s = decodeEntities(s)
	s = inlineSpace.ReplaceAllString(s, " ")
	s = spacedBreaks.ReplaceAllString(s, "\n")
	s = excessBreaks.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// decodeEntities resolves HTML entities; non-breaking spaces become plain spaces.
func decodeEntities(s string) string {
	return strings.ReplaceAll(html.UnescapeString(s), "\u00a0", " ")
}
