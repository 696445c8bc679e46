// Package sanitize strips markup from caller- and agent-supplied text before
// it is written to the CRM or matched against.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	htmlTagRegex = regexp.MustCompile(`<[^>]*>`)
	spaceRegex   = regexp.MustCompile(`\s+`)

	entityReplacer = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", "\"",
		"&#39;", "'",
		"&nbsp;", " ",
	)
)

// StripHTML removes tags, decodes common entities, then strips again so
// encoded tags do not survive.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = entityReplacer.Replace(result)
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text is for multi-line fields such as task descriptions. Line breaks are kept.
func Text(s string) string {
	return StripHTML(strings.ReplaceAll(s, "\r\n", "\n"))
}

// Line is for single-line fields such as subjects and names.
func Line(s string) string {
	return strings.TrimSpace(spaceRegex.ReplaceAllString(StripHTML(s), " "))
}
