// Package strings holds text helpers for single-line CLI output.
package strings

import (
	"strings"
)

// DefaultSummaryMaxLen is the column width used for descriptions in tables.
const DefaultSummaryMaxLen = 60

// minSummaryLen leaves room for one character plus "...".
const minSummaryLen = 4

// Summary returns the first paragraph of s on a single line, cut to maxLen
// runes with a trailing "..." when shortened. OpenAPI descriptions put the
// summary before a blank line, so only that part is kept.
func Summary(s string, maxLen int) string {
	if maxLen < minSummaryLen {
		maxLen = minSummaryLen
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	if i := strings.Index(s, "\n\n"); i >= 0 {
		s = s[:i]
	}
	s = strings.Join(strings.Fields(s), " ")

	runes := []rune(s)
	if len(runes) > maxLen {
		return string(runes[:maxLen-3]) + "..."
	}
	return s
}
