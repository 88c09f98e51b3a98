package extract

import (
	"regexp"
	"strings"
)

var (
	hyphenBreak  = regexp.MustCompile(`-\n([a-z])`)
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	spaceRuns    = regexp.MustCompile(`[ \t]+`)
)

// CleanText normalizes extracted text: non-breaking spaces become spaces, words hyphenated
// across a line break are joined, runs of three or more newlines shrink to one blank line,
// and runs of spaces and tabs shrink to a single space.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = hyphenBreak.ReplaceAllString(s, "$1")
	s = manyNewlines.ReplaceAllString(s, "\n\n")
	s = spaceRuns.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
