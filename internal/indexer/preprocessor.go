package indexer

import (
	"strings"
	"unicode"

	"github.com/hyperjump/kotae/pkg/utils"
)

// Preprocess normalizes extracted text for chunking: control characters are dropped,
// then whitespace is trimmed and collapsed.
func Preprocess(text string) string {
	text = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, text)
	return utils.CollapseWhitespace(text)
}
