package indexer

import (
	"strings"
	"unicode"
)

// Preprocess prepares extracted text for a prompt: control characters other than whitespace
// and U+FFFD replacement runes are dropped, and whitespace runs collapse to one space.
func Preprocess(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == unicode.ReplacementChar || (unicode.IsControl(r) && !unicode.IsSpace(r)) {
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(cleaned), " ")
}
