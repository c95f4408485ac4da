package extract

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/lu4p/cat"
)

// errBinaryText is returned when a decoder hands back undecoded binary content.
var errBinaryText = errors.New("decoder returned binary content")

// extractCat decodes odt and rtf through lu4p/cat. A .doc that is not a compound file is
// usually RTF or docx under the old extension, so it comes through here too.
func extractCat(content []byte, ext string) (string, error) {
	text, err := cat.FromBytes(content)
	if err != nil {
		return "", fmt.Errorf("decode %s: %w", ext, err)
	}
	if !isText(text) {
		return "", fmt.Errorf("decode %s: %w", ext, errBinaryText)
	}
	return text, nil
}

// extractWord routes .doc content to the compound-file reader or to lu4p/cat.
func extractWord(content []byte) (string, error) {
	if isOLE(content) {
		return extractDOC(content)
	}
	return extractCat(content, "doc")
}

// isText reports whether s is valid UTF-8 without control characters other than
// whitespace. cat falls back to returning the raw bytes for formats it does not know.
func isText(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		return (r < 0x20 && r != '\t' && r != '\n' && r != '\r' && r != '\f') || r == 0x7F
	}) < 0
}
