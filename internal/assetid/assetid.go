// Package assetid finds asset identifiers (71080-YYYY-NNNN) in OCR output.
package assetid

import (
	"regexp"
	"strings"
	"unicode"
)

// Format is the human-readable shape of an identifier, used in user messages.
const Format = "71080-YYYY-NNNN (or with _ separators)"

var pattern = regexp.MustCompile(`71080[-_]\d{4}[-_]\d{4}`)

// Extract returns the leftmost identifier in text after all whitespace is
// removed. OCR frequently splits the code with spaces or line breaks.
func Extract(text string) (string, bool) {
	if text == "" {
		return "", false
	}
	id := pattern.FindString(stripSpace(text))
	return id, id != ""
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
