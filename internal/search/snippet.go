package search

import (
	"strings"
	"unicode/utf8"
)

// Snippet collapses whitespace in text and truncates it to at most maxRunes
// runes. Truncation prefers the last word boundary inside the window and
// appends a single ellipsis rune. maxRunes <= 0 disables truncation.
//
// Notes:
//   - Never cuts inside a UTF-8 sequence (operates on runes, not bytes).
//   - A window with no space in it is cut hard rather than returned over
//     length.
func Snippet(text string, maxRunes int) string {
	t := strings.TrimSpace(normalizeWhitespace(text))
	if maxRunes <= 0 || utf8.RuneCountInString(t) <= maxRunes {
		return t
	}

	runes := []rune(t)

	// Window already ends on a word boundary.
	if runes[maxRunes] == ' ' {
		return string(runes[:maxRunes]) + "…"
	}

	cut := maxRunes
	for i := maxRunes - 1; i > 0; i-- {
		if runes[i] == ' ' {
			cut = i
			break
		}
	}
	return strings.TrimRight(string(runes[:cut]), " ") + "…"
}
