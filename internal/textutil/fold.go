package textutil

import (
	"strings"

	"golang.org/x/text/cases"
)

// FoldPrefix returns the Unicode case-folded form of the first limit runes
// of s, trimmed of surrounding whitespace. Two titles match when their
// folded prefixes are equal. A fresh Caser is built per call; cases.Caser
// values are stateful and not safe for concurrent use.
func FoldPrefix(s string, limit int) string {
	trimmed := strings.TrimSpace(s)
	runes := []rune(trimmed)
	if limit > 0 && len(runes) > limit {
		trimmed = string(runes[:limit])
	}
	return cases.Fold().String(trimmed)
}

// RuneLen reports the rune count of s after trimming surrounding
// whitespace, the length the any-date title fallback thresholds against.
func RuneLen(s string) int {
	return len([]rune(strings.TrimSpace(s)))
}
