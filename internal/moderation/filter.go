package moderation

import "strings"

// WordFilter scans text for banned substrings, case-insensitively.
type WordFilter struct {
	words []string
}

func NewWordFilter(words []string) *WordFilter {
	return &WordFilter{words: lowerAll(words)}
}

// Match reports whether any banned word occurs anywhere in text. The first
// hit short-circuits; which word matched is deliberately not returned.
func (f *WordFilter) Match(text string) bool {
	t := strings.ToLower(text)
	for _, w := range f.words {
		if strings.Contains(t, w) {
			return true
		}
	}
	return false
}
