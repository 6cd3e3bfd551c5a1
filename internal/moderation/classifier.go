// Package moderation holds the pure content checks applied to a draft
// posting: opening-phrase classification, banned-word filtering and
// contact detection/normalization. Nothing here touches the transport
// or the store.
package moderation

import "strings"

type Category string

const (
	CategoryResume  Category = "resume"
	CategoryVacancy Category = "vacancy"
	CategoryUnknown Category = "unknown"
)

// Classifier tags a posting by its opening phrase. The phrase lists are
// ordered: the first match wins, and the resume list is checked before the
// vacancy list regardless of phrase length.
type Classifier struct {
	resume  []string
	vacancy []string
}

func NewClassifier(resumePhrases, vacancyPhrases []string) *Classifier {
	return &Classifier{
		resume:  lowerAll(resumePhrases),
		vacancy: lowerAll(vacancyPhrases),
	}
}

// Classify returns the category of text, or CategoryUnknown when no phrase
// matches. Matching is a literal prefix test: the posting must start with
// the phrase, leading whitespace aside (the text is trimmed first).
func (c *Classifier) Classify(text string) Category {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, p := range c.resume {
		if strings.HasPrefix(t, p) {
			return CategoryResume
		}
	}
	for _, p := range c.vacancy {
		if strings.HasPrefix(t, p) {
			return CategoryVacancy
		}
	}
	return CategoryUnknown
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
