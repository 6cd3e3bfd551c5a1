package moderation

import "strings"

// platformMarkers are messenger names that count as an alternate contact
// method when mentioned in a posting.
var platformMarkers = []string{
	"telegram", "телеграм", "тг ",
	"whatsapp", "ватсап", "вотсап", "вацап",
	"viber", "вайбер",
}

// HasContact reports whether text contains something reachable: a phone-like
// digit run of at least minDigits (spacing, dashes, dots, parentheses and a
// leading + are tolerated between digits), an @handle, or a messenger name.
func HasContact(text string, minDigits int) bool {
	if minDigits <= 0 {
		minDigits = 10
	}
	if longestDigitRun(text) >= minDigits {
		return true
	}
	if hasHandle(text) {
		return true
	}
	low := strings.ToLower(text)
	for _, m := range platformMarkers {
		if strings.Contains(low, m) {
			return true
		}
	}
	return false
}

// longestDigitRun counts digits across separators commonly typed inside
// phone numbers, so "8 (999) 123-45-67" counts as an 11-digit run.
func longestDigitRun(s string) int {
	best, cur := 0, 0
	inRun := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			cur++
			inRun = true
		case inRun && (r == ' ' || r == '-' || r == '(' || r == ')' || r == '.' || r == '+'):
			// separator inside a run: keep counting
		default:
			if cur > best {
				best = cur
			}
			cur = 0
			inRun = false
		}
	}
	if cur > best {
		best = cur
	}
	return best
}

func hasHandle(s string) bool {
	for i, r := range s {
		if r != '@' {
			continue
		}
		rest := s[i+1:]
		if len(rest) == 0 {
			continue
		}
		c := rest[0]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			return true
		}
	}
	return false
}

// NormalizePhone reduces a raw phone string to the canonical international
// form +7XXXXXXXXXX. Everything except digits and a leading + is stripped
// first. Recognized inputs:
//
//	+7XXXXXXXXXX  canonical, returned unchanged
//	7XXXXXXXXXX   international without the plus
//	8XXXXXXXXXX   national trunk prefix
//	9XXXXXXXXX    bare 10-digit mobile
//
// Normalization is idempotent: feeding the canonical form back in returns it
// as-is. The second result is false when the input matches no pattern.
func NormalizePhone(raw string) (string, bool) {
	var b strings.Builder
	for i, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		} else if r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	p := b.String()

	switch {
	case len(p) == 12 && strings.HasPrefix(p, "+7"):
		return p, true
	case len(p) == 11 && p[0] == '7':
		return "+" + p, true
	case len(p) == 11 && p[0] == '8':
		return "+7" + p[1:], true
	case len(p) == 10 && p[0] == '9':
		return "+7" + p, true
	}
	return "", false
}
