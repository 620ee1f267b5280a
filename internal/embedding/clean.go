package embedding

import (
	"regexp"
	"strings"
)

// Marketplace listings carry a lot of text that says nothing about the
// product itself. These are stripped before the text is embedded.
var (
	solicitationExpr = regexp.MustCompile(`(?i)\b(dm (me|us)?\s*(for|4)?\s*(price|prices|details)?|inbox (me|us)|call/?whats?app( us| me)?( now)?|order now|free delivery|limited stock|hurry while stocks? lasts?)\b[.!]*`)
	spaceExpr        = regexp.MustCompile(`\s+`)
)

// CleanText strips non-semantic noise from listing text: emoji and other
// symbols, solicitation boilerplate, repeated whitespace.
func CleanText(text string) string {
	text = solicitationExpr.ReplaceAllString(text, " ")

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if isEmoji(r) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}

	return strings.TrimSpace(spaceExpr.ReplaceAllString(b.String(), " "))
}

// isEmoji covers the blocks that show up in listings: emoticons, pictographs,
// transport symbols, dingbats, and the misc symbols/arrows ranges.
func isEmoji(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	case r >= 0x2190 && r <= 0x21FF:
		return true
	case r == 0xFE0F || r == 0x200D: // variation selector, zero-width joiner
		return true
	}
	return false
}
