package profiles

import (
	"regexp"
	"strings"
)

var simpleColourRe = regexp.MustCompile(`(?i)^(#?[a-z0-9]+)$`)

// ParseColours turns several whitespace-separated simple colour tokens into a
// left-to-right gradient. Anything else is returned trimmed and unchanged.
func ParseColours(colours string) string {
	colours = strings.TrimSpace(colours)
	tokens := strings.Fields(colours)
	if len(tokens) < 2 {
		return colours
	}
	for _, t := range tokens {
		if !simpleColourRe.MatchString(t) {
			return colours
		}
	}
	return "linear-gradient(to right," + strings.Join(tokens, ",") + ")"
}
