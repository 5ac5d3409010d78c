package text

import (
	"regexp"
	"strings"
)

// SplitSentence scans buffer for the first sentence-terminal character and
// returns the text up to and including it, plus the remainder. If no terminal
// is found the whole buffer stays in remainder. ready+remainder == buffer.
func SplitSentence(buffer string) (ready, remainder string) {
	idx := strings.IndexAny(buffer, ".?!")
	if idx < 0 {
		return "", buffer
	}
	return buffer[:idx+1], buffer[idx+1:]
}

// SanitizeSpoken strips markup that should not be read aloud: inline
// non-verbal emphasis like *chuckles*, markdown formatting characters, and
// runs of whitespace.
func SanitizeSpoken(text string) string {
	for _, marker := range []string{"**", "__", "~~", "`", "#"} {
		text = strings.ReplaceAll(text, marker, "")
	}
	text = emphasisRegex.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "*", "")
	text = multipleSpacesRegex.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

var (
	// matches a short asterisk-wrapped aside like *chuckles*
	emphasisRegex       = regexp.MustCompile(`\*[^*\n]{1,60}\*`)
	multipleSpacesRegex = regexp.MustCompile(`[ \t]+`)
)
