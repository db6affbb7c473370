package analyzer

import (
	"regexp"
	"strings"
)

var (
	deadlinePhraseRegex = regexp.MustCompile(`(?i)\b(?:by|until|before)\s+([\w\s,/-]+)`)
	calendarTokenRegex  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}(?:/\d{2,4})?)\b`)
	monthRegex          = regexp.MustCompile(`(?i)\b(january|february|march|april|june|july|august|september|october|november|december|may\s+\d{1,2})\b`)
	deadlineWordRegex   = regexp.MustCompile(`(?i)\b(deadline|due|by|until|before)\b`)
)

// ExtractDeadline finds a deadline in a message. The words following "by", "until" or "before"
// win. Without one, the first date-like token (2024-03-01, 3/1, 3/1/24) or month name is used
func ExtractDeadline(message string) (deadline string, ok bool) {
	if m := deadlinePhraseRegex.FindStringSubmatch(message); m != nil {
		if d := strings.TrimSpace(strings.TrimRight(m[1], " \t\r\n,")); d != "" {
			return d, true
		}
	}

	if m := calendarTokenRegex.FindString(message); m != "" {
		return m, true
	}

	if m := monthRegex.FindString(message); m != "" {
		return m, true
	}

	return "", false
}

// deadlineWord returns the first deadline-indicating word of the message
func deadlineWord(message string) string {
	return strings.ToLower(deadlineWordRegex.FindString(message))
}

// IsIndicatorOnly returns true when deadline is only a deadline-indicating word ("deadline",
// "due"...) rather than an actual date or expression
func IsIndicatorOnly(deadline string) bool {
	d := strings.TrimSpace(deadline)
	return d != "" && deadlineWordRegex.FindString(d) == d
}
