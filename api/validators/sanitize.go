package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, drops control characters other than newline
// and tab, and truncates to maxLen runes.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))

	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}
