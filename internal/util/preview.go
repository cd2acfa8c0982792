package util

import "strings"

// MaskedPreview is what consumers show in place of sensitive content.
const MaskedPreview = "••••••••"

// Preview collapses all whitespace runs into single spaces and truncates the
// result to maxLen runes, appending an ellipsis when something was cut.
func Preview(text string, maxLen int) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	runes := []rune(cleaned)
	if len(runes) <= maxLen {
		return cleaned
	}
	return string(runes[:maxLen-1]) + "…"
}
