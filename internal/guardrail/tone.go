// Package guardrail enforces the safety rules applied to user-facing text:
// a tone check that blocks shaming language, and PII scrubbing for anything
// that leaves the service boundary.
package guardrail

import (
	"regexp"
	"strings"
)

// ProhibitedPhrases are matched case-insensitively as substrings. Any hit
// fails the tone check.
var ProhibitedPhrases = []string{
	"overspending",
	"bad habits",
	"poor choices",
	"irresponsible",
	"wasteful",
	"you're overspending",
	"bad habit",
	"poor choice",
}

// ValidateTone reports whether text is free of prohibited phrases. Empty
// text passes.
func ValidateTone(text string) bool {
	return len(CheckProhibitedPhrases(text)) == 0
}

// CheckProhibitedPhrases returns every prohibited phrase found in text, in
// list order. Empty result means the text is clean.
func CheckProhibitedPhrases(text string) []string {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	var found []string
	for _, phrase := range ProhibitedPhrases {
		if strings.Contains(lower, phrase) {
			found = append(found, phrase)
		}
	}
	return found
}

// StripProhibitedPhrases removes every prohibited phrase from text, matching
// case-insensitively regardless of how the phrase was capitalized.
func StripProhibitedPhrases(text string) string {
	for _, phrase := range ProhibitedPhrases {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(phrase))
		text = re.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(text)
}
