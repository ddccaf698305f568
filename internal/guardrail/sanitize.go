package guardrail

import "regexp"

// PII patterns applied to outbound text. Order matters: the 13-19 digit
// account pattern must run before the 9 digit routing pattern, and routing
// before the SSN pattern, or the longer runs get chopped into false matches.
var (
	accountNumberPattern = regexp.MustCompile(`\b\d{13,19}\b`)
	routingNumberPattern = regexp.MustCompile(`\b\d{9}\b`)
	ssnPattern           = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b|\b\d{9}\b`)
	emailPattern         = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	phonePattern         = regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b|\b\(\d{3}\)\s?\d{3}-\d{4}\b|\b\d{10}\b`)
)

// Merchant descriptor noise that can leak identifiers.
var merchantPatterns = []struct {
	re          *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`@`), "[REDACTED]"},
	{regexp.MustCompile(`\d{3}-\d{3}-\d{4}`), "[PHONE]"},
	{regexp.MustCompile(`(?i)ATM \d+`), "ATM"},
	{regexp.MustCompile(`(?i)CHECK \d+`), "CHECK"},
	{regexp.MustCompile(`(?i)WIRE \d+`), "WIRE"},
}

type piiCheck struct {
	kind        string
	re          *regexp.Regexp
	replacement string
}

var piiChecks = []piiCheck{
	{"account_number", accountNumberPattern, "[ACCOUNT_NUMBER]"},
	{"routing_number", routingNumberPattern, "[ROUTING_NUMBER]"},
	{"ssn", ssnPattern, "[SSN]"},
	{"email", emailPattern, "[EMAIL]"},
	{"phone", phonePattern, "[PHONE]"},
}

// SanitizeMessage scrubs PII from a user message before it reaches any
// external model. It returns the scrubbed text and the PII kinds detected,
// in detection order.
func SanitizeMessage(message string) (string, []string) {
	if message == "" {
		return message, nil
	}

	sanitized := message
	var detected []string
	for _, check := range piiChecks {
		if check.re.MatchString(sanitized) {
			detected = append(detected, check.kind)
			sanitized = check.re.ReplaceAllString(sanitized, check.replacement)
		}
	}
	return sanitized, detected
}

// Redact scrubs PII patterns from text without reporting what was found.
func Redact(text string) string {
	for _, check := range piiChecks {
		text = check.re.ReplaceAllString(text, check.replacement)
	}
	return text
}

// SanitizeMerchantName strips identifier noise from merchant descriptors
// (embedded emails, phone numbers, ATM and check ids).
func SanitizeMerchantName(name string) string {
	if name == "" {
		return name
	}
	for _, p := range merchantPatterns {
		name = p.re.ReplaceAllString(name, p.replacement)
	}
	return name
}

// MaskAccountMask trims an account mask to its last four characters.
func MaskAccountMask(mask string) string {
	if len(mask) > 4 {
		return mask[len(mask)-4:]
	}
	return mask
}
