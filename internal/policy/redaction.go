package policy

import "regexp"

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern  = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
	mrnPattern   = regexp.MustCompile(`(?i)\b(?:mrn|medical record(?: number)?)[:#\s]*[A-Z0-9\-]{4,}\b`)
	dobPattern   = regexp.MustCompile(`\b(?:0?[1-9]|1[0-2])[/\-](?:0?[1-9]|[12][0-9]|3[01])[/\-](?:19|20)\d{2}\b`)
)

type rule struct {
	pattern *regexp.Regexp
	marker  string
}

// Order matters: record numbers and cards before phones, dates before phones.
var rules = []rule{
	{emailPattern, "[REDACTED_EMAIL]"},
	{mrnPattern, "[REDACTED_MRN]"},
	{cardPattern, "[REDACTED_CARD]"},
	{dobPattern, "[REDACTED_DATE]"},
	{phonePattern, "[REDACTED_PHONE]"},
}

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, r := range rules {
		next := r.pattern.ReplaceAllString(out, r.marker)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// ForLog returns text safe to attach to a log line, truncated to maxLen runes.
func ForLog(input string, maxLen int) string {
	out, _ := RedactPII(input)
	if maxLen <= 0 {
		return out
	}
	runes := []rune(out)
	if len(runes) <= maxLen {
		return out
	}
	return string(runes[:maxLen]) + "..."
}
