// Package diagnostics is the diagnostics recorder (C8): sanitizes
// stream-event content, bounds payload size, and builds the
// per-attempt RunNodeDiagnosticsPayload.
package diagnostics

import "regexp"

const redactionMarker = "[REDACTED]"

// secretPatterns matches known credential shapes (personal access
// tokens, API keys, bearer tokens) before a stream event is persisted.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9]{20,}`),              // GitHub PATs
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),                     // OpenAI/Anthropic-style API keys
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]{10,}=*`),  // Authorization: Bearer <token>
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),                        // AWS access key ids
	regexp.MustCompile(`(?i)api[_-]?key["'\s:=]{1,4}[A-Za-z0-9_\-]{16,}`),
}

// Sanitize replaces every match of a known secret pattern with a fixed
// redaction marker, reporting whether any replacement occurred.
func Sanitize(content string) (string, bool) {
	redacted := false
	out := content
	for _, re := range secretPatterns {
		if re.MatchString(out) {
			redacted = true
			out = re.ReplaceAllString(out, redactionMarker)
		}
	}
	return out, redacted
}
