// Package logging scrubs credentials and bulky payloads from values before they are logged.
package logging

import (
	"regexp"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	// MaxErrorLogLength caps logged error messages, in runes.
	MaxErrorLogLength = 500
	// MaxResponseLogLength caps logged model output, in runes.
	MaxResponseLogLength = 200
	// RedactedText replaces anything secret.
	RedactedText = "[REDACTED]"
)

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

// Applied in order. Provider keys go first so a key inside a header is
// redacted whole.
var redactions = []redaction{
	// sk-ant-..., sk-proj-..., sk-...
	{regexp.MustCompile(`sk-(?:ant-|proj-)?[A-Za-z0-9_-]{16,}`), RedactedText},
	{regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._~+/=-]+`), "Bearer " + RedactedText},
	// x-api-key headers and api_key query parameters
	{regexp.MustCompile(`(?i)(x-api-key|api[_-]?key|apikey|key)([=:]\s*)[A-Za-z0-9._-]{16,}`), "${1}${2}" + RedactedText},
	// page images sent inline
	{regexp.MustCompile(`data:image/[a-z+.-]+;base64,[A-Za-z0-9+/=]+`), "data:image;base64," + RedactedText},
}

// SanitizeError renders err for logging with secrets removed and length capped.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return TruncateString(SanitizeString(err.Error()), MaxErrorLogLength)
}

// SanitizeString redacts API keys, bearer tokens and inline image data.
func SanitizeString(s string) string {
	for _, r := range redactions {
		if s == "" {
			break
		}
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// TruncateString cuts s to maxLen runes, marking the cut with "...".
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}

// ErrorField is zap.Error with the message sanitized.
func ErrorField(err error) zap.Field {
	return zap.String("error", SanitizeError(err))
}

// ResponseField logs the start of a model response, sanitized.
func ResponseField(text string) zap.Field {
	return zap.String("response", TruncateString(SanitizeString(text), MaxResponseLogLength))
}
