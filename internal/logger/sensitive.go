package logger

import (
	"regexp"
	"strings"
)

// sensitivePatterns match credentials embedded in free-form strings such as
// broker URLs and Sentry DSNs.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)((?:tcp|ssl|ws|wss|mqtts?|https?)://)[^@\s/]+@`),
	regexp.MustCompile(`(?i)((?:password|passwd|secret|token|api[_-]?key)[\s:=]+)([^;,\s]{3,})`),
}

// sensitiveKeywords mark field keys whose values are never logged
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey", "dsn", "credential",
}

// RedactSensitiveData masks credentials found in input.
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for _, pattern := range sensitivePatterns {
		input = pattern.ReplaceAllString(input, "${1}[REDACTED]")
	}
	return input
}

// redactField hides the value of fields whose key names a secret and scrubs
// credentials from other string values.
func redactField(f Field) Field {
	s, ok := f.Value.(string)
	if !ok || s == "" {
		return f
	}

	key := strings.ToLower(f.Key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(key, kw) {
			return Field{Key: f.Key, Value: "[REDACTED]"}
		}
	}

	if strings.Contains(s, "@") || strings.ContainsAny(s, "=:") {
		return Field{Key: f.Key, Value: RedactSensitiveData(s)}
	}
	return f
}
