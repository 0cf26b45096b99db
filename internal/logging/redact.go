package logging

import (
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Header and query names whose values are never logged.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"cookie",
	"credential",
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._~+/=-]+`),
	// JWTs outside of an Authorization header.
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]{8,}\.[a-zA-Z0-9_-]{8,}\.[a-zA-Z0-9_-]+`),
	regexp.MustCompile(`(?i)(token|secret|password)[=:]["']?[a-zA-Z0-9+/=_.-]{16,}["']?`),
}

// RedactedValue is the replacement for sensitive values.
const RedactedValue = "[REDACTED]"

// Redact replaces credentials embedded in a string.
func Redact(s string) string {
	result := s
	for _, pattern := range secretPatterns {
		result = pattern.ReplaceAllString(result, RedactedValue)
	}
	return result
}

// IsSensitiveField reports whether a header or parameter name carries a secret.
func IsSensitiveField(name string) bool {
	// Header names use dashes where query parameters use underscores.
	lower := strings.ReplaceAll(strings.ToLower(name), "-", "_")
	for _, field := range sensitiveFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}

// RedactHeader returns a copy of h that is safe to log.
func RedactHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if IsSensitiveField(name) {
			out[name] = RedactedValue
			continue
		}
		out[name] = Redact(strings.Join(values, ","))
	}
	return out
}

// RedactURL strips userinfo and sensitive query parameters from a URL.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	clone := *u
	if clone.User != nil {
		clone.User = url.User(RedactedValue)
	}
	if clone.RawQuery != "" {
		query := clone.Query()
		for key := range query {
			if IsSensitiveField(key) {
				query.Set(key, RedactedValue)
			}
		}
		clone.RawQuery = query.Encode()
	}
	return clone.String()
}
