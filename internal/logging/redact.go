package logging

import (
	"log/slog"
	"strings"
)

// sensitiveNames are matched as substrings of lowercased attribute keys, so
// variants like API_KEY, apiKey, and db_password are all caught.
var sensitiveNames = []string{
	"password",
	"passwd",
	"token",
	"secret",
	"credential",
	"api_key",
	"apikey",
	"auth",
}

const fullMask = "[REDACTED]"

// IsSensitiveKey reports whether a field name should be redacted.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, name := range sensitiveNames {
		if strings.Contains(k, name) {
			return true
		}
	}
	return false
}

// Mask redacts a single value. Values of 8 runes or fewer are fully masked;
// longer values keep the first and last two runes so a log reader can still
// tell which credential was involved.
func Mask(value string) string {
	runes := []rune(value)
	if len(runes) <= 8 {
		return fullMask
	}
	return string(runes[:2]) + "****" + string(runes[len(runes)-2:])
}

// RedactValue walks maps and slices recursively, masking any value stored
// under a sensitive key.
func RedactValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if IsSensitiveKey(k) {
				if s, ok := inner.(string); ok {
					out[k] = Mask(s)
				} else {
					out[k] = fullMask
				}
				continue
			}
			out[k] = RedactValue(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = RedactValue(inner)
		}
		return out
	default:
		return v
	}
}

// redactAttr applies redaction to one slog attribute, descending into groups.
func redactAttr(a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, inner := range attrs {
			out[i] = redactAttr(inner)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, Mask(a.Value.String()))
	}
	if a.Value.Kind() == slog.KindAny {
		return slog.Any(a.Key, RedactValue(a.Value.Any()))
	}
	return a
}
