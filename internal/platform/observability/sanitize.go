package observability

import (
	"strings"
	"unicode"
)

const (
	defaultStringLimit = 256
	redacted           = "[redacted]"
)

// sensitiveFields are service log keys whose values are never written. Matching ignores case.
var sensitiveFields = map[string]struct{}{
	"password":          {},
	"token":             {},
	"verificationtoken": {},
	"authorization":     {},
	"secret":            {},
	"clientsecret":      {},
}

// sanitizeString drops control characters and truncates to limit runes to avoid log injection.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}
	cleaned := make([]rune, 0, min(len(value), limit))
	for _, r := range value {
		if unicode.IsControl(r) {
			continue
		}
		cleaned = append(cleaned, r)
		if len(cleaned) == limit {
			break
		}
	}
	return string(cleaned)
}

// SanitizeRoute cleans a route or path for logging and metric labels.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod cleans an HTTP method.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeUserID bounds account identifiers written to logs.
func SanitizeUserID(id string) string {
	return sanitizeString(id, 64)
}

// SanitizeEmail keeps the first rune of the local part and the domain, e.g. "j***@example.com".
func SanitizeEmail(email string) string {
	email = sanitizeString(strings.TrimSpace(email), 254)
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return redacted
	}
	local := []rune(email[:at])
	return string(local[0]) + "***" + email[at:]
}

// sanitizeField rewrites a service log value by key. ok is false when the value is not a string
// the logger should touch.
func sanitizeField(key string, value any) (string, bool) {
	lower := strings.ToLower(key)
	if _, ok := sensitiveFields[lower]; ok {
		return redacted, true
	}
	str, ok := value.(string)
	if !ok {
		return "", false
	}
	switch {
	case lower == "email":
		return SanitizeEmail(str), true
	case lower == "accountid" || lower == "userid":
		return SanitizeUserID(str), true
	}
	return sanitizeString(str, defaultStringLimit), true
}
