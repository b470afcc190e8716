package observability

import (
	"strings"
	"unicode"
)

const defaultStringLimit = 256

// sanitizeString drops control characters and truncates to limit runes to keep log lines well formed.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultStringLimit
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if runes := []rune(cleaned); len(runes) > limit {
		return string(runes[:limit])
	}
	return cleaned
}

// SanitizeRoute removes control characters and enforces length constraints on routes.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, 180)
}

// SanitizeMethod removes control characters in HTTP methods.
func SanitizeMethod(method string) string {
	return sanitizeString(method, 10)
}

// SanitizeID bounds client supplied identifiers such as user or checkout session IDs.
func SanitizeID(id string) string {
	return sanitizeString(strings.TrimSpace(id), 64)
}
