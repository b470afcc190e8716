package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldKey reduces free text to a comparison key: accents stripped, case folded, whitespace collapsed.
// "  Nuevo León " and "nuevo leon" share the key "nuevo leon".
func FoldKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	// transformers and casers carry state, so they are built per call.
	stripper := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(stripper, trimmed)
	if err != nil {
		stripped = trimmed
	}
	folded := cases.Fold().String(stripped)
	return strings.Join(strings.Fields(folded), " ")
}

// FoldKeys applies FoldKey to every value, dropping entries that fold to empty.
func FoldKeys(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	result := make([]string, 0, len(values))
	for _, value := range values {
		if key := FoldKey(value); key != "" {
			result = append(result, key)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// NormalizeStringMap trims keys and values, removing entries with empty keys or values.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		trimmedValue := strings.TrimSpace(value)
		if trimmedKey == "" || trimmedValue == "" {
			continue
		}
		result[trimmedKey] = trimmedValue
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
