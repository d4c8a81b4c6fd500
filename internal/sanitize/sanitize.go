// Package sanitize bounds and cleans caller-supplied values before they
// enter a prompt. Strings are stripped of Unicode control characters and
// truncated; non-string values never raise — they collapse to "".
package sanitize

import (
	"strings"
	"unicode"
)

// MaxFieldLen is the maximum length in runes of any single sanitized string.
const MaxFieldLen = 5000

// Clean returns a bounded, control-character-free string for any input.
// Non-string values yield "". Clean is idempotent.
func Clean(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}

	s = strings.Map(func(r rune) rune {
		// C0 (U+0000–U+001F) and C1 (U+007F–U+009F) control ranges
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)

	runes := []rune(s)
	if len(runes) > MaxFieldLen {
		return string(runes[:MaxFieldLen])
	}
	return s
}

// CleanPayload applies Clean recursively to every string value in a payload.
// Maps and slices are rebuilt; non-string scalars pass through unchanged so
// numeric and boolean fields keep their types for prompt builders.
func CleanPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = cleanValue(v)
	}
	return out
}

func cleanValue(v any) any {
	switch t := v.(type) {
	case string:
		return Clean(t)
	case map[string]any:
		return CleanPayload(t)
	case []any:
		cleaned := make([]any, len(t))
		for i, e := range t {
			cleaned[i] = cleanValue(e)
		}
		return cleaned
	default:
		return v
	}
}
