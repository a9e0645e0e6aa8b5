package core

import (
	"strings"
	"unicode"
)

// Flatten walks a nested object and returns its leaves keyed by the
// snake_case path joined with "_" under prefix. Lists are kept as leaves.
func Flatten(prefix string, m map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, prefix, m)
	return out
}

func flattenInto(out map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		key := SnakeCase(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		if child, ok := v.(map[string]any); ok {
			flattenInto(out, key, child)
			continue
		}
		out[key] = v
	}
}

// SnakeCase converts camelCase or PascalCase to snake_case. Runs of
// capitals are treated as one word and non-alphanumerics become separators.
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			b.WriteByte('_')
			continue
		}
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	parts := strings.FieldsFunc(b.String(), func(r rune) bool { return r == '_' })
	return strings.Join(parts, "_")
}

// SplitCamel inserts a space at each lower-to-upper boundary:
// "RunningAndUpToDate" becomes "Running And Up To Date".
func SplitCamel(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) && unicode.IsLower(runes[i-1]) {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
