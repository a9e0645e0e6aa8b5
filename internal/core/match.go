package core

import (
	"regexp"
	"strings"
)

// Extractor pulls one capture group out of a string.
type Extractor struct {
	re    *regexp.Regexp
	group int
}

// Capture compiles expr and extracts capture group 1.
func Capture(expr string) Extractor {
	return CaptureGroup(expr, 1)
}

// CaptureGroup compiles expr and extracts the given group.
func CaptureGroup(expr string, group int) Extractor {
	return Extractor{re: regexp.MustCompile(expr), group: group}
}

// Match returns the trimmed capture and whether the pattern matched with a
// non-empty group.
func (e Extractor) Match(s string) (string, bool) {
	m := e.re.FindStringSubmatch(s)
	if m == nil || e.group >= len(m) {
		return "", false
	}
	g := strings.TrimSpace(m[e.group])
	return g, g != ""
}

// Patterns is an ordered list tried first-match-wins.
type Patterns []Extractor

// FirstMatch returns the capture of the first matching pattern, or nil when
// v is not a string or nothing matches.
func (p Patterns) FirstMatch(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	for _, e := range p {
		if g, ok := e.Match(s); ok {
			return g
		}
	}
	return nil
}
