package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Value coercions used by the record models. Each returns nil for a missing
// or unusable input instead of failing; models decide what is fatal.

// Get walks nested maps along path and returns the leaf or nil.
func Get(rec Record, path ...string) any {
	var cur any = rec
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

// Map returns v as a nested object.
func Map(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// String returns v as a string, formatting numbers, or nil.
func String(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any, []any:
		b, err := json.Marshal(x)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// Int returns v as int64, or nil when v is not an integral number.
func Int(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int64:
		return x
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return nil
		}
		return int64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		return nil
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return i
		}
		return nil
	default:
		return nil
	}
}

// Float returns v as float64 or nil.
func Float(v any) any {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case float64:
		if math.IsNaN(x) {
			return nil
		}
		return x
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return nil
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(x), 64); err == nil {
			return f
		}
		return nil
	default:
		return nil
	}
}

// Bool returns v as bool or nil. Strings "true"/"false" are accepted.
func Bool(v any) any {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
			return b
		}
		return nil
	default:
		return nil
	}
}

// Lower lower-cases a string value, nil otherwise.
func Lower(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return strings.ToLower(s)
}

// UpperHost upper-cases a hostname. Non-strings and empty strings give nil.
func UpperHost(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.ToUpper(s)
}

// EpochMillis converts epoch milliseconds to a UTC time. Non-positive or
// non-numeric input gives nil.
func EpochMillis(v any) any {
	f, ok := Float(v).(float64)
	if !ok || f <= 0 {
		return nil
	}
	return time.UnixMilli(int64(f)).UTC()
}

// EpochSeconds converts epoch seconds (fractional allowed) to a UTC time.
func EpochSeconds(v any) any {
	f, ok := Float(v).(float64)
	if !ok || f <= 0 {
		return nil
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// DateLayout is the calendar-date layout used by the lifecycle service.
const DateLayout = "2006-01-02"

// Date parses a YYYY-MM-DD string. Booleans and anything unparsable give nil.
func Date(v any) any {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return nil
	}
	return t
}

// Time returns v when it already is a time.Time.
func Time(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

// NullIfBlank maps "", "null", "none" and "nan" (case-insensitive) to nil.
func NullIfBlank(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "none", "nan":
		return nil
	}
	return v
}

// JSONText marshals v to a JSON string. nil stays nil.
func JSONText(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Round rounds to the given number of decimal places.
func Round(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}
