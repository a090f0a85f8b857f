// Package config holds the value coercions shared by the ConfigStore
// adapters. Each helper takes the (value, found) pair a store lookup
// returns and yields the zero value when the key is absent or the value
// has the wrong shape.
package config

import (
	"math"
	"strings"
	"time"
)

// Flatten turns nested tables into dot-notation keys:
// {"dedup": {"bands": 8}} becomes {"dedup.bands": 8}.
func Flatten(tables map[string]any) map[string]any {
	out := make(map[string]any)
	flattenInto(out, "", tables)
	return out
}

func flattenInto(out map[string]any, prefix string, tables map[string]any) {
	for k, v := range tables {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}

func String(v any, _ bool) string {
	s, _ := v.(string)
	return s
}

func Bool(v any, _ bool) bool {
	b, _ := v.(bool)
	return b
}

// Int accepts any integer type, and floats without a fractional part.
func Int(v any, _ bool) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	}
	return 0
}

// Float widens integers, so "near_threshold = 1" reads as 1.0.
func Float(v any, _ bool) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

// Duration accepts a time.Duration or a string such as "90s".
func Duration(v any, _ bool) time.Duration {
	switch d := v.(type) {
	case time.Duration:
		return d
	case string:
		parsed, err := time.ParseDuration(strings.TrimSpace(d))
		if err == nil {
			return parsed
		}
	}
	return 0
}

// StringSlice keeps the string elements of a TOML array.
func StringSlice(v any, _ bool) []string {
	switch s := v.(type) {
	case []string:
		return s
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, isStr := item.(string); isStr {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
