package store

import (
	"encoding/json"
	"time"
)

// Field accessors tolerate both JSON-decoded documents (numbers as float64)
// and in-memory documents (numbers as int).

// String returns doc[key] as a string, or "".
func String(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

// Int returns doc[key] as an int, or 0.
func Int(doc map[string]any, key string) int {
	switch v := doc[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// Bool returns doc[key] as a bool, or false.
func Bool(doc map[string]any, key string) bool {
	b, _ := doc[key].(bool)
	return b
}

// Time parses doc[key] as RFC3339, returning the zero time when absent.
func Time(doc map[string]any, key string) time.Time {
	s := String(doc, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// FormatTime renders t for storage.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
