package models

import "fmt"

// LogRecord is a single semi-structured log document as it arrives from the
// broker. Keys are open: the pipeline reads the conventional fields through
// the accessors below and passes everything else through untouched.
type LogRecord map[string]any

// Severity returns the record's severity letter ("I", "W" or "E"). The short
// mongod field name "s" wins over the long form "severity"; anything missing
// or non-string defaults to "I".
func (r LogRecord) Severity() string {
	for _, key := range []string{"s", "severity"} {
		if v, ok := r[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			return "I"
		}
	}
	return "I"
}

// Message returns the msg field, or the empty string when absent or
// non-string.
func (r LogRecord) Message() string {
	if s, ok := r["msg"].(string); ok {
		return s
	}
	return ""
}

// DurationMillis returns the durationMillis field when it is numeric.
func (r LogRecord) DurationMillis() (float64, bool) {
	return numericField(r, "durationMillis")
}

// ConnectionID returns the connectionId field when it is numeric.
func (r LogRecord) ConnectionID() (float64, bool) {
	return numericField(r, "connectionId")
}

// TimestampText returns the string form of the record's timestamp. MongoDB
// logs carry `"t": {"$date": "..."}`; any other shape is stringified as-is.
// Returns the empty string when no timestamp field is present.
func (r LogRecord) TimestampText() string {
	v, ok := r["t"]
	if !ok {
		return ""
	}
	if obj, ok := v.(map[string]any); ok {
		if s, ok := obj["$date"].(string); ok {
			return s
		}
		return ""
	}
	return fmt.Sprint(v)
}

func numericField(r LogRecord, key string) (float64, bool) {
	switch v := r[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
