package docstore

import (
	"time"
)

// Document is a single stored record. Fields hold decoded values: strings,
// booleans, float64/int64 numbers, time.Time, []any and map[string]any.
type Document struct {
	ID     string
	Fields map[string]any
}

// Has reports whether the field is present, even when it holds nil.
func (d Document) Has(field string) bool {
	_, ok := d.Fields[field]
	return ok
}

// String returns a non-empty string field.
func (d Document) String(field string) (string, bool) {
	value, ok := d.Fields[field].(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// StringOr returns the string field or fallback when absent or empty.
func (d Document) StringOr(field, fallback string) string {
	if value, ok := d.String(field); ok {
		return value
	}
	return fallback
}

// Bool returns a boolean field.
func (d Document) Bool(field string) (bool, bool) {
	value, ok := d.Fields[field].(bool)
	return value, ok
}

// Flag treats an absent or non-boolean field as false.
func (d Document) Flag(field string) bool {
	value, _ := d.Bool(field)
	return value
}

// Time returns a timestamp field in UTC. RFC 3339 strings are accepted so that
// JSON backed stores round-trip.
func (d Document) Time(field string) (time.Time, bool) {
	return asTime(d.Fields[field])
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	return Document{ID: d.ID, Fields: cloneMap(d.Fields)}
}

func asTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	}
	return time.Time{}, false
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = cloneValue(value)
	}
	return dst
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = cloneValue(v[i])
		}
		return out
	}
	return value
}
