package docstore

import "time"

// Document is a snapshot of one stored document.
type Document struct {
	ID   string
	Data map[string]any
}

// String returns the string value of field, if present.
func (d Document) String(field string) (string, bool) {
	s, ok := d.Data[field].(string)
	return s, ok
}

// StringOr returns the string value of field or def when absent or empty.
func (d Document) StringOr(field, def string) string {
	if s, ok := d.String(field); ok && s != "" {
		return s
	}
	return def
}

// Time returns the timestamp value of field, if present.
func (d Document) Time(field string) (time.Time, bool) {
	switch v := d.Data[field].(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v != nil {
			return *v, true
		}
	}
	return time.Time{}, false
}

// Strings returns the string elements of an array field.
func (d Document) Strings(field string) []string {
	switch v := d.Data[field].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Int returns the integer value of field. Firestore decodes integers as
// int64 and JSON-ish sources may carry float64.
func (d Document) Int(field string) (int64, bool) {
	switch v := d.Data[field].(type) {
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// Float returns the floating point value of field.
func (d Document) Float(field string) (float64, bool) {
	switch v := d.Data[field].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	}
	return 0, false
}
