package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Document is a stored record. Data holds the decoded JSON fields: numbers
// are float64, arrays are []any and times are Unix milliseconds.
type Document struct {
	Ref     Ref
	Data    map[string]any
	Version int64
}

// ID returns the document id.
func (d Document) ID() string {
	return d.Ref.ID
}

// Value returns the raw field value.
func (d Document) Value(field string) (any, bool) {
	if d.Data == nil {
		return nil, false
	}
	v, ok := d.Data[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// String returns a string field, or "" when missing or mistyped.
func (d Document) String(field string) string {
	v, ok := d.Value(field)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

// FirstString returns the first non-empty string among fields, in order.
func (d Document) FirstString(fields ...string) string {
	for _, f := range fields {
		if s := d.String(f); s != "" {
			return s
		}
	}
	return ""
}

// Strings returns an array field as strings. A plain string field is
// treated as a single-element array.
func (d Document) Strings(field string) []string {
	v, ok := d.Value(field)
	if !ok {
		return nil
	}
	switch arr := v.(type) {
	case []any:
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return append([]string(nil), arr...)
	case string:
		if arr == "" {
			return nil
		}
		return []string{arr}
	default:
		return nil
	}
}

// Contains reports whether the array field holds value.
func (d Document) Contains(field, value string) bool {
	for _, s := range d.Strings(field) {
		if s == value {
			return true
		}
	}
	return false
}

// Bool returns a boolean field, accepting 0/1 numbers and "true"/"false".
func (d Document) Bool(field string) bool {
	v, ok := d.Value(field)
	if !ok {
		return false
	}
	switch b := v.(type) {
	case bool:
		return b
	case float64:
		return b != 0
	case string:
		parsed, err := strconv.ParseBool(b)
		return err == nil && parsed
	default:
		return false
	}
}

// Time returns a time field. Unix milliseconds and RFC 3339 strings are
// accepted.
func (d Document) Time(field string) (time.Time, bool) {
	v, ok := d.Value(field)
	if !ok {
		return time.Time{}, false
	}
	return toTime(v)
}

// FirstTime returns the first parseable time among fields, in order.
func (d Document) FirstTime(fields ...string) (time.Time, bool) {
	for _, f := range fields {
		if t, ok := d.Time(f); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case float64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)).UTC(), true
	case int64:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(t).UTC(), true
	case int:
		if t <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)).UTC(), true
	case json.Number:
		ms, err := t.Int64()
		if err != nil || ms <= 0 {
			return time.Time{}, false
		}
		return time.UnixMilli(ms).UTC(), true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(t))
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t.UTC(), true
	default:
		return time.Time{}, false
	}
}

// encodeValue converts Go values into their stored form. Times become Unix
// milliseconds, recursively through maps and slices.
func encodeValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return nil
		}
		return t.UnixMilli()
	case *time.Time:
		if t == nil || t.IsZero() {
			return nil
		}
		return t.UnixMilli()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = encodeValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = encodeValue(val)
		}
		return out
	default:
		return v
	}
}

// encodeData marshals a document body after encoding its values.
func encodeData(data map[string]any) (string, error) {
	if data == nil {
		data = map[string]any{}
	}
	encoded, ok := encodeValue(data).(map[string]any)
	if !ok {
		return "", fmt.Errorf("encoding document data")
	}
	raw, err := json.Marshal(encoded)
	if err != nil {
		return "", fmt.Errorf("marshaling document data: %w", err)
	}
	return string(raw), nil
}

// decodeData unmarshals a stored document body.
func decodeData(raw string) (map[string]any, error) {
	data := map[string]any{}
	if raw == "" {
		return data, nil
	}
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil, fmt.Errorf("unmarshaling document data: %w", err)
	}
	return data, nil
}

// canonical returns v as it would look after a store round-trip so that
// values can be compared with stored array elements.
func canonical(v any) (any, error) {
	raw, err := json.Marshal(encodeValue(v))
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func containsValue(arr []any, v any) bool {
	for _, item := range arr {
		if reflect.DeepEqual(item, v) {
			return true
		}
	}
	return false
}
