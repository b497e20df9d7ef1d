package entity

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// timeFormats are accepted when coercing string values into timestamps,
// tried in order.
var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Project filters a record down to the given variant's fields, coercing
// each value to its declared type. Keys outside the variant are dropped
// silently; values that cannot coerce produce a ValidationError naming
// every offending field.
func (e *Entity) Project(kind VariantKind, data Record) (Record, error) {
	v := e.Variant(kind)
	out := make(Record, len(data))
	ve := &ValidationError{}

	for _, f := range v.Fields {
		raw, present := data[f.Name]
		if !present {
			continue
		}
		value, err := CoerceValue(f.Type, raw)
		if err != nil {
			ve.Add(f.Name, err.Error())
			continue
		}
		out[f.Name] = value
	}

	if len(ve.Errors) > 0 {
		return nil, ve
	}
	return out, nil
}

// CoerceValue converts a decoded JSON value (or a Go-side value) into the
// canonical representation for the given type: int64 for ints, float64
// for floats, time.Time for timestamps, canonical lowercase strings for
// uuids, []interface{} for lists, map[string]interface{} for maps.
func CoerceValue(t Type, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch t.Kind {
	case KindString, KindText:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", v)
		}
		return s, nil

	case KindInt:
		switch n := v.(type) {
		case int:
			return int64(n), nil
		case int32:
			return int64(n), nil
		case int64:
			return n, nil
		case float64:
			if n != math.Trunc(n) {
				return nil, fmt.Errorf("expected integer, got %v", n)
			}
			return int64(n), nil
		default:
			return nil, fmt.Errorf("expected integer, got %T", v)
		}

	case KindFloat:
		switch n := v.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int64:
			return float64(n), nil
		default:
			return nil, fmt.Errorf("expected number, got %T", v)
		}

	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("expected boolean, got %T", v)
		}
		return b, nil

	case KindTime:
		switch ts := v.(type) {
		case time.Time:
			return ts, nil
		case string:
			for _, layout := range timeFormats {
				if parsed, err := time.Parse(layout, ts); err == nil {
					return parsed, nil
				}
			}
			return nil, fmt.Errorf("invalid timestamp %q", ts)
		default:
			return nil, fmt.Errorf("expected timestamp, got %T", v)
		}

	case KindUUID:
		switch id := v.(type) {
		case uuid.UUID:
			return id.String(), nil
		case string:
			parsed, err := uuid.Parse(id)
			if err != nil {
				return nil, fmt.Errorf("invalid uuid %q", id)
			}
			return parsed.String(), nil
		default:
			return nil, fmt.Errorf("expected uuid, got %T", v)
		}

	case KindList:
		var items []interface{}
		switch list := v.(type) {
		case []interface{}:
			items = list
		case []string:
			items = make([]interface{}, len(list))
			for i, s := range list {
				items[i] = s
			}
		default:
			return nil, fmt.Errorf("expected list, got %T", v)
		}
		out := make([]interface{}, len(items))
		for i, item := range items {
			value, err := CoerceValue(*t.Elem, item)
			if err != nil {
				return nil, fmt.Errorf("element %d: %v", i, err)
			}
			out[i] = value
		}
		return out, nil

	case KindMap:
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected map, got %T", v)
		}
		out := make(map[string]interface{}, len(m))
		for key, item := range m {
			canonical, err := CoerceValue(*t.Key, key)
			if err != nil {
				return nil, fmt.Errorf("key %q: %v", key, err)
			}
			value, err := CoerceValue(*t.Value, item)
			if err != nil {
				return nil, fmt.Errorf("value for key %q: %v", key, err)
			}
			out[canonical.(string)] = value
		}
		return out, nil

	default:
		return nil, fmt.Errorf("unknown type kind %q", t.Kind)
	}
}

// DeepCopyValue copies lists and maps recursively so shared defaults and
// cached records never alias caller-visible data.
func DeepCopyValue(v interface{}) interface{} {
	switch value := v.(type) {
	case []interface{}:
		out := make([]interface{}, len(value))
		for i, item := range value {
			out[i] = DeepCopyValue(item)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(value))
		for key, item := range value {
			out[key] = DeepCopyValue(item)
		}
		return out
	default:
		return v
	}
}

// CopyRecord returns a deep copy of a record
func CopyRecord(rec Record) Record {
	if rec == nil {
		return nil
	}
	return DeepCopyValue(map[string]interface{}(rec)).(map[string]interface{})
}

// emptyValue is what container fields fall back to when a record omits
// them and no default is declared.
func emptyValue(t Type) (interface{}, bool) {
	switch t.Kind {
	case KindList:
		return []interface{}{}, true
	case KindMap:
		return map[string]interface{}{}, true
	}
	return nil, false
}
