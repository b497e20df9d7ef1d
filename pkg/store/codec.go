package store

import (
	"encoding/json"
	"fmt"

	"github.com/strata-api/strata/pkg/entity"
)

// encodeValue converts a canonical record value to its driver value.
// Containers become JSON text; scalars bind directly.
func encodeValue(t entity.Type, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if t.IsScalar() {
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s value: %w", t, err)
	}
	return string(data), nil
}

// decodeValue converts a scanned driver value back to the canonical
// representation for the field type.
func decodeValue(t entity.Type, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, nil
	}
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	if !t.IsScalar() {
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected JSON text for %s column, got %T", t, raw)
		}
		var decoded interface{}
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode %s column: %w", t, err)
		}
		return entity.CoerceValue(t, decoded)
	}

	// SQLite reports booleans from expressions as integers.
	if t.Kind == entity.KindBool {
		if n, ok := raw.(int64); ok {
			return n != 0, nil
		}
	}

	return entity.CoerceValue(t, raw)
}

// decodeRow converts one scanned row into a record, skipping NULL columns
// so absent optional fields stay absent.
func decodeRow(e *entity.Entity, fields []entity.Field, values []interface{}) (entity.Record, error) {
	rec := make(entity.Record, len(fields))
	for i, f := range fields {
		value, err := decodeValue(f.Type, values[i])
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", e.Name, f.Name, err)
		}
		if value == nil {
			continue
		}
		rec[f.Name] = value
	}
	return rec, nil
}
