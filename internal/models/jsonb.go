package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

//
// JSONB helpers
//

// JSONB is a helper for Postgres jsonb columns holding free-form objects,
// such as raw provider payloads. Typed blobs use marshalJSONB/scanJSONB.
type JSONB map[string]any

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return marshalJSONB(j)
}

func (j *JSONB) Scan(value any) error {
	*j = nil
	return scanJSONB(value, j)
}

// marshalJSONB serializes v for a jsonb column.
func marshalJSONB(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// scanJSONB decodes a jsonb column into dst. NULL and empty values leave dst untouched.
func scanJSONB(value any, dst any) error {
	if value == nil {
		return nil
	}

	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("jsonb: expected []byte, got %T", value)
	}

	if len(b) == 0 {
		return nil
	}

	return json.Unmarshal(b, dst)
}
