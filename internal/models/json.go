package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// RawJSON is a JSON-typed column value. It round-trips null, {}, and nested
// structures without loss, and implements the database/sql Scanner/Valuer
// pair so it can be used directly as a struct field scanned from a jsonb
// or json column via lib/pq.
type RawJSON json.RawMessage

// Value implements driver.Valuer.
func (j RawJSON) Value() (driver.Value, error) {
	if len(j) == 0 {
		return "null", nil
	}
	return string(j), nil
}

// Scan implements sql.Scanner.
func (j *RawJSON) Scan(src interface{}) error {
	if src == nil {
		*j = RawJSON("null")
		return nil
	}
	switch v := src.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = RawJSON(v)
		return nil
	default:
		return errors.New("models: RawJSON.Scan: unsupported source type")
	}
}

// MarshalJSON implements json.Marshaler.
func (j RawJSON) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *RawJSON) UnmarshalJSON(data []byte) error {
	if j == nil {
		return errors.New("models: RawJSON: UnmarshalJSON on nil pointer")
	}
	*j = append((*j)[0:0], data...)
	return nil
}

// IsNull reports whether the underlying JSON value is the literal null.
func (j RawJSON) IsNull() bool {
	return len(j) == 0 || string(j) == "null"
}
