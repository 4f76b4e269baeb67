package firebolt

import (
	"bytes"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ValueKind is the shape of a raw cell.
type ValueKind int8

const (
	ValueNull ValueKind = iota
	ValueScalar
	ValueComposite
)

// Value is a raw, undecoded cell exactly as the server sent it.
type Value struct {
	raw json.RawMessage
}

// RawValue wraps a JSON cell. An empty message is treated as null.
func RawValue(raw json.RawMessage) Value {
	return Value{raw: raw}
}

// Kind reports whether the cell is null, a scalar or an array/object.
func (v Value) Kind() ValueKind {
	trimmed := bytes.TrimSpace(v.raw)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		return ValueNull
	case trimmed[0] == '[' || trimmed[0] == '{':
		return ValueComposite
	default:
		return ValueScalar
	}
}

// IsNull reports whether the cell is null.
func (v Value) IsNull() bool {
	return v.Kind() == ValueNull
}

// Raw returns the JSON text of the cell.
func (v Value) Raw() json.RawMessage {
	return v.raw
}

// String renders the cell for display: strings unquoted, null as NULL,
// everything else as JSON text.
func (v Value) String() string {
	if v.IsNull() {
		return "NULL"
	}
	var s string
	if err := json.Unmarshal(v.raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(v.raw))
}

// Structured is a value the client does not interpret: dates, timestamps,
// arrays and geography values are surfaced as their JSON text.
//
//	var ts firebolt.Structured
//	ts, err := firebolt.Get[firebolt.Structured](row, "created_at")
//	var s string
//	err = ts.Unmarshal(&s)
type Structured json.RawMessage

var _ sql.Scanner = (*Structured)(nil)

// Unmarshal decodes the JSON text into v.
func (s Structured) Unmarshal(v any) error {
	return json.Unmarshal(s, v)
}

// String returns the JSON text.
func (s Structured) String() string {
	return string(s)
}

// Scan implements sql.Scanner. It accepts the JSON text the driver returns.
func (s *Structured) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
	case string:
		*s = Structured(v)
	case []byte:
		*s = append(Structured(nil), v...)
	default:
		return fmt.Errorf("firebolt: cannot scan %T into Structured", src)
	}
	return nil
}

// NullSlice is a nullable JSON array that implements sql.Scanner and driver.Valuer.
// Use it to scan Firebolt ARRAY columns into Go slices.
//
//	var ids firebolt.NullSlice[int64]
//	err := row.Scan(&ids)
type NullSlice[T any] struct {
	Slice []T
	Valid bool // Valid is true if the value is not NULL
}

var _ sql.Scanner = (*NullSlice[any])(nil)
var _ driver.Valuer = (*NullSlice[any])(nil)

// Scan implements sql.Scanner. It expects a JSON string or []byte from the driver.
func (s *NullSlice[T]) Scan(src any) error {
	if src == nil {
		s.Slice = nil
		s.Valid = false
		return nil
	}

	var data []byte
	switch v := src.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("firebolt: cannot scan %T into NullSlice", src)
	}

	if err := json.Unmarshal(data, &s.Slice); err != nil {
		return fmt.Errorf("firebolt: cannot unmarshal array: %w", err)
	}
	s.Valid = true
	return nil
}

// Value implements driver.Valuer.
func (s NullSlice[T]) Value() (driver.Value, error) {
	if !s.Valid {
		return nil, nil
	}
	b, err := json.Marshal(s.Slice)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}
