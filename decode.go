package firebolt

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// conversion turns a non-null raw cell into T.
type conversion[T any] func(raw Value) (T, error)

// conversions is the second dispatch level: type family to conversion.
type conversions[T any] map[TypeFamily]conversion[T]

var (
	int32Conversions = conversions[int32]{
		FamilyInt:  decodeInt32,
		FamilyLong: decodeInt32,
	}
	int64Conversions = conversions[int64]{
		FamilyInt:  decodeInt64,
		FamilyLong: decodeInt64,
	}
	bigIntConversions = conversions[*big.Int]{
		FamilyInt:  decodeBigInt,
		FamilyLong: decodeBigInt,
	}
	float32Conversions = conversions[float32]{
		FamilyFloat: decodeFloat32,
	}
	float64Conversions = conversions[float64]{
		FamilyDouble: decodeFloat64,
	}
	decimalConversions = conversions[decimal.Decimal]{
		FamilyDecimal: decodeDecimal,
	}
	stringConversions = conversions[string]{
		FamilyText: decodeString,
	}
	boolConversions = conversions[bool]{
		FamilyBoolean: decodeBool,
	}
	structuredConversions = conversions[Structured]{
		FamilyDate:        decodeStructured,
		FamilyTimestamp:   decodeStructured,
		FamilyTimestampTZ: decodeStructured,
		FamilyArray:       decodeStructured,
		FamilyGeography:   decodeStructured,
	}
	bytesConversions = conversions[[]byte]{
		FamilyBytea: decodeBytes,
	}
)

// conversionsFor is the first dispatch level: the requested Go type selects
// its conversion table. The switch is on a typed nil pointer so interface and
// pointer targets dispatch the same way as scalars.
func conversionsFor[T any]() (string, conversions[T], bool) {
	var table any
	var name string
	switch any((*T)(nil)).(type) {
	case *int32:
		name, table = "int32", int32Conversions
	case *int64:
		name, table = "int64", int64Conversions
	case **big.Int:
		name, table = "*big.Int", bigIntConversions
	case *float32:
		name, table = "float32", float32Conversions
	case *float64:
		name, table = "float64", float64Conversions
	case *decimal.Decimal:
		name, table = "decimal.Decimal", decimalConversions
	case *string:
		name, table = "string", stringConversions
	case *bool:
		name, table = "bool", boolConversions
	case *Structured:
		name, table = "Structured", structuredConversions
	case *[]byte:
		name, table = "[]byte", bytesConversions
	default:
		var zero T
		return fmt.Sprintf("%T", zero), nil, false
	}
	conv, ok := table.(conversions[T])
	return name, conv, ok
}

// Get decodes the first column called name into T. A null cell is an error;
// use GetNullable for columns that may hold nulls.
func Get[T any](r *Row, name string) (T, error) {
	idx, err := r.indexOf(name)
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeCell[T](r, idx)
}

// GetIndex decodes the cell at position i into T.
func GetIndex[T any](r *Row, i int) (T, error) {
	if err := r.checkIndex(i); err != nil {
		var zero T
		return zero, err
	}
	return decodeCell[T](r, i)
}

// GetNullable decodes the first column called name into *T, returning nil
// for a null cell.
func GetNullable[T any](r *Row, name string) (*T, error) {
	idx, err := r.indexOf(name)
	if err != nil {
		return nil, err
	}
	return decodeNullableCell[T](r, idx)
}

// GetNullableIndex decodes the cell at position i into *T, returning nil for
// a null cell.
func GetNullableIndex[T any](r *Row, i int) (*T, error) {
	if err := r.checkIndex(i); err != nil {
		return nil, err
	}
	return decodeNullableCell[T](r, i)
}

func decodeCell[T any](r *Row, i int) (T, error) {
	var zero T
	col, raw := r.columns[i], r.values[i]

	target, table, ok := conversionsFor[T]()
	if !ok {
		return zero, newError(KindSerialization, nil,
			"unsupported target type %s for column %q of type %s", target, col.Name, col.Type)
	}
	if raw.IsNull() {
		return zero, newError(KindSerialization, nil,
			"column %q is null and cannot be decoded into non-nullable %s", col.Name, target)
	}
	convert, ok := table[col.Family()]
	if !ok {
		return zero, newError(KindSerialization, nil,
			"cannot decode column %q of type %s into %s", col.Name, col.Type, target)
	}
	v, err := convert(raw)
	if err != nil {
		return zero, newError(KindSerialization, err,
			"cannot decode column %q of type %s into %s", col.Name, col.Type, target)
	}
	if d, ok := any(v).(decimal.Decimal); ok {
		v = any(withDeclaredScale(col, d)).(T)
	}
	return v, nil
}

// withDeclaredScale rescales d to s digits after the point for a
// "decimal(p,s)" column, so 1 and "1.000" decode alike.
func withDeclaredScale(col Column, d decimal.Decimal) decimal.Decimal {
	if s, ok := col.Scale(); ok {
		return d.Round(int32(s))
	}
	return d
}

func decodeNullableCell[T any](r *Row, i int) (*T, error) {
	col := r.columns[i]
	if target, _, ok := conversionsFor[T](); !ok {
		return nil, newError(KindSerialization, nil,
			"unsupported target type %s for column %q of type %s", target, col.Name, col.Type)
	}
	if r.values[i].IsNull() {
		return nil, nil
	}
	v, err := decodeCell[T](r, i)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// --- Scalar conversions ---

// numericText returns the literal of a JSON number, or the contents of a
// JSON string; 64-bit and decimal values often arrive quoted.
func numericText(raw Value) (string, error) {
	trimmed := bytes.TrimSpace(raw.raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return "", err
		}
		return strings.TrimSpace(s), nil
	}
	if raw.Kind() != ValueScalar {
		return "", fmt.Errorf("expected a number, got %s", trimmed)
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return "", fmt.Errorf("expected a number, got %s", trimmed)
	}
	return n.String(), nil
}

func decodeInt32(raw Value) (int32, error) {
	s, err := numericText(raw)
	if err != nil {
		return 0, err
	}
	i, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("value %s does not fit int32: %w", s, err)
	}
	return int32(i), nil
}

func decodeInt64(raw Value) (int64, error) {
	s, err := numericText(raw)
	if err != nil {
		return 0, err
	}
	i, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value %s does not fit int64: %w", s, err)
	}
	return i, nil
}

func decodeBigInt(raw Value) (*big.Int, error) {
	s, err := numericText(raw)
	if err != nil {
		return nil, err
	}
	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer literal %q", s)
	}
	return i, nil
}

func decodeFloat32(raw Value) (float32, error) {
	s, err := numericText(raw)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid float4 literal %q: %w", s, err)
	}
	return float32(f), nil
}

func decodeFloat64(raw Value) (float64, error) {
	s, err := numericText(raw)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid double literal %q: %w", s, err)
	}
	return f, nil
}

func decodeDecimal(raw Value) (decimal.Decimal, error) {
	s, err := numericText(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid fixed-point literal %q: %w", s, err)
	}
	return d, nil
}

func decodeString(raw Value) (string, error) {
	var s string
	if err := json.Unmarshal(raw.raw, &s); err != nil {
		return "", fmt.Errorf("expected a JSON string, got %s", bytes.TrimSpace(raw.raw))
	}
	return s, nil
}

func decodeBool(raw Value) (bool, error) {
	var v any
	if err := json.Unmarshal(raw.raw, &v); err != nil {
		return false, err
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch {
		case strings.EqualFold(b, "true"):
			return true, nil
		case strings.EqualFold(b, "false"):
			return false, nil
		}
	}
	return false, fmt.Errorf("invalid boolean literal %s", bytes.TrimSpace(raw.raw))
}

func decodeStructured(raw Value) (Structured, error) {
	return append(Structured(nil), bytes.TrimSpace(raw.raw)...), nil
}

// decodeBytes reads bytea values, which the server sends as "\x" followed by
// hex digits. Strings without the prefix are taken verbatim.
func decodeBytes(raw Value) ([]byte, error) {
	s, err := decodeString(raw)
	if err != nil {
		return nil, err
	}
	if digits, ok := strings.CutPrefix(s, `\x`); ok {
		b, err := hex.DecodeString(digits)
		if err != nil {
			return nil, fmt.Errorf("invalid bytea hex literal: %w", err)
		}
		return b, nil
	}
	return []byte(s), nil
}
