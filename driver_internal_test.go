package firebolt

import (
	"database/sql/driver"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverValue(t *testing.T) {
	tests := []struct {
		name    string
		colType string
		raw     string
		want    driver.Value
	}{
		{"null", "int null", `null`, nil},
		{"int", "int", `42`, int64(42)},
		{"bigint as string", "bigint", `"9007199254740993"`, int64(9007199254740993)},
		{"real", "real", `2.5`, float64(2.5)},
		{"real keeps literal", "float4", `0.1`, float64(0.1)},
		{"double", "double", `3.14`, float64(3.14)},
		{"decimal keeps precision", "decimal(38,2)", `"19.99"`, "19.99"},
		{"decimal from number", "numeric", `7`, "7"},
		{"decimal keeps trailing zeros", "decimal(10,3)", `"123.400"`, "123.400"},
		{"decimal integer padded to scale", "decimal(10,3)", `1`, "1.000"},
		{"text", "text", `"hello"`, "hello"},
		{"boolean", "boolean", `true`, true},
		{"boolean text", "bool", `"false"`, false},
		{"bytea", "bytea", `"\\x6869"`, []byte("hi")},
		{"date", "date", `"2024-01-15"`, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"timestamp", "timestamp", `"2024-01-15 10:30:00.5"`, time.Date(2024, 1, 15, 10, 30, 0, 500000000, time.UTC)},
		{"array", "array(int)", `[1, 2]`, "[1, 2]"},
		{"geography", "geography", `"POINT(1 2)"`, "POINT(1 2)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := newTestRow(t, [3]string{"c", tt.colType, tt.raw})
			got, err := driverValue(row, 0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("error cases", func(t *testing.T) {
		for _, c := range [][3]string{
			{"c", "int", `"forty-two"`},
			{"c", "double", `true`},
			{"c", "boolean", `"maybe"`},
			{"c", "date", `20240115`},
			{"c", "timestamp", `"yesterday"`},
			{"c", "bytea", `"\\xZZ"`},
		} {
			row := newTestRow(t, c)
			_, err := driverValue(row, 0)
			assert.Error(t, err, "%s %s", c[1], c[2])
		}
	})
}

func TestScanTypeForFamily(t *testing.T) {
	tests := []struct {
		colType string
		want    reflect.Type
	}{
		{"int", scanTypeInt64},
		{"bigint null", scanTypeInt64},
		{"real", scanTypeFloat},
		{"double precision", scanTypeFloat},
		{"boolean", scanTypeBool},
		{"bytea", scanTypeBytes},
		{"date", scanTypeTime},
		{"timestamptz", scanTypeTime},
		{"decimal(10,2)", scanTypeString},
		{"text", scanTypeString},
		{"array(text)", scanTypeString},
		{"mystery", scanTypeString},
	}
	for _, tt := range tests {
		t.Run(tt.colType, func(t *testing.T) {
			assert.Equal(t, tt.want, scanTypeForFamily(Column{Type: tt.colType}.Family()))
		})
	}
}

func TestParseTemporal(t *testing.T) {
	cest := time.FixedZone("", 2*60*60)

	tests := []struct {
		name   string
		family TypeFamily
		input  string
		want   time.Time
	}{
		{"date", FamilyDate, "2024-01-15", time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{"timestamp", FamilyTimestamp, "2024-01-15 10:30:00", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"timestamp micros", FamilyTimestamp, "2024-01-15 10:30:00.123456", time.Date(2024, 1, 15, 10, 30, 0, 123456000, time.UTC)},
		{"timestamp iso", FamilyTimestamp, "2024-01-15T10:30:00", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"timestamptz hour offset", FamilyTimestampTZ, "2024-01-15 10:30:00+02", time.Date(2024, 1, 15, 10, 30, 0, 0, cest)},
		{"timestamptz full offset", FamilyTimestampTZ, "2024-01-15 10:30:00.25+02:00", time.Date(2024, 1, 15, 10, 30, 0, 250000000, cest)},
		{"timestamptz rfc3339", FamilyTimestampTZ, "2024-01-15T08:30:00Z", time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseTemporal(tt.family, tt.input)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}

	t.Run("invalid", func(t *testing.T) {
		_, err := parseTemporal(FamilyDate, "15/01/2024")
		assert.Error(t, err)

		_, err = parseTemporal(FamilyTimestampTZ, "2024-01-15 10:30:00")
		assert.Error(t, err, "a zone is required")

		_, err = parseTemporal(FamilyText, "2024-01-15")
		assert.Error(t, err)
	})
}

func TestRows_OutOfRangeColumn(t *testing.T) {
	r := &rows{rs: &ResultSet{Columns: []Column{{Name: "a", Type: "int"}}}}

	assert.Equal(t, "INT", r.ColumnTypeDatabaseTypeName(0))
	assert.Equal(t, "", r.ColumnTypeDatabaseTypeName(1))
	assert.Equal(t, scanTypeString, r.ColumnTypeScanType(-1))
	_, ok := r.ColumnTypeNullable(5)
	assert.False(t, ok)
}

func TestStmt_NamedValues(t *testing.T) {
	got := namedValues([]driver.Value{"a", int64(2)})
	assert.Equal(t, []driver.NamedValue{
		{Ordinal: 1, Value: "a"},
		{Ordinal: 2, Value: int64(2)},
	}, got)
	assert.Equal(t, -1, (&stmt{}).NumInput())
}
