package firebolt

import (
	"strconv"
	"strings"
)

// Column describes one column of a result set.
type Column struct {
	// Name is the column name as reported by the server.
	Name string `json:"name"`

	// Type is the server-supplied type tag, e.g. "int", "decimal(10,3) null"
	// or "array(text)".
	Type string `json:"type"`

	// Position is the zero-based index of the column in its result set.
	Position int `json:"-"`
}

// TypeFamily groups type tags that decode the same way.
type TypeFamily int8

const (
	FamilyUnknown TypeFamily = iota
	FamilyInt
	FamilyLong
	FamilyFloat
	FamilyDouble
	FamilyDecimal
	FamilyText
	FamilyBoolean
	FamilyDate
	FamilyTimestamp
	FamilyTimestampTZ
	FamilyArray
	FamilyGeography
	FamilyBytea
)

// typeFamilies maps a normalized tag to its family.
var typeFamilies = map[string]TypeFamily{
	"int":              FamilyInt,
	"integer":          FamilyInt,
	"bigint":           FamilyLong,
	"long":             FamilyLong,
	"float4":           FamilyFloat,
	"float":            FamilyFloat,
	"real":             FamilyFloat,
	"double":           FamilyDouble,
	"float8":           FamilyDouble,
	"double precision": FamilyDouble,
	"decimal":          FamilyDecimal,
	"numeric":          FamilyDecimal,
	"text":             FamilyText,
	"string":           FamilyText,
	"varchar":          FamilyText,
	"bool":             FamilyBoolean,
	"boolean":          FamilyBoolean,
	"date":             FamilyDate,
	"pgdate":           FamilyDate,
	"timestamp":        FamilyTimestamp,
	"timestampntz":     FamilyTimestamp,
	"timestamptz":      FamilyTimestampTZ,
	"array":            FamilyArray,
	"geography":        FamilyGeography,
	"bytea":            FamilyBytea,
}

var familyNames = map[TypeFamily]string{
	FamilyUnknown:     "unknown",
	FamilyInt:         "int",
	FamilyLong:        "bigint",
	FamilyFloat:       "float",
	FamilyDouble:      "double",
	FamilyDecimal:     "decimal",
	FamilyText:        "text",
	FamilyBoolean:     "boolean",
	FamilyDate:        "date",
	FamilyTimestamp:   "timestamp",
	FamilyTimestampTZ: "timestamptz",
	FamilyArray:       "array",
	FamilyGeography:   "geography",
	FamilyBytea:       "bytea",
}

// String returns the canonical tag of the family.
func (f TypeFamily) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return strconv.Itoa(int(f))
}

// splitTypeTag lowercases a tag and separates its trailing nullability marker.
// "Array(INT NULL) NULL" becomes ("array(int null)", true).
func splitTypeTag(tag string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(tag))
	if base, ok := strings.CutSuffix(lower, " not null"); ok {
		return strings.TrimSpace(base), false
	}
	if base, ok := strings.CutSuffix(lower, " null"); ok {
		return strings.TrimSpace(base), true
	}
	return lower, false
}

// normalizeType strips the nullability marker and any parameters from a tag.
// e.g. "decimal(10,2) null" → "decimal", "array(int)" → "array"
func normalizeType(tag string) string {
	base, _ := splitTypeTag(tag)
	if idx := strings.IndexByte(base, '('); idx >= 0 {
		return strings.TrimSpace(base[:idx])
	}
	return base
}

// familyOf classifies a type tag.
func familyOf(tag string) TypeFamily {
	return typeFamilies[normalizeType(tag)]
}

// Family returns the decode family of the column type.
func (c Column) Family() TypeFamily {
	return familyOf(c.Type)
}

// Nullable reports whether the type tag carries a trailing "null" marker.
// Servers that omit the marker may still send nulls.
func (c Column) Nullable() bool {
	_, nullable := splitTypeTag(c.Type)
	return nullable
}

// Precision returns p for a "decimal(p,s)" column.
func (c Column) Precision() (int, bool) {
	p, _, ok := c.decimalArgs()
	return p, ok
}

// Scale returns s for a "decimal(p,s)" column.
func (c Column) Scale() (int, bool) {
	_, s, ok := c.decimalArgs()
	return s, ok
}

func (c Column) decimalArgs() (int, int, bool) {
	if c.Family() != FamilyDecimal {
		return 0, 0, false
	}
	base, _ := splitTypeTag(c.Type)
	open, closing := strings.IndexByte(base, '('), strings.LastIndexByte(base, ')')
	if open < 0 || closing < open {
		return 0, 0, false
	}
	pStr, sStr, ok := strings.Cut(base[open+1:closing], ",")
	if !ok {
		return 0, 0, false
	}
	p, err1 := strconv.Atoi(strings.TrimSpace(pStr))
	s, err2 := strconv.Atoi(strings.TrimSpace(sStr))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return p, s, true
}
