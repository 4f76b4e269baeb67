package firebolt

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Value ---

func TestValue_Kind(t *testing.T) {
	tests := []struct {
		raw  string
		kind ValueKind
		str  string
	}{
		{``, ValueNull, "NULL"},
		{`null`, ValueNull, "NULL"},
		{` null `, ValueNull, "NULL"},
		{`42`, ValueScalar, "42"},
		{`"text"`, ValueScalar, "text"},
		{`true`, ValueScalar, "true"},
		{`[1,2]`, ValueComposite, "[1,2]"},
		{`{"a":1}`, ValueComposite, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v := RawValue(json.RawMessage(tt.raw))
			assert.Equal(t, tt.kind, v.Kind())
			assert.Equal(t, tt.kind == ValueNull, v.IsNull())
			assert.Equal(t, tt.str, v.String())
		})
	}
}

// --- Structured ---

func TestStructured_Scan(t *testing.T) {
	var s Structured
	require.NoError(t, s.Scan(`[1,2]`))
	assert.Equal(t, "[1,2]", s.String())

	src := []byte(`"2026-01-01"`)
	require.NoError(t, s.Scan(src))
	src[1] = 'X'
	assert.Equal(t, `"2026-01-01"`, s.String(), "Scan must copy byte sources")

	require.NoError(t, s.Scan(nil))
	assert.Nil(t, s)

	err := s.Scan(3.14)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cannot scan float64")
}

// --- NullSlice ---

func TestNullSlice_Scan(t *testing.T) {
	t.Run("string source", func(t *testing.T) {
		var s NullSlice[int]
		err := s.Scan(`[1,2,3]`)
		require.NoError(t, err)
		assert.True(t, s.Valid)
		assert.Equal(t, []int{1, 2, 3}, s.Slice)
	})

	t.Run("byte source", func(t *testing.T) {
		var s NullSlice[string]
		err := s.Scan([]byte(`["a","b"]`))
		require.NoError(t, err)
		assert.True(t, s.Valid)
		assert.Equal(t, []string{"a", "b"}, s.Slice)
	})

	t.Run("nil source", func(t *testing.T) {
		var s NullSlice[int]
		err := s.Scan(nil)
		require.NoError(t, err)
		assert.False(t, s.Valid)
		assert.Nil(t, s.Slice)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		var s NullSlice[int]
		err := s.Scan(`{not json}`)
		assert.Error(t, err)
	})

	t.Run("unsupported type", func(t *testing.T) {
		var s NullSlice[int]
		err := s.Scan(42)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cannot scan int")
	})
}

func TestNullSlice_Value(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		s := NullSlice[int]{Slice: []int{1, 2}, Valid: true}
		v, err := s.Value()
		require.NoError(t, err)
		assert.Equal(t, "[1,2]", v)
	})

	t.Run("null", func(t *testing.T) {
		s := NullSlice[int]{Valid: false}
		v, err := s.Value()
		require.NoError(t, err)
		assert.Nil(t, v)
	})
}
