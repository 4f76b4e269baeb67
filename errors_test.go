package firebolt

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKind_StringRoundTrip(t *testing.T) {
	kinds := []ErrorKind{
		KindUnknown, KindAuthentication, KindNetwork, KindQuery,
		KindSerialization, KindConfiguration, KindHeaderParsing,
	}
	for _, k := range kinds {
		t.Run(k.String(), func(t *testing.T) {
			parsed, err := ParseErrorKind(k.String())
			require.NoError(t, err)
			assert.Equal(t, k, parsed)
		})
	}

	_, err := ParseErrorKind("bogus")
	assert.Error(t, err)
	assert.Equal(t, "42", ErrorKind(42).String())
}

func TestErrorKind_JSON(t *testing.T) {
	b, err := json.Marshal(map[string]ErrorKind{"kind": KindHeaderParsing})
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"header parsing"}`, string(b))

	var decoded map[string]ErrorKind
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, KindHeaderParsing, decoded["kind"])
}

func TestError_Format(t *testing.T) {
	cause := errors.New("connection refused")
	err := newError(KindNetwork, cause, "POST %s failed", "https://engine")
	assert.Equal(t, "network error: POST https://engine failed: connection refused", err.Error())

	err = newError(KindQuery, nil, "empty statement")
	assert.Equal(t, "query error: empty statement", err.Error())

	var nilErr *Error
	assert.Equal(t, "nil Error", nilErr.Error())
}

func TestError_IsAndAs(t *testing.T) {
	cause := &ServerError{StatusCode: 500, Message: "boom"}
	err := fmt.Errorf("wrapped: %w", newError(KindQuery, cause, "query failed"))

	assert.ErrorIs(t, err, ErrQuery)
	assert.NotErrorIs(t, err, ErrNetwork)
	assert.Equal(t, KindQuery, KindOf(err))

	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, 500, serverErr.StatusCode)
	assert.Equal(t, "boom (status code: 500)", serverErr.Error())

	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestExtractServerMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"message field", `{"message":"Account not found"}`, "Account not found"},
		{"oauth error with description", `{"error":"access_denied","error_description":"Wrong email or password."}`, "Wrong email or password."},
		{"oauth error only", `{"error":"invalid_client"}`, "invalid_client"},
		{"errors array", `{"errors":[{"description":"line 1: syntax error"},{"description":"aborted"}]}`, "line 1: syntax error; aborted"},
		{"plain text", "  Bad Gateway\n", "Bad Gateway"},
		{"unrecognised json", `{"detail":"x"}`, `{"detail":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractServerMessage([]byte(tt.body)))
		})
	}
}
