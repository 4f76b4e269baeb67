package firebolt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ethanyzhang/firebolt-go/internal/bimap"
)

// ErrorKind classifies every error returned by this package. Kinds do not
// overlap: each failure cause maps to exactly one kind.
type ErrorKind int8

const (
	// KindUnknown is the catch-all for failures that fit no other kind.
	KindUnknown ErrorKind = iota
	// KindAuthentication covers rejected credentials and malformed token responses.
	KindAuthentication
	// KindNetwork covers transport failures: DNS, TLS, resets and timeouts.
	KindNetwork
	// KindQuery covers non-2xx answers from the engine and missing-column lookups.
	KindQuery
	// KindSerialization covers decode failures and malformed response bodies.
	KindSerialization
	// KindConfiguration covers missing or invalid client configuration.
	KindConfiguration
	// KindHeaderParsing covers malformed session headers. It never
	// invalidates the data of the query that carried them.
	KindHeaderParsing
)

var errorKindNames = bimap.New(map[ErrorKind]string{
	KindUnknown:        "unknown",
	KindAuthentication: "authentication",
	KindNetwork:        "network",
	KindQuery:          "query",
	KindSerialization:  "serialization",
	KindConfiguration:  "configuration",
	KindHeaderParsing:  "header parsing",
})

// String returns the lower-case name of the kind.
func (k ErrorKind) String() string {
	if name, ok := errorKindNames.Lookup(k); ok {
		return name
	}
	return strconv.Itoa(int(k))
}

// ParseErrorKind is the inverse of ErrorKind.String.
func ParseErrorKind(s string) (ErrorKind, error) {
	if k, ok := errorKindNames.RLookup(s); ok {
		return k, nil
	}
	return KindUnknown, fmt.Errorf("unknown error kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k ErrorKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *ErrorKind) UnmarshalText(text []byte) error {
	var err error
	*k, err = ParseErrorKind(string(text))
	return err
}

// Sentinels for errors.Is. Any *Error matches the sentinel of its kind.
var (
	ErrUnknown        = errors.New("firebolt: unknown error")
	ErrAuthentication = errors.New("firebolt: authentication error")
	ErrNetwork        = errors.New("firebolt: network error")
	ErrQuery          = errors.New("firebolt: query error")
	ErrSerialization  = errors.New("firebolt: serialization error")
	ErrConfiguration  = errors.New("firebolt: configuration error")
	ErrHeaderParsing  = errors.New("firebolt: header parsing error")
)

var kindSentinels = map[ErrorKind]error{
	KindUnknown:        ErrUnknown,
	KindAuthentication: ErrAuthentication,
	KindNetwork:        ErrNetwork,
	KindQuery:          ErrQuery,
	KindSerialization:  ErrSerialization,
	KindConfiguration:  ErrConfiguration,
	KindHeaderParsing:  ErrHeaderParsing,
}

// Error is the concrete error type returned by the client.
type Error struct {
	// Kind is the failure class.
	Kind ErrorKind

	// Message describes the failure.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func newError(kind ErrorKind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// Error implements the error interface.
// The format is "<kind> error: <message>[: <cause>]".
func (e *Error) Error() string {
	if e == nil {
		return "nil Error"
	}
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(" error: ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// ServerError is a non-2xx HTTP answer from one of the Firebolt endpoints.
type ServerError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Message is the server-reported message, or the raw body when the body
	// carries no recognisable message field.
	Message string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("%s (status code: %d)", e.Message, e.StatusCode)
}

// newServerError extracts the message from an error body. Firebolt services
// answer with one of {"message"}, {"error_description"}, {"error"} or
// {"errors":[{"description"}]}; anything else is kept verbatim.
func newServerError(statusCode int, body []byte) *ServerError {
	return &ServerError{StatusCode: statusCode, Message: extractServerMessage(body)}
}

func extractServerMessage(body []byte) string {
	var payload struct {
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Errors           []struct {
			Description string `json:"description"`
		} `json:"errors"`
	}
	raw := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err != nil {
		return raw
	}
	switch {
	case payload.Message != "":
		return payload.Message
	case payload.ErrorDescription != "":
		return payload.ErrorDescription
	case payload.Error != "":
		return payload.Error
	}
	var descriptions []string
	for _, e := range payload.Errors {
		if e.Description != "" {
			descriptions = append(descriptions, e.Description)
		}
	}
	if len(descriptions) > 0 {
		return strings.Join(descriptions, "; ")
	}
	return raw
}
