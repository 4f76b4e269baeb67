package firebolt

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// Firebolt session protocol headers. The server sets them on query responses
// to tell the client how its session changed.
const (
	UpdateEndpointHeader   = "Firebolt-Update-Endpoint"
	UpdateParametersHeader = "Firebolt-Update-Parameters"
	ResetSessionHeader     = "Firebolt-Reset-Session"
	RemoveParametersHeader = "Firebolt-Remove-Parameters"

	ProtocolVersionHeader = "Firebolt-Protocol-Version"
)

// EndpointUpdate is a parsed Firebolt-Update-Endpoint value. Parameters holds
// the query string carried by the new endpoint, if any.
type EndpointUpdate struct {
	Endpoint   string
	Parameters map[string]string
}

// HeaderSignals is the set of session changes carried by one response.
type HeaderSignals struct {
	Endpoint         *EndpointUpdate
	UpdateParameters map[string]string
	ResetSession     bool
	RemoveParameters []string
}

// Empty reports whether the response carried no session change at all.
func (s HeaderSignals) Empty() bool {
	return s.Endpoint == nil && len(s.UpdateParameters) == 0 && !s.ResetSession && len(s.RemoveParameters) == 0
}

// ParseHeaderSignals extracts the session signals from response headers.
// It either parses every signal or returns a HeaderParsing error and no
// signals, so a malformed response never leads to a partial update.
func ParseHeaderSignals(h http.Header) (HeaderSignals, error) {
	var sig HeaderSignals

	if values := h.Values(UpdateEndpointHeader); len(values) > 0 {
		// The last value wins when the header is repeated.
		update, err := parseEndpointUpdate(values[len(values)-1])
		if err != nil {
			return HeaderSignals{}, err
		}
		sig.Endpoint = update
	}

	for _, value := range h.Values(UpdateParametersHeader) {
		for _, pair := range splitList(value) {
			key, val, ok := strings.Cut(pair, "=")
			key = strings.TrimSpace(key)
			if !ok || key == "" {
				return HeaderSignals{}, newError(KindHeaderParsing, nil,
					"malformed %s entry %q: expected key=value", UpdateParametersHeader, pair)
			}
			if sig.UpdateParameters == nil {
				sig.UpdateParameters = make(map[string]string)
			}
			sig.UpdateParameters[key] = strings.TrimSpace(val)
		}
	}

	if len(h.Values(ResetSessionHeader)) > 0 {
		sig.ResetSession = true
	}

	for _, value := range h.Values(RemoveParametersHeader) {
		for _, key := range splitList(value) {
			if strings.Contains(key, "=") {
				return HeaderSignals{}, newError(KindHeaderParsing, nil,
					"malformed %s entry %q: expected a parameter name", RemoveParametersHeader, key)
			}
			sig.RemoveParameters = append(sig.RemoveParameters, key)
		}
	}

	return sig, nil
}

// parseEndpointUpdate reads a Firebolt-Update-Endpoint value.
func parseEndpointUpdate(value string) (*EndpointUpdate, error) {
	endpoint, params, err := splitEndpoint(value)
	if err != nil {
		return nil, newError(KindHeaderParsing, err, "malformed %s value %q", UpdateEndpointHeader, value)
	}
	return &EndpointUpdate{Endpoint: endpoint, Parameters: params}, nil
}

// splitEndpoint splits "host[/path][?k=v&...]" into the endpoint and the
// parameters carried by its query string.
func splitEndpoint(value string) (string, map[string]string, error) {
	endpoint, rawQuery, _ := strings.Cut(strings.TrimSpace(value), "?")
	if endpoint == "" {
		return "", nil, errors.New("empty endpoint")
	}
	if _, err := endpointURL(endpoint); err != nil {
		return "", nil, err
	}
	if rawQuery == "" {
		return endpoint, nil, nil
	}
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, err
	}
	params := make(map[string]string, len(query))
	for key := range query {
		params[key] = query.Get(key)
	}
	return endpoint, params, nil
}

// splitList splits a comma-separated header value, dropping empty entries.
func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
