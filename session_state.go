package firebolt

import (
	"maps"
	"slices"
)

// Parameter keys that carry the database and engine selected with
// USE DATABASE / USE ENGINE. A session reset keeps them.
const (
	DatabaseParameter = "database"
	EngineParameter   = "engine"
)

// preservedOnReset lists the parameter keys that survive a session reset.
var preservedOnReset = []string{DatabaseParameter, EngineParameter}

// SessionState is the server-driven part of a session: the engine endpoint
// queries are sent to and the parameters sent along with them.
//
// SessionState is a value. Apply returns a new state and never modifies its
// receiver, so a client can swap in the result of a response atomically.
type SessionState struct {
	Endpoint   string
	Parameters map[string]string
}

// NewSessionState returns a state for endpoint with no parameters.
func NewSessionState(endpoint string) SessionState {
	return SessionState{Endpoint: endpoint, Parameters: map[string]string{}}
}

// Clone returns a deep copy of s.
func (s SessionState) Clone() SessionState {
	params := make(map[string]string, len(s.Parameters))
	maps.Copy(params, s.Parameters)
	return SessionState{Endpoint: s.Endpoint, Parameters: params}
}

// Apply returns the state that results from applying sig to s. Signals are
// applied in a fixed order: endpoint update, parameter merge, session reset,
// parameter removal.
func (s SessionState) Apply(sig HeaderSignals) SessionState {
	next := s.Clone()

	if sig.Endpoint != nil {
		next.Endpoint = sig.Endpoint.Endpoint
		maps.Copy(next.Parameters, sig.Endpoint.Parameters)
	}

	maps.Copy(next.Parameters, sig.UpdateParameters)

	if sig.ResetSession {
		for key := range next.Parameters {
			if !slices.Contains(preservedOnReset, key) {
				delete(next.Parameters, key)
			}
		}
	}

	for _, key := range sig.RemoveParameters {
		delete(next.Parameters, key)
	}

	return next
}

// Database returns the database selected for the session, if any.
func (s SessionState) Database() string {
	return s.Parameters[DatabaseParameter]
}

// Engine returns the engine selected for the session, if any.
func (s SessionState) Engine() string {
	return s.Parameters[EngineParameter]
}
