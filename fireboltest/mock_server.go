package fireboltest

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethanyzhang/firebolt-go"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Default identity of the mock service.
const (
	DefaultClientID     = "mock-client-id"
	DefaultClientSecret = "mock-client-secret"
	DefaultAccount      = "mock_account"

	// APIEndpoint is the API host clients should be configured with. All
	// hosts below resolve to the mock server through HTTPClient.
	APIEndpoint    = "http://api.mock.firebolt.test"
	SystemEngine   = "system.mock.firebolt.test"
	engineHostTmpl = "%s.engine.mock.firebolt.test"
)

var (
	useDatabasePattern = regexp.MustCompile(`(?i)^\s*USE\s+DATABASE\s+"?([^"]+)"?\s*;?\s*$`)
	useEnginePattern   = regexp.MustCompile(`(?i)^\s*USE\s+ENGINE\s+"?([^"]+)"?\s*;?\s*$`)
)

// MockQueryTemplate is the canned response for one SQL string.
type MockQueryTemplate struct {
	SQL        string               // Exact statement the template answers.
	Columns    []firebolt.Column    // Result metadata.
	Data       [][]any              // Rows, marshalled as JSON arrays.
	Statistics *firebolt.Statistics // Optional statistics object.
	Headers    http.Header          // Extra response headers, e.g. session updates.
	StatusCode int                  // Zero means 200.
	Body       string               // Raw body; overrides Columns and Data.
	Errors     []string             // Reported in an "errors" array on a 200.
	Gzip       bool                 // Compress the body.
	Latency    time.Duration        // Delay before responding.
}

// ReceivedQuery is a statement as the engine saw it.
type ReceivedQuery struct {
	SQL    string
	Host   string
	Params url.Values
	Header http.Header
}

// MockFireboltServer simulates the Firebolt identity service, the account
// API and the engines behind it on a single httptest server. Requests are
// routed by their Host header: "id.*" hosts serve tokens, "api.*" hosts serve
// engine URL lookups and every other host is treated as an engine.
type MockFireboltServer struct {
	server *httptest.Server

	clientID     string
	clientSecret string
	account      string
	signingKey   []byte

	mu        sync.Mutex
	templates map[string]*MockQueryTemplate
	queries   []ReceivedQuery
	revoked   map[string]bool
	tokenTTL  time.Duration

	omitExpiresIn  atomic.Bool
	rejectNext     atomic.Int64
	authCalls      atomic.Int64
	resolveCalls   atomic.Int64
	engineRequests atomic.Int64
}

// NewMockFireboltServer starts a mock service that accepts the default
// credentials for DefaultAccount.
func NewMockFireboltServer() *MockFireboltServer {
	mock := &MockFireboltServer{
		clientID:     DefaultClientID,
		clientSecret: DefaultClientSecret,
		account:      DefaultAccount,
		signingKey:   []byte(uuid.NewString()),
		templates:    make(map[string]*MockQueryTemplate),
		revoked:      make(map[string]bool),
		tokenTTL:     time.Hour,
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.route))
	return mock
}

func (m *MockFireboltServer) route(w http.ResponseWriter, r *http.Request) {
	host := r.Host
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	switch {
	case strings.HasPrefix(host, "id."):
		m.handleToken(w, r)
	case strings.HasPrefix(host, "api."):
		m.handleEngineURL(w, r)
	default:
		m.handleQuery(w, r)
	}
}

// --- Configuration ---

// AddQuery registers a template, replacing any previous one for the same SQL.
func (m *MockFireboltServer) AddQuery(tmpl *MockQueryTemplate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[tmpl.SQL] = tmpl
}

// SetTokenTTL changes the lifetime of tokens issued from now on.
func (m *MockFireboltServer) SetTokenTTL(ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokenTTL = ttl
}

// OmitExpiresIn makes the token endpoint leave expires_in out of its
// responses. The lifetime is then only available from the JWT exp claim.
func (m *MockFireboltServer) OmitExpiresIn(omit bool) {
	m.omitExpiresIn.Store(omit)
}

// RevokeTokens invalidates every token issued so far. The next engine
// request made with one of them receives 401.
func (m *MockFireboltServer) RevokeTokens() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.revoked {
		m.revoked[id] = true
	}
}

// RejectNextQueries makes the engine answer the next n requests with 401,
// regardless of the token presented.
func (m *MockFireboltServer) RejectNextQueries(n int) {
	m.rejectNext.Store(int64(n))
}

// --- Observation ---

// AuthCalls returns how many token requests were received.
func (m *MockFireboltServer) AuthCalls() int { return int(m.authCalls.Load()) }

// ResolveCalls returns how many engine URL lookups were received.
func (m *MockFireboltServer) ResolveCalls() int { return int(m.resolveCalls.Load()) }

// EngineRequests returns how many requests reached an engine, rejected or not.
func (m *MockFireboltServer) EngineRequests() int { return int(m.engineRequests.Load()) }

// Queries returns the statements the engines accepted, in arrival order.
func (m *MockFireboltServer) Queries() []ReceivedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ReceivedQuery(nil), m.queries...)
}

// EngineHost returns the host the mock assigns to the named engine.
func EngineHost(engine string) string {
	return fmt.Sprintf(engineHostTmpl, engine)
}

// --- Identity service ---

func (m *MockFireboltServer) handleToken(w http.ResponseWriter, r *http.Request) {
	m.authCalls.Add(1)

	if r.Method != http.MethodPost || r.URL.Path != "/oauth/token" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not_found"})
		return
	}
	if err := r.ParseForm(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_request"})
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" || r.PostForm.Get("audience") != firebolt.Audience {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":             "invalid_request",
			"error_description": "unsupported grant type or audience",
		})
		return
	}
	if r.PostForm.Get("client_id") != m.clientID || r.PostForm.Get("client_secret") != m.clientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":             "access_denied",
			"error_description": "Wrong email or password.",
		})
		return
	}

	m.mu.Lock()
	ttl := m.tokenTTL
	m.mu.Unlock()

	token, err := m.mintToken(ttl)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	resp := map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"scope":        "offline_access",
	}
	if !m.omitExpiresIn.Load() {
		resp["expires_in"] = int64(ttl / time.Second)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (m *MockFireboltServer) mintToken(ttl time.Duration) (string, error) {
	now := time.Now()
	id := uuid.NewString()
	claims := jwt.RegisteredClaims{
		ID:        id,
		Subject:   m.clientID,
		Audience:  jwt.ClaimStrings{firebolt.Audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.signingKey)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	m.revoked[id] = false
	m.mu.Unlock()
	return signed, nil
}

// authorized reports whether r carries a live token issued by this server.
func (m *MockFireboltServer) authorized(r *http.Request) bool {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	revoked, known := m.revoked[claims.ID]
	return known && !revoked
}

// --- Account API ---

func (m *MockFireboltServer) handleEngineURL(w http.ResponseWriter, r *http.Request) {
	m.resolveCalls.Add(1)

	account, ok := strings.CutPrefix(r.URL.Path, "/web/v3/account/")
	account, ok2 := strings.CutSuffix(account, "/engineUrl")
	if r.Method != http.MethodGet || !ok || !ok2 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "route not found"})
		return
	}
	if !m.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
		return
	}
	if account != m.account {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"message": fmt.Sprintf("Account '%s' does not exist in this organization or is not authorized.", account),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"engineUrl": SystemEngine + "?account_id=" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(account)).String()})
}

// --- Engines ---

func (m *MockFireboltServer) handleQuery(w http.ResponseWriter, r *http.Request) {
	m.engineRequests.Add(1)

	if n := m.rejectNext.Load(); n > 0 && m.rejectNext.CompareAndSwap(n, n-1) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "token expired"})
		return
	}
	if !m.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
		return
	}

	body, _ := io.ReadAll(r.Body)
	sql := string(body)

	m.mu.Lock()
	m.queries = append(m.queries, ReceivedQuery{
		SQL:    sql,
		Host:   r.Host,
		Params: r.URL.Query(),
		Header: r.Header.Clone(),
	})
	tmpl, exists := m.templates[sql]
	m.mu.Unlock()

	if !exists {
		tmpl = builtinTemplate(sql)
	}

	if tmpl.Latency > 0 {
		select {
		case <-time.After(tmpl.Latency):
		case <-r.Context().Done():
			return
		}
	}

	m.sendQueryResponse(w, tmpl)
}

// builtinTemplate answers statements that have no registered template.
// USE statements update the session the way Firebolt does.
func builtinTemplate(sql string) *MockQueryTemplate {
	if match := useDatabasePattern.FindStringSubmatch(sql); match != nil {
		return &MockQueryTemplate{
			SQL:     sql,
			Headers: http.Header{firebolt.UpdateParametersHeader: {firebolt.DatabaseParameter + "=" + match[1]}},
		}
	}
	if match := useEnginePattern.FindStringSubmatch(sql); match != nil {
		return &MockQueryTemplate{
			SQL: sql,
			Headers: http.Header{firebolt.UpdateEndpointHeader: {
				EngineHost(match[1]) + "?" + firebolt.EngineParameter + "=" + url.QueryEscape(match[1]),
			}},
		}
	}
	return &MockQueryTemplate{
		SQL:     sql,
		Columns: []firebolt.Column{{Name: "result", Type: "text"}},
		Data:    [][]any{{"Query template not found; default success"}},
	}
}

func (m *MockFireboltServer) sendQueryResponse(w http.ResponseWriter, tmpl *MockQueryTemplate) {
	var payload []byte
	switch {
	case tmpl.Body != "":
		payload = []byte(tmpl.Body)
	case len(tmpl.Errors) > 0:
		errs := make([]map[string]string, len(tmpl.Errors))
		for i, e := range tmpl.Errors {
			errs[i] = map[string]string{"description": e}
		}
		payload, _ = json.Marshal(map[string]any{"errors": errs})
	case tmpl.Columns != nil:
		resp := map[string]any{
			"meta": tmpl.Columns,
			"data": nonNilRows(tmpl.Data),
			"rows": len(tmpl.Data),
		}
		if tmpl.Statistics != nil {
			resp["statistics"] = tmpl.Statistics
		}
		payload, _ = json.Marshal(resp)
	}

	for key, values := range tmpl.Headers {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}

	if tmpl.Gzip && len(payload) > 0 {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		_, _ = gz.Write(payload)
		_ = gz.Close()
		payload = buf.Bytes()
		w.Header().Set("Content-Encoding", "gzip")
	}

	status := tmpl.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	if len(payload) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func nonNilRows(rows [][]any) [][]any {
	if rows == nil {
		return [][]any{}
	}
	return rows
}

// writeJSON encodes v as JSON and writes it to the response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

// --- Client wiring ---

// redirectTransport sends every request to the mock server while keeping
// the original host in the Host header, so routing still sees it.
type redirectTransport struct {
	target *url.URL
	base   http.RoundTripper
}

func (t *redirectTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())
	out.Host = req.URL.Host
	out.URL.Scheme = t.target.Scheme
	out.URL.Host = t.target.Host
	return t.base.RoundTrip(out)
}

// HTTPClient returns a client that reaches every mock host, whatever the
// scheme or hostname of the request.
func (m *MockFireboltServer) HTTPClient() *http.Client {
	target, _ := url.Parse(m.server.URL)
	return &http.Client{Transport: &redirectTransport{target: target, base: m.server.Client().Transport}}
}

// Config returns a client configuration for the default account.
func (m *MockFireboltServer) Config() firebolt.Config {
	return firebolt.Config{
		Credentials: firebolt.Credentials{ClientID: m.clientID, ClientSecret: m.clientSecret},
		AccountName: m.account,
		APIEndpoint: APIEndpoint,
		HTTPClient:  m.HTTPClient(),
	}
}

// DSN returns a connection string for the default account. The string has no
// room for HTTPClient, so database/sql tests open the mock through
// firebolt.NewConnector(m.Config()) instead.
func (m *MockFireboltServer) DSN(database, engine string) string {
	cfg := m.Config()
	cfg.DatabaseName = database
	cfg.EngineName = engine
	return cfg.FormatDSN()
}

// URL returns the base URL of the mock server.
func (m *MockFireboltServer) URL() string { return m.server.URL }

// Close shuts down the mock server.
func (m *MockFireboltServer) Close() { m.server.Close() }
