package firebolt

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	ContentEncodingGzip = "gzip"

	// OutputFormat is the response format requested for every query.
	OutputFormat = "JSON_Compact"

	engineURLPath = "/web/v3/account/%s/engineUrl"
)

// Status is the connection stage a Client has reached.
type Status int8

const (
	StatusUnauthenticated Status = iota
	StatusAuthenticated
	StatusEndpointResolved
	StatusReady
)

func (s Status) String() string {
	switch s {
	case StatusUnauthenticated:
		return "Unauthenticated"
	case StatusAuthenticated:
		return "Authenticated"
	case StatusEndpointResolved:
		return "EndpointResolved"
	case StatusReady:
		return "Ready"
	default:
		return fmt.Sprintf("Status(%d)", int8(s))
	}
}

// RequestOption allows for functional overrides on individual requests.
type RequestOption func(*http.Request)

// Client runs queries against one Firebolt engine on behalf of one service
// account. It owns its token and session state and has no internal locking:
// a Client must not be used by more than one goroutine at a time. Separate
// clients share nothing and may run in parallel.
type Client struct {
	config         Config
	apiURL         *url.URL
	httpClient     *http.Client
	ownsHTTPClient bool
	tokens         *TokenStore
	auth           *AuthClient
	state          SessionState
	status         Status
	options        []RequestOption
	now            func() time.Time
}

// NewClient validates cfg, authenticates, resolves the account's engine
// endpoint and selects the configured database and engine. It returns either
// a ready client or an error, never a partially connected client.
func NewClient(ctx context.Context, cfg Config, options ...RequestOption) (*Client, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	apiURL, err := endpointURL(cfg.APIEndpoint)
	if err != nil {
		return nil, err
	}

	ownsHTTPClient := cfg.HTTPClient == nil
	if ownsHTTPClient {
		cfg.HTTPClient = newHTTPClient()
	}

	c := &Client{
		config:         cfg,
		apiURL:         apiURL,
		httpClient:     cfg.HTTPClient,
		ownsHTTPClient: ownsHTTPClient,
		tokens:         NewTokenStore(*cfg.TokenExpirySkew),
		options:        options,
		now:            time.Now,
	}
	c.auth, err = NewAuthClient(cfg.APIEndpoint, cfg.Credentials, c.tokens, cfg.HTTPClient)
	if err != nil {
		return nil, err
	}

	if err := c.connect(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// newHTTPClient returns a client with a private copy of the default
// transport, so closing its idle connections affects no one else.
func newHTTPClient() *http.Client {
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		return &http.Client{Transport: t.Clone()}
	}
	return &http.Client{Transport: &http.Transport{Proxy: http.ProxyFromEnvironment}}
}

func (c *Client) connect(ctx context.Context) error {
	if _, err := c.auth.Authenticate(ctx); err != nil {
		return err
	}
	c.status = StatusAuthenticated

	endpoint, params, err := c.resolveEngineURL(ctx)
	if err != nil {
		return err
	}
	c.state = NewSessionState(endpoint)
	maps.Copy(c.state.Parameters, params)
	c.status = StatusEndpointResolved
	log.Debug().Str("account", c.config.AccountName).Str("endpoint", endpoint).Msg("resolved engine endpoint")

	if c.config.DatabaseName != "" {
		if _, err := c.Query(ctx, "USE DATABASE "+quoteIdentifier(c.config.DatabaseName)); err != nil {
			return err
		}
	}
	if c.config.EngineName != "" {
		if _, err := c.Query(ctx, "USE ENGINE "+quoteIdentifier(c.config.EngineName)); err != nil {
			return err
		}
	}
	c.status = StatusReady
	return nil
}

// resolveEngineURL asks the API for the system engine URL of the account.
func (c *Client) resolveEngineURL(ctx context.Context) (string, map[string]string, error) {
	u := c.apiURL.ResolveReference(&url.URL{Path: fmt.Sprintf(engineURLPath, url.PathEscape(c.config.AccountName))})

	req, err := c.newRequest(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", nil, err
	}
	resp, body, err := c.do(req)
	if err != nil {
		return "", nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return "", nil, newError(KindAuthentication, newServerError(resp.StatusCode, body),
			"engine URL lookup for account %q was rejected", c.config.AccountName)
	case resp.StatusCode == http.StatusNotFound:
		return "", nil, newError(KindConfiguration, newServerError(resp.StatusCode, body),
			"account %q not found", c.config.AccountName)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", nil, newError(KindUnknown, newServerError(resp.StatusCode, body),
			"engine URL lookup for account %q failed", c.config.AccountName)
	}

	var payload struct {
		EngineURL string `json:"engineUrl"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", nil, newError(KindSerialization, err, "failed to decode engine URL response")
	}
	endpoint, params, err := splitEndpoint(payload.EngineURL)
	if err != nil {
		return "", nil, newError(KindSerialization, err, "invalid engine URL %q", payload.EngineURL)
	}
	return endpoint, params, nil
}

// Query runs one SQL statement. If the engine rejects the access token, the
// client authenticates once more and replays the statement once. A token
// refreshed because it had expired is not refreshed again in the same call.
//
// Session headers on a successful response are applied before Query returns.
// When they cannot be parsed the session is left unchanged and Query returns
// the result set together with a HeaderParsing error.
func (c *Client) Query(ctx context.Context, sql string) (*ResultSet, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, newError(KindQuery, nil, "empty statement")
	}

	// One call authenticates at most once: either before sending an expired
	// token or after a 401, never both.
	refreshed := false
	if c.tokens.IsExpired(c.now()) {
		log.Debug().Msg("access token expired, re-authenticating before query")
		if _, err := c.auth.Authenticate(ctx); err != nil {
			return nil, err
		}
		refreshed = true
	}

	resp, body, err := c.send(ctx, sql)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && refreshed {
		return nil, newError(KindAuthentication, newServerError(resp.StatusCode, body),
			"engine rejected a freshly issued access token")
	}
	if resp.StatusCode == http.StatusUnauthorized {
		log.Debug().Msg("engine rejected access token, re-authenticating once")
		if _, err := c.auth.Authenticate(ctx); err != nil {
			return nil, err
		}
		resp, body, err = c.send(ctx, sql)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, newError(KindAuthentication, newServerError(resp.StatusCode, body),
				"engine rejected a freshly issued access token")
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newError(KindQuery, newServerError(resp.StatusCode, body), "query failed")
	}

	headerErr := c.applySessionHeaders(resp.Header)

	rs, err := parseResultSet(body)
	if err != nil {
		return nil, err
	}
	if headerErr != nil {
		return rs, headerErr
	}
	return rs, nil
}

// send posts sql to the current engine endpoint.
func (c *Client) send(ctx context.Context, sql string) (*http.Response, []byte, error) {
	u, err := endpointURL(c.state.Endpoint)
	if err != nil {
		return nil, nil, err
	}
	q := u.Query()
	for key, val := range c.state.Parameters {
		q.Set(key, val)
	}
	q.Set("output_format", OutputFormat)
	u.RawQuery = q.Encode()

	req, err := c.newRequest(ctx, http.MethodPost, u.String(), strings.NewReader(sql))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "text/plain")
	return c.do(req)
}

// newRequest builds an authorized request carrying the client headers.
func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	tok, ok := c.tokens.Current()
	if !ok {
		return nil, newError(KindAuthentication, nil, "no access token")
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, newError(KindConfiguration, err, "failed to build request for %s", rawURL)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	req.Header.Set("User-Agent", UserAgent())
	req.Header.Set(ProtocolVersionHeader, ProtocolVersion)
	req.Header.Set("Accept-Encoding", ContentEncodingGzip)

	for _, opt := range c.options {
		opt(req)
	}
	return req, nil
}

// do sends req and reads the whole body. Transport failures, including
// context cancellation and deadlines, are Network errors.
func (c *Client) do(req *http.Request) (*http.Response, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, newError(KindNetwork, err, "%s %s failed", req.Method, req.URL.Redacted())
	}
	body, err := readResponseBody(resp)
	if err != nil {
		return nil, nil, newError(KindNetwork, err, "failed to read response from %s", req.URL.Redacted())
	}
	return resp, body, nil
}

// applySessionHeaders swaps in the session state described by h. Either all
// of h is applied or none of it.
func (c *Client) applySessionHeaders(h http.Header) error {
	sig, err := ParseHeaderSignals(h)
	if err != nil {
		log.Debug().Err(err).Msg("ignoring malformed session headers")
		return err
	}
	if sig.Empty() {
		return nil
	}

	next := c.state.Apply(sig)
	if next.Endpoint != c.state.Endpoint {
		log.Debug().Str("from", c.state.Endpoint).Str("to", next.Endpoint).Msg("engine endpoint changed")
	}
	if sig.ResetSession {
		log.Debug().Msg("session reset by server")
	}
	c.state = next
	log.Debug().Int("parameters", len(next.Parameters)).Msg("session state updated")
	return nil
}

func readResponseBody(resp *http.Response) (body []byte, err error) {
	defer func() {
		closeErr := resp.Body.Close()
		if err == nil {
			err = closeErr
		}
	}()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == ContentEncodingGzip {
		gz, gzErr := gzip.NewReader(resp.Body)
		if gzErr != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", gzErr)
		}
		defer func() {
			if cErr := gz.Close(); cErr != nil {
				log.Debug().Err(cErr).Msg("failed to close gzip reader")
			}
		}()
		reader = gz
	}

	var buf bytes.Buffer
	if _, err = buf.ReadFrom(reader); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Status reports how far the client got through its connection sequence.
func (c *Client) Status() Status {
	return c.status
}

// Endpoint returns the engine endpoint queries are currently sent to.
func (c *Client) Endpoint() string {
	return c.state.Endpoint
}

// Parameters returns a copy of the current session parameters.
func (c *Client) Parameters() map[string]string {
	return c.state.Clone().Parameters
}

// State returns a copy of the current session state.
func (c *Client) State() SessionState {
	return c.state.Clone()
}

// Config returns the normalized configuration the client was built with.
func (c *Client) Config() Config {
	return c.config
}

// Close drops the access token. Idle connections are released only when the
// transport was created by NewClient; a caller-supplied HTTPClient is left
// to its owner.
func (c *Client) Close() error {
	if c.ownsHTTPClient {
		c.httpClient.CloseIdleConnections()
	}
	c.tokens.Clear()
	return nil
}
