package firebolt

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Identity service constants. The grant type is implied by the client
// credentials flow.
const (
	Audience  = "https://api.firebolt.io"
	tokenPath = "/oauth/token"
)

// Credentials identify a Firebolt service account.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// validate checks that both halves of the pair are set.
func (c Credentials) validate() error {
	if c.ClientID == "" {
		return newError(KindConfiguration, nil, "client ID is required")
	}
	if c.ClientSecret == "" {
		return newError(KindConfiguration, nil, "client secret is required")
	}
	return nil
}

// AuthClient acquires access tokens from the identity service that belongs
// to an API endpoint and records them in a TokenStore.
type AuthClient struct {
	credentials Credentials
	tokenURL    string
	httpClient  *http.Client
	store       *TokenStore
}

// NewAuthClient derives the token URL from apiEndpoint and returns a client
// that stores every token it obtains in store.
func NewAuthClient(apiEndpoint string, creds Credentials, store *TokenStore, httpClient *http.Client) (*AuthClient, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, newError(KindConfiguration, nil, "token store is required")
	}
	tokenURL, err := TokenURL(apiEndpoint)
	if err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AuthClient{
		credentials: creds,
		tokenURL:    tokenURL,
		httpClient:  withUserAgent(httpClient),
		store:       store,
	}, nil
}

// TokenURL maps an API endpoint to its identity service token URL by
// replacing the leading "api" host label with "id":
//
//	api.app.firebolt.io -> https://id.app.firebolt.io/oauth/token
//
// An explicit scheme on apiEndpoint is kept; otherwise https is used.
func TokenURL(apiEndpoint string) (string, error) {
	u, err := endpointURL(apiEndpoint)
	if err != nil {
		return "", err
	}
	label, rest, ok := strings.Cut(u.Hostname(), ".")
	if !ok || label != "api" || rest == "" {
		return "", newError(KindConfiguration, nil,
			"invalid API endpoint %q: expected api.<env>.<domain>", apiEndpoint)
	}
	host := "id." + rest
	if port := u.Port(); port != "" {
		host += ":" + port
	}
	return (&url.URL{Scheme: u.Scheme, Host: host, Path: tokenPath}).String(), nil
}

// endpointURL parses a host or URL, defaulting the scheme to https.
func endpointURL(endpoint string) (*url.URL, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, newError(KindConfiguration, nil, "endpoint is empty")
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "https://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, newError(KindConfiguration, err, "invalid endpoint %q", endpoint)
	}
	if u.Host == "" {
		return nil, newError(KindConfiguration, nil, "missing host in endpoint %q", endpoint)
	}
	return u, nil
}

// Authenticate runs the client credentials flow once and stores the result.
// It never retries.
func (a *AuthClient) Authenticate(ctx context.Context) (Token, error) {
	cfg := &clientcredentials.Config{
		ClientID:       a.credentials.ClientID,
		ClientSecret:   a.credentials.ClientSecret,
		TokenURL:       a.tokenURL,
		EndpointParams: url.Values{"audience": {Audience}},
		AuthStyle:      oauth2.AuthStyleInParams,
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	tok, err := cfg.Token(ctx)
	if err != nil {
		return Token{}, classifyTokenError(err)
	}

	ttl, err := tokenLifetime(tok, time.Now())
	if err != nil {
		return Token{}, err
	}

	stored := a.store.Store(tok.AccessToken, ttl)
	log.Debug().Str("token_url", a.tokenURL).Int64("ttl_seconds", ttl).Time("expires_at", stored.ExpiresAt).
		Msg("acquired access token")
	return stored, nil
}

// classifyTokenError separates server rejections from transport failures.
func classifyTokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		return newError(KindAuthentication, newServerError(status, retrieveErr.Body), "token request rejected")
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return newError(KindNetwork, err, "token request failed")
	}
	return newError(KindAuthentication, err, "malformed token response")
}

// tokenLifetime reads expires_in from the token response. Identity services
// that omit it still issue JWTs, so the exp claim is the fallback.
func tokenLifetime(tok *oauth2.Token, now time.Time) (int64, error) {
	if tok.ExpiresIn > 0 {
		return tok.ExpiresIn, nil
	}
	if ttl, ok := numericExtra(tok.Extra("expires_in")); ok && ttl > 0 {
		return ttl, nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			if ttl := int64(exp.Sub(now).Seconds()); ttl > 0 {
				return ttl, nil
			}
		}
	}
	return 0, newError(KindAuthentication, nil, "malformed token response: missing expires_in")
}

func numericExtra(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// userAgentTransport stamps the library User-Agent on requests it does not
// build itself, such as the oauth2 token exchange.
type userAgentTransport struct {
	base http.RoundTripper
}

func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent())
	}
	return t.base.RoundTrip(req)
}

func withUserAgent(c *http.Client) *http.Client {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *c
	wrapped.Transport = &userAgentTransport{base: base}
	return &wrapped
}
