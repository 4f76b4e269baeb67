package firebolt

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/xhit/go-str2duration/v2"
)

const (
	// DefaultAPIEndpoint is the public Firebolt API host.
	DefaultAPIEndpoint = "api.app.firebolt.io"

	// APIEndpointEnv overrides DefaultAPIEndpoint when no endpoint is set
	// explicitly.
	APIEndpointEnv = "FIREBOLT_API_ENDPOINT"
)

// Config holds everything a Client needs before it can connect.
type Config struct {
	Credentials  Credentials
	AccountName  string
	DatabaseName string
	EngineName   string

	// APIEndpoint is a host or URL. Empty means FIREBOLT_API_ENDPOINT or
	// DefaultAPIEndpoint.
	APIEndpoint string

	// TokenExpirySkew is subtracted from every token lifetime. Nil means
	// DefaultTokenExpirySkew.
	TokenExpirySkew *time.Duration

	// HTTPClient is used for all requests. Nil gives every Client a
	// transport of its own, released by Client.Close. A supplied client is
	// never closed.
	HTTPClient *http.Client
}

// normalize fills in defaults and checks the configuration. It does no I/O.
func (cfg Config) normalize() (Config, error) {
	if err := cfg.Credentials.validate(); err != nil {
		return cfg, err
	}
	if strings.TrimSpace(cfg.AccountName) == "" {
		return cfg, newError(KindConfiguration, nil, "account name is required")
	}

	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = os.Getenv(APIEndpointEnv)
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = DefaultAPIEndpoint
	}
	if _, err := TokenURL(cfg.APIEndpoint); err != nil {
		return cfg, err
	}

	if cfg.TokenExpirySkew == nil {
		skew := DefaultTokenExpirySkew
		cfg.TokenExpirySkew = &skew
	} else if *cfg.TokenExpirySkew < 0 {
		return cfg, newError(KindConfiguration, nil, "token expiry skew must not be negative, got %s", *cfg.TokenExpirySkew)
	}

	return cfg, nil
}

// Builder assembles a Config through chained setters.
//
//	client, err := firebolt.NewBuilder().
//		Credentials(id, secret).
//		Account("my_account").
//		Database("db").
//		Engine("engine").
//		Build(ctx)
type Builder struct {
	cfg Config
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) Credentials(clientID, clientSecret string) *Builder {
	b.cfg.Credentials = Credentials{ClientID: clientID, ClientSecret: clientSecret}
	return b
}

func (b *Builder) Account(name string) *Builder {
	b.cfg.AccountName = name
	return b
}

func (b *Builder) Database(name string) *Builder {
	b.cfg.DatabaseName = name
	return b
}

func (b *Builder) Engine(name string) *Builder {
	b.cfg.EngineName = name
	return b
}

func (b *Builder) APIEndpoint(endpoint string) *Builder {
	b.cfg.APIEndpoint = endpoint
	return b
}

func (b *Builder) TokenExpirySkew(skew time.Duration) *Builder {
	b.cfg.TokenExpirySkew = &skew
	return b
}

func (b *Builder) HTTPClient(c *http.Client) *Builder {
	b.cfg.HTTPClient = c
	return b
}

// Config returns the validated configuration with defaults applied.
func (b *Builder) Config() (Config, error) {
	return b.cfg.normalize()
}

// Build connects a new Client. See NewClient.
func (b *Builder) Build(ctx context.Context) (*Client, error) {
	return NewClient(ctx, b.cfg)
}

// ParseDSN reads a connection string of the form
//
//	firebolt://[client_id:client_secret@][database][/engine]?account_name=...
//
// The database may also be given as the first path element
// (firebolt:///database). Recognised query parameters are account_name,
// client_id, client_secret, database, engine, api_endpoint and
// token_expiry_skew (e.g. "30s", "1m").
func ParseDSN(dsn string) (Config, error) {
	var cfg Config

	u, err := url.Parse(dsn)
	if err != nil {
		return cfg, newError(KindConfiguration, err, "invalid DSN")
	}
	if u.Scheme != "firebolt" {
		return cfg, newError(KindConfiguration, nil, "invalid DSN scheme %q, expected firebolt", u.Scheme)
	}

	if u.User != nil {
		cfg.Credentials.ClientID = u.User.Username()
		cfg.Credentials.ClientSecret, _ = u.User.Password()
	}

	segments := splitPath(u.Path)
	if u.Host == "" && len(segments) > 0 {
		u.Host, segments = segments[0], segments[1:]
	}
	cfg.DatabaseName = u.Host
	if len(segments) > 1 {
		return cfg, newError(KindConfiguration, nil, "invalid DSN path %q", u.Path)
	}
	if len(segments) == 1 {
		cfg.EngineName = segments[0]
	}

	for key, values := range u.Query() {
		val := values[len(values)-1]
		switch key {
		case "account_name":
			cfg.AccountName = val
		case "client_id":
			cfg.Credentials.ClientID = val
		case "client_secret":
			cfg.Credentials.ClientSecret = val
		case "database":
			cfg.DatabaseName = val
		case "engine":
			cfg.EngineName = val
		case "api_endpoint":
			cfg.APIEndpoint = val
		case "token_expiry_skew":
			skew, err := str2duration.ParseDuration(val)
			if err != nil {
				return cfg, newError(KindConfiguration, err, "invalid token_expiry_skew %q", val)
			}
			cfg.TokenExpirySkew = &skew
		default:
			return cfg, newError(KindConfiguration, nil, "unknown DSN parameter %q", key)
		}
	}
	return cfg, nil
}

// FormatDSN is the inverse of ParseDSN. Empty fields are omitted.
func (cfg Config) FormatDSN() string {
	u := url.URL{Scheme: "firebolt", Path: "/" + cfg.DatabaseName}
	q := url.Values{}
	set := func(key, val string) {
		if val != "" {
			q.Set(key, val)
		}
	}
	set("account_name", cfg.AccountName)
	set("client_id", cfg.Credentials.ClientID)
	set("client_secret", cfg.Credentials.ClientSecret)
	set("engine", cfg.EngineName)
	set("api_endpoint", cfg.APIEndpoint)
	if cfg.TokenExpirySkew != nil {
		set("token_expiry_skew", cfg.TokenExpirySkew.String())
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func splitPath(p string) []string {
	var out []string
	for _, seg := range strings.Split(p, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}
