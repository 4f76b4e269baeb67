package firebolt

import (
	"time"
)

// DefaultTokenExpirySkew is subtracted from the server-reported token
// lifetime so a token is dropped slightly before the server stops honouring it.
const DefaultTokenExpirySkew = 5 * time.Second

// Token is an OAuth2 bearer token and the instant after which it must not be sent.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// TokenStore holds the client's current token. It performs no I/O.
// A TokenStore is not safe for concurrent use; it belongs to one Client.
type TokenStore struct {
	token *Token
	skew  time.Duration
	now   func() time.Time
}

// NewTokenStore returns an empty store that shortens every token lifetime by skew.
func NewTokenStore(skew time.Duration) *TokenStore {
	return &TokenStore{skew: skew, now: time.Now}
}

// Current returns the stored token, if any. It does not check expiry.
func (s *TokenStore) Current() (Token, bool) {
	if s.token == nil {
		return Token{}, false
	}
	return *s.token, true
}

// Store replaces the current token. The expiry instant is computed now as
// acquiredAt + ttlSeconds - skew.
func (s *TokenStore) Store(accessToken string, ttlSeconds int64) Token {
	acquiredAt := s.now()
	t := &Token{
		AccessToken: accessToken,
		ExpiresAt:   acquiredAt.Add(time.Duration(ttlSeconds)*time.Second - s.skew),
	}
	s.token = t
	return *t
}

// IsExpired reports whether the token must be refreshed before use at now.
// An empty store is always expired.
func (s *TokenStore) IsExpired(now time.Time) bool {
	if s.token == nil {
		return true
	}
	return !now.Before(s.token.ExpiresAt)
}

// Clear drops the current token.
func (s *TokenStore) Clear() {
	s.token = nil
}
