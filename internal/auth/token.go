package auth

import (
	"sync"
	"time"

	"github.com/fivetwenty-io/capi-facade/internal/constants"
	"golang.org/x/oauth2"
)

// TokenExpiryBuffer is how long before its expiry a token stops being used.
const TokenExpiryBuffer = constants.TokenExpiryBuffer

// Token is an OAuth access token as returned by the token endpoint.
type Token struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresIn    int       `json:"expires_in,omitempty"`
	Scope        string    `json:"scope,omitempty"`
	ExpiresAt    time.Time `json:"-"`
}

// Valid reports whether the token can be sent. A zero ExpiresAt means the
// expiry is unknown and the token is used until the platform rejects it.
func (t *Token) Valid() bool {
	if t == nil || t.AccessToken == "" {
		return false
	}

	if t.ExpiresAt.IsZero() {
		return true
	}

	return time.Now().Add(TokenExpiryBuffer).Before(t.ExpiresAt)
}

// OAuth2 converts the token for use with golang.org/x/oauth2.
func (t *Token) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.ExpiresAt,
		ExpiresIn:    int64(t.ExpiresIn),
	}
}

func (t *Token) String() string {
	return "auth.Token{type=" + t.TokenType + ", access=[REDACTED], expires=" + t.ExpiresAt.Format(time.RFC3339) + "}"
}

// TokenStore holds the current token. Safe for concurrent use.
type TokenStore struct {
	mu    sync.RWMutex
	token *Token
}

// NewTokenStore creates an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Get returns a copy of the current token, or nil.
func (s *TokenStore) Get() *Token {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.token == nil {
		return nil
	}

	token := *s.token

	return &token
}

// Set replaces the current token.
func (s *TokenStore) Set(token *Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token == nil {
		s.token = nil

		return
	}

	stored := *token
	s.token = &stored
}

// Clear drops the current token.
func (s *TokenStore) Clear() {
	s.Set(nil)
}
