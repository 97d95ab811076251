package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fivetwenty-io/capi-facade/internal/constants"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const grantKey = "token"

type grantMode int

const (
	// grantIfInvalid reuses a token another caller obtained while this one waited.
	grantIfInvalid grantMode = iota
	// grantForce always contacts the token endpoint.
	grantForce
	// grantLogin is a forced grant that prefers the configured identity over a
	// remembered refresh token.
	grantLogin
	// grantReplace is a forced grant unless the rejected token was already replaced.
	grantReplace
)

// Option configures an OAuth2TokenManager.
type Option func(*OAuth2TokenManager)

// WithHTTPClient sets the client used to reach the token endpoint.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(m *OAuth2TokenManager) {
		if httpClient != nil {
			m.httpClient = httpClient
		}
	}
}

// WithLogger sets the logger. Tokens and secrets are never logged.
func WithLogger(logger capi.Logger) Option {
	return func(m *OAuth2TokenManager) {
		m.logger = logger
	}
}

// WithTokenListener registers fn to receive every newly granted token.
func WithTokenListener(fn func(*Token)) Option {
	return func(m *OAuth2TokenManager) {
		m.listener = fn
	}
}

// OAuth2TokenManager obtains and caches access tokens. Concurrent callers that
// need a new token share a single request to the token endpoint.
type OAuth2TokenManager struct {
	config     *OAuth2Config
	store      *TokenStore
	httpClient *http.Client
	logger     capi.Logger
	listener   func(*Token)
	group      singleflight.Group

	mu           sync.Mutex
	refreshToken string
	// generation is bumped by Invalidate; grants started earlier are discarded.
	generation uint64
}

// NewOAuth2TokenManager creates a manager from a copy of config.
func NewOAuth2TokenManager(config *OAuth2Config, opts ...Option) *OAuth2TokenManager {
	if config == nil {
		config = &OAuth2Config{}
	}

	manager := &OAuth2TokenManager{
		config:       config.clone(),
		store:        NewTokenStore(),
		httpClient:   &http.Client{Timeout: constants.DefaultHTTPTimeout},
		refreshToken: config.RefreshToken,
	}

	for _, opt := range opts {
		opt(manager)
	}

	if config.AccessToken != "" {
		manager.store.Set(&Token{
			AccessToken:  config.AccessToken,
			TokenType:    "bearer",
			RefreshToken: config.RefreshToken,
		})
	}

	return manager
}

// GetToken returns a valid access token, obtaining a new one if needed.
func (m *OAuth2TokenManager) GetToken(ctx context.Context) (string, error) {
	if token := m.store.Get(); token.Valid() {
		return token.AccessToken, nil
	}

	token, err := m.grant(ctx, grantIfInvalid, "")
	if err != nil {
		return "", err
	}

	return token.AccessToken, nil
}

// RefreshToken obtains a new token even if the current one looks valid.
func (m *OAuth2TokenManager) RefreshToken(ctx context.Context) error {
	_, err := m.grant(ctx, grantForce, "")

	return err
}

// RefreshRejected obtains a new token after the platform rejected the access
// token rejected. When another caller has already replaced it, the current
// token is kept and no grant is made.
func (m *OAuth2TokenManager) RefreshRejected(ctx context.Context, rejected string) error {
	_, err := m.grant(ctx, grantReplace, rejected)

	return err
}

// Login performs a fresh grant with the configured identity and returns the token.
func (m *OAuth2TokenManager) Login(ctx context.Context) (*Token, error) {
	return m.grant(ctx, grantLogin, "")
}

// Invalidate discards the current token and any refresh token. A grant still
// in flight is discarded when it completes. Calling it repeatedly is harmless.
func (m *OAuth2TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.generation++
	m.refreshToken = ""
	m.store.Clear()
}

// SetToken manually sets the access token.
func (m *OAuth2TokenManager) SetToken(token string, expiresAt time.Time) {
	m.store.Set(&Token{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   expiresAt,
	})
}

// CurrentToken returns a copy of the cached token without contacting the server.
func (m *OAuth2TokenManager) CurrentToken() *Token {
	return m.store.Get()
}

// TokenSource exposes the manager as an oauth2.TokenSource bound to ctx.
func (m *OAuth2TokenManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managerTokenSource{ctx: ctx, manager: m}
}

type managerTokenSource struct {
	ctx     context.Context //nolint:containedctx // oauth2.TokenSource has no context parameter
	manager *OAuth2TokenManager
}

func (s *managerTokenSource) Token() (*oauth2.Token, error) {
	_, err := s.manager.GetToken(s.ctx)
	if err != nil {
		return nil, err
	}

	token := s.manager.store.Get()
	if token == nil {
		return nil, capi.NewOperationError(capi.ErrAuthentication, 0, "", ErrNoValidCredentials)
	}

	return token.OAuth2(), nil
}

func (m *OAuth2TokenManager) grant(ctx context.Context, mode grantMode, rejected string) (*Token, error) {
	result := m.group.DoChan(grantKey, func() (interface{}, error) {
		switch mode {
		case grantIfInvalid:
			if token := m.store.Get(); token.Valid() {
				return token, nil
			}
		case grantReplace:
			if token := m.store.Get(); token.Valid() && token.AccessToken != rejected {
				return token, nil
			}
		default:
		}

		// The request outlives a waiter that gives up; other waiters may still want it.
		grantCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultHTTPTimeout)
		defer cancel()

		return m.requestToken(grantCtx, mode == grantLogin)
	})

	select {
	case <-ctx.Done():
		return nil, capi.NormalizeTransportError(ctx.Err())
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}

		token, _ := res.Val.(*Token)
		copied := *token

		return &copied, nil
	}
}

// sessionState returns the refresh token and the generation it belongs to.
func (m *OAuth2TokenManager) sessionState() (string, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.refreshToken, m.generation
}

func (m *OAuth2TokenManager) currentRefreshToken() string {
	refresh, _ := m.sessionState()

	return refresh
}

func (m *OAuth2TokenManager) grantForm(refresh string, preferIdentity bool) (url.Values, string, error) {
	form := url.Values{}

	switch {
	case refresh != "" && !(preferIdentity && (m.config.hasPassword() || m.config.hasClientCredentials())):
		form.Set("grant_type", "refresh_token")
		form.Set("refresh_token", refresh)
	case m.config.hasPassword():
		form.Set("grant_type", "password")
		form.Set("username", m.config.Username)
		form.Set("password", m.config.Password)

		if m.config.Origin != "" {
			form.Set("login_hint", loginHint(m.config.Origin))
		}
	case m.config.hasClientCredentials():
		form.Set("grant_type", "client_credentials")
	default:
		return nil, "", capi.NewOperationError(capi.ErrAuthentication, 0, "", ErrNoValidCredentials)
	}

	if len(m.config.Scopes) > 0 {
		form.Set("scope", strings.Join(m.config.Scopes, " "))
	}

	return form, form.Get("grant_type"), nil
}

func (m *OAuth2TokenManager) requestToken(ctx context.Context, preferIdentity bool) (*Token, error) {
	refresh, generation := m.sessionState()

	form, grantType, err := m.grantForm(refresh, preferIdentity)
	if err != nil {
		return nil, err
	}

	if m.config.TokenURL == "" {
		return nil, capi.NewOperationError(capi.ErrConfiguration, 0, "", ErrTokenURLRequired)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.config.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, capi.NewOperationError(capi.ErrConfiguration, 0, "invalid token URL", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	clientID := m.config.ClientID
	if clientID == "" {
		clientID = constants.DefaultCFClientID
	}

	req.SetBasicAuth(clientID, m.config.ClientSecret)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, capi.NormalizeTransportError(fmt.Errorf("requesting %s token: %w", grantType, err))
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, constants.MaxTokenResponseSize))
	if err != nil {
		return nil, capi.NormalizeTransportError(fmt.Errorf("reading token response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, tokenEndpointError(resp.StatusCode, body)
	}

	var token Token

	err = json.Unmarshal(body, &token)
	if err != nil {
		return nil, capi.NewOperationError(capi.ErrAuthentication, resp.StatusCode, "malformed token response", err)
	}

	if token.AccessToken == "" {
		return nil, capi.NewOperationError(capi.ErrAuthentication, resp.StatusCode, "", ErrTokenResponseEmpty)
	}

	if !m.completeToken(&token, form.Get("refresh_token"), generation) {
		return nil, capi.NewOperationError(capi.ErrAuthentication, 0, "", ErrSessionInvalidated)
	}

	m.logDebug("Obtained access token", map[string]interface{}{
		"grant_type": grantType,
		"expires_at": token.ExpiresAt,
	})

	if m.listener != nil {
		m.listener(&token)
	}

	return &token, nil
}

// completeToken fills derived fields and makes the token current. It reports
// false, leaving the session untouched, when Invalidate ran after generation
// was read.
func (m *OAuth2TokenManager) completeToken(token *Token, usedRefreshToken string, generation uint64) bool {
	if token.TokenType == "" {
		token.TokenType = "bearer"
	}

	if token.ExpiresIn > 0 {
		token.ExpiresAt = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	}

	// Servers may omit the refresh token when it is unchanged.
	if token.RefreshToken == "" {
		token.RefreshToken = usedRefreshToken
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.generation != generation {
		return false
	}

	m.store.Set(token)

	if token.RefreshToken != "" {
		m.refreshToken = token.RefreshToken
	}

	return true
}

// tokenEndpointError maps a rejected grant. 400 and 401 mean the credentials
// themselves were refused.
func tokenEndpointError(status int, body []byte) error {
	err := capi.NormalizeResponse(status, body)

	var opErr *capi.OperationError
	if errors.As(err, &opErr) && (status == http.StatusBadRequest || status == http.StatusUnauthorized) {
		opErr.Kind = capi.ErrAuthentication
	}

	return err
}

func loginHint(origin string) string {
	hint, _ := json.Marshal(map[string]string{"origin": origin})

	return string(hint)
}

func (m *OAuth2TokenManager) logDebug(msg string, fields map[string]interface{}) {
	if m.logger != nil {
		m.logger.Debug(msg, fields)
	}
}
