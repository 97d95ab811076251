package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fivetwenty-io/capi-facade/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDiskFull = errors.New("disk full")

type recordingPersister struct {
	mu      sync.Mutex
	domain  string
	token   string
	refresh string
	expiry  time.Time
	calls   int
	err     error
}

func (p *recordingPersister) UpdateAPIToken(apiDomain, token string, expiresAt time.Time, refreshToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	p.domain = apiDomain
	p.token = token
	p.expiry = expiresAt
	p.refresh = refreshToken

	return p.err
}

type warnRecorder struct {
	mu    sync.Mutex
	warns []string
}

func (l *warnRecorder) Debug(string, map[string]interface{}) {}
func (l *warnRecorder) Info(string, map[string]interface{})  {}
func (l *warnRecorder) Error(string, map[string]interface{}) {}

func (l *warnRecorder) Warn(msg string, _ map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.warns = append(l.warns, msg)
}

func newPasswordServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(auth.Token{
			AccessToken:  "granted-token",
			RefreshToken: "granted-refresh",
			ExpiresIn:    3600,
		})
	}))
	t.Cleanup(server.Close)

	return server
}

func TestConfigTokenManager_PersistsGrantedTokens(t *testing.T) {
	t.Parallel()

	server := newPasswordServer(t)
	persister := &recordingPersister{}

	manager := auth.NewConfigTokenManager(
		&auth.OAuth2Config{TokenURL: server.URL, Username: "admin", Password: "secret"},
		persister,
		"api.example.com",
		"",
		time.Time{},
	)

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "granted-token", token)

	assert.Equal(t, 1, persister.calls)
	assert.Equal(t, "api.example.com", persister.domain)
	assert.Equal(t, "granted-token", persister.token)
	assert.Equal(t, "granted-refresh", persister.refresh)
	assert.WithinDuration(t, time.Now().Add(time.Hour), persister.expiry, 5*time.Second)
}

func TestConfigTokenManager_InitialTokenIsNotPersisted(t *testing.T) {
	t.Parallel()

	persister := &recordingPersister{}
	expiry := time.Now().Add(time.Hour)

	manager := auth.NewConfigTokenManager(&auth.OAuth2Config{}, persister, "api.example.com", "stored-token", expiry)

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "stored-token", token)
	assert.Equal(t, 0, persister.calls)
	assert.Equal(t, expiry.Unix(), manager.GetTokenExpiry().Unix())
}

func TestConfigTokenManager_PersistFailureDoesNotFailGrant(t *testing.T) {
	t.Parallel()

	server := newPasswordServer(t)
	persister := &recordingPersister{err: errDiskFull}
	logger := &warnRecorder{}

	manager := auth.NewConfigTokenManager(
		&auth.OAuth2Config{TokenURL: server.URL, Username: "admin", Password: "secret"},
		persister,
		"api.example.com",
		"",
		time.Time{},
		auth.WithLogger(logger),
	)

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "granted-token", token)
	assert.Equal(t, []string{"Failed to persist refreshed token"}, logger.warns)
}

func TestConfigTokenManager_NilPersister(t *testing.T) {
	t.Parallel()

	server := newPasswordServer(t)
	manager := auth.NewConfigTokenManager(
		&auth.OAuth2Config{TokenURL: server.URL, ClientID: "id", ClientSecret: "secret"},
		nil,
		"api.example.com",
		"",
		time.Time{},
	)

	token, err := manager.GetToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "granted-token", token)
}

func TestConfigTokenManager_IsTokenExpiringSoon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		token    string
		expiry   time.Time
		within   time.Duration
		expected bool
	}{
		{name: "no token", within: time.Minute, expected: true},
		{name: "no expiry", token: "t", within: time.Hour, expected: false},
		{name: "expires later", token: "t", expiry: time.Now().Add(time.Hour), within: time.Minute, expected: false},
		{name: "expires within window", token: "t", expiry: time.Now().Add(30 * time.Second), within: time.Minute, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			manager := auth.NewConfigTokenManager(&auth.OAuth2Config{}, nil, "api.example.com", tt.token, tt.expiry)
			assert.Equal(t, tt.expected, manager.IsTokenExpiringSoon(tt.within))
		})
	}
}

func TestConfigTokenManager_SatisfiesTokenManager(t *testing.T) {
	t.Parallel()

	var manager auth.TokenManager = auth.NewConfigTokenManager(&auth.OAuth2Config{}, nil, "", "t", time.Time{})

	manager.Invalidate()

	_, err := manager.GetToken(context.Background())
	require.Error(t, err)
}
