package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/fivetwenty-io/capi-facade/pkg/capi"
)

// TokenManager supplies access tokens to the HTTP layer.
type TokenManager interface {
	GetToken(ctx context.Context) (string, error)
	RefreshToken(ctx context.Context) error
	RefreshRejected(ctx context.Context, rejected string) error
	SetToken(token string, expiresAt time.Time)
	Invalidate()
}

// ConfigPersister defines the interface for persisting config changes.
type ConfigPersister = capi.TokenPersister

// ConfigTokenManager wraps OAuth2TokenManager and writes every newly granted
// token through a ConfigPersister, so a later process can reuse the session.
type ConfigTokenManager struct {
	*OAuth2TokenManager

	configPersister ConfigPersister
	apiDomain       string
	logger          capi.Logger
}

// NewConfigTokenManager creates a new config-persisting token manager. A
// non-empty initialToken is used until it expires or is rejected.
func NewConfigTokenManager(config *OAuth2Config, configPersister ConfigPersister, apiDomain string, initialToken string, initialExpiry time.Time, opts ...Option) *ConfigTokenManager {
	manager := &ConfigTokenManager{
		configPersister: configPersister,
		apiDomain:       apiDomain,
	}

	opts = append(opts, WithTokenListener(manager.persist))
	manager.OAuth2TokenManager = NewOAuth2TokenManager(config, opts...)
	manager.logger = manager.OAuth2TokenManager.logger

	if initialToken != "" {
		manager.SetToken(initialToken, initialExpiry)
	}

	return manager
}

// IsTokenExpiringSoon returns true if the token expires within the given duration.
func (m *ConfigTokenManager) IsTokenExpiringSoon(within time.Duration) bool {
	token := m.store.Get()
	if token == nil {
		return true
	}

	if token.ExpiresAt.IsZero() {
		return false
	}

	return time.Now().Add(within).After(token.ExpiresAt)
}

// GetTokenExpiry returns the current token's expiration time.
func (m *ConfigTokenManager) GetTokenExpiry() time.Time {
	token := m.store.Get()
	if token == nil {
		return time.Time{}
	}

	return token.ExpiresAt
}

func (m *ConfigTokenManager) persist(token *Token) {
	err := m.persistToken(token)
	if err != nil && m.logger != nil {
		m.logger.Warn("Failed to persist refreshed token", map[string]interface{}{
			"api_domain": m.apiDomain,
			"error":      err.Error(),
		})
	}
}

// persistToken saves the token to config.
func (m *ConfigTokenManager) persistToken(token *Token) error {
	if m.configPersister == nil {
		return ErrNoConfigPersister
	}

	err := m.configPersister.UpdateAPIToken(m.apiDomain, token.AccessToken, token.ExpiresAt, token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to update API token: %w", err)
	}

	return nil
}
