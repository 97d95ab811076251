package commands

import (
	"fmt"
	"sync"
	"time"

	"github.com/fivetwenty-io/capi-facade/internal/constants"
)

// ConfigPersister implements capi.TokenPersister on top of the CLI config file.
type ConfigPersister struct {
	mutex sync.Mutex
}

// NewConfigPersister creates a new config persister.
func NewConfigPersister() *ConfigPersister {
	return &ConfigPersister{}
}

// UpdateAPIToken updates the API token and related metadata in the config.
func (p *ConfigPersister) UpdateAPIToken(apiDomain, token string, expiresAt time.Time, refreshToken string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	apiConfig, exists := config.APIs[apiDomain]
	if !exists {
		return fmt.Errorf("API configuration for '%s': %w", apiDomain, constants.ErrAPIConfigNotFound)
	}

	apiConfig.Token = token
	apiConfig.TokenExpiresAt = nil

	if !expiresAt.IsZero() {
		apiConfig.TokenExpiresAt = &expiresAt
	}

	if refreshToken != "" {
		apiConfig.RefreshToken = refreshToken
	}

	now := time.Now()
	apiConfig.LastRefreshed = &now

	return saveConfigStruct(config)
}
