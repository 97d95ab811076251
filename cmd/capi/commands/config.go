package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fivetwenty-io/capi-facade/internal/constants"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
	"github.com/fivetwenty-io/capi-facade/pkg/cfclient"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the on-disk CLI configuration.
type Config struct {
	APIs       map[string]*APIConfig `json:"apis,omitempty"        yaml:"apis,omitempty"`
	CurrentAPI string                `json:"current_api,omitempty" yaml:"current_api,omitempty"`
	Output     string                `json:"output,omitempty"      yaml:"output,omitempty"`
	Cache      *CacheSettings        `json:"cache,omitempty"       yaml:"cache,omitempty"`
}

// CacheSettings selects where platform discovery documents are cached.
type CacheSettings struct {
	// Type is memory, nats, tiered or none.
	Type    string        `json:"type"               yaml:"type"`
	MaxSize int           `json:"max_size,omitempty" yaml:"max_size,omitempty"`
	NATSURL string        `json:"nats_url,omitempty" yaml:"nats_url,omitempty"`
	Bucket  string        `json:"bucket,omitempty"   yaml:"bucket,omitempty"`
	TTL     time.Duration `json:"ttl,omitempty"      yaml:"ttl,omitempty"`
}

func (s *CacheSettings) cacheConfig() *capi.CacheConfig {
	if s == nil {
		return nil
	}

	config := &capi.CacheConfig{
		Type:    capi.CacheType(s.Type),
		MaxSize: s.MaxSize,
	}

	if s.NATSURL != "" {
		config.NATS = &capi.NATSKVConfig{
			URL:    s.NATSURL,
			Bucket: s.Bucket,
			TTL:    s.TTL,
		}
	}

	return config
}

// APIConfig represents configuration for a single Cloud Foundry API endpoint.
type APIConfig struct {
	Endpoint       string     `json:"endpoint"                   yaml:"endpoint"`
	Token          string     `json:"token,omitempty"            yaml:"token,omitempty"`
	TokenExpiresAt *time.Time `json:"token_expires_at,omitempty" yaml:"token_expires_at,omitempty"`
	RefreshToken   string     `json:"refresh_token,omitempty"    yaml:"refresh_token,omitempty"`
	LastRefreshed  *time.Time `json:"last_refreshed,omitempty"   yaml:"last_refreshed,omitempty"`
	TokenURL       string     `json:"token_url,omitempty"        yaml:"token_url,omitempty"`
	Username       string     `json:"username,omitempty"         yaml:"username,omitempty"`
	Origin         string     `json:"origin,omitempty"           yaml:"origin,omitempty"`
	ClientID       string     `json:"client_id,omitempty"        yaml:"client_id,omitempty"`
	SpaceGUID      string     `json:"space_guid,omitempty"       yaml:"space_guid,omitempty"`
}

// configFilePath returns the file the CLI reads and writes.
func configFilePath() (string, error) {
	if configFile := viper.ConfigFileUsed(); configFile != "" {
		return configFile, nil
	}

	if configFile := viper.GetString("config"); configFile != "" {
		return configFile, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(home, ".capi", "config.yml"), nil
}

// loadConfig reads the configuration file. A missing file is an empty config.
func loadConfig() (*Config, error) {
	config := &Config{APIs: make(map[string]*APIConfig)}

	configFile, err := configFilePath()
	if err != nil {
		return nil, err
	}

	// #nosec G304 -- the path comes from the --config flag or the user's home directory
	data, err := os.ReadFile(configFile)
	if errors.Is(err, os.ErrNotExist) {
		return config, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	err = yaml.Unmarshal(data, config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configFile, err)
	}

	if config.APIs == nil {
		config.APIs = make(map[string]*APIConfig)
	}

	return config, nil
}

// saveConfigStruct writes config back to the configuration file.
func saveConfigStruct(config *Config) error {
	configFile, err := configFilePath()
	if err != nil {
		return err
	}

	err = os.MkdirAll(filepath.Dir(configFile), constants.ConfigDirPerm)
	if err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	err = os.WriteFile(configFile, data, constants.ConfigFilePerm)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// normalizeEndpoint adds a scheme when missing and drops a trailing slash.
func normalizeEndpoint(endpoint string) (string, error) {
	endpoint = strings.TrimSuffix(strings.TrimSpace(endpoint), "/")
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q", capi.ErrInvalidEndpointURL, endpoint)
	}

	return endpoint, nil
}

// extractDomainFromEndpoint returns the host[:port] of endpoint. Tokens are
// persisted under the same key.
func extractDomainFromEndpoint(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return endpoint
	}

	return parsed.Host
}

// getAPIConfigByFlag returns the API named by apiFlag (a configured key or an
// endpoint URL), or the current API when apiFlag is empty.
func getAPIConfigByFlag(config *Config, apiFlag string) (string, *APIConfig, error) {
	if apiFlag == "" {
		apiFlag = viper.GetString("api")
	}

	if apiFlag == "" {
		apiFlag = config.CurrentAPI
	}

	if apiFlag == "" {
		return "", nil, constants.ErrNoAPIConfigured
	}

	if apiConfig, exists := config.APIs[apiFlag]; exists {
		return apiFlag, apiConfig, nil
	}

	endpoint, err := normalizeEndpoint(apiFlag)
	if err != nil {
		return "", nil, err
	}

	domain := extractDomainFromEndpoint(endpoint)
	if apiConfig, exists := config.APIs[domain]; exists {
		return domain, apiConfig, nil
	}

	return domain, &APIConfig{Endpoint: endpoint}, nil
}

// buildCAPIConfig turns a stored API entry into a client configuration. Tokens
// granted by the client are written back through persister when it is set.
func buildCAPIConfig(apiConfig *APIConfig, cache *CacheSettings, persister capi.TokenPersister) *capi.Config {
	config := &capi.Config{
		APIEndpoint:    apiConfig.Endpoint,
		AccessToken:    apiConfig.Token,
		RefreshToken:   apiConfig.RefreshToken,
		TokenURL:       apiConfig.TokenURL,
		Origin:         apiConfig.Origin,
		SpaceGUID:      apiConfig.SpaceGUID,
		UserAgent:      "capi-cli",
		TokenPersister: persister,
		Cache:          cache.cacheConfig(),
	}

	if apiConfig.TokenExpiresAt != nil {
		config.TokenExpiresAt = *apiConfig.TokenExpiresAt
	}

	if token := viper.GetString("token"); token != "" {
		config.AccessToken = token
		config.TokenExpiresAt = time.Time{}
	}

	if viper.GetBool("verbose") {
		config.Debug = true
		config.Logger = capi.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	return config
}

// CreateClientWithAPI creates a client for the named or current API.
func CreateClientWithAPI(ctx context.Context, apiFlag string) (capi.Client, error) {
	config, err := loadConfig()
	if err != nil {
		return nil, err
	}

	domain, apiConfig, err := getAPIConfigByFlag(config, apiFlag)
	if err != nil {
		return nil, err
	}

	var persister capi.TokenPersister
	if _, stored := config.APIs[domain]; stored {
		persister = NewConfigPersister()
	}

	client, err := cfclient.New(ctx, buildCAPIConfig(apiConfig, config.Cache, persister))
	if err != nil {
		return nil, fmt.Errorf("failed to create CF client: %w", err)
	}

	return client, nil
}
