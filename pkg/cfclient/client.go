// Package cfclient provides the main entry point for creating Cloud Foundry API clients
package cfclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/fivetwenty-io/capi-facade/internal/auth"
	"github.com/fivetwenty-io/capi-facade/internal/client"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
)

// New creates a new Cloud Foundry API client, discovering the token endpoint
// when the credentials need one and none is configured. config is not modified.
func New(ctx context.Context, config *capi.Config) (capi.Client, error) {
	if config == nil {
		return nil, capi.NewOperationError(capi.ErrConfiguration, 0, "", capi.ErrConfigRequired)
	}

	if config.APIEndpoint == "" {
		return nil, capi.NewOperationError(capi.ErrConfiguration, 0, "", capi.ErrAPIEndpointRequired)
	}

	resolved := *config
	resolved.APIEndpoint = normalizeEndpoint(config.APIEndpoint)

	if resolved.InfoCache == nil {
		infoCache, err := newInfoCache(&resolved)
		if err != nil {
			return nil, err
		}

		resolved.InfoCache = infoCache
	}

	if auth.CredentialsFromConfig(&resolved).CanGrant() && resolved.TokenURL == "" {
		info, err := resolved.InfoCache.GetInfo(ctx, resolved.APIEndpoint)
		if err != nil {
			return nil, fmt.Errorf("discovering authorization endpoint: %w", err)
		}

		resolved.TokenURL = info.TokenURL()
	}

	c, err := client.New(ctx, &resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to create new client: %w", err)
	}

	return c, nil
}

func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimSuffix(endpoint, "/")
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}

	return endpoint
}

// newInfoCache returns the process-wide cache unless config selects a store.
func newInfoCache(config *capi.Config) (*capi.InfoCache, error) {
	if config.Cache == nil {
		return capi.SharedInfoCache(), nil
	}

	store, err := capi.NewCacheFromConfig(config.Cache)
	if err != nil {
		return nil, capi.NewOperationError(capi.ErrConfiguration, 0, "building discovery cache", err)
	}

	opts := []capi.InfoCacheOption{capi.WithInfoStore(store)}
	if config.HTTPClient != nil {
		opts = append(opts, capi.WithInfoHTTPClient(config.HTTPClient))
	}

	if config.Logger != nil {
		opts = append(opts, capi.WithInfoLogger(config.Logger))
	}

	return capi.NewInfoCache(opts...), nil
}

// NewWithEndpoint creates a new client with just an API endpoint (no auth).
func NewWithEndpoint(ctx context.Context, endpoint string) (capi.Client, error) {
	return New(ctx, &capi.Config{
		APIEndpoint: endpoint,
	})
}

// NewWithToken creates a new client with an API endpoint and access token.
func NewWithToken(ctx context.Context, endpoint, token string) (capi.Client, error) {
	return New(ctx, &capi.Config{
		APIEndpoint: endpoint,
		AccessToken: token,
	})
}

// NewWithClientCredentials creates a new client using OAuth2 client credentials.
func NewWithClientCredentials(ctx context.Context, endpoint, clientID, clientSecret string) (capi.Client, error) {
	return New(ctx, &capi.Config{
		APIEndpoint:  endpoint,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	})
}

// NewWithPassword creates a new client using username/password authentication.
func NewWithPassword(ctx context.Context, endpoint, username, password string) (capi.Client, error) {
	return New(ctx, &capi.Config{
		APIEndpoint: endpoint,
		Username:    username,
		Password:    password,
	})
}
