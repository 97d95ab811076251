package capi

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

	"github.com/fivetwenty-io/capi-facade/internal/constants"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/sync/singleflight"
)

// Static errors for err113 compliance.
var (
	ErrBaseURLRequired = errors.New("base URL is required")
)

// InfoCache resolves and remembers each platform's discovery document, keyed by
// the exact base URL. Entries never expire and failures are not remembered.
// Concurrent first lookups for one base URL share a single discovery request.
type InfoCache struct {
	store  Cache
	client *retryablehttp.Client
	logger Logger
	group  singleflight.Group
}

// InfoCacheOption configures an InfoCache.
type InfoCacheOption func(*InfoCache)

// WithInfoStore replaces the default unbounded memory store, e.g. with a
// CacheChain backed by NATS KV.
func WithInfoStore(store Cache) InfoCacheOption {
	return func(c *InfoCache) {
		c.store = store
	}
}

// WithInfoHTTPClient sets the HTTP client used for discovery requests.
func WithInfoHTTPClient(httpClient *http.Client) InfoCacheOption {
	return func(c *InfoCache) {
		c.client.HTTPClient = httpClient
	}
}

// WithInfoLogger sets the logger.
func WithInfoLogger(logger Logger) InfoCacheOption {
	return func(c *InfoCache) {
		c.logger = logger
	}
}

// NewInfoCache creates an empty cache.
func NewInfoCache(opts ...InfoCacheOption) *InfoCache {
	retryClient := retryablehttp.NewClient()
	retryClient.Logger = nil
	retryClient.RetryMax = constants.DiscoveryRetryMax
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler
	retryClient.HTTPClient = &http.Client{Timeout: constants.ShortHTTPTimeout}

	cache := &InfoCache{
		store:  NewMemoryCache(0),
		client: retryClient,
	}

	for _, opt := range opts {
		opt(cache)
	}

	return cache
}

var (
	sharedInfoCache     *InfoCache
	sharedInfoCacheOnce sync.Once
)

// SharedInfoCache returns the process-wide cache used by clients that are not
// given their own.
func SharedInfoCache() *InfoCache {
	sharedInfoCacheOnce.Do(func() {
		sharedInfoCache = NewInfoCache()
	})

	return sharedInfoCache
}

// ResolveAuthorizationEndpoint returns the authorization server URL for the
// platform at baseURL, discovering it on first use.
func (c *InfoCache) ResolveAuthorizationEndpoint(ctx context.Context, baseURL string) (string, error) {
	info, err := c.GetInfo(ctx, baseURL)
	if err != nil {
		return "", err
	}

	return info.AuthorizationEndpoint, nil
}

// GetInfo returns the discovery document for baseURL.
func (c *InfoCache) GetInfo(ctx context.Context, baseURL string) (*PlatformInfo, error) {
	if baseURL == "" {
		return nil, NewOperationError(ErrConfiguration, 0, "", ErrBaseURLRequired)
	}

	info, ok := c.lookup(ctx, baseURL)
	if ok {
		return info, nil
	}

	result := c.group.DoChan(baseURL, func() (interface{}, error) {
		// Discovery outlives a waiter that gives up.
		discoverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultHTTPTimeout)
		defer cancel()

		info, ok := c.lookup(discoverCtx, baseURL)
		if ok {
			return info, nil
		}

		info, err := c.discover(discoverCtx, baseURL)
		if err != nil {
			return nil, err
		}

		c.remember(discoverCtx, baseURL, info)

		return info, nil
	})

	select {
	case <-ctx.Done():
		return nil, NewOperationError(ErrDiscovery, 0, "waiting for platform info", NormalizeTransportError(ctx.Err()))
	case res := <-result:
		if res.Err != nil {
			return nil, res.Err
		}

		discovered, _ := res.Val.(*PlatformInfo)
		copied := *discovered

		return &copied, nil
	}
}

// Forget drops the entry for baseURL so the next lookup rediscovers it.
func (c *InfoCache) Forget(ctx context.Context, baseURL string) error {
	err := c.store.Delete(ctx, baseURL)
	if err != nil {
		return fmt.Errorf("forgetting platform info for %s: %w", baseURL, err)
	}

	return nil
}

func (c *InfoCache) lookup(ctx context.Context, baseURL string) (*PlatformInfo, bool) {
	entry, err := c.store.Get(ctx, baseURL)
	if err != nil {
		return nil, false
	}

	var info PlatformInfo

	err = json.Unmarshal(entry.Data, &info)
	if err != nil {
		c.logWarn("Discarding unreadable platform info", map[string]interface{}{"base_url": baseURL, "error": err.Error()})

		return nil, false
	}

	return &info, true
}

func (c *InfoCache) remember(ctx context.Context, baseURL string, info *PlatformInfo) {
	data, err := json.Marshal(info)
	if err != nil {
		return
	}

	err = c.store.Set(ctx, baseURL, &CacheEntry{Data: data})
	if err != nil {
		c.logWarn("Failed to store platform info", map[string]interface{}{"base_url": baseURL, "error": err.Error()})
	}
}

func (c *InfoCache) discover(ctx context.Context, baseURL string) (*PlatformInfo, error) {
	root := strings.TrimSuffix(baseURL, "/")

	status, body, err := c.fetch(ctx, root+"/v2/info")
	if err != nil {
		return nil, err
	}

	var info PlatformInfo

	switch {
	case status == http.StatusNotFound:
		info, err = c.discoverFromRoot(ctx, root)
		if err != nil {
			return nil, err
		}
	case status != http.StatusOK:
		return nil, discoveryStatusError(status, body)
	default:
		err = json.Unmarshal(body, &info)
		if err != nil {
			return nil, NewOperationError(ErrDiscovery, status, "malformed /v2/info document", err)
		}
	}

	info.AuthorizationEndpoint = strings.TrimSuffix(info.AuthorizationEndpoint, "/")

	err = validateEndpoint(info.AuthorizationEndpoint)
	if err != nil {
		return nil, NewOperationError(ErrDiscovery, 0, "", err)
	}

	c.logDebug("Discovered authorization endpoint", map[string]interface{}{
		"base_url": baseURL,
		"endpoint": info.AuthorizationEndpoint,
	})

	return &info, nil
}

// discoverFromRoot reads the v3 root document for platforms without /v2/info.
func (c *InfoCache) discoverFromRoot(ctx context.Context, root string) (PlatformInfo, error) {
	status, body, err := c.fetch(ctx, root+"/")
	if err != nil {
		return PlatformInfo{}, err
	}

	if status != http.StatusOK {
		return PlatformInfo{}, discoveryStatusError(status, body)
	}

	var doc struct {
		Links Links `json:"links"`
	}

	err = json.Unmarshal(body, &doc)
	if err != nil {
		return PlatformInfo{}, NewOperationError(ErrDiscovery, status, "malformed root document", err)
	}

	info := PlatformInfo{AuthorizationEndpoint: doc.Links["login"].Href}
	if info.AuthorizationEndpoint == "" {
		info.AuthorizationEndpoint = doc.Links["uaa"].Href
	}

	info.TokenEndpoint = doc.Links["uaa"].Href

	return info, nil
}

func (c *InfoCache) fetch(ctx context.Context, target string) (int, []byte, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, NewOperationError(ErrConfiguration, 0, "invalid base URL", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, NewOperationError(ErrDiscovery, 0, "platform unreachable", NormalizeTransportError(err))
	}

	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, NewOperationError(ErrDiscovery, resp.StatusCode, "reading discovery response", err)
	}

	return resp.StatusCode, body, nil
}

func discoveryStatusError(status int, body []byte) error {
	return NewOperationError(ErrDiscovery, status, "", NormalizeResponse(status, body))
}

func validateEndpoint(endpoint string) error {
	if endpoint == "" {
		return ErrNoAuthorizationEndpoint
	}

	parsed, err := url.Parse(endpoint)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidEndpointURL, endpoint)
	}

	return nil
}

func (c *InfoCache) logDebug(msg string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, fields)
	}
}

func (c *InfoCache) logWarn(msg string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.Warn(msg, fields)
	}
}
