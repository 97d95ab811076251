package client

import (
	"context"
	"fmt"
	"net/url"

	"github.com/fivetwenty-io/capi-facade/internal/auth"
	"github.com/fivetwenty-io/capi-facade/internal/constants"
	internalhttp "github.com/fivetwenty-io/capi-facade/internal/http"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
	"golang.org/x/oauth2"
)

// session is what the facade needs from a token manager beyond the HTTP layer.
type session interface {
	auth.TokenManager
	Login(ctx context.Context) (*auth.Token, error)
	CurrentToken() *auth.Token
	TokenSource(ctx context.Context) oauth2.TokenSource
}

// Client implements the capi.Client interface.
type Client struct {
	httpClient *internalhttp.Client
	session    session
	infoCache  *capi.InfoCache
	baseURL    string
	logger     capi.Logger

	apps                      *AppsClient
	serviceCredentialBindings *ServiceCredentialBindingsClient
	serviceBrokers            *ServiceBrokersClient
	serviceInstances          *ServiceInstancesClient
	jobs                      *JobsClient
}

// New creates a client from config. The token URL must already be known when
// the credentials can grant tokens; cfclient.New discovers it.
func New(ctx context.Context, config *capi.Config) (*Client, error) {
	if config == nil {
		return nil, capi.NewOperationError(capi.ErrConfiguration, 0, "", capi.ErrConfigRequired)
	}

	if config.APIEndpoint == "" {
		return nil, capi.NewOperationError(capi.ErrConfiguration, 0, "", capi.ErrAPIEndpointRequired)
	}

	manager, err := createSession(config)
	if err != nil {
		return nil, err
	}

	client := &Client{
		session:   manager,
		infoCache: config.InfoCache,
		baseURL:   config.APIEndpoint,
		logger:    config.Logger,
	}

	if client.infoCache == nil {
		client.infoCache = capi.SharedInfoCache()
	}

	var tokenManager internalhttp.TokenManager
	if manager != nil {
		tokenManager = manager
	}

	client.httpClient = internalhttp.NewClient(config.APIEndpoint, tokenManager, createHTTPClientOptions(config)...)
	client.initializeResourceClients(config)

	client.logDebug("Created client", map[string]interface{}{
		"api_endpoint":  config.APIEndpoint,
		"authenticated": manager != nil,
	})

	return client, nil
}

// createSession builds the token manager for config, or returns nil when the
// config carries no credentials at all.
func createSession(config *capi.Config) (session, error) {
	oauthConfig := auth.CredentialsFromConfig(config)

	if !oauthConfig.CanGrant() && oauthConfig.AccessToken == "" {
		return nil, nil
	}

	err := oauthConfig.Validate()
	if err != nil {
		return nil, err
	}

	var opts []auth.Option
	if config.HTTPClient != nil {
		opts = append(opts, auth.WithHTTPClient(config.HTTPClient))
	}

	if config.Logger != nil {
		opts = append(opts, auth.WithLogger(config.Logger))
	}

	if config.TokenPersister != nil {
		return auth.NewConfigTokenManager(oauthConfig, config.TokenPersister, apiDomain(config.APIEndpoint),
			config.AccessToken, config.TokenExpiresAt, opts...), nil
	}

	manager := auth.NewOAuth2TokenManager(oauthConfig, opts...)
	if config.AccessToken != "" && !config.TokenExpiresAt.IsZero() {
		manager.SetToken(config.AccessToken, config.TokenExpiresAt)
	}

	return manager, nil
}

// createHTTPClientOptions builds HTTP client options from config.
func createHTTPClientOptions(config *capi.Config) []internalhttp.Option {
	var httpOpts []internalhttp.Option

	if config.Logger != nil {
		httpOpts = append(httpOpts, internalhttp.WithLogger(config.Logger))
	}

	if config.Debug {
		httpOpts = append(httpOpts, internalhttp.WithDebug(true))
	}

	if config.UserAgent != "" {
		httpOpts = append(httpOpts, internalhttp.WithUserAgent(config.UserAgent))
	}

	if config.HTTPClient != nil {
		httpOpts = append(httpOpts, internalhttp.WithHTTPClient(config.HTTPClient))
	}

	interceptors := config.Interceptors
	if interceptors == nil {
		interceptors = capi.NewInterceptorChain()
		interceptors.AddRequestInterceptor(capi.RequestIDInterceptor())
	}

	httpOpts = append(httpOpts, internalhttp.WithInterceptors(interceptors))

	if config.RetryMax > 0 {
		retryWaitMin := constants.DefaultRetryWaitMin
		retryWaitMax := constants.DefaultRetryWaitMax

		if config.RetryWaitMin > 0 {
			retryWaitMin = config.RetryWaitMin
		}

		if config.RetryWaitMax > 0 {
			retryWaitMax = config.RetryWaitMax
		}

		httpOpts = append(httpOpts, internalhttp.WithRetryConfig(config.RetryMax, retryWaitMin, retryWaitMax))
	}

	return httpOpts
}

// initializeResourceClients initializes all resource-specific clients.
func (c *Client) initializeResourceClients(config *capi.Config) {
	c.apps = NewAppsClient(c.httpClient, config.SpaceGUID)
	c.serviceCredentialBindings = NewServiceCredentialBindingsClient(c.httpClient)
	c.serviceBrokers = NewServiceBrokersClient(c.httpClient)
	c.serviceInstances = NewServiceInstancesClient(c.httpClient)
	c.jobs = NewJobsClient(c.httpClient)
	c.jobs.logger = config.Logger

	if config.PollInterval > 0 {
		c.jobs.pollInterval = config.PollInterval
	}

	if config.PollTimeout > 0 {
		c.jobs.pollTimeout = config.PollTimeout
	}
}

// apiDomain is the key the token persister files tokens under.
func apiDomain(endpoint string) string {
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Host == "" {
		return endpoint
	}

	return parsed.Host
}

// Apps implements capi.Client.Apps.
func (c *Client) Apps() capi.AppsClient {
	return c.apps
}

// ServiceCredentialBindings implements capi.Client.ServiceCredentialBindings.
func (c *Client) ServiceCredentialBindings() capi.ServiceCredentialBindingsClient {
	return c.serviceCredentialBindings
}

// ServiceBrokers implements capi.Client.ServiceBrokers.
func (c *Client) ServiceBrokers() capi.ServiceBrokersClient {
	return c.serviceBrokers
}

// ServiceInstances implements capi.Client.ServiceInstances.
func (c *Client) ServiceInstances() capi.ServiceInstancesClient {
	return c.serviceInstances
}

// Jobs implements capi.Client.Jobs.
func (c *Client) Jobs() capi.JobsClient {
	return c.jobs
}

// GetInfo implements capi.Client.GetInfo.
func (c *Client) GetInfo(ctx context.Context) (*capi.PlatformInfo, error) {
	info, err := c.infoCache.GetInfo(ctx, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("getting platform info: %w", err)
	}

	return info, nil
}

// Login implements capi.Client.Login.
func (c *Client) Login(ctx context.Context) error {
	if c.session == nil {
		return capi.NewOperationError(capi.ErrAuthentication, 0, "", capi.ErrNotAuthenticated)
	}

	_, err := c.session.Login(ctx)
	if err != nil {
		return fmt.Errorf("logging in: %w", err)
	}

	return nil
}

// Logout implements capi.Client.Logout.
func (c *Client) Logout() {
	if c.session != nil {
		c.session.Invalidate()
	}
}

// GetToken returns a valid access token, obtaining one if needed.
func (c *Client) GetToken(ctx context.Context) (string, error) {
	if c.session == nil {
		return "", capi.NewOperationError(capi.ErrAuthentication, 0, "", capi.ErrNotAuthenticated)
	}

	token, err := c.session.GetToken(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get token: %w", err)
	}

	return token, nil
}

// CurrentToken returns the cached token without contacting the server, or nil.
func (c *Client) CurrentToken() *auth.Token {
	if c.session == nil {
		return nil
	}

	return c.session.CurrentToken()
}

// TokenSource exposes the session as an oauth2.TokenSource, or nil for an
// unauthenticated client.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	if c.session == nil {
		return nil
	}

	return c.session.TokenSource(ctx)
}

// BindServiceInstance implements capi.Client.BindServiceInstance.
func (c *Client) BindServiceInstance(ctx context.Context, appGUID, serviceInstanceGUID string, params map[string]interface{}, onError capi.OperationErrorHandler) (string, error) {
	jobGUID, err := c.serviceCredentialBindings.Bind(ctx, appGUID, serviceInstanceGUID, params)

	return c.handleOperationError("bind service instance", jobGUID, err, onError)
}

// DeleteServiceBinding implements capi.Client.DeleteServiceBinding.
func (c *Client) DeleteServiceBinding(ctx context.Context, bindingGUID string, onError capi.OperationErrorHandler) (string, error) {
	jobGUID, err := c.serviceCredentialBindings.Delete(ctx, bindingGUID)

	return c.handleOperationError("delete service binding", jobGUID, err, onError)
}

// BindServiceInstanceAndWait implements capi.Client.BindServiceInstanceAndWait.
func (c *Client) BindServiceInstanceAndWait(ctx context.Context, appGUID, serviceInstanceGUID string, params map[string]interface{}) error {
	jobGUID, err := c.serviceCredentialBindings.Bind(ctx, appGUID, serviceInstanceGUID, params)
	if err != nil {
		return err
	}

	return c.jobs.AwaitJob(ctx, jobGUID)
}

// UnbindServiceInstanceAndWait implements capi.Client.UnbindServiceInstanceAndWait.
func (c *Client) UnbindServiceInstanceAndWait(ctx context.Context, appGUID, serviceInstanceGUID string) error {
	jobGUID, err := c.serviceCredentialBindings.Unbind(ctx, appGUID, serviceInstanceGUID)
	if err != nil {
		return err
	}

	return c.jobs.AwaitJob(ctx, jobGUID)
}

// DeleteServiceInstanceAndWait implements capi.Client.DeleteServiceInstanceAndWait.
func (c *Client) DeleteServiceInstanceAndWait(ctx context.Context, guid string) error {
	jobGUID, err := c.serviceInstances.Delete(ctx, guid)
	if err != nil {
		return err
	}

	return c.jobs.AwaitJob(ctx, jobGUID)
}

// handleOperationError hands err to onError when one is given; the caller then
// sees an empty job GUID and no error.
func (c *Client) handleOperationError(operation, jobGUID string, err error, onError capi.OperationErrorHandler) (string, error) {
	if err == nil || onError == nil {
		return jobGUID, err
	}

	c.logDebug("Operation failed, passing error to handler", map[string]interface{}{
		"operation": operation,
		"error":     err.Error(),
	})

	onError(err)

	return "", nil
}

func (c *Client) logDebug(msg string, fields map[string]interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, fields)
	}
}
