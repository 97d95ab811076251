package capi

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

// AppsClient reads applications. The required flag selects between
// "absence is an error" (ErrResourceNotFound) and "absence is nil, nil".
type AppsClient interface {
	Get(ctx context.Context, guid string, required bool) (*App, error)
	GetByName(ctx context.Context, name string, required bool) (*App, error)
	List(ctx context.Context, query url.Values) (*ListResponse[App], error)
}

// ServiceCredentialBindingsClient manages app bindings and service keys.
// Mutations return the platform job GUID, or "" when the platform finished
// synchronously.
type ServiceCredentialBindingsClient interface {
	Get(ctx context.Context, guid string) (*ServiceCredentialBinding, error)
	List(ctx context.Context, query url.Values) (*ListResponse[ServiceCredentialBinding], error)
	Bind(ctx context.Context, appGUID, serviceInstanceGUID string, params map[string]interface{}) (string, error)
	Unbind(ctx context.Context, appGUID, serviceInstanceGUID string) (string, error)
	CreateKey(ctx context.Context, serviceInstanceGUID, name string, params map[string]interface{}) (string, error)
	GetKeyByName(ctx context.Context, serviceInstanceGUID, name string) (*ServiceCredentialBinding, error)
	Delete(ctx context.Context, guid string) (string, error)
}

// ServiceBrokersClient manages broker registrations.
type ServiceBrokersClient interface {
	Get(ctx context.Context, guid string) (*ServiceBroker, error)
	Create(ctx context.Context, request *ServiceBrokerCreateRequest) (string, error)
	Update(ctx context.Context, guid string, request *ServiceBrokerUpdateRequest) (string, error)
	Delete(ctx context.Context, guid string) (string, error)
}

// ServiceInstancesClient manages service instances.
type ServiceInstancesClient interface {
	Get(ctx context.Context, guid string) (*ServiceInstance, error)
	Delete(ctx context.Context, guid string) (string, error)
}

// JobsClient reads and awaits asynchronous jobs.
type JobsClient interface {
	Get(ctx context.Context, guid string) (*Job, error)
	AwaitCompletion(ctx context.Context, guid string, pollInterval, timeout time.Duration) (*Job, error)
	PollUntilComplete(ctx context.Context, guid string) (*Job, error)
	AwaitJob(ctx context.Context, guid string) error
}

// OperationErrorHandler receives the failure of a callback-style operation.
type OperationErrorHandler func(err error)

// Client is the control-plane facade.
type Client interface {
	Apps() AppsClient
	ServiceCredentialBindings() ServiceCredentialBindingsClient
	ServiceBrokers() ServiceBrokersClient
	ServiceInstances() ServiceInstancesClient
	Jobs() JobsClient

	// GetInfo returns the platform discovery document.
	GetInfo(ctx context.Context) (*PlatformInfo, error)
	// Login forces a new token grant with the configured credentials.
	Login(ctx context.Context) error
	// Logout discards the session's tokens.
	Logout()

	BindServiceInstance(ctx context.Context, appGUID, serviceInstanceGUID string, params map[string]interface{}, onError OperationErrorHandler) (string, error)
	DeleteServiceBinding(ctx context.Context, bindingGUID string, onError OperationErrorHandler) (string, error)
	BindServiceInstanceAndWait(ctx context.Context, appGUID, serviceInstanceGUID string, params map[string]interface{}) error
	UnbindServiceInstanceAndWait(ctx context.Context, appGUID, serviceInstanceGUID string) error
	DeleteServiceInstanceAndWait(ctx context.Context, guid string) error
}

// Logger interface for logging.
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
}

// TokenPersister stores refreshed tokens outside the process, e.g. in a CLI
// config file.
type TokenPersister interface {
	UpdateAPIToken(apiDomain, token string, expiresAt time.Time, refreshToken string) error
}

// Config represents client configuration for building a capi.Client.
//
// # Authentication
//
// Grants are attempted in this order whenever a new token is needed:
//  1. refresh_token, when a refresh token is known (RefreshToken or one
//     returned by an earlier grant);
//  2. password, when Username and Password are set (client ID defaults to
//     "cf"; Origin selects the identity provider);
//  3. client_credentials, when ClientID and ClientSecret are set.
//
// AccessToken seeds the session with a pre-issued token that is used until the
// platform rejects it. A failed refresh_token grant is final; it does not fall
// back to another grant.
//
// # Token URL discovery
//
// When TokenURL is empty, cfclient.New resolves the authorization endpoint
// through InfoCache (SharedInfoCache by default) from "<APIEndpoint>/v2/info",
// falling back to the root document's login/uaa links, and uses
// "<endpoint>/oauth/token".
//
// # Retries and polling
//
// Connection errors, 429 and 5xx responses are retried by the transport
// (RetryMax/RetryWaitMin/RetryWaitMax). A 401 is answered with exactly one
// token refresh and one retry. Asynchronous jobs are polled every PollInterval
// until PollTimeout.
type Config struct {
	// APIEndpoint is the base URL of the control plane API.
	APIEndpoint string

	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	RefreshToken string
	AccessToken  string
	// TokenExpiresAt is the known expiry of AccessToken, if any.
	TokenExpiresAt time.Time
	// Origin names the identity provider for the password grant.
	Origin string
	// TokenURL overrides discovery of the OAuth token endpoint.
	TokenURL string

	// SpaceGUID scopes name lookups such as Apps().GetByName.
	SpaceGUID string

	// HTTPClient carries transport configuration (TLS, proxies, timeouts).
	HTTPClient *http.Client
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	PollInterval time.Duration
	PollTimeout  time.Duration

	Debug     bool
	Logger    Logger
	UserAgent string

	// InfoCache overrides the process-wide discovery cache.
	InfoCache *InfoCache
	// Cache, when InfoCache is nil, gives the client its own discovery cache
	// backed by the selected store, such as a NATS KV bucket shared between
	// processes.
	Cache *CacheConfig
	// Interceptors run around every API call.
	Interceptors *InterceptorChain
	// TokenPersister, when set, receives every newly granted token.
	TokenPersister TokenPersister
}
