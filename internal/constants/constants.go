package constants

import "time"

// File and directory permissions.
const (
	// ConfigDirPerm is the permission for configuration directories.
	ConfigDirPerm = 0750

	// ConfigFilePerm is the permission for configuration files.
	ConfigFilePerm = 0600
)

// HTTP and network timeouts.
const (
	// DefaultHTTPTimeout is the default timeout for HTTP requests.
	DefaultHTTPTimeout = 30 * time.Second

	// ShortHTTPTimeout is used for quick operations such as discovery.
	ShortHTTPTimeout = 10 * time.Second
)

// Retry limits for the transport.
const (
	// DefaultRetryMax is the default maximum number of retries.
	DefaultRetryMax = 3

	// DefaultRetryWaitMin is the minimum wait time between retries.
	DefaultRetryWaitMin = 1 * time.Second

	// DefaultRetryWaitMax is the maximum wait time between retries.
	DefaultRetryWaitMax = 30 * time.Second

	// DiscoveryRetryMax bounds retries for authorization endpoint discovery.
	DiscoveryRetryMax = 2
)

// Job polling.
const (
	// DefaultPollInterval is the wait between job status fetches.
	DefaultPollInterval = 2 * time.Second

	// DefaultJobPollTimeout is the default timeout for job polling.
	DefaultJobPollTimeout = 5 * time.Minute

	// MaxFetchRetries is how many consecutive transient fetch failures a poll tolerates.
	MaxFetchRetries = 3
)

// OAuth.
const (
	// TokenExpiryBuffer is how early a token is considered expired.
	TokenExpiryBuffer = 30 * time.Second

	// DefaultCFClientID is the public client used for the password grant.
	DefaultCFClientID = "cf"

	// MaxTokenResponseSize caps how much of a token endpoint response is read.
	MaxTokenResponseSize = 1 << 20
)

// Caching.
const (
	// DefaultCacheSize is the default cache size limit.
	DefaultCacheSize = 1000

	// DefaultInfoCacheBucket is the JetStream KV bucket for shared discovery documents.
	DefaultInfoCacheBucket = "capi_info"
)

// Output formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)
