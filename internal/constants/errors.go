package constants

import "errors"

// CLI configuration errors.
var (
	ErrNoAPIConfigured   = errors.New("no API endpoint configured, use 'capi login --api <url>'")
	ErrAPIConfigNotFound = errors.New("API configuration not found")
	ErrNotLoggedIn       = errors.New("not logged in, use 'capi login' first")
	ErrPasswordRequired  = errors.New("password is required")
	ErrNoRefreshToken    = errors.New("no refresh token available, use 'capi login' first")
)

// Validation errors.
var (
	ErrInvalidOutputFormat = errors.New("invalid output format")
	ErrJobGUIDRequired     = errors.New("job GUID is required")
	ErrInvalidParameters   = errors.New("parameters must be a JSON object")
	ErrInvalidPollInterval = errors.New("poll interval must be positive")
)
