package auth

import (
	"errors"
	"strings"

	"github.com/fivetwenty-io/capi-facade/pkg/capi"
)

// Static errors for err113 compliance.
var (
	ErrNoIdentity         = errors.New("no credentials configured")
	ErrTokenURLRequired   = errors.New("token URL is required")
	ErrNoValidCredentials = errors.New("no valid credentials available")
	ErrTokenResponseEmpty = errors.New("token endpoint returned no access token")
	ErrNoConfigPersister  = errors.New("no config persister configured")
	ErrSessionInvalidated = errors.New("session was invalidated while the token was requested")
)

const redacted = "[REDACTED]"

// OAuth2Config holds the credentials used to obtain tokens.
type OAuth2Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	RefreshToken string
	// AccessToken is a pre-issued token used until it is rejected.
	AccessToken string
	// Origin selects the identity provider for the password grant.
	Origin string
	Scopes []string
}

// CredentialsFromConfig extracts the OAuth credentials of a client config.
func CredentialsFromConfig(config *capi.Config) *OAuth2Config {
	return &OAuth2Config{
		TokenURL:     config.TokenURL,
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Username:     config.Username,
		Password:     config.Password,
		RefreshToken: config.RefreshToken,
		AccessToken:  config.AccessToken,
		Origin:       config.Origin,
	}
}

func (c *OAuth2Config) hasPassword() bool {
	return c.Username != "" && c.Password != ""
}

func (c *OAuth2Config) hasClientCredentials() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// CanGrant reports whether the config can obtain tokens from the token endpoint.
func (c *OAuth2Config) CanGrant() bool {
	return c.hasPassword() || c.hasClientCredentials() || c.RefreshToken != ""
}

// Validate checks the config without contacting the server.
func (c *OAuth2Config) Validate() error {
	if !c.CanGrant() && c.AccessToken == "" {
		return capi.NewOperationError(capi.ErrConfiguration, 0, "", ErrNoIdentity)
	}

	if c.CanGrant() && c.TokenURL == "" {
		return capi.NewOperationError(capi.ErrConfiguration, 0, "", ErrTokenURLRequired)
	}

	return nil
}

func (c *OAuth2Config) String() string {
	fields := []string{"token_url=" + c.TokenURL}

	for _, field := range []struct {
		name, value string
		secret      bool
	}{
		{name: "client_id", value: c.ClientID},
		{name: "client_secret", value: c.ClientSecret, secret: true},
		{name: "username", value: c.Username},
		{name: "password", value: c.Password, secret: true},
		{name: "origin", value: c.Origin},
		{name: "refresh_token", value: c.RefreshToken, secret: true},
		{name: "access_token", value: c.AccessToken, secret: true},
	} {
		switch {
		case field.value == "":
		case field.secret:
			fields = append(fields, field.name+"="+redacted)
		default:
			fields = append(fields, field.name+"="+field.value)
		}
	}

	return "OAuth2Config{" + strings.Join(fields, ", ") + "}"
}

// GoString keeps %#v from printing secrets.
func (c *OAuth2Config) GoString() string {
	return "auth." + c.String()
}

func (c *OAuth2Config) clone() *OAuth2Config {
	copied := *c
	copied.Scopes = append([]string(nil), c.Scopes...)

	return &copied
}
