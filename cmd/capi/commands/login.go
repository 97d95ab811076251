package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fivetwenty-io/capi-facade/internal/auth"
	"github.com/fivetwenty-io/capi-facade/internal/constants"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
	"github.com/fivetwenty-io/capi-facade/pkg/cfclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// tokenHolder is implemented by clients that keep a session.
type tokenHolder interface {
	CurrentToken() *auth.Token
}

type loginOptions struct {
	username     string
	password     string
	clientID     string
	clientSecret string
	origin       string
	spaceGUID    string
}

// NewLoginCommand creates the login command
func NewLoginCommand() *cobra.Command {
	var opts loginOptions

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Login to Cloud Foundry",
		Long:  "Authenticate with a Cloud Foundry API endpoint and store the session in the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.username, "username", "u", "", "username for authentication")
	cmd.Flags().StringVarP(&opts.password, "password", "p", "", "password for authentication")
	cmd.Flags().StringVar(&opts.clientID, "client-id", "", "OAuth2 client ID")
	cmd.Flags().StringVar(&opts.clientSecret, "client-secret", "", "OAuth2 client secret")
	cmd.Flags().StringVar(&opts.origin, "origin", "", "identity provider origin for the password grant")
	cmd.Flags().StringVar(&opts.spaceGUID, "space-guid", "", "space used to scope app lookups by name")

	return cmd
}

func runLogin(cmd *cobra.Command, opts *loginOptions) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	config, err := loadConfig()
	if err != nil {
		return err
	}

	apiEndpoint := viper.GetString("api")

	if apiEndpoint == "" && config.CurrentAPI != "" {
		if current, exists := config.APIs[config.CurrentAPI]; exists {
			apiEndpoint = current.Endpoint
		}
	}

	if apiEndpoint == "" {
		return constants.ErrNoAPIConfigured
	}

	endpoint, err := normalizeEndpoint(apiEndpoint)
	if err != nil {
		return fmt.Errorf("invalid API endpoint: %w", err)
	}

	clientConfig := &capi.Config{
		APIEndpoint: endpoint,
		Origin:      opts.origin,
		SpaceGUID:   opts.spaceGUID,
		UserAgent:   "capi-cli",
		Cache:       config.Cache.cacheConfig(),
	}

	if opts.clientID != "" && opts.clientSecret != "" {
		clientConfig.ClientID = opts.clientID
		clientConfig.ClientSecret = opts.clientSecret
	} else {
		err = promptCredentials(cmd, opts)
		if err != nil {
			return err
		}

		clientConfig.Username = opts.username
		clientConfig.Password = opts.password
	}

	client, err := cfclient.New(ctx, clientConfig)
	if err != nil {
		return err
	}

	err = client.Login(ctx)
	if err != nil {
		return err
	}

	info, err := client.GetInfo(ctx)
	if err != nil {
		return err
	}

	domain := extractDomainFromEndpoint(endpoint)

	apiConfig := &APIConfig{
		Endpoint:  endpoint,
		TokenURL:  info.TokenURL(),
		Username:  opts.username,
		Origin:    opts.origin,
		ClientID:  opts.clientID,
		SpaceGUID: opts.spaceGUID,
	}

	if holder, ok := client.(tokenHolder); ok {
		if token := holder.CurrentToken(); token != nil {
			apiConfig.Token = token.AccessToken
			apiConfig.RefreshToken = token.RefreshToken

			if !token.ExpiresAt.IsZero() {
				expiresAt := token.ExpiresAt
				apiConfig.TokenExpiresAt = &expiresAt
			}
		}
	}

	config.APIs[domain] = apiConfig
	config.CurrentAPI = domain

	err = saveConfigStruct(config)
	if err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Successfully logged in to %s\n", endpoint)
	_, _ = fmt.Fprintf(out, "API '%s' set as current target\n", domain)

	if info.APIVersion != "" {
		_, _ = fmt.Fprintf(out, "API version: %s\n", info.APIVersion)
	}

	return nil
}

func promptCredentials(cmd *cobra.Command, opts *loginOptions) error {
	reader := bufio.NewReader(cmd.InOrStdin())

	if opts.username == "" {
		_, _ = fmt.Fprint(cmd.OutOrStdout(), "Username: ")

		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read username: %w", err)
		}

		opts.username = strings.TrimSpace(line)
	}

	if opts.password == "" {
		fd := int(os.Stdin.Fd()) //nolint:gosec // file descriptors fit in int
		if !term.IsTerminal(fd) {
			return constants.ErrPasswordRequired
		}

		_, _ = fmt.Fprint(cmd.OutOrStdout(), "Password: ")

		bytePassword, err := term.ReadPassword(fd)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}

		_, _ = fmt.Fprintln(cmd.OutOrStdout())
		opts.password = string(bytePassword)
	}

	if opts.password == "" {
		return constants.ErrPasswordRequired
	}

	return nil
}

// NewLogoutCommand creates the logout command
func NewLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Logout from Cloud Foundry",
		Long:  "Discard the stored tokens for the current API",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}

			domain, apiConfig, err := getAPIConfigByFlag(config, "")
			if err != nil {
				return err
			}

			if _, stored := config.APIs[domain]; !stored {
				return constants.ErrNotLoggedIn
			}

			apiConfig.Token = ""
			apiConfig.RefreshToken = ""
			apiConfig.TokenExpiresAt = nil

			err = saveConfigStruct(config)
			if err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Successfully logged out")

			return nil
		},
	}
}
