package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/fivetwenty-io/capi-facade/internal/constants"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

// tokenSourcer is implemented by clients that can hand out oauth2 tokens.
type tokenSourcer interface {
	TokenSource(ctx context.Context) oauth2.TokenSource
}

// TokenStatus is the token summary printed by "token status".
type TokenStatus struct {
	API             string     `json:"api"                  yaml:"api"`
	TokenType       string     `json:"token_type"           yaml:"token_type"`
	Valid           bool       `json:"valid"                yaml:"valid"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	HasRefreshToken bool       `json:"has_refresh_token"    yaml:"has_refresh_token"`
}

// NewTokenCommand creates the token command group.
func NewTokenCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage authentication tokens",
		Long:  "Commands for managing authentication tokens including status and refresh",
	}

	cmd.AddCommand(newTokenStatusCommand())
	cmd.AddCommand(newTokenRefreshCommand())

	return cmd
}

func newTokenStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show token status and expiration",
		Long:  "Display the current access token's type and expiry, obtaining a new one if it has expired",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			config, err := loadConfig()
			if err != nil {
				return err
			}

			domain, _, err := getAPIConfigByFlag(config, "")
			if err != nil {
				return err
			}

			client, err := CreateClientWithAPI(ctx, "")
			if err != nil {
				return err
			}

			sourcer, ok := client.(tokenSourcer)
			if !ok {
				return constants.ErrNotLoggedIn
			}

			source := sourcer.TokenSource(ctx)
			if source == nil {
				return constants.ErrNotLoggedIn
			}

			token, err := source.Token()
			if err != nil {
				return fmt.Errorf("failed to get token: %w", err)
			}

			status := buildTokenStatus(domain, token)

			return renderOutput(cmd.OutOrStdout(), status, func() [][]string {
				expires := NotAvailable
				if status.ExpiresAt != nil {
					expires = fmt.Sprintf("%s (in %s)", status.ExpiresAt.Format(timeFormat), time.Until(*status.ExpiresAt).Round(time.Second))
				}

				return [][]string{
					{"API", status.API},
					{"Type", status.TokenType},
					{"Valid", fmt.Sprintf("%t", status.Valid)},
					{"Expires", expires},
					{"Refresh Token", fmt.Sprintf("%t", status.HasRefreshToken)},
				}
			})
		},
	}
}

func buildTokenStatus(domain string, token *oauth2.Token) *TokenStatus {
	status := &TokenStatus{
		API:             domain,
		TokenType:       token.Type(),
		Valid:           token.Valid(),
		HasRefreshToken: token.RefreshToken != "",
	}

	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		status.ExpiresAt = &expiry
	}

	return status
}

func newTokenRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Manually refresh authentication token",
		Long:  "Force refresh the authentication token using the stored refresh token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			config, err := loadConfig()
			if err != nil {
				return err
			}

			domain, apiConfig, err := getAPIConfigByFlag(config, "")
			if err != nil {
				return err
			}

			if apiConfig.RefreshToken == "" {
				return constants.ErrNoRefreshToken
			}

			client, err := CreateClientWithAPI(ctx, "")
			if err != nil {
				return err
			}

			err = client.Login(ctx)
			if err != nil {
				return fmt.Errorf("failed to refresh token: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Token refreshed for %s\n", domain)

			return nil
		},
	}
}
