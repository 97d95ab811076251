package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewInfoCommand creates the info command
func NewInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Display API endpoint information",
		Long:  "Display the discovery document of the Cloud Foundry API endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			client, err := CreateClientWithAPI(ctx, "")
			if err != nil {
				return err
			}

			info, err := client.GetInfo(ctx)
			if err != nil {
				return fmt.Errorf("failed to get API info: %w", err)
			}

			return renderOutput(cmd.OutOrStdout(), info, func() [][]string {
				return [][]string{
					{"Name", valueOrNA(info.Name)},
					{"Build", valueOrNA(info.Build)},
					{"API Version", valueOrNA(info.APIVersion)},
					{"Description", valueOrNA(info.Description)},
					{"Authorization Endpoint", info.AuthorizationEndpoint},
					{"Token Endpoint", info.TokenURL()},
					{"CLI Minimum", valueOrNA(info.MinCLIVersion)},
				}
			})
		},
	}
}
