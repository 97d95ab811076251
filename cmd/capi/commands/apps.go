package commands

import (
	"context"
	"fmt"

	"github.com/fivetwenty-io/capi-facade/pkg/capi"
	"github.com/spf13/cobra"
)

// NewAppsCommand creates the apps command group
func NewAppsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "apps",
		Aliases: []string{"app", "applications"},
		Short:   "Look up applications",
		Long:    "Look up Cloud Foundry applications by name or GUID",
	}

	cmd.AddCommand(newAppsGetCommand())

	return cmd
}

func newAppsGetCommand() *cobra.Command {
	var required bool

	cmd := &cobra.Command{
		Use:   "get APP_NAME_OR_GUID",
		Short: "Get application details",
		Long:  "Display an application by name, falling back to a GUID lookup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			client, err := CreateClientWithAPI(ctx, "")
			if err != nil {
				return err
			}

			app, err := findApp(ctx, client, args[0], required)
			if err != nil {
				return err
			}

			if app == nil {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "App '%s' not found\n", args[0])

				return nil
			}

			return renderOutput(cmd.OutOrStdout(), app, func() [][]string {
				spaceGUID := NotAvailable
				if app.Relationships.Space.Data != nil {
					spaceGUID = app.Relationships.Space.Data.GUID
				}

				return [][]string{
					{"Name", app.Name},
					{"GUID", app.GUID},
					{"State", valueOrNA(app.State)},
					{"Lifecycle", valueOrNA(app.Lifecycle.Type)},
					{"Space GUID", spaceGUID},
					{"Created", app.CreatedAt.Format(timeFormat)},
					{"Updated", app.UpdatedAt.Format(timeFormat)},
				}
			})
		},
	}

	cmd.Flags().BoolVar(&required, "required", false, "fail when the app does not exist")

	return cmd
}

// findApp looks nameOrGUID up as a name first and then as a GUID. A missing
// app is nil unless required is set.
func findApp(ctx context.Context, client capi.Client, nameOrGUID string, required bool) (*capi.App, error) {
	app, err := client.Apps().GetByName(ctx, nameOrGUID, false)
	if err != nil {
		return nil, fmt.Errorf("failed to find app: %w", err)
	}

	if app != nil {
		return app, nil
	}

	app, err = client.Apps().Get(ctx, nameOrGUID, required)
	if err != nil {
		return nil, fmt.Errorf("failed to find app: %w", err)
	}

	return app, nil
}
