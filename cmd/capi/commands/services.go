package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewServicesCommand creates the services command group
func NewServicesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "services",
		Aliases: []string{"service", "svc"},
		Short:   "Manage service bindings, keys and instances",
		Long:    "Bind service instances to apps, manage service keys, and delete service instances",
	}

	cmd.AddCommand(newServicesBindCommand())
	cmd.AddCommand(newServicesUnbindCommand())
	cmd.AddCommand(newServicesCreateKeyCommand())
	cmd.AddCommand(newServicesDeleteKeyCommand())
	cmd.AddCommand(newServicesDeleteInstanceCommand())

	return cmd
}

func newServicesBindCommand() *cobra.Command {
	var (
		parameters string
		wait       bool
	)

	cmd := &cobra.Command{
		Use:   "bind APP_NAME_OR_GUID SERVICE_INSTANCE_GUID",
		Short: "Bind a service instance to an app",
		Long:  "Create an app credential binding for a service instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			params, err := parseParameters(parameters)
			if err != nil {
				return err
			}

			client, err := CreateClientWithAPI(ctx, "")
			if err != nil {
				return err
			}

			app, err := findApp(ctx, client, args[0], true)
			if err != nil {
				return err
			}

			if wait {
				err = client.BindServiceInstanceAndWait(ctx, app.GUID, args[1], params)
				if err != nil {
					return fmt.Errorf("failed to bind service instance: %w", err)
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Bound service instance %s to app %s\n", args[1], app.Name)

				return nil
			}

			jobGUID, err := client.BindServiceInstance(ctx, app.GUID, args[1], params, nil)
			if err != nil {
				return fmt.Errorf("failed to bind service instance: %w", err)
			}

			printJobResult(cmd.OutOrStdout(), "Binding", jobGUID)

			return nil
		},
	}

	cmd.Flags().StringVar(&parameters, "parameters", "", "binding parameters as a JSON object")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the binding to complete")

	return cmd
}

func newServicesUnbindCommand() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "unbind APP_NAME_OR_GUID SERVICE_INSTANCE_GUID",
		Short: "Unbind a service instance from an app",
		Long:  "Delete the app credential binding between an app and a service instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			client, err := CreateClientWithAPI(ctx, "")
			if err != nil {
				return err
			}

			app, err := findApp(ctx, client, args[0], true)
			if err != nil {
				return err
			}

			if wait {
				err = client.UnbindServiceInstanceAndWait(ctx, app.GUID, args[1])
				if err != nil {
					return fmt.Errorf("failed to unbind service instance: %w", err)
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Unbound service instance %s from app %s\n", args[1], app.Name)

				return nil
			}

			jobGUID, err := client.ServiceCredentialBindings().Unbind(ctx, app.GUID, args[1])
			if err != nil {
				return fmt.Errorf("failed to unbind service instance: %w", err)
			}

			printJobResult(cmd.OutOrStdout(), "Unbinding", jobGUID)

			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the unbinding to complete")

	return cmd
}

func newServicesCreateKeyCommand() *cobra.Command {
	var (
		parameters string
		wait       bool
	)

	cmd := &cobra.Command{
		Use:   "create-key SERVICE_INSTANCE_GUID KEY_NAME",
		Short: "Create a service key",
		Long:  "Create a named service key for a service instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			params, err := parseParameters(parameters)
			if err != nil {
				return err
			}

			client, err := CreateClientWithAPI(ctx, "")
			if err != nil {
				return err
			}

			jobGUID, err := client.ServiceCredentialBindings().CreateKey(ctx, args[0], args[1], params)
			if err != nil {
				return fmt.Errorf("failed to create service key: %w", err)
			}

			if !wait {
				printJobResult(cmd.OutOrStdout(), "Key creation", jobGUID)

				return nil
			}

			err = client.Jobs().AwaitJob(ctx, jobGUID)
			if err != nil {
				return fmt.Errorf("failed to create service key: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created service key %s\n", args[1])

			return nil
		},
	}

	cmd.Flags().StringVar(&parameters, "parameters", "", "key parameters as a JSON object")
	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the key to be created")

	return cmd
}

func newServicesDeleteKeyCommand() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "delete-key SERVICE_INSTANCE_GUID KEY_NAME",
		Short: "Delete a service key",
		Long:  "Delete a named service key of a service instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			client, err := CreateClientWithAPI(ctx, "")
			if err != nil {
				return err
			}

			key, err := client.ServiceCredentialBindings().GetKeyByName(ctx, args[0], args[1])
			if err != nil {
				return fmt.Errorf("failed to find service key: %w", err)
			}

			jobGUID, err := client.DeleteServiceBinding(ctx, key.GUID, nil)
			if err != nil {
				return fmt.Errorf("failed to delete service key: %w", err)
			}

			if !wait {
				printJobResult(cmd.OutOrStdout(), "Key deletion", jobGUID)

				return nil
			}

			err = client.Jobs().AwaitJob(ctx, jobGUID)
			if err != nil {
				return fmt.Errorf("failed to delete service key: %w", err)
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted service key %s\n", args[1])

			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the key to be deleted")

	return cmd
}

func newServicesDeleteInstanceCommand() *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "delete-instance SERVICE_INSTANCE_GUID",
		Short: "Delete a service instance",
		Long:  "Delete a service instance, optionally waiting for the broker to finish",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			client, err := CreateClientWithAPI(ctx, "")
			if err != nil {
				return err
			}

			if wait {
				err = client.DeleteServiceInstanceAndWait(ctx, args[0])
				if err != nil {
					return fmt.Errorf("failed to delete service instance: %w", err)
				}

				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Deleted service instance %s\n", args[0])

				return nil
			}

			jobGUID, err := client.ServiceInstances().Delete(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to delete service instance: %w", err)
			}

			printJobResult(cmd.OutOrStdout(), "Deletion", jobGUID)

			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "wait for the deletion to complete")

	return cmd
}
