package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// NewRootCommand builds the capi command tree.
func NewRootCommand(version, commit, date string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "capi",
		Short: "Cloud Foundry control plane CLI",
		Long: `A command-line interface for the Cloud Foundry control plane.

It logs in through the platform's authorization server, looks up apps,
manages service bindings, keys and instances, and waits for the
asynchronous jobs those operations start.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.capi/config.yml)")
	flags.StringP("api", "a", "", "API endpoint URL or configured API name")
	flags.StringP("token", "t", "", "access token to use instead of the stored one")
	flags.StringP("output", "o", OutputFormatTable, "output format (table, json, yaml)")
	flags.BoolP("verbose", "v", false, "log HTTP traffic to stderr")

	for _, name := range []string{"config", "api", "token", "output", "verbose"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}

	rootCmd.AddCommand(NewVersionCommand(version, commit, date))
	rootCmd.AddCommand(NewLoginCommand())
	rootCmd.AddCommand(NewLogoutCommand())
	rootCmd.AddCommand(NewInfoCommand())
	rootCmd.AddCommand(NewTokenCommand())
	rootCmd.AddCommand(NewJobsCommand())
	rootCmd.AddCommand(NewAppsCommand())
	rootCmd.AddCommand(NewServicesCommand())

	return rootCmd
}

// initConfig reads $HOME/.capi/config.yml (or --config) and CAPI_* variables.
func initConfig() error {
	viper.SetEnvPrefix("CAPI")
	viper.AutomaticEnv()

	configFile, err := configFilePath()
	if err != nil {
		return err
	}

	viper.SetConfigFile(configFile)
	viper.SetConfigType("yaml")

	err = viper.ReadInConfig()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	if viper.GetBool("verbose") && viper.ConfigFileUsed() != "" {
		_, _ = fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}

	return nil
}
