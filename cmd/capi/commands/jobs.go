package commands

import (
	"fmt"
	"time"

	"github.com/fivetwenty-io/capi-facade/internal/constants"
	"github.com/spf13/cobra"
)

// NewJobsCommand creates the jobs command group
func NewJobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "jobs",
		Aliases: []string{"job"},
		Short:   "Manage asynchronous jobs",
		Long:    "Monitor Cloud Foundry asynchronous jobs",
	}

	cmd.AddCommand(newJobsGetCommand())
	cmd.AddCommand(newJobsWaitCommand())

	return cmd
}

func newJobsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get JOB_GUID",
		Short: "Get job details",
		Long:  "Display detailed information about a specific job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			client, err := CreateClientWithAPI(ctx, "")
			if err != nil {
				return err
			}

			job, err := client.Jobs().Get(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to get job: %w", err)
			}

			return renderOutput(cmd.OutOrStdout(), job, func() [][]string { return jobRows(job) })
		},
	}
}

func newJobsWaitCommand() *cobra.Command {
	var (
		interval time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:     "wait JOB_GUID",
		Aliases: []string{"poll"},
		Short:   "Wait for a job to finish",
		Long:    "Poll a job until it completes, fails, or times out",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()

			if interval <= 0 {
				return fmt.Errorf("%w: --interval %s", constants.ErrInvalidPollInterval, interval)
			}

			client, err := CreateClientWithAPI(ctx, "")
			if err != nil {
				return err
			}

			job, err := client.Jobs().AwaitCompletion(ctx, args[0], interval, timeout)
			if job != nil {
				renderErr := renderOutput(cmd.OutOrStdout(), job, func() [][]string { return jobRows(job) })
				if renderErr != nil && err == nil {
					err = renderErr
				}
			}

			return err
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", constants.DefaultPollInterval, "polling interval")
	cmd.Flags().DurationVar(&timeout, "timeout", constants.DefaultJobPollTimeout, "polling timeout")

	return cmd
}
