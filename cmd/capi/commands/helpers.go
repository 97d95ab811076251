package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/fivetwenty-io/capi-facade/internal/constants"
	"github.com/fivetwenty-io/capi-facade/pkg/capi"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Common string constants used throughout the commands package.
const (
	NotAvailable = "N/A"

	// Output formats.
	OutputFormatTable = "table"
	OutputFormatJSON  = "json"
	OutputFormatYAML  = "yaml"

	timeFormat = "2006-01-02 15:04:05"
)

// commandContext returns a context cancelled on interrupt.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return signal.NotifyContext(ctx, os.Interrupt)
}

// renderOutput writes data in the configured output format. For the table
// format, rows supplies property/value pairs.
func renderOutput(w io.Writer, data interface{}, rows func() [][]string) error {
	output := viper.GetString("output")

	switch output {
	case OutputFormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")

		err := encoder.Encode(data)
		if err != nil {
			return fmt.Errorf("encoding output to JSON: %w", err)
		}
	case OutputFormatYAML:
		encoder := yaml.NewEncoder(w)

		err := encoder.Encode(data)
		if err != nil {
			return fmt.Errorf("encoding output to YAML: %w", err)
		}

		return encoder.Close()
	case OutputFormatTable, "":
		table := tablewriter.NewWriter(w)
		table.Header("Property", "Value")

		for _, row := range rows() {
			_ = table.Append(row)
		}

		err := table.Render()
		if err != nil {
			return fmt.Errorf("failed to render table: %w", err)
		}
	default:
		return fmt.Errorf("%w: %q", constants.ErrInvalidOutputFormat, output)
	}

	return nil
}

func valueOrNA(value string) string {
	if value == "" {
		return NotAvailable
	}

	return value
}

func jobRows(job *capi.Job) [][]string {
	rows := [][]string{
		{"GUID", job.GUID},
		{"Operation", valueOrNA(job.Operation)},
		{"State", string(job.State)},
		{"Created", job.CreatedAt.Format(timeFormat)},
		{"Updated", job.UpdatedAt.Format(timeFormat)},
	}

	if len(job.Errors) > 0 {
		var errorStrings []string
		for _, apiErr := range job.Errors {
			errorStrings = append(errorStrings, fmt.Sprintf("%s: %s", apiErr.Title, apiErr.Detail))
		}

		rows = append(rows, []string{"Errors", strings.Join(errorStrings, "\n")})
	}

	if len(job.Warnings) > 0 {
		var warningStrings []string
		for _, warning := range job.Warnings {
			warningStrings = append(warningStrings, warning.Detail)
		}

		rows = append(rows, []string{"Warnings", strings.Join(warningStrings, "\n")})
	}

	return rows
}

// parseParameters decodes a JSON object given on the command line.
func parseParameters(raw string) (map[string]interface{}, error) {
	if raw == "" {
		return nil, nil
	}

	var params map[string]interface{}

	err := json.Unmarshal([]byte(raw), &params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", constants.ErrInvalidParameters, err)
	}

	return params, nil
}

// printJobResult reports a job GUID, or synchronous completion when it is empty.
func printJobResult(w io.Writer, action, jobGUID string) {
	if jobGUID == "" {
		_, _ = fmt.Fprintf(w, "%s completed\n", action)

		return
	}

	_, _ = fmt.Fprintf(w, "%s started, job %s\n", action, jobGUID)
	_, _ = fmt.Fprintf(w, "Use 'capi jobs wait %s' to wait for completion\n", jobGUID)
}
