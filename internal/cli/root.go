// Package cli implements the mlbstats command line.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pithecene-io/mlbstats/internal/app"
	"github.com/pithecene-io/mlbstats/internal/config"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" || output == "jsonl" {
			_ = printJSON(os.Stdout, map[string]any{"error": err.Error()})
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// globals are the persistent flags shared by every command.
type globals struct {
	envDir string
	env    string
	output string
}

// loadApp reads the environment's dotenv file and config and wires the app.
func (g *globals) loadApp(cmd *cobra.Command) (*app.App, error) {
	if _, err := config.LoadEnvironment(g.envDir, g.env); err != nil {
		return nil, err
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	return app.New(cmd.Context(), cfg, app.NewLogger(cfg, cmd.ErrOrStderr()))
}

func newRootCmd() *cobra.Command {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "mlbstats",
		Short:         "MLB and Ottoneu data lake pipeline",
		Long:          "Materialize MLB Stats API and Ottoneu data into a Parquet lake, run jobs on schedules, and query the lake with DuckDB.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return validateOutputFormat(g.output)
		},
	}

	rootCmd.PersistentFlags().StringVar(&g.envDir, "env-dir", "env", "Directory holding .env.<environment> files")
	rootCmd.PersistentFlags().StringVar(&g.env, "env", "", "Environment name (default $ENV or development)")
	rootCmd.PersistentFlags().StringVarP(&g.output, "output", "o", "table", "Output format (table, json, jsonl)")

	rootCmd.AddCommand(
		newMaterializeCmd(g),
		newRunJobCmd(g),
		newBackfillCmd(g),
		newStepsCmd(g),
		newJobsCmd(g),
		newPartitionsCmd(g),
		newScheduleCmd(g),
		newQueryCmd(g),
		newVersionCmd(g),
	)
	return rootCmd
}
