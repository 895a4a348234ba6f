package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/pithecene-io/mlbstats/internal/pipeline"
)

var stepColumns = []string{"job", "step", "partition", "rows", "path", "attempts", "elapsed_ms"}

func stepRecord(job string, r *pipeline.StepResult) map[string]any {
	rec := map[string]any{
		"run_id":     r.RunID,
		"job":        job,
		"step":       r.Step,
		"partition":  r.Partition,
		"rows":       0,
		"path":       nil,
		"attempts":   r.Attempts,
		"elapsed_ms": r.Elapsed.Milliseconds(),
		"metadata":   r.Metadata,
	}
	if m := r.Materialization; m != nil {
		rec["rows"] = m.Rows
		rec["path"] = m.Path.String()
	}
	return rec
}

func runRecord(r *pipeline.RunResult) map[string]any {
	steps := make([]map[string]any, len(r.Steps))
	for i, s := range r.Steps {
		steps[i] = stepRecord(r.Job, s)
	}
	triggered := make([]map[string]any, len(r.Triggered))
	for i, t := range r.Triggered {
		triggered[i] = runRecord(t)
	}
	rec := map[string]any{
		"run_id":    r.RunID,
		"job":       r.Job,
		"partition": r.Partition,
		"status":    r.Status.String(),
		"steps":     steps,
		"skipped":   r.Skipped,
		"triggered": triggered,
	}
	if r.Err != nil {
		rec["error"] = r.Err.Error()
	}
	return rec
}

// flattenRuns lists the step records of runs and every run they triggered.
func flattenRuns(runs []*pipeline.RunResult) []map[string]any {
	var out []map[string]any
	for _, r := range runs {
		for _, s := range r.Steps {
			out = append(out, stepRecord(r.Job, s))
		}
		out = append(out, flattenRuns(r.Triggered)...)
	}
	return out
}

func renderRuns(w io.Writer, output string, runs []*pipeline.RunResult) error {
	if output == "table" {
		return render(w, output, stepColumns, flattenRuns(runs))
	}
	records := make([]map[string]any, 0, len(runs))
	for _, r := range runs {
		if r != nil {
			records = append(records, runRecord(r))
		}
	}
	return render(w, output, nil, records)
}

func newMaterializeCmd(g *globals) *cobra.Command {
	var partition string
	cmd := &cobra.Command{
		Use:   "materialize STEP",
		Short: "Materialize one step for one partition",
		Example: `  mlbstats materialize raw/mlb/schedule --partition 2024-06-01
  mlbstats materialize raw/mlb/translations/game_types`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.loadApp(cmd)
			if err != nil {
				return err
			}
			res, err := a.Orchestrator.RunStep(cmd.Context(), args[0], partition)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), g.output, stepColumns[1:], []map[string]any{stepRecord("", res)})
		},
	}
	cmd.Flags().StringVarP(&partition, "partition", "p", "", "Partition key (omit for unpartitioned steps)")
	return cmd
}

func newRunJobCmd(g *globals) *cobra.Command {
	var partition string
	cmd := &cobra.Command{
		Use:     "run-job JOB",
		Short:   "Run every step of a job for one partition",
		Example: `  mlbstats run-job raw_mlb_api_job --partition 2024-06-01`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.loadApp(cmd)
			if err != nil {
				return err
			}
			run, runErr := a.Orchestrator.RunJob(cmd.Context(), args[0], partition)
			if run != nil {
				if err := renderRuns(cmd.OutOrStdout(), g.output, []*pipeline.RunResult{run}); err != nil {
					return err
				}
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&partition, "partition", "p", "", "Partition key (omit for unpartitioned jobs)")
	return cmd
}

func newBackfillCmd(g *globals) *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:     "backfill JOB",
		Short:   "Run a partitioned job over a range of partitions",
		Example: `  mlbstats backfill raw_mlb_api_job --from 2024-03-28 --to 2024-09-29`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.loadApp(cmd)
			if err != nil {
				return err
			}
			runs, runErr := a.Orchestrator.Backfill(cmd.Context(), args[0], from, to)
			if err := renderRuns(cmd.OutOrStdout(), g.output, runs); err != nil {
				return err
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First partition key (inclusive)")
	cmd.Flags().StringVar(&to, "to", "", "Last partition key (inclusive)")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
