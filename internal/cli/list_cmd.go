package cli

import (
	"errors"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/pithecene-io/mlbstats/internal/assets"
	"github.com/pithecene-io/mlbstats/lake"
)

func newStepsCmd(g *globals) *cobra.Command {
	var group string
	cmd := &cobra.Command{
		Use:   "steps",
		Short: "List registered steps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.loadApp(cmd)
			if err != nil {
				return err
			}
			var records []map[string]any
			for _, s := range a.Registry.Steps() {
				if group != "" && s.Group != group {
					continue
				}
				inputs := make([]string, len(s.Inputs))
				for i, in := range s.Inputs {
					inputs[i] = in.Step
				}
				partitions := "-"
				if s.Partitions != nil {
					partitions = s.Partitions.String()
				}
				records = append(records, map[string]any{
					"step":        s.Name(),
					"group":       s.Group,
					"partitions":  partitions,
					"inputs":      inputs,
					"description": s.Description,
				})
			}
			return render(cmd.OutOrStdout(), g.output,
				[]string{"step", "group", "partitions", "inputs", "description"}, records)
		},
	}
	cmd.Flags().StringVar(&group, "group", "", "Only steps in this group")
	return cmd
}

func newJobsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List jobs and the partition schemes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.loadApp(cmd)
			if err != nil {
				return err
			}
			var records []map[string]any
			for _, j := range a.Registry.Jobs() {
				partitions := "-"
				if j.Partitions != nil {
					partitions = j.Partitions.String()
				}
				records = append(records, map[string]any{
					"job":        j.Name,
					"group":      j.Group,
					"partitions": partitions,
					"steps":      j.Steps,
				})
			}
			schemes := assets.Schemes()
			for _, name := range slices.Sorted(maps.Keys(schemes)) {
				records = append(records, map[string]any{
					"job":        "",
					"group":      "scheme:" + name,
					"partitions": schemes[name].String(),
					"steps":      []string{},
				})
			}
			return render(cmd.OutOrStdout(), g.output, []string{"job", "group", "partitions", "steps"}, records)
		},
	}
}

// newPartitionsCmd compares a step's expected partitions with the ones
// stored in the lake.
func newPartitionsCmd(g *globals) *cobra.Command {
	var (
		from, to    string
		missingOnly bool
	)
	cmd := &cobra.Command{
		Use:     "partitions STEP",
		Short:   "List a step's partitions and whether each is materialized",
		Example: `  mlbstats partitions raw/mlb/schedule --from 2024-06-01 --to 2024-06-30 --missing`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := g.loadApp(cmd)
			if err != nil {
				return err
			}
			s, err := a.Registry.Step(args[0])
			if err != nil {
				return err
			}

			if s.Partitions == nil {
				res := a.IO.Fetch(cmd.Context(), s.Key())
				if res.Status != lake.FetchOK && res.Status != lake.FetchNotFound {
					return res.Err
				}
				return render(cmd.OutOrStdout(), g.output, []string{"partition", "materialized"},
					[]map[string]any{{"partition": "", "materialized": res.Status == lake.FetchOK}})
			}
			stored, err := a.IO.ListPartitions(cmd.Context(), s.Namespace...)
			if err != nil {
				return err
			}

			var keys []string
			if from != "" || to != "" {
				if from == "" || to == "" {
					return errors.New("--from and --to must be given together")
				}
				if keys, err = s.Partitions.Range(from, to); err != nil {
					return err
				}
			} else {
				keys = s.Partitions.Keys(a.Orchestrator.Now())
			}

			var records []map[string]any
			for _, k := range keys {
				_, found := slices.BinarySearch(stored, lake.SanitizePartition(k))
				if missingOnly && found {
					continue
				}
				records = append(records, map[string]any{"partition": k, "materialized": found})
			}
			return render(cmd.OutOrStdout(), g.output, []string{"partition", "materialized"}, records)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "First partition key (inclusive)")
	cmd.Flags().StringVar(&to, "to", "", "Last partition key (inclusive)")
	cmd.Flags().BoolVar(&missingOnly, "missing", false, "Only partitions not yet materialized")
	return cmd
}
