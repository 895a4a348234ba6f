package cli

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

func newQueryCmd(g *globals) *cobra.Command {
	var listViews bool
	cmd := &cobra.Command{
		Use:   "query SQL",
		Short: "Query the lake with DuckDB",
		Long: "Run SQL against the lake. Every materialized step is available as a view named\n" +
			"after its namespace, e.g. raw/mlb/schedule is raw_mlb_schedule.",
		Example: `  mlbstats query "SELECT official_date, count(*) FROM raw_mlb_schedule GROUP BY 1 ORDER BY 1"
  mlbstats query --views`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !listViews && len(args) == 0 {
				return errors.New("query needs SQL or --views")
			}
			a, err := g.loadApp(cmd)
			if err != nil {
				return err
			}
			pond, views, err := a.OpenPond(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = pond.Close() }()

			if listViews {
				records := make([]map[string]any, len(views))
				for i, v := range views {
					records[i] = map[string]any{"view": v}
				}
				return render(cmd.OutOrStdout(), g.output, []string{"view"}, records)
			}

			res, err := pond.Query(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			records := make([]map[string]any, len(res.Rows))
			for i, row := range res.Rows {
				rec := make(map[string]any, len(row))
				for j, c := range res.Columns {
					rec[c] = row[j]
				}
				records[i] = rec
			}
			return render(cmd.OutOrStdout(), g.output, res.Columns, records)
		},
	}
	cmd.Flags().BoolVar(&listViews, "views", false, "List the registered views and exit")
	return cmd
}
