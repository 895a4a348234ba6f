package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if g.output != "table" {
				return printJSON(cmd.OutOrStdout(), map[string]string{"version": version, "commit": commit})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "mlbstats version %s (commit: %s)\n", version, commit)
			return err
		},
	}
}
