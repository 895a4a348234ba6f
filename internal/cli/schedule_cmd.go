package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newScheduleCmd(g *globals) *cobra.Command {
	var list bool
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run jobs on their cron schedules until interrupted",
		Long: "Run the configured schedules in the foreground. Sensors fire after each successful run.\n" +
			"SIGINT or SIGTERM stops the scheduler after running jobs finish.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := g.loadApp(cmd)
			if err != nil {
				return err
			}
			sched, err := a.Scheduler()
			if err != nil {
				return err
			}

			var records []map[string]any
			for _, u := range sched.Next() {
				records = append(records, map[string]any{"schedule": u.Schedule, "next": u.Next})
			}
			if err := render(cmd.OutOrStdout(), g.output, []string{"schedule", "next"}, records); err != nil {
				return err
			}
			if list {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			sched.Start(ctx)
			<-ctx.Done()
			a.Logger.Info("shutdown signal received")
			sched.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "Print upcoming runs and exit")
	return cmd
}
