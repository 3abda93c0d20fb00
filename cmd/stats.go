package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/regwatch/fda-notice-scraper/internal/notices"
)

func newStatsCmd() *cobra.Command {
	var runLimit int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Prints notice counts and recent run history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			stats, err := a.Store().Stats(ctx)
			if err != nil {
				return fmt.Errorf("load stats: %w", err)
			}
			fmt.Fprintf(out, "notices: %d total\n", stats.Total)
			for _, cat := range notices.AllCategories() {
				fmt.Fprintf(out, "  %-14s %d\n", cat, stats.ByType[cat])
			}

			runs, err := a.Store().RecentRuns(ctx, runLimit)
			if err != nil {
				return fmt.Errorf("load runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "no runs recorded")
				return nil
			}
			fmt.Fprintln(out, "recent runs:")
			for _, run := range runs {
				line := fmt.Sprintf("  %s  %-14s %-9s %d/%d/%d",
					run.StartedAt.Format("2006-01-02 15:04"),
					run.Category, run.Status,
					run.Succeeded, run.Fallback, run.Failed)
				if run.ErrorText != nil {
					line += "  " + *run.ErrorText
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&runLimit, "runs", 10, "number of recent runs to show")
	return cmd
}
