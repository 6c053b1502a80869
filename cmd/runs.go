package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newRunsCmd creates the `runs` command, which lists stored workflow runs.
func newRunsCmd(provider storeProvider) *cobra.Command {
	var limit int

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List stored workflow runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			source, cleanup, err := provider.Create(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize store: %w", err)
			}
			if cleanup != nil {
				defer cleanup()
			}

			summaries, err := source.ListRuns(ctx, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}

			if len(summaries) == 0 {
				cmd.Println("No stored runs.")
				return nil
			}
			for _, summary := range summaries {
				outcome := "succeeded"
				if !summary.Success {
					outcome = "failed"
				}
				cmd.Printf("%s  %s  %d/%d steps  %s  %s\n",
					summary.WorkflowID, outcome,
					summary.StepsCompleted, summary.StepsTotal,
					summary.Duration.Round(time.Millisecond),
					summary.StoredAt.Format(time.RFC3339))
			}
			return nil
		},
	}

	runsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of runs to list")

	return runsCmd
}
