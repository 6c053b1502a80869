package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/service"
)

// newMarketCmd creates and configures the `market` command.
func newMarketCmd(factory service.ComponentFactory) *cobra.Command {
	var maxResults int

	marketCmd := &cobra.Command{
		Use:   "market [technology-area]",
		Short: "Run the market focused workflow for a technology area",
		Long: `Market searches a technology area and assesses the commercial relevance of
the patents it finds. Known areas are pharmaceutical, chemical, and biotech;
anything else searches the pharmaceutical preparation classes.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflow(cmd, factory, func(ctx context.Context, c *service.Components) (*schemas.WorkflowResult, error) {
				return c.Coordinator.MarketAnalysis(ctx, args[0], maxResults)
			})
		},
	}

	marketCmd.Flags().IntVarP(&maxResults, "max-results", "n", 30, "maximum number of patents to pull from the search stage")

	return marketCmd
}
