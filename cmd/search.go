package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/coordinator"
	"github.com/mlvn23/patentflow/internal/service"
)

// newSearchCmd creates and configures the `search` command.
func newSearchCmd(factory service.ComponentFactory) *cobra.Command {
	var (
		maxResults int
		sequential bool
		parallel   bool
		timeout    int
	)

	searchCmd := &cobra.Command{
		Use:   "search [keywords...]",
		Short: "Run the comprehensive analysis workflow over a keyword search",
		Long: `Search seeds the comprehensive analysis workflow with the given keywords.
The query stage pulls matching patents, and processing, analysis, coverage,
and market assessment run over the results as a parallel wavefront.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []coordinator.RunOption
			if sequential {
				opts = append(opts, coordinator.Sequential())
			} else if parallel {
				opts = append(opts, coordinator.Parallel())
			}
			if cmd.Flags().Changed("timeout") {
				opts = append(opts, coordinator.StepTimeout(timeout))
			}

			return runWorkflow(cmd, factory, func(ctx context.Context, c *service.Components) (*schemas.WorkflowResult, error) {
				return c.Coordinator.SearchPatents(ctx, args, maxResults, opts...)
			})
		},
	}

	searchCmd.Flags().IntVarP(&maxResults, "max-results", "n", 30, "maximum number of patents to pull from the search stage")
	searchCmd.Flags().BoolVar(&sequential, "sequential", false, "force sequential step execution")
	searchCmd.Flags().BoolVar(&parallel, "parallel", false, "force parallel step execution")
	searchCmd.Flags().IntVar(&timeout, "timeout", 0, "per-step timeout in seconds, overriding the catalog default")
	searchCmd.MarkFlagsMutuallyExclusive("sequential", "parallel")

	return searchCmd
}
