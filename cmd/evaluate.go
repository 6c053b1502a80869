package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/observability"
	"github.com/mlvn23/patentflow/internal/service"
)

// newEvaluateCmd creates and configures the `evaluate` command.
func newEvaluateCmd(factory service.ComponentFactory) *cobra.Command {
	evaluateCmd := &cobra.Command{
		Use:   "evaluate [patent-numbers...]",
		Short: "Run a quick evaluation of one or more patents",
		Long: `Evaluate runs the quick evaluation workflow against a patent number.
Given several numbers it evaluates the set concurrently as a portfolio and
reports each patent separately.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runWorkflow(cmd, factory, func(ctx context.Context, c *service.Components) (*schemas.WorkflowResult, error) {
					return c.Coordinator.QuickEvaluation(ctx, args[0])
				})
			}
			return runPortfolio(cmd, factory, args)
		},
	}

	return evaluateCmd
}

// runPortfolio evaluates several patents concurrently and prints one line per
// patent. Any failed evaluation maps to a non-zero exit.
func runPortfolio(cmd *cobra.Command, factory service.ComponentFactory, patentNumbers []string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}

	components, err := factory.Create(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}
	defer components.Shutdown()

	byPatent, err := components.Coordinator.EvaluatePortfolio(ctx, patentNumbers)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Portfolio evaluation aborted by user signal")
			return fmt.Errorf("portfolio evaluation aborted by user signal")
		}
		return err
	}

	failed := 0
	for _, number := range patentNumbers {
		result, ok := byPatent[number]
		if !ok {
			continue
		}
		outcome := "succeeded"
		if !result.Success {
			outcome = "failed"
			failed++
		}
		cmd.Printf("%s: %s in %s (run %s)\n", number, outcome, result.TotalExecutionTime.Round(time.Millisecond), result.WorkflowID)
		for _, msg := range result.ErrorMessages {
			cmd.Printf("  error: %s\n", msg)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d portfolio evaluations failed", failed, len(patentNumbers))
	}
	return nil
}
