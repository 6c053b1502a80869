package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/service"
	"github.com/mlvn23/patentflow/internal/workflow"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd(factory service.ComponentFactory) *cobra.Command {
	var (
		params     []string
		sequential bool
		timeout    int
	)

	runCmd := &cobra.Command{
		Use:   "run [workflow-name]",
		Short: "Run a catalog workflow by name with explicit parameters",
		Long: `Run executes a workflow straight from the catalog. Input parameters are
passed as repeated --param key=value flags; see 'patentflow workflows' for
the available definitions and their steps.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := workflow.Definition(args[0])
			if err != nil {
				return err
			}
			seed, err := parseParams(params)
			if err != nil {
				return err
			}
			wf.Input = seed
			if cmd.Flags().Changed("sequential") {
				wf.ParallelExecution = !sequential
			}
			if cmd.Flags().Changed("timeout") {
				wf.TimeoutSeconds = timeout
			}

			return runWorkflow(cmd, factory, func(ctx context.Context, c *service.Components) (*schemas.WorkflowResult, error) {
				return c.Coordinator.Execute(ctx, wf)
			})
		},
	}

	runCmd.Flags().StringArrayVarP(&params, "param", "p", nil, "workflow input as key=value, repeatable")
	runCmd.Flags().BoolVar(&sequential, "sequential", false, "force sequential step execution regardless of the catalog default")
	runCmd.Flags().IntVar(&timeout, "timeout", 0, "per-step timeout in seconds, overriding the catalog default")

	return runCmd
}

// parseParams turns repeated key=value flags into a workflow input map.
// Comma-separated values become string lists and bare integers become ints so
// the stage parameter readers see their natural types.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	seed := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, expected key=value", pair)
		}
		seed[key] = parseParamValue(value)
	}
	return seed, nil
}

func parseParamValue(value string) any {
	if strings.Contains(value, ",") {
		parts := strings.Split(value, ",")
		list := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				list = append(list, trimmed)
			}
		}
		return list
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}
