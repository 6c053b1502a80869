package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/workflow"
)

// newWorkflowsCmd creates the `workflows` command, which lists the catalog.
func newWorkflowsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "workflows",
		Short: "List the workflow catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range workflow.Names() {
				wf, err := workflow.Definition(name)
				if err != nil {
					return err
				}

				mode := "sequential"
				if wf.ParallelExecution {
					mode = "parallel"
				}
				cmd.Printf("%s (%s, %ds step timeout)\n", name, mode, wf.TimeoutSeconds)
				cmd.Printf("  steps: %s\n", describeSteps(wf))
			}
			return nil
		},
	}
}

// describeSteps renders each step with its prerequisites so the dependency
// structure is visible for parallel definitions.
func describeSteps(wf *schemas.AgentWorkflow) string {
	parts := make([]string, 0, len(wf.Steps))
	for _, step := range wf.Steps {
		prereqs := wf.Dependencies[step]
		if len(prereqs) == 0 {
			parts = append(parts, string(step))
			continue
		}
		names := make([]string, 0, len(prereqs))
		for _, prereq := range prereqs {
			names = append(names, string(prereq))
		}
		parts = append(parts, string(step)+" (after "+strings.Join(names, ", ")+")")
	}
	return strings.Join(parts, ", ")
}
