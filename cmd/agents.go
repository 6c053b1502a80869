package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mlvn23/patentflow/internal/observability"
	"github.com/mlvn23/patentflow/internal/service"
)

// newAgentsCmd creates the `agents` command, which shows the agent roster.
func newAgentsCmd(factory service.ComponentFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "Show the agent roster and capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			components, err := factory.Create(ctx, cfg, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer components.Shutdown()

			for _, status := range components.Coordinator.AgentStatuses() {
				cmd.Printf("%s (%s)\n", status.AgentID, status.Role)
				cmd.Printf("  capabilities: %s\n", strings.Join(status.Capabilities, ", "))
			}
			return nil
		},
	}
}
