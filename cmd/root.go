// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/config"
	"github.com/mlvn23/patentflow/internal/observability"
	"github.com/mlvn23/patentflow/internal/service"
)

// contextKey carries values through the command context without colliding
// with other packages' keys.
type contextKey string

// configKey is where PersistentPreRunE stores the validated configuration
// for subcommands.
const configKey contextKey = "config"

// Execute builds the root command and runs it against os.Args. The context
// should be signal-aware so Ctrl-C cancels in-flight workflows.
func Execute(ctx context.Context) {
	if err := newRootCmd(service.NewComponentFactory()).ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		observability.Sync()
		os.Exit(1)
	}
	observability.Sync()
}

// newRootCmd wires up the full command tree. Every invocation gets its own
// viper instance and its own configuration object; nothing is stored in
// package-level singletons, which keeps parallel tests honest.
func newRootCmd(factory service.ComponentFactory) *cobra.Command {
	var (
		cfgFile  string
		logLevel string
		live     bool
	)

	rootCmd := &cobra.Command{
		Use:     "patentflow",
		Short:   "Patentflow runs multi-agent patent analysis workflows.",
		Version: Version,
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		config.SetDefaults(v)

		if err := initializeConfig(v, cfgFile); err != nil {
			// Fall back to a basic logger so the failure is still visible.
			observability.InitializeLogger(config.LoggingConfig{Level: "info", Format: "console", ServiceName: "patentflow"})
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}

		// Flag overrides beat config file and environment values.
		if logLevel != "" {
			v.Set("logging.level", logLevel)
		}
		if rootCmd.PersistentFlags().Changed("live") {
			v.Set("query.offline", !live)
		}

		cfg, err := config.NewConfigFromViper(v)
		if err != nil {
			observability.InitializeLogger(config.LoggingConfig{Level: "info", Format: "console", ServiceName: "patentflow"})
			return fmt.Errorf("failed to load or validate config: %w", err)
		}

		observability.InitializeLogger(cfg.Logging)
		observability.GetLogger().Info("Starting patentflow", zap.String("version", Version))

		// Subcommands pull the config back out with getConfigFromContext.
		cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
		return nil
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./patentflow.yaml or ~/.patentflow/patentflow.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&live, "live", false, "query the live OPS endpoint instead of the offline corpus")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	provider := NewStoreProvider()
	rootCmd.AddCommand(newSearchCmd(factory))
	rootCmd.AddCommand(newEvaluateCmd(factory))
	rootCmd.AddCommand(newMarketCmd(factory))
	rootCmd.AddCommand(newRunCmd(factory))
	rootCmd.AddCommand(newWorkflowsCmd())
	rootCmd.AddCommand(newAgentsCmd(factory))
	rootCmd.AddCommand(newReportCmd(provider))
	rootCmd.AddCommand(newRunsCmd(provider))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// initializeConfig points viper at the config file and environment.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".patentflow"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("patentflow")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("PATENTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults and env vars.
	}
	return nil
}

// getConfigFromContext retrieves the configuration stored by
// PersistentPreRunE. A miss means the command ran outside the root command's
// lifecycle, which is a wiring bug.
func getConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration missing from command context")
	}
	return cfg, nil
}

// runWorkflow builds the component graph, executes one workflow through it,
// and prints the outcome. A run that finishes with failed steps maps to a
// non-zero exit.
func runWorkflow(cmd *cobra.Command, factory service.ComponentFactory, run func(ctx context.Context, c *service.Components) (*schemas.WorkflowResult, error)) error {
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

	result, err := run(ctx, components)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("Workflow aborted by user signal")
			return fmt.Errorf("workflow aborted by user signal")
		}
		return err
	}

	printResult(cmd, result)
	if components.Store != nil {
		cmd.Printf("Run stored. Generate a report with: patentflow report %s\n", result.WorkflowID)
	}
	if !result.Success {
		return fmt.Errorf("workflow %s finished with %d error(s)", result.WorkflowID, len(result.ErrorMessages))
	}
	return nil
}

// printResult renders one finished run for the terminal.
func printResult(cmd *cobra.Command, result *schemas.WorkflowResult) {
	outcome := "succeeded"
	if !result.Success {
		outcome = "failed"
	}
	cmd.Printf("\nWorkflow %s %s in %s.\n", result.WorkflowID, outcome, result.TotalExecutionTime.Round(time.Millisecond))

	if len(result.StepsCompleted) == 0 {
		cmd.Println("Steps completed: none")
	} else {
		steps := make([]string, 0, len(result.StepsCompleted))
		for _, step := range result.StepsCompleted {
			steps = append(steps, string(step))
		}
		cmd.Printf("Steps completed: %s\n", strings.Join(steps, ", "))
	}

	envelopes := 0
	for _, stepResults := range result.Results {
		envelopes += len(stepResults)
	}
	cmd.Printf("Data envelopes produced: %d\n", envelopes)

	for _, msg := range result.ErrorMessages {
		cmd.Printf("  error: %s\n", msg)
	}
}
