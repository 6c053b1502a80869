// File: cmd/report.go
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/config"
	"github.com/mlvn23/patentflow/internal/observability"
	"github.com/mlvn23/patentflow/internal/reporting"
	"github.com/mlvn23/patentflow/internal/results"
	"github.com/mlvn23/patentflow/internal/store"
)

// runSource is the slice of the store the report commands need. *store.Store
// satisfies it; tests substitute fixtures.
type runSource interface {
	GetRun(ctx context.Context, workflowID string) (*schemas.WorkflowResult, error)
	ListRuns(ctx context.Context, limit int) ([]schemas.RunSummary, error)
}

// storeProvider builds the run source for report commands. The indirection
// allows injecting a fixture store instead of a live database connection.
type storeProvider interface {
	// Create initializes a run source and returns it with a cleanup function
	// to release resources.
	Create(ctx context.Context, cfg *config.Config) (runSource, func(), error)
}

// defaultStoreProvider is the production storeProvider. It connects to the
// configured PostgreSQL database.
type defaultStoreProvider struct{}

// NewStoreProvider creates the production store provider.
func NewStoreProvider() storeProvider {
	return &defaultStoreProvider{}
}

func (p *defaultStoreProvider) Create(ctx context.Context, cfg *config.Config) (runSource, func(), error) {
	logger := observability.GetLogger()
	if !cfg.Store.Enabled {
		return nil, nil, fmt.Errorf("run persistence is disabled; enable store.enabled and set PATENTFLOW_STORE_DSN")
	}

	dbStore, err := store.NewFromConfig(ctx, cfg.Store, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to the run store: %w", err)
	}

	cleanup := func() {
		dbStore.Close()
		logger.Debug("Run store closed.")
	}
	return dbStore, cleanup, nil
}

// newReportCmd creates and configures the `report` command.
func newReportCmd(provider storeProvider) *cobra.Command {
	var outputPath string
	var format string

	reportCmd := &cobra.Command{
		Use:   "report [workflow-id]",
		Short: "Generate a report for a stored workflow run",
		Long: `Report loads a finished run from the store, aggregates its data envelopes
into a per-patent view, and renders the result as JSON or Markdown.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			// Delegate to the testable core logic function.
			return runReport(ctx, logger, cfg, args[0], outputPath, format, provider)
		},
	}

	reportCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path. If unset, the report prints to stdout.")
	reportCmd.Flags().StringVarP(&format, "format", "f", "json", "Format for the output report ('json' or 'markdown').")

	return reportCmd
}

// runReport contains the core, testable logic for generating a report.
func runReport(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	workflowID, outputPath, format string,
	provider storeProvider,
) error {
	logger.Info("Starting report generation", zap.String("workflow_id", workflowID))

	source, cleanup, err := provider.Create(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	pipeline := results.NewPipeline(source, logger)
	report, err := pipeline.BuildReport(ctx, workflowID)
	if err != nil {
		return fmt.Errorf("failed to build report: %w", err)
	}

	reporter, err := reporting.New(format, outputPath)
	if err != nil {
		return fmt.Errorf("failed to initialize reporter: %w", err)
	}
	defer func() {
		if err := reporter.Close(); err != nil {
			logger.Warn("Failed to close reporter cleanly.", zap.Error(err))
		}
	}()

	if err := reporter.Write(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	if outputPath != "" {
		logger.Info("Report successfully written to file", zap.String("path", outputPath))
	}
	return nil
}
