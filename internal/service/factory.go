// internal/service/factory.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mlvn23/patentflow/internal/agent"
	"github.com/mlvn23/patentflow/internal/config"
	"github.com/mlvn23/patentflow/internal/coordinator"
	"github.com/mlvn23/patentflow/internal/engine"
	"github.com/mlvn23/patentflow/internal/llmclient"
	"github.com/mlvn23/patentflow/internal/store"
)

// ComponentFactory creates the component set a command runs against. The
// abstraction lets command tests substitute a stub factory.
type ComponentFactory interface {
	Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error)
}

type concreteFactory struct{}

// NewComponentFactory creates the production component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{}
}

func (f *concreteFactory) Create(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	return BuildComponents(ctx, cfg, logger)
}

// BuildComponents wires the full dependency graph: optional store and LLM
// clients, the shared worker pool, the agent roster, and the coordinator on
// top. A failure partway tears down whatever was already initialized.
func BuildComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	components := &Components{Config: cfg}

	var initializationErr error
	defer func() {
		if initializationErr != nil {
			logger.Warn("Initialization failed, shutting down partially created components.",
				zap.Error(initializationErr))
			components.Shutdown()
		}
	}()

	// 1. Run store (optional).
	dbStore, err := store.NewFromConfig(ctx, cfg.Store, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize run store: %w", err)
		return nil, initializationErr
	}
	components.Store = dbStore
	if dbStore != nil {
		logger.Debug("Run store initialized.")
	} else {
		logger.Debug("Run persistence disabled.")
	}

	// 2. LLM collaborator (optional).
	llm, err := llmclient.NewFromConfig(cfg.LLM, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize LLM client: %w", err)
		return nil, initializationErr
	}
	components.LLM = llm
	if llm != nil {
		logger.Debug("LLM client initialized.")
	} else {
		logger.Debug("LLM collaborator disabled, analysis will use heuristics.")
	}

	// 3. Worker pool.
	pool, err := engine.NewPool(cfg.Coordinator.MaxWorkers, cfg.Coordinator.QueueDepth, logger)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create worker pool: %w", err)
		return nil, initializationErr
	}
	pool.Start(ctx)
	components.Pool = pool
	logger.Debug("Worker pool started.")

	// 4. Agent roster.
	registry, err := agent.NewRegistry(cfg, logger, llm)
	if err != nil {
		initializationErr = fmt.Errorf("failed to initialize agent registry: %w", err)
		return nil, initializationErr
	}
	components.Registry = registry
	logger.Debug("Agent registry initialized.")

	// 5. Coordinator.
	opts := []coordinator.Option{}
	if dbStore != nil {
		opts = append(opts, coordinator.WithRunStore(dbStore))
	}
	coord, err := coordinator.New(cfg, registry, pool, logger, opts...)
	if err != nil {
		initializationErr = fmt.Errorf("failed to create coordinator: %w", err)
		return nil, initializationErr
	}
	components.Coordinator = coord

	logger.Info("All components initialized successfully.")
	return components, nil
}
