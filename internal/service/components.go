// internal/service/components.go
package service

import (
	"go.uber.org/zap"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/agent"
	"github.com/mlvn23/patentflow/internal/config"
	"github.com/mlvn23/patentflow/internal/coordinator"
	"github.com/mlvn23/patentflow/internal/engine"
	"github.com/mlvn23/patentflow/internal/observability"
	"github.com/mlvn23/patentflow/internal/store"
)

// Components holds the initialized services behind a command invocation and
// centralizes their lifecycle.
type Components struct {
	Config      *config.Config
	Store       *store.Store
	LLM         schemas.LLMClient
	Pool        *engine.Pool
	Registry    *agent.Registry
	Coordinator *coordinator.Coordinator
}

// Shutdown closes all components in dependency order: the coordinator first
// so no new work reaches the pool, then the pool, then the external clients.
// Nil components from a partial initialization are skipped.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning component shutdown sequence.")

	if c.Coordinator != nil {
		c.Coordinator.Shutdown()
		logger.Debug("Coordinator stopped.")
	}

	if c.Pool != nil {
		c.Pool.Stop()
		logger.Debug("Worker pool stopped.")
	}

	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		} else {
			logger.Debug("LLM client closed.")
		}
	}

	if c.Store != nil {
		c.Store.Close()
		logger.Debug("Run store closed.")
	}

	logger.Info("All components shut down.")
}
