// internal/agent/registry.go
package agent

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/config"
)

// ErrUnknownRole is returned when a workflow names a step no agent serves.
var ErrUnknownRole = errors.New("no agent registered for workflow role")

// Registry maps workflow roles to the agents that serve them. The coordinator
// resolves every step of a workflow through it before dispatch.
type Registry struct {
	logger *zap.Logger
	agents map[schemas.WorkflowStep]schemas.Agent
}

// Option configures a Registry during construction.
type Option func(*Registry)

// WithAgents installs the given role bindings, overriding the default roster.
// Primarily used by tests to inject scripted agents.
func WithAgents(agents map[schemas.WorkflowStep]schemas.Agent) Option {
	return func(r *Registry) {
		for role, a := range agents {
			r.agents[role] = a
		}
	}
}

// NewRegistry builds the agent roster. With no options it constructs the five
// stock agents from the configuration; options replace that roster entirely.
func NewRegistry(cfg *config.Config, logger *zap.Logger, llm schemas.LLMClient, opts ...Option) (*Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("registry requires a config")
	}
	if logger == nil {
		return nil, fmt.Errorf("registry requires a logger")
	}

	r := &Registry{
		logger: logger.Named("registry"),
		agents: make(map[schemas.WorkflowStep]schemas.Agent),
	}
	for _, opt := range opts {
		opt(r)
	}
	if len(r.agents) == 0 {
		if err := r.registerDefaults(cfg, llm); err != nil {
			return nil, err
		}
	}

	roles := make([]string, 0, len(r.agents))
	for role := range r.agents {
		roles = append(roles, string(role))
	}
	sort.Strings(roles)
	r.logger.Info("Agent roster ready", zap.Strings("roles", roles))
	return r, nil
}

func (r *Registry) registerDefaults(cfg *config.Config, llm schemas.LLMClient) error {
	query, err := NewQueryAgent(cfg.Query, cfg.Cache, r.logger)
	if err != nil {
		return fmt.Errorf("building query agent: %w", err)
	}
	processing, err := NewProcessingAgent(cfg.Cache, r.logger)
	if err != nil {
		return fmt.Errorf("building processing agent: %w", err)
	}
	analysis, err := NewAnalysisAgent(cfg.Cache, r.logger, llm)
	if err != nil {
		return fmt.Errorf("building analysis agent: %w", err)
	}
	coverage, err := NewCoverageAgent(cfg.Cache, r.logger)
	if err != nil {
		return fmt.Errorf("building coverage agent: %w", err)
	}
	marketing, err := NewMarketingAgent(cfg.Cache, r.logger)
	if err != nil {
		return fmt.Errorf("building marketing agent: %w", err)
	}

	r.agents[schemas.StepQuery] = query
	r.agents[schemas.StepProcess] = processing
	r.agents[schemas.StepAnalyze] = analysis
	r.agents[schemas.StepCoverage] = coverage
	r.agents[schemas.StepMarketing] = marketing
	return nil
}

// AgentFor resolves the agent serving a workflow role.
func (r *Registry) AgentFor(step schemas.WorkflowStep) (schemas.Agent, error) {
	a, ok := r.agents[step]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, step)
	}
	return a, nil
}

// Roles returns the registered roles in stable order.
func (r *Registry) Roles() []schemas.WorkflowStep {
	roles := make([]schemas.WorkflowStep, 0, len(r.agents))
	for role := range r.agents {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	return roles
}

// Statuses snapshots every registered agent, ordered by role for stable
// CLI and report output.
func (r *Registry) Statuses() []schemas.AgentStatus {
	statuses := make([]schemas.AgentStatus, 0, len(r.agents))
	for _, role := range r.Roles() {
		statuses = append(statuses, r.agents[role].Status())
	}
	return statuses
}

var (
	_ schemas.Agent = (*QueryAgent)(nil)
	_ schemas.Agent = (*ProcessingAgent)(nil)
	_ schemas.Agent = (*AnalysisAgent)(nil)
	_ schemas.Agent = (*CoverageAgent)(nil)
	_ schemas.Agent = (*MarketingAgent)(nil)
)
