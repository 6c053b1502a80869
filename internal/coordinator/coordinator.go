// internal/coordinator/coordinator.go
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/agent"
	"github.com/mlvn23/patentflow/internal/config"
	"github.com/mlvn23/patentflow/internal/workflow"
)

// defaultTaskPriority is assigned to tasks the scheduler creates. Priority is
// carried on the task for operators; dispatch order comes from the DAG.
const defaultTaskPriority = 5

var (
	// ErrShutdown is returned by Execute once Shutdown has begun.
	ErrShutdown = errors.New("coordinator is shutting down")
	// ErrWorkflowNotFound is returned when a status query names no active run.
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// Coordinator schedules workflow runs over the registered agents. It owns no
// agent state: it wires step inputs from upstream results, dispatches tasks,
// and folds terminal task states into a WorkflowResult. Runs never retry a
// failed step.
type Coordinator struct {
	logger   *zap.Logger
	cfg      config.CoordinatorConfig
	registry *agent.Registry
	pool     schemas.WorkerPool
	store    schemas.RunStore
	metrics  *Metrics
	now      func() time.Time

	// sem bounds the number of workflows in flight at once.
	sem *semaphore.Weighted

	mu           sync.Mutex
	active       map[string]*activeRun
	shuttingDown bool
	wg           sync.WaitGroup
}

// activeRun tracks one in-flight execution for status queries.
type activeRun struct {
	definition *schemas.AgentWorkflow
	startedAt  time.Time
	mode       string
}

// RunStatus is a point-in-time view of one active run.
type RunStatus struct {
	WorkflowID string        `json:"workflow_id"`
	Mode       string        `json:"mode"`
	Steps      int           `json:"steps"`
	StartedAt  time.Time     `json:"started_at"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Option customizes coordinator construction.
type Option func(*Coordinator)

// WithRunStore attaches optional run persistence. Persistence failures are
// logged and never alter the returned result.
func WithRunStore(store schemas.RunStore) Option {
	return func(c *Coordinator) { c.store = store }
}

// WithMetrics replaces the shared collectors, letting tests register against
// an isolated registry.
func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithClock replaces the wall clock used for run timing.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New creates a coordinator over the given agent roster and worker pool.
func New(cfg *config.Config, registry *agent.Registry, pool schemas.WorkerPool, logger *zap.Logger, opts ...Option) (*Coordinator, error) {
	if cfg == nil || registry == nil || pool == nil || logger == nil {
		return nil, errors.New("cannot initialize coordinator with nil dependencies")
	}

	c := &Coordinator{
		logger:   logger.Named("coordinator"),
		cfg:      cfg.Coordinator,
		registry: registry,
		pool:     pool,
		now:      time.Now,
		sem:      semaphore.NewWeighted(int64(cfg.Coordinator.MaxConcurrentWorkflows)),
		active:   make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.metrics == nil {
		c.metrics = defaultMetrics()
	}

	c.logger.Info("Coordinator initialized",
		zap.Int("max_concurrent_workflows", cfg.Coordinator.MaxConcurrentWorkflows),
		zap.Duration("default_step_timeout", cfg.Coordinator.DefaultTimeout))
	return c, nil
}

// ExecuteByName instantiates the named catalog workflow, merges the seed
// parameters into its input, applies any run options, and executes it.
func (c *Coordinator) ExecuteByName(ctx context.Context, name string, seed map[string]any, opts ...RunOption) (*schemas.WorkflowResult, error) {
	def, err := workflow.Definition(name)
	if err != nil {
		return nil, err
	}
	mergeSeed(def, seed)
	for _, opt := range opts {
		opt(def)
	}
	return c.Execute(ctx, def)
}

// Execute runs one workflow to completion and returns its result. Definition
// problems (an invalid DAG, a step with no registered agent) come back as an
// error with no result; step failures during the run are folded into the
// result's error messages instead.
func (c *Coordinator) Execute(ctx context.Context, wf *schemas.AgentWorkflow) (*schemas.WorkflowResult, error) {
	if err := workflow.Validate(wf); err != nil {
		return nil, err
	}

	// Resolve every agent up front so an incomplete roster is a caller
	// error, not a mid-run step failure.
	run := wf.Clone()
	agents := make(map[schemas.WorkflowStep]schemas.Agent, len(run.Steps))
	for _, step := range run.Steps {
		ag, err := c.registry.AgentFor(step)
		if err != nil {
			return nil, err
		}
		agents[step] = ag
	}

	c.mu.Lock()
	if c.shuttingDown {
		c.mu.Unlock()
		return nil, ErrShutdown
	}
	c.wg.Add(1)
	c.mu.Unlock()
	defer c.wg.Done()

	if err := c.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring workflow slot: %w", err)
	}
	defer c.sem.Release(1)

	mode := "sequential"
	if run.ParallelExecution {
		mode = "parallel"
	}
	started := c.now()

	c.mu.Lock()
	c.active[run.WorkflowID] = &activeRun{definition: run, startedAt: started, mode: mode}
	c.mu.Unlock()
	c.metrics.IncActiveWorkflows()
	defer func() {
		c.metrics.DecActiveWorkflows()
		c.mu.Lock()
		delete(c.active, run.WorkflowID)
		c.mu.Unlock()
	}()

	logger := c.logger.With(
		zap.String("workflow_id", run.WorkflowID),
		zap.String("mode", mode))
	logger.Info("Starting workflow execution", zap.Int("steps", len(run.Steps)))

	result := schemas.NewWorkflowResult(run.WorkflowID)
	if run.ParallelExecution {
		c.runParallel(ctx, run, agents, result, logger)
	} else {
		c.runSequential(ctx, run, agents, result, logger)
	}

	result.TotalExecutionTime = c.now().Sub(started)
	result.Success = len(result.StepsCompleted) == len(run.Steps)

	logger.Info("Workflow execution finished",
		zap.Bool("success", result.Success),
		zap.Int("steps_completed", len(result.StepsCompleted)),
		zap.Int("errors", len(result.ErrorMessages)),
		zap.Duration("elapsed", result.TotalExecutionTime))

	if c.store != nil {
		if err := c.store.SaveRun(ctx, run, result); err != nil {
			logger.Warn("Failed to persist workflow run", zap.Error(err))
		}
	}
	return result, nil
}

// Shutdown refuses new runs and blocks until every in-flight run has
// returned. Safe to call more than once.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	already := c.shuttingDown
	c.shuttingDown = true
	c.mu.Unlock()

	if !already {
		c.logger.Info("Coordinator shutting down... waiting for active workflows.")
	}
	c.wg.Wait()
	if !already {
		c.logger.Info("Coordinator shut down cleanly.")
	}
}

// WorkflowStatus reports one active run. Finished runs are not retained here;
// consult the run store for history.
func (c *Coordinator) WorkflowStatus(workflowID string) (RunStatus, error) {
	c.mu.Lock()
	run, ok := c.active[workflowID]
	c.mu.Unlock()
	if !ok {
		return RunStatus{}, fmt.Errorf("%w: %q", ErrWorkflowNotFound, workflowID)
	}
	return c.snapshot(workflowID, run), nil
}

// ListActiveWorkflows returns a snapshot of every in-flight run, oldest
// first.
func (c *Coordinator) ListActiveWorkflows() []RunStatus {
	c.mu.Lock()
	statuses := make([]RunStatus, 0, len(c.active))
	for id, run := range c.active {
		statuses = append(statuses, c.snapshot(id, run))
	}
	c.mu.Unlock()

	sort.Slice(statuses, func(i, j int) bool {
		if statuses[i].StartedAt.Equal(statuses[j].StartedAt) {
			return statuses[i].WorkflowID < statuses[j].WorkflowID
		}
		return statuses[i].StartedAt.Before(statuses[j].StartedAt)
	})
	return statuses
}

// AgentStatuses reports the registered agents' task registries and caches.
func (c *Coordinator) AgentStatuses() []schemas.AgentStatus {
	return c.registry.Statuses()
}

func (c *Coordinator) snapshot(id string, run *activeRun) RunStatus {
	return RunStatus{
		WorkflowID: id,
		Mode:       run.mode,
		Steps:      len(run.definition.Steps),
		StartedAt:  run.startedAt,
		Elapsed:    c.now().Sub(run.startedAt),
	}
}

// mergeSeed overlays caller parameters onto the definition's seed input.
func mergeSeed(wf *schemas.AgentWorkflow, seed map[string]any) {
	if len(seed) == 0 {
		return
	}
	if wf.Input == nil {
		wf.Input = make(map[string]any, len(seed))
	}
	for k, v := range seed {
		wf.Input[k] = v
	}
}
