package coordinator_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/agent"
	"github.com/mlvn23/patentflow/internal/config"
	"github.com/mlvn23/patentflow/internal/coordinator"
	"github.com/mlvn23/patentflow/internal/engine"
)

// scriptAgent is a scriptable stage for scheduler tests. The injected process
// function decides the outcome; the surrounding task lifecycle mirrors the
// real agents.
type scriptAgent struct {
	role    schemas.WorkflowStep
	process func(ctx context.Context, task *schemas.Task) ([]schemas.PatentData, error)

	calls atomic.Int32

	mu     sync.Mutex
	inputs []schemas.TaskInput
	last   *schemas.Task
}

var _ schemas.Agent = (*scriptAgent)(nil)

func newScriptAgent(role schemas.WorkflowStep, process func(ctx context.Context, task *schemas.Task) ([]schemas.PatentData, error)) *scriptAgent {
	return &scriptAgent{role: role, process: process}
}

// okAgent answers every task with two fresh envelopes.
func okAgent(role schemas.WorkflowStep) *scriptAgent {
	return newScriptAgent(role, func(context.Context, *schemas.Task) ([]schemas.PatentData, error) {
		return envelopesFor(role, 2), nil
	})
}

func (a *scriptAgent) ID() string                 { return string(a.role) + "_script" }
func (a *scriptAgent) Role() schemas.WorkflowStep { return a.role }
func (a *scriptAgent) Capabilities() []string     { return []string{"scripted"} }

func (a *scriptAgent) SupportedInputTypes() []schemas.PatentType { return nil }
func (a *scriptAgent) OutputType() schemas.PatentType            { return schemas.TypeDocument }

func (a *scriptAgent) CreateTask(taskType schemas.TaskType, input schemas.TaskInput, priority int) *schemas.Task {
	return &schemas.Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		Input:     input,
		AgentID:   a.ID(),
		Status:    schemas.StatusPending,
		CreatedAt: time.Now().UTC(),
		Priority:  priority,
	}
}

func (a *scriptAgent) ExecuteTask(ctx context.Context, task *schemas.Task) *schemas.Task {
	a.calls.Add(1)
	a.mu.Lock()
	a.inputs = append(a.inputs, task.Input)
	a.last = task
	a.mu.Unlock()

	task.Status = schemas.StatusInProgress
	data, err := a.process(ctx, task)
	if err != nil {
		task.Status = schemas.StatusFailed
		task.Error = err.Error()
		return task
	}
	now := time.Now().UTC()
	task.Status = schemas.StatusCompleted
	task.CompletedAt = &now
	task.Result = data
	return task
}

func (a *scriptAgent) Status() schemas.AgentStatus {
	return schemas.AgentStatus{AgentID: a.ID(), Role: a.role, Capabilities: a.Capabilities()}
}

func (a *scriptAgent) lastTask() *schemas.Task {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

func (a *scriptAgent) recordedInputs() []schemas.TaskInput {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]schemas.TaskInput(nil), a.inputs...)
}

func envelopesFor(role schemas.WorkflowStep, n int) []schemas.PatentData {
	out := make([]schemas.PatentData, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, schemas.NewPatentData(schemas.TypeDocument,
			map[string]any{"origin": string(role), "seq": i}, nil))
	}
	return out
}

// harness wires a coordinator over scripted agents and a real worker pool.
type harness struct {
	coordinator *coordinator.Coordinator
	agents      map[schemas.WorkflowStep]*scriptAgent
}

func newHarness(t *testing.T, agents map[schemas.WorkflowStep]*scriptAgent, opts ...coordinator.Option) *harness {
	t.Helper()
	return newHarnessCfg(t, agents, nil, opts...)
}

func newHarnessCfg(t *testing.T, agents map[schemas.WorkflowStep]*scriptAgent, mutate func(*config.Config), opts ...coordinator.Option) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.Coordinator.DefaultTimeout = 250 * time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}

	logger := zaptest.NewLogger(t)
	pool, err := engine.NewPool(cfg.Coordinator.MaxWorkers, cfg.Coordinator.QueueDepth, logger)
	require.NoError(t, err)
	pool.Start(context.Background())
	t.Cleanup(pool.Stop)

	roster := make(map[schemas.WorkflowStep]schemas.Agent, len(agents))
	for role, a := range agents {
		roster[role] = a
	}
	registry, err := agent.NewRegistry(cfg, logger, nil, agent.WithAgents(roster))
	require.NoError(t, err)

	opts = append([]coordinator.Option{
		coordinator.WithMetrics(coordinator.MustNewMetrics(prometheus.NewRegistry())),
	}, opts...)
	coord, err := coordinator.New(cfg, registry, pool, logger, opts...)
	require.NoError(t, err)

	return &harness{coordinator: coord, agents: agents}
}

// diamondAgents covers all five stock roles with scripted successes.
func diamondAgents() map[schemas.WorkflowStep]*scriptAgent {
	return map[schemas.WorkflowStep]*scriptAgent{
		schemas.StepQuery:     okAgent(schemas.StepQuery),
		schemas.StepProcess:   okAgent(schemas.StepProcess),
		schemas.StepAnalyze:   okAgent(schemas.StepAnalyze),
		schemas.StepCoverage:  okAgent(schemas.StepCoverage),
		schemas.StepMarketing: okAgent(schemas.StepMarketing),
	}
}

// diamondDefinition mirrors the comprehensive analysis shape: a chain into
// process, a fan-out to analyze and coverage, and a final gather step.
func diamondDefinition(id string) *schemas.AgentWorkflow {
	return &schemas.AgentWorkflow{
		WorkflowID: id,
		Steps: []schemas.WorkflowStep{
			schemas.StepQuery, schemas.StepProcess, schemas.StepAnalyze,
			schemas.StepCoverage, schemas.StepMarketing,
		},
		Input: map[string]any{"keywords": []string{"polymer"}},
		Dependencies: map[schemas.WorkflowStep][]schemas.WorkflowStep{
			schemas.StepProcess:   {schemas.StepQuery},
			schemas.StepAnalyze:   {schemas.StepProcess},
			schemas.StepCoverage:  {schemas.StepProcess},
			schemas.StepMarketing: {schemas.StepProcess, schemas.StepAnalyze, schemas.StepCoverage},
		},
		ParallelExecution: true,
		TimeoutSeconds:    60,
	}
}

func singleStepDefinition(id string) *schemas.AgentWorkflow {
	return &schemas.AgentWorkflow{
		WorkflowID: id,
		Steps:      []schemas.WorkflowStep{schemas.StepQuery},
		Input:      map[string]any{"keywords": []string{"probe"}},
	}
}
