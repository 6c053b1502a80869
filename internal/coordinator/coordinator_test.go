package coordinator_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/agent"
	"github.com/mlvn23/patentflow/internal/workflow"
)

func TestSequentialStopsAtFirstFailure(t *testing.T) {
	agents := diamondAgents()
	agents[schemas.StepProcess] = newScriptAgent(schemas.StepProcess,
		func(context.Context, *schemas.Task) ([]schemas.PatentData, error) {
			return nil, errors.New("upstream service rejected the batch")
		})
	h := newHarness(t, agents)

	wf := &schemas.AgentWorkflow{
		WorkflowID: "wf_seq_failfast",
		Steps:      []schemas.WorkflowStep{schemas.StepQuery, schemas.StepProcess, schemas.StepAnalyze},
		Input:      map[string]any{"keywords": []string{"polymer"}},
		Dependencies: map[schemas.WorkflowStep][]schemas.WorkflowStep{
			schemas.StepProcess: {schemas.StepQuery},
			schemas.StepAnalyze: {schemas.StepProcess},
		},
	}

	result, err := h.coordinator.Execute(context.Background(), wf)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, []schemas.WorkflowStep{schemas.StepQuery}, result.StepsCompleted)
	require.Len(t, result.ErrorMessages, 1)
	assert.Contains(t, result.ErrorMessages[0], "step process failed")
	assert.Contains(t, result.ErrorMessages[0], "upstream service rejected the batch")

	assert.Contains(t, result.Results, schemas.StepQuery)
	assert.NotContains(t, result.Results, schemas.StepProcess)
	assert.Equal(t, int32(0), agents[schemas.StepAnalyze].calls.Load(),
		"steps after the failure must not run")

	// The failed task still reached a terminal state.
	failed := agents[schemas.StepProcess].lastTask()
	require.NotNil(t, failed)
	assert.True(t, failed.Status.Terminal())
	assert.Equal(t, schemas.StatusFailed, failed.Status)
}

// TestParallelTimeoutCascadesToDeadlock pins the partial-result contract: a
// step that exceeds its deadline never completes, the branch that does not
// need it still finishes, and everything downstream of the timed out step is
// reported as deadlocked.
func TestParallelTimeoutCascadesToDeadlock(t *testing.T) {
	agents := diamondAgents()
	agents[schemas.StepAnalyze] = newScriptAgent(schemas.StepAnalyze,
		func(ctx context.Context, _ *schemas.Task) ([]schemas.PatentData, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	h := newHarness(t, agents)

	wf := diamondDefinition("wf_par_timeout")
	wf.TimeoutSeconds = 0 // fall back to the configured 250ms default

	result, err := h.coordinator.Execute(context.Background(), wf)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t,
		[]schemas.WorkflowStep{schemas.StepQuery, schemas.StepProcess, schemas.StepCoverage},
		result.StepsCompleted)

	require.Len(t, result.ErrorMessages, 2)
	assert.Contains(t, result.ErrorMessages[0], "step analyze timed out")
	assert.Contains(t, result.ErrorMessages[1], "deadlock")
	assert.Contains(t, result.ErrorMessages[1], "marketing")

	assert.NotContains(t, result.Results, schemas.StepAnalyze)
	assert.NotContains(t, result.Results, schemas.StepMarketing)
	assert.Equal(t, int32(0), agents[schemas.StepMarketing].calls.Load(),
		"a step whose dependency never completed must not be dispatched")
}

func TestSequentialAndParallelCompleteSameSteps(t *testing.T) {
	runMode := func(parallel bool) *schemas.WorkflowResult {
		h := newHarness(t, diamondAgents())
		wf := diamondDefinition("wf_mode_equivalence")
		wf.ParallelExecution = parallel
		result, err := h.coordinator.Execute(context.Background(), wf)
		require.NoError(t, err)
		require.True(t, result.Success, "run errors: %v", result.ErrorMessages)
		return result
	}

	sequential := runMode(false)
	parallel := runMode(true)

	assert.ElementsMatch(t, sequential.StepsCompleted, parallel.StepsCompleted)
	assert.Len(t, parallel.StepsCompleted, 5)
	assert.Empty(t, parallel.ErrorMessages)

	// Sequential completion follows the listed order exactly.
	assert.Equal(t, diamondDefinition("x").Steps, sequential.StepsCompleted)

	// Parallel completion still respects the dependency order.
	assert.Equal(t, schemas.StepQuery, parallel.StepsCompleted[0])
	assert.Equal(t, schemas.StepProcess, parallel.StepsCompleted[1])
	assert.Equal(t, schemas.StepMarketing, parallel.StepsCompleted[4])

	for step := range sequential.Results {
		assert.Contains(t, parallel.Results, step)
	}
	assert.Positive(t, parallel.TotalExecutionTime)
}

func TestParallelDetectsDependencyCycle(t *testing.T) {
	h := newHarness(t, diamondAgents())

	// Validation does not chase cycles; the scheduler reports them as a
	// deadlock once nothing can be dispatched.
	wf := &schemas.AgentWorkflow{
		WorkflowID: "wf_cycle",
		Steps:      []schemas.WorkflowStep{schemas.StepQuery, schemas.StepProcess, schemas.StepAnalyze},
		Input:      map[string]any{"keywords": []string{"sensor"}},
		Dependencies: map[schemas.WorkflowStep][]schemas.WorkflowStep{
			schemas.StepProcess: {schemas.StepAnalyze},
			schemas.StepAnalyze: {schemas.StepProcess},
		},
		ParallelExecution: true,
		TimeoutSeconds:    30,
	}

	result, err := h.coordinator.Execute(context.Background(), wf)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Equal(t, []schemas.WorkflowStep{schemas.StepQuery}, result.StepsCompleted)
	require.Len(t, result.ErrorMessages, 1)
	assert.Contains(t, result.ErrorMessages[0], "deadlock")
	assert.Contains(t, result.ErrorMessages[0], "process")
	assert.Contains(t, result.ErrorMessages[0], "analyze")
}

func TestSequentialWiringErrorFailsStep(t *testing.T) {
	agents := diamondAgents()
	h := newHarness(t, agents)

	// The listed order puts the dependent ahead of its dependency, so its
	// input can never be wired.
	wf := &schemas.AgentWorkflow{
		WorkflowID: "wf_misordered",
		Steps:      []schemas.WorkflowStep{schemas.StepProcess, schemas.StepQuery},
		Dependencies: map[schemas.WorkflowStep][]schemas.WorkflowStep{
			schemas.StepProcess: {schemas.StepQuery},
		},
	}

	result, err := h.coordinator.Execute(context.Background(), wf)
	require.NoError(t, err)

	assert.False(t, result.Success)
	assert.Empty(t, result.StepsCompleted)
	require.Len(t, result.ErrorMessages, 1)
	assert.Contains(t, result.ErrorMessages[0], "no result from dependency")
	assert.Equal(t, int32(0), agents[schemas.StepProcess].calls.Load(),
		"wiring failures never reach the agent")
}

func TestExecuteRejectsBadDefinitions(t *testing.T) {
	h := newHarness(t, diamondAgents())

	t.Run("unknown catalog name", func(t *testing.T) {
		result, err := h.coordinator.ExecuteByName(context.Background(), "litigation_sweep", nil)
		require.ErrorIs(t, err, workflow.ErrUnknownWorkflow)
		assert.Nil(t, result)
	})

	t.Run("nil definition", func(t *testing.T) {
		result, err := h.coordinator.Execute(context.Background(), nil)
		require.ErrorIs(t, err, workflow.ErrInvalidWorkflow)
		assert.Nil(t, result)
	})

	t.Run("invalid definition", func(t *testing.T) {
		wf := diamondDefinition("wf_invalid")
		wf.Steps = append(wf.Steps, schemas.StepQuery) // duplicate
		result, err := h.coordinator.Execute(context.Background(), wf)
		require.ErrorIs(t, err, workflow.ErrInvalidWorkflow)
		assert.Nil(t, result)
	})

	t.Run("unregistered role", func(t *testing.T) {
		partial := diamondAgents()
		delete(partial, schemas.StepMarketing)
		hp := newHarness(t, partial)

		result, err := hp.coordinator.Execute(context.Background(), diamondDefinition("wf_no_marketing"))
		require.ErrorIs(t, err, agent.ErrUnknownRole)
		assert.Nil(t, result)
	})
}

func TestStepInputWiring(t *testing.T) {
	agents := diamondAgents()
	h := newHarness(t, agents)

	wf := diamondDefinition("wf_wiring")
	wf.Input = map[string]any{"keywords": []string{"battery"}}

	result, err := h.coordinator.Execute(context.Background(), wf)
	require.NoError(t, err)
	require.True(t, result.Success, "run errors: %v", result.ErrorMessages)

	// The root step sees the seed parameters.
	queryInputs := agents[schemas.StepQuery].recordedInputs()
	require.Len(t, queryInputs, 1)
	require.True(t, queryInputs[0].IsParams())
	assert.Equal(t, []string{"battery"}, queryInputs[0].Params["keywords"])

	// A single-dependency step sees exactly its upstream envelopes.
	processInputs := agents[schemas.StepProcess].recordedInputs()
	require.Len(t, processInputs, 1)
	require.True(t, processInputs[0].IsData())
	assert.Equal(t, result.Results[schemas.StepQuery], processInputs[0].Data)

	// The gather step sees every upstream result in declared order.
	marketingInputs := agents[schemas.StepMarketing].recordedInputs()
	require.Len(t, marketingInputs, 1)
	want := append(append(append([]schemas.PatentData{},
		result.Results[schemas.StepProcess]...),
		result.Results[schemas.StepAnalyze]...),
		result.Results[schemas.StepCoverage]...)
	assert.Equal(t, want, marketingInputs[0].Data)
}

// TestCancellationMidRun cancels the run context from inside the first step
// and verifies both engines stop before dispatching anything further.
func TestCancellationMidRun(t *testing.T) {
	t.Run("sequential", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		agents := diamondAgents()
		agents[schemas.StepQuery] = newScriptAgent(schemas.StepQuery,
			func(context.Context, *schemas.Task) ([]schemas.PatentData, error) {
				cancel()
				return envelopesFor(schemas.StepQuery, 1), nil
			})
		h := newHarness(t, agents)

		wf := &schemas.AgentWorkflow{
			WorkflowID: "wf_cancel_seq",
			Steps:      []schemas.WorkflowStep{schemas.StepQuery, schemas.StepProcess, schemas.StepAnalyze},
			Input:      map[string]any{"keywords": []string{"drone"}},
			Dependencies: map[schemas.WorkflowStep][]schemas.WorkflowStep{
				schemas.StepProcess: {schemas.StepQuery},
				schemas.StepAnalyze: {schemas.StepProcess},
			},
		}

		result, err := h.coordinator.Execute(ctx, wf)
		require.NoError(t, err)

		assert.False(t, result.Success)
		assert.Equal(t, []schemas.WorkflowStep{schemas.StepQuery}, result.StepsCompleted)
		require.NotEmpty(t, result.ErrorMessages)
		assert.Contains(t, result.ErrorMessages[0], "cancelled before step process")
		assert.Equal(t, int32(0), agents[schemas.StepProcess].calls.Load())
	})

	t.Run("parallel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		agents := diamondAgents()
		agents[schemas.StepQuery] = newScriptAgent(schemas.StepQuery,
			func(context.Context, *schemas.Task) ([]schemas.PatentData, error) {
				cancel()
				return envelopesFor(schemas.StepQuery, 1), nil
			})
		h := newHarness(t, agents)

		result, err := h.coordinator.Execute(ctx, diamondDefinition("wf_cancel_par"))
		require.NoError(t, err)

		assert.False(t, result.Success)
		assert.Equal(t, []schemas.WorkflowStep{schemas.StepQuery}, result.StepsCompleted)
		require.NotEmpty(t, result.ErrorMessages)
		assert.Contains(t, result.ErrorMessages[0], "cancelled")
		assert.Equal(t, int32(0), agents[schemas.StepProcess].calls.Load())
	})
}

func TestExecuteWithPreCancelledContext(t *testing.T) {
	h := newHarness(t, diamondAgents())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.coordinator.Execute(cancelled, diamondDefinition("wf_pre_cancelled"))
	require.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}
