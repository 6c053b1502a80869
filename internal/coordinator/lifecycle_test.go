package coordinator_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/config"
	"github.com/mlvn23/patentflow/internal/coordinator"
)

// recordingStore is a RunStore double that captures saved runs.
type recordingStore struct {
	mu    sync.Mutex
	saved []*schemas.WorkflowResult
	err   error
}

var _ schemas.RunStore = (*recordingStore)(nil)

func (s *recordingStore) SaveRun(_ context.Context, _ *schemas.AgentWorkflow, result *schemas.WorkflowResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, result)
	return nil
}

func (s *recordingStore) GetRun(context.Context, string) (*schemas.WorkflowResult, error) {
	return nil, errors.New("not implemented")
}

func (s *recordingStore) ListRuns(context.Context, int) ([]schemas.RunSummary, error) {
	return nil, errors.New("not implemented")
}

func (s *recordingStore) Close() {}

func (s *recordingStore) savedRuns() []*schemas.WorkflowResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*schemas.WorkflowResult(nil), s.saved...)
}

func TestShutdownWaitsForActiveRuns(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	agents := diamondAgents()
	agents[schemas.StepQuery] = newScriptAgent(schemas.StepQuery,
		func(context.Context, *schemas.Task) ([]schemas.PatentData, error) {
			close(entered)
			<-release
			return envelopesFor(schemas.StepQuery, 1), nil
		})
	h := newHarness(t, agents)

	results := make(chan *schemas.WorkflowResult, 1)
	go func() {
		result, err := h.coordinator.Execute(context.Background(), singleStepDefinition("wf_shutdown_probe"))
		assert.NoError(t, err)
		results <- result
	}()
	<-entered

	shutdownDone := make(chan struct{})
	go func() {
		h.coordinator.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		t.Fatal("Shutdown returned while a workflow was still active")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)

	select {
	case <-shutdownDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Shutdown did not return after the workflow finished")
	}

	select {
	case result := <-results:
		require.NotNil(t, result)
		assert.True(t, result.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("workflow result never arrived")
	}

	// New work is refused once shutdown has begun.
	_, err := h.coordinator.Execute(context.Background(), singleStepDefinition("wf_after_shutdown"))
	assert.ErrorIs(t, err, coordinator.ErrShutdown)

	// Shutdown is idempotent.
	h.coordinator.Shutdown()
}

func TestConcurrentWorkflowsAreBounded(t *testing.T) {
	var running, peak atomic.Int32

	agents := map[schemas.WorkflowStep]*scriptAgent{
		schemas.StepQuery: newScriptAgent(schemas.StepQuery,
			func(context.Context, *schemas.Task) ([]schemas.PatentData, error) {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				running.Add(-1)
				return envelopesFor(schemas.StepQuery, 1), nil
			}),
	}
	h := newHarnessCfg(t, agents, func(cfg *config.Config) {
		cfg.Coordinator.MaxConcurrentWorkflows = 1
	})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := h.coordinator.Execute(context.Background(),
				singleStepDefinition("wf_bounded_"+string(rune('a'+i))))
			assert.NoError(t, err)
			if result != nil {
				assert.True(t, result.Success)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), peak.Load(), "no more than one workflow may run at once")
	assert.Equal(t, int32(3), agents[schemas.StepQuery].calls.Load())
}

func TestWorkflowStatusDuringRun(t *testing.T) {
	fixed := time.Date(2026, 5, 11, 9, 30, 0, 0, time.UTC)

	entered := make(chan struct{})
	release := make(chan struct{})
	agents := diamondAgents()
	agents[schemas.StepQuery] = newScriptAgent(schemas.StepQuery,
		func(context.Context, *schemas.Task) ([]schemas.PatentData, error) {
			close(entered)
			<-release
			return envelopesFor(schemas.StepQuery, 1), nil
		})
	h := newHarness(t, agents, coordinator.WithClock(func() time.Time { return fixed }))

	results := make(chan *schemas.WorkflowResult, 1)
	go func() {
		result, err := h.coordinator.Execute(context.Background(), singleStepDefinition("wf_status_probe"))
		assert.NoError(t, err)
		results <- result
	}()
	<-entered

	status, err := h.coordinator.WorkflowStatus("wf_status_probe")
	require.NoError(t, err)
	assert.Equal(t, "wf_status_probe", status.WorkflowID)
	assert.Equal(t, "sequential", status.Mode)
	assert.Equal(t, 1, status.Steps)
	assert.True(t, status.StartedAt.Equal(fixed))
	assert.Zero(t, status.Elapsed)

	active := h.coordinator.ListActiveWorkflows()
	require.Len(t, active, 1)
	assert.Equal(t, "wf_status_probe", active[0].WorkflowID)

	statuses := h.coordinator.AgentStatuses()
	assert.Len(t, statuses, len(agents))

	close(release)
	select {
	case result := <-results:
		require.NotNil(t, result)
		assert.True(t, result.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("workflow result never arrived")
	}

	_, err = h.coordinator.WorkflowStatus("wf_status_probe")
	assert.ErrorIs(t, err, coordinator.ErrWorkflowNotFound)
	assert.Empty(t, h.coordinator.ListActiveWorkflows())
}

func TestRunPersistence(t *testing.T) {
	t.Run("saves finished runs", func(t *testing.T) {
		store := &recordingStore{}
		h := newHarness(t, diamondAgents(), coordinator.WithRunStore(store))

		result, err := h.coordinator.Execute(context.Background(), diamondDefinition("wf_persisted"))
		require.NoError(t, err)
		require.True(t, result.Success)

		saved := store.savedRuns()
		require.Len(t, saved, 1)
		assert.Equal(t, "wf_persisted", saved[0].WorkflowID)
		assert.Equal(t, result, saved[0])
	})

	t.Run("save failure does not fail the run", func(t *testing.T) {
		store := &recordingStore{err: errors.New("connection refused")}
		h := newHarness(t, diamondAgents(), coordinator.WithRunStore(store))

		result, err := h.coordinator.Execute(context.Background(), diamondDefinition("wf_unpersisted"))
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Empty(t, store.savedRuns())
	})
}
