// internal/agent/agent.go
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/config"
)

const (
	defaultStoreMaxEntries = 256
	defaultStoreTTL        = 5 * time.Minute
)

// cacheEntry holds an indexed patent envelope along with the timestamp it was
// stored, so reads can enforce the TTL.
type cacheEntry struct {
	data     schemas.PatentData
	storedAt time.Time
}

// dataStore is the per-agent working set of produced patent data. Entries are
// keyed by envelope ID and expire after the configured TTL; the LRU bound
// keeps long-running agents from accumulating every envelope they ever made.
type dataStore struct {
	cache *lru.Cache[string, cacheEntry]
	ttl   time.Duration
}

func newDataStore(cfg config.CacheConfig) (*dataStore, error) {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultStoreMaxEntries
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultStoreTTL
	}
	cache, err := lru.New[string, cacheEntry](maxEntries)
	if err != nil {
		return nil, fmt.Errorf("creating agent data store: %w", err)
	}
	return &dataStore{cache: cache, ttl: ttl}, nil
}

func (s *dataStore) put(data schemas.PatentData) {
	s.cache.Add(data.ID, cacheEntry{data: data, storedAt: time.Now()})
}

func (s *dataStore) get(id string) (schemas.PatentData, bool) {
	entry, ok := s.cache.Get(id)
	if !ok {
		return schemas.PatentData{}, false
	}
	if time.Since(entry.storedAt) >= s.ttl {
		// Expired. Evict so the LRU bookkeeping stays clean.
		s.cache.Remove(id)
		return schemas.PatentData{}, false
	}
	return entry.data, true
}

func (s *dataStore) len() int {
	return s.cache.Len()
}

// processFunc is the unit of work a concrete agent supplies. It receives the
// task being executed and returns the envelopes it produced.
type processFunc func(ctx context.Context, task *schemas.Task) ([]schemas.PatentData, error)

// baseAgent carries the lifecycle machinery shared by every patent agent:
// task bookkeeping, status transitions, fault containment and the produced
// data index. Concrete agents embed it and inject their stage logic via the
// process field.
type baseAgent struct {
	id         string
	role       schemas.WorkflowStep
	logger     *zap.Logger
	caps       []string
	inputTypes []schemas.PatentType
	outputType schemas.PatentType
	process    processFunc

	mu    sync.Mutex
	tasks map[string]*schemas.Task
	store *dataStore
}

func newBaseAgent(role schemas.WorkflowStep, logger *zap.Logger, cacheCfg config.CacheConfig, caps []string, inputTypes []schemas.PatentType, outputType schemas.PatentType) (*baseAgent, error) {
	if logger == nil {
		return nil, fmt.Errorf("agent requires a logger")
	}
	store, err := newDataStore(cacheCfg)
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("%s_agent_%s", role, uuid.NewString()[:8])
	return &baseAgent{
		id:         id,
		role:       role,
		logger:     logger.Named(string(role)).With(zap.String("agent_id", id)),
		caps:       caps,
		inputTypes: inputTypes,
		outputType: outputType,
		tasks:      make(map[string]*schemas.Task),
		store:      store,
	}, nil
}

func (a *baseAgent) ID() string                                { return a.id }
func (a *baseAgent) Role() schemas.WorkflowStep                { return a.role }
func (a *baseAgent) Capabilities() []string                    { return append([]string(nil), a.caps...) }
func (a *baseAgent) SupportedInputTypes() []schemas.PatentType { return append([]schemas.PatentType(nil), a.inputTypes...) }
func (a *baseAgent) OutputType() schemas.PatentType            { return a.outputType }

// CreateTask builds a pending task addressed to this agent. The task is not
// registered or started; pass it to ExecuteTask to run it.
func (a *baseAgent) CreateTask(taskType schemas.TaskType, input schemas.TaskInput, priority int) *schemas.Task {
	return &schemas.Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		Input:     input,
		AgentID:   a.id,
		Status:    schemas.StatusPending,
		CreatedAt: time.Now().UTC(),
		Priority:  priority,
	}
}

// ExecuteTask runs the agent's stage logic for the task and drives the
// status machine: pending -> in_progress -> completed or failed. Stage
// errors and panics are absorbed into the task record; the task itself is
// always returned in a terminal state.
func (a *baseAgent) ExecuteTask(ctx context.Context, task *schemas.Task) *schemas.Task {
	if task == nil {
		return nil
	}

	a.mu.Lock()
	task.Status = schemas.StatusInProgress
	a.tasks[task.ID] = task
	a.mu.Unlock()

	a.logger.Debug("Executing task",
		zap.String("task_id", task.ID),
		zap.String("task_type", string(task.Type)))

	results, err := a.runProcess(ctx, task)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		task.Status = schemas.StatusFailed
		task.Error = err.Error()
		a.logger.Warn("Task failed",
			zap.String("task_id", task.ID),
			zap.Error(err))
		return task
	}

	now := time.Now().UTC()
	task.Status = schemas.StatusCompleted
	task.CompletedAt = &now
	task.Result = results
	for _, data := range results {
		a.store.put(data)
	}
	a.logger.Debug("Task completed",
		zap.String("task_id", task.ID),
		zap.Int("results", len(results)))
	return task
}

// runProcess invokes the stage logic with panic containment, so a bug in one
// stage degrades to a failed task instead of tearing down the workflow.
func (a *baseAgent) runProcess(ctx context.Context, task *schemas.Task) (results []schemas.PatentData, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panic: %v", r)
		}
	}()
	if a.process == nil {
		return nil, fmt.Errorf("agent %s has no stage logic bound", a.id)
	}
	if err := task.Input.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task input: %w", err)
	}
	return a.process(ctx, task)
}

// LookupData retrieves a previously produced envelope from the agent's
// working set, if it is still live.
func (a *baseAgent) LookupData(id string) (schemas.PatentData, bool) {
	return a.store.get(id)
}

// Status reports a point-in-time snapshot of the agent's task ledger.
func (a *baseAgent) Status() schemas.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	byState := make(map[string]int, 4)
	for _, t := range a.tasks {
		byState[string(t.Status)]++
	}
	return schemas.AgentStatus{
		AgentID:      a.id,
		Role:         a.role,
		Capabilities: append([]string(nil), a.caps...),
		TasksByState: byState,
		CachedData:   a.store.len(),
	}
}
