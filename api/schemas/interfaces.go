package schemas

import (
	"context"
)

// -- Agent Interface --

// Agent is the stage contract. A stage is anything that can describe its
// capabilities and drive a Task from pending to a terminal state; the
// scheduler never inspects an agent beyond this interface.
type Agent interface {
	// ID returns the unique identifier of this agent instance.
	ID() string
	// Role returns the workflow step this agent serves.
	Role() WorkflowStep
	// Capabilities lists human-readable operation names, for operators and
	// tests rather than scheduler control flow.
	Capabilities() []string
	// SupportedInputTypes lists the envelope types the agent accepts.
	SupportedInputTypes() []PatentType
	// OutputType names the envelope type the agent produces.
	OutputType() PatentType
	// CreateTask allocates a new pending Task with a fresh unique id. It is
	// a pure factory: no side effects beyond id generation.
	CreateTask(taskType TaskType, input TaskInput, priority int) *Task
	// ExecuteTask drives the task to completed or failed and returns it.
	// Stage faults, including panics, are contained: the call never returns
	// an error and never propagates a panic. Callers read the outcome from
	// the task's terminal status.
	ExecuteTask(ctx context.Context, task *Task) *Task
	// Status returns a point-in-time snapshot of the agent's task registry
	// and result cache.
	Status() AgentStatus
}

// AgentStatus is the operator-facing snapshot returned by Agent.Status.
type AgentStatus struct {
	AgentID      string         `json:"agent_id"`
	Role         WorkflowStep   `json:"role"`
	Capabilities []string       `json:"capabilities"`
	TasksByState map[string]int `json:"tasks_by_state"`
	CachedData   int            `json:"cached_data"`
}

// -- Store Interface --

// RunStore persists finished workflow runs. The scheduler works identically
// with or without one; persistence failures never alter a WorkflowResult.
type RunStore interface {
	// SaveRun writes one finished run and its per-step results.
	SaveRun(ctx context.Context, wf *AgentWorkflow, result *WorkflowResult) error
	// GetRun loads a persisted run by workflow id.
	GetRun(ctx context.Context, workflowID string) (*WorkflowResult, error)
	// ListRuns returns summaries of the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
	// Close releases the underlying connection pool.
	Close()
}

// -- Worker Pool Interface --

// WorkerPool executes step bodies as independent units of concurrent work.
type WorkerPool interface {
	// Submit enqueues a job for execution. It fails fast when the queue is
	// full, the pool has stopped, or ctx is done; it never blocks on a
	// saturated pool.
	Submit(ctx context.Context, job func()) error
}

// -- LLM Client Schemas & Interface --

// CompletionRequest is one prompt exchange with the language model
// collaborator.
type CompletionRequest struct {
	SystemPrompt string  `json:"system_prompt"`
	UserPrompt   string  `json:"user_prompt"`
	MaxTokens    int     `json:"max_tokens"`
	Temperature  float64 `json:"temperature"`
}

// CompletionResponse carries the model's reply.
type CompletionResponse struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	TokensUsed int    `json:"tokens_used"`
}

// LLMClient is the narrow contract toward the external language model:
// given a typed request, produce a typed response or fail. Analysis stages
// treat it as optional and fall back to heuristics when absent.
type LLMClient interface {
	// Complete produces a completion for the request.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Close releases client resources.
	Close() error
}
