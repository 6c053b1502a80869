package schemas

import (
	"fmt"
	"time"
)

// -- Task Schemas --

// TaskType names the operation an agent should perform. Each stage role
// understands a small set of operations; unknown types fail the task.
type TaskType string

const (
	TaskSearchPatents         TaskType = "search_patents"
	TaskProcessPatents        TaskType = "process_patents"
	TaskComprehensiveAnalysis TaskType = "comprehensive_analysis"
	TaskAnalyzeCoverage       TaskType = "analyze_coverage"
	TaskMarketAnalysis        TaskType = "market_analysis"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

// Task lifecycle: pending -> in_progress -> {completed | failed}. Both
// terminal states are final and no transition skips in_progress.
const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is one of the two final states.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// TaskInput carries the input of one task: either a free-form parameter map
// (for stages with no prerequisites) or a list of upstream PatentData, never
// both.
type TaskInput struct {
	Params map[string]any `json:"params,omitempty"`
	Data   []PatentData   `json:"data,omitempty"`
}

// ParamsInput wraps seed parameters as task input.
func ParamsInput(params map[string]any) TaskInput {
	return TaskInput{Params: params}
}

// DataInput wraps upstream results as task input.
func DataInput(data ...PatentData) TaskInput {
	return TaskInput{Data: data}
}

// IsParams reports whether the input carries a parameter map.
func (in TaskInput) IsParams() bool { return in.Params != nil }

// IsData reports whether the input carries upstream results.
func (in TaskInput) IsData() bool { return len(in.Data) > 0 }

// Validate enforces the one-or-the-other shape of the union.
func (in TaskInput) Validate() error {
	switch {
	case in.Params == nil && len(in.Data) == 0:
		return fmt.Errorf("task input carries neither params nor data")
	case in.Params != nil && len(in.Data) > 0:
		return fmt.Errorf("task input carries both params and data")
	}
	return nil
}

// Task is the unit of work submitted to exactly one agent. The creating
// agent owns the task: its execution routine is the only code that mutates
// it, and callers observe only the terminal state.
type Task struct {
	ID        string     `json:"id"`
	Type      TaskType   `json:"type"`
	Input     TaskInput  `json:"input"`
	AgentID   string     `json:"agent_id"`
	Status    TaskStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`

	// CompletedAt is stamped only when the task completes successfully.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Result holds the produced envelopes, present only when Status is
	// completed.
	Result []PatentData `json:"result,omitempty"`

	// Error describes the failure, present only when Status is failed.
	Error string `json:"error,omitempty"`

	// Priority is advisory only. The scheduler dispatches in dependency
	// order and never reorders by priority.
	Priority int `json:"priority"`
}
