package schemas

import (
	"fmt"
	"time"
)

// -- Workflow Schemas --

// WorkflowStep identifies one stage role in a workflow. The scheduler treats
// the set of roles as configuration: it dispatches through the agent registry
// and the wiring table, never through a hardcoded role list.
type WorkflowStep string

// The five stage roles this distribution ships with.
const (
	StepQuery     WorkflowStep = "query"
	StepProcess   WorkflowStep = "process"
	StepAnalyze   WorkflowStep = "analyze"
	StepCoverage  WorkflowStep = "coverage"
	StepMarketing WorkflowStep = "marketing"
)

// AgentWorkflow is a named DAG over stage roles. Steps holds the listed
// order, authoritative for sequential execution and display. Dependencies
// maps a step to the steps that must complete before it may run.
type AgentWorkflow struct {
	WorkflowID   string                          `json:"workflow_id"`
	Steps        []WorkflowStep                  `json:"steps"`
	Input        map[string]any                  `json:"input_data,omitempty"`
	Dependencies map[WorkflowStep][]WorkflowStep `json:"dependencies,omitempty"`

	// ParallelExecution selects the wavefront engine instead of the
	// sequential one.
	ParallelExecution bool `json:"parallel_execution"`

	// TimeoutSeconds bounds each concurrently dispatched step, measured
	// from submission. Sequential execution is bounded only by the caller's
	// context.
	TimeoutSeconds int `json:"timeout_seconds"`
}

// Timeout returns the per-step ceiling as a duration, falling back to the
// given default when the definition carries none.
func (w *AgentWorkflow) Timeout(fallback time.Duration) time.Duration {
	if w.TimeoutSeconds <= 0 {
		return fallback
	}
	return time.Duration(w.TimeoutSeconds) * time.Second
}

// DependenciesOf returns the prerequisite list for a step. Steps absent from
// the table have no prerequisites.
func (w *AgentWorkflow) DependenciesOf(step WorkflowStep) []WorkflowStep {
	return w.Dependencies[step]
}

// Clone returns a deep copy of the definition. The scheduler clones before
// merging caller input so a shared definition is never mutated by a run.
func (w *AgentWorkflow) Clone() *AgentWorkflow {
	if w == nil {
		return nil
	}
	clone := &AgentWorkflow{
		WorkflowID:        w.WorkflowID,
		ParallelExecution: w.ParallelExecution,
		TimeoutSeconds:    w.TimeoutSeconds,
	}
	if w.Steps != nil {
		clone.Steps = append([]WorkflowStep(nil), w.Steps...)
	}
	if w.Input != nil {
		clone.Input = make(map[string]any, len(w.Input))
		for k, v := range w.Input {
			clone.Input[k] = v
		}
	}
	if w.Dependencies != nil {
		clone.Dependencies = make(map[WorkflowStep][]WorkflowStep, len(w.Dependencies))
		for step, deps := range w.Dependencies {
			clone.Dependencies[step] = append([]WorkflowStep(nil), deps...)
		}
	}
	return clone
}

// Validate checks the definition for configuration errors: an empty id or
// step list, duplicate steps, and dependency entries that reference steps
// outside the listed set. Cycles are not detected here; an undetected cycle
// surfaces at run time as a scheduling deadlock.
func (w *AgentWorkflow) Validate() error {
	if w.WorkflowID == "" {
		return fmt.Errorf("workflow has empty id")
	}
	if len(w.Steps) == 0 {
		return fmt.Errorf("workflow %s has no steps", w.WorkflowID)
	}
	members := make(map[WorkflowStep]struct{}, len(w.Steps))
	for _, step := range w.Steps {
		if _, dup := members[step]; dup {
			return fmt.Errorf("workflow %s lists step %s twice", w.WorkflowID, step)
		}
		members[step] = struct{}{}
	}
	for step, deps := range w.Dependencies {
		if _, ok := members[step]; !ok {
			return fmt.Errorf("workflow %s declares dependencies for unlisted step %s", w.WorkflowID, step)
		}
		for _, dep := range deps {
			if _, ok := members[dep]; !ok {
				return fmt.Errorf("workflow %s: step %s depends on unlisted step %s", w.WorkflowID, step, dep)
			}
			if dep == step {
				return fmt.Errorf("workflow %s: step %s depends on itself", w.WorkflowID, step)
			}
		}
	}
	return nil
}

// WorkflowResult is the outcome of one workflow execution. It is created
// once per run, returned to the caller, and never mutated afterward.
type WorkflowResult struct {
	WorkflowID string `json:"workflow_id"`

	// StepsCompleted lists completed steps in completion order.
	StepsCompleted []WorkflowStep `json:"steps_completed"`

	// Results holds the envelopes produced by each completed step. Failed
	// and unattempted steps have no entry.
	Results map[WorkflowStep][]PatentData `json:"results"`

	TotalExecutionTime time.Duration `json:"total_execution_time"`

	// Success is true exactly when every requested step completed.
	Success bool `json:"success"`

	// ErrorMessages collects human-readable step failures in the order they
	// were observed.
	ErrorMessages []string `json:"error_messages,omitempty"`
}

// NewWorkflowResult allocates the accumulating result for one run.
func NewWorkflowResult(workflowID string) *WorkflowResult {
	return &WorkflowResult{
		WorkflowID:     workflowID,
		StepsCompleted: make([]WorkflowStep, 0, 8),
		Results:        make(map[WorkflowStep][]PatentData),
	}
}

// RunSummary is the condensed view of a persisted run, used by listings.
type RunSummary struct {
	WorkflowID     string        `json:"workflow_id"`
	Success        bool          `json:"success"`
	StepsTotal     int           `json:"steps_total"`
	StepsCompleted int           `json:"steps_completed"`
	Duration       time.Duration `json:"duration"`
	StoredAt       time.Time     `json:"stored_at"`
}
