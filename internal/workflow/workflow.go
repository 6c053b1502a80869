// internal/workflow/workflow.go
package workflow

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/mlvn23/patentflow/api/schemas"
)

var (
	// ErrUnknownWorkflow is returned when a catalog name does not exist.
	ErrUnknownWorkflow = errors.New("unknown workflow")
	// ErrInvalidWorkflow is returned for structurally broken definitions.
	ErrInvalidWorkflow = errors.New("invalid workflow definition")
)

// taskTypeByStep maps each stage role to the operation its agent runs.
var taskTypeByStep = map[schemas.WorkflowStep]schemas.TaskType{
	schemas.StepQuery:     schemas.TaskSearchPatents,
	schemas.StepProcess:   schemas.TaskProcessPatents,
	schemas.StepAnalyze:   schemas.TaskComprehensiveAnalysis,
	schemas.StepCoverage:  schemas.TaskAnalyzeCoverage,
	schemas.StepMarketing: schemas.TaskMarketAnalysis,
}

// TaskTypeFor resolves the task type a workflow step dispatches as.
func TaskTypeFor(step schemas.WorkflowStep) (schemas.TaskType, error) {
	tt, ok := taskTypeByStep[step]
	if !ok {
		return "", fmt.Errorf("no task type for workflow step %q", step)
	}
	return tt, nil
}

// template is a catalog blueprint. Definition stamps a fresh run id onto a
// deep copy, so concurrent runs of the same catalog entry never share state.
type template struct {
	steps    []schemas.WorkflowStep
	deps     map[schemas.WorkflowStep][]schemas.WorkflowStep
	parallel bool
	timeout  int // seconds, per parallel step from submission
}

var catalog = map[string]template{
	"comprehensive_analysis": {
		steps: []schemas.WorkflowStep{
			schemas.StepQuery, schemas.StepProcess, schemas.StepAnalyze,
			schemas.StepCoverage, schemas.StepMarketing,
		},
		deps: map[schemas.WorkflowStep][]schemas.WorkflowStep{
			schemas.StepProcess:   {schemas.StepQuery},
			schemas.StepAnalyze:   {schemas.StepProcess},
			schemas.StepCoverage:  {schemas.StepProcess},
			schemas.StepMarketing: {schemas.StepProcess, schemas.StepAnalyze, schemas.StepCoverage},
		},
		parallel: true,
		timeout:  300,
	},
	"quick_evaluation": {
		steps: []schemas.WorkflowStep{
			schemas.StepQuery, schemas.StepProcess, schemas.StepAnalyze,
		},
		deps: map[schemas.WorkflowStep][]schemas.WorkflowStep{
			schemas.StepProcess: {schemas.StepQuery},
			schemas.StepAnalyze: {schemas.StepProcess},
		},
		parallel: false,
		timeout:  120,
	},
	"market_focused": {
		steps: []schemas.WorkflowStep{
			schemas.StepQuery, schemas.StepProcess, schemas.StepMarketing,
		},
		deps: map[schemas.WorkflowStep][]schemas.WorkflowStep{
			schemas.StepProcess:   {schemas.StepQuery},
			schemas.StepMarketing: {schemas.StepProcess},
		},
		parallel: true,
		timeout:  180,
	},
}

// Names lists the catalog entries in stable order.
func Names() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewRunID builds the id a workflow run is tracked under.
func NewRunID(name string) string {
	return fmt.Sprintf("%s_%s", name, uuid.NewString()[:8])
}

// Definition instantiates a catalog entry as a runnable workflow with a
// fresh run id. Unknown names are configuration errors.
func Definition(name string) (*schemas.AgentWorkflow, error) {
	tpl, ok := catalog[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownWorkflow, name)
	}

	deps := make(map[schemas.WorkflowStep][]schemas.WorkflowStep, len(tpl.deps))
	for step, prereqs := range tpl.deps {
		deps[step] = append([]schemas.WorkflowStep(nil), prereqs...)
	}
	return &schemas.AgentWorkflow{
		WorkflowID:        NewRunID(name),
		Steps:             append([]schemas.WorkflowStep(nil), tpl.steps...),
		Dependencies:      deps,
		ParallelExecution: tpl.parallel,
		TimeoutSeconds:    tpl.timeout,
	}, nil
}

// Validate checks a definition before scheduling: structural validity plus a
// known task type for every step. Failures here are configuration errors and
// never produce a WorkflowResult.
func Validate(wf *schemas.AgentWorkflow) error {
	if wf == nil {
		return fmt.Errorf("%w: nil workflow", ErrInvalidWorkflow)
	}
	if err := wf.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidWorkflow, err)
	}
	for _, step := range wf.Steps {
		if _, err := TaskTypeFor(step); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidWorkflow, err)
		}
	}
	return nil
}

// BuildStepInput derives a step's task input from the wiring table:
//
//	no prerequisites   -> the workflow seed parameters
//	one prerequisite   -> that step's results; missing results are an error
//	many prerequisites -> every available upstream result in declared order;
//	                      an error only when none are available
func BuildStepInput(wf *schemas.AgentWorkflow, step schemas.WorkflowStep, results map[schemas.WorkflowStep][]schemas.PatentData) (schemas.TaskInput, error) {
	deps := wf.DependenciesOf(step)
	switch len(deps) {
	case 0:
		seed := wf.Input
		if seed == nil {
			seed = map[string]any{}
		}
		return schemas.ParamsInput(seed), nil
	case 1:
		upstream, ok := results[deps[0]]
		if !ok {
			return schemas.TaskInput{}, fmt.Errorf("step %s has no result from dependency %s", step, deps[0])
		}
		return schemas.DataInput(upstream...), nil
	default:
		var combined []schemas.PatentData
		available := 0
		for _, dep := range deps {
			if upstream, ok := results[dep]; ok {
				combined = append(combined, upstream...)
				available++
			}
		}
		if available == 0 {
			return schemas.TaskInput{}, fmt.Errorf("step %s has no results from any of its %d dependencies", step, len(deps))
		}
		return schemas.DataInput(combined...), nil
	}
}
