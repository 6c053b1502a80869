// internal/coordinator/parallel.go
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/workflow"
)

// stepOutcome carries one dispatched step's terminal state back to the
// scheduling loop.
type stepOutcome struct {
	step    schemas.WorkflowStep
	task    *schemas.Task
	started time.Time

	// ctxErr is the step context's state at completion, used to tell a
	// timeout from an ordinary stage failure.
	ctxErr error

	// failErr is set when the step never reached its agent (wiring or
	// submission); reason is its metric label.
	failErr error
	reason  string
}

// runParallel executes the workflow as dependency wavefronts. Each round
// dispatches every remaining step whose dependencies have completed, then
// waits for the whole round. A step that fails or times out is not retried
// and never completes, so steps depending on it deadlock and the run ends
// with partial results.
func (c *Coordinator) runParallel(ctx context.Context, wf *schemas.AgentWorkflow, agents map[schemas.WorkflowStep]schemas.Agent, result *schemas.WorkflowResult, logger *zap.Logger) {
	remaining := make(map[schemas.WorkflowStep]struct{}, len(wf.Steps))
	for _, step := range wf.Steps {
		remaining[step] = struct{}{}
	}
	completed := make(map[schemas.WorkflowStep]struct{}, len(wf.Steps))
	stepTimeout := wf.Timeout(c.cfg.DefaultTimeout)

	for round := 1; len(remaining) > 0; round++ {
		if err := ctx.Err(); err != nil {
			result.ErrorMessages = append(result.ErrorMessages,
				fmt.Sprintf("workflow cancelled: %v", err))
			return
		}

		executable := executableSteps(wf, remaining, completed)
		if len(executable) == 0 {
			stuck := stuckSteps(wf.Steps, remaining)
			result.ErrorMessages = append(result.ErrorMessages,
				fmt.Sprintf("workflow deadlock: steps %v have unsatisfied dependencies", stuck))
			for _, step := range stuck {
				c.metrics.IncStepFailure(string(step), reasonDeadlock)
			}
			logger.Error("Workflow deadlocked",
				zap.Int("round", round),
				zap.Strings("stuck_steps", stepStrings(stuck)))
			return
		}

		logger.Debug("Dispatching wavefront",
			zap.Int("round", round),
			zap.Strings("steps", stepStrings(executable)))

		// Every dispatched step sends exactly one outcome: submission
		// failures send immediately and accepted jobs always run.
		// The buffer matches the round size so neither side blocks.
		outcomes := make(chan stepOutcome, len(executable))
		for _, step := range executable {
			delete(remaining, step)
			c.dispatchStep(ctx, wf, step, agents[step], result.Results, stepTimeout, outcomes)
		}

		for pending := len(executable); pending > 0; pending-- {
			c.collectOutcome(<-outcomes, stepTimeout, completed, result, logger)
		}
	}
}

// dispatchStep wires one step's input, creates its task, and hands the
// execution to the pool. Wiring and submission failures produce an immediate
// outcome; they never reach an agent. Input wiring happens here, on the
// scheduling goroutine, so the results map is read without locking.
func (c *Coordinator) dispatchStep(ctx context.Context, wf *schemas.AgentWorkflow, step schemas.WorkflowStep, ag schemas.Agent, results map[schemas.WorkflowStep][]schemas.PatentData, timeout time.Duration, outcomes chan<- stepOutcome) {
	started := c.now()

	taskType, err := workflow.TaskTypeFor(step)
	if err != nil {
		outcomes <- stepOutcome{step: step, started: started, failErr: err, reason: reasonWiring}
		return
	}
	input, err := workflow.BuildStepInput(wf, step, results)
	if err != nil {
		outcomes <- stepOutcome{step: step, started: started, failErr: err, reason: reasonWiring}
		return
	}

	task := ag.CreateTask(taskType, input, defaultTaskPriority)

	// The deadline starts at submission so time spent queued counts
	// against the step.
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	job := func() {
		defer cancel()
		done := ag.ExecuteTask(stepCtx, task)
		outcomes <- stepOutcome{step: step, task: done, started: started, ctxErr: stepCtx.Err()}
	}

	if err := c.pool.Submit(ctx, job); err != nil {
		cancel()
		outcomes <- stepOutcome{
			step:    step,
			started: started,
			failErr: fmt.Errorf("step %s could not be submitted: %v", step, err),
			reason:  reasonSubmit,
		}
	}
}

// collectOutcome folds one terminal outcome into the run state.
func (c *Coordinator) collectOutcome(outcome stepOutcome, timeout time.Duration, completed map[schemas.WorkflowStep]struct{}, result *schemas.WorkflowResult, logger *zap.Logger) {
	step := outcome.step
	elapsed := c.now().Sub(outcome.started)

	switch {
	case outcome.failErr != nil:
		result.ErrorMessages = append(result.ErrorMessages, outcome.failErr.Error())
		c.metrics.IncStepFailure(string(step), outcome.reason)
		logger.Warn("Step was not dispatched",
			zap.String("step", string(step)),
			zap.Error(outcome.failErr))

	case outcome.task.Status == schemas.StatusCompleted:
		completed[step] = struct{}{}
		result.StepsCompleted = append(result.StepsCompleted, step)
		result.Results[step] = outcome.task.Result
		c.metrics.ObserveStepDuration(string(step), "completed", elapsed)
		logger.Debug("Step completed",
			zap.String("step", string(step)),
			zap.Int("envelopes", len(outcome.task.Result)))

	case errors.Is(outcome.ctxErr, context.DeadlineExceeded):
		result.ErrorMessages = append(result.ErrorMessages,
			fmt.Sprintf("step %s timed out after %s", step, timeout))
		c.metrics.ObserveStepDuration(string(step), "timeout", elapsed)
		c.metrics.IncStepFailure(string(step), reasonTimeout)
		logger.Warn("Step timed out",
			zap.String("step", string(step)),
			zap.Duration("timeout", timeout))

	default:
		result.ErrorMessages = append(result.ErrorMessages,
			fmt.Sprintf("step %s failed: %s", step, outcome.task.Error))
		c.metrics.ObserveStepDuration(string(step), "failed", elapsed)
		c.metrics.IncStepFailure(string(step), reasonAgentError)
		logger.Warn("Step failed",
			zap.String("step", string(step)),
			zap.String("task_error", outcome.task.Error))
	}
}

// executableSteps returns the remaining steps whose dependencies have all
// completed, in the definition's listed order.
func executableSteps(wf *schemas.AgentWorkflow, remaining, completed map[schemas.WorkflowStep]struct{}) []schemas.WorkflowStep {
	var ready []schemas.WorkflowStep
	for _, step := range wf.Steps {
		if _, ok := remaining[step]; !ok {
			continue
		}
		if depsSatisfied(wf.DependenciesOf(step), completed) {
			ready = append(ready, step)
		}
	}
	return ready
}

func depsSatisfied(deps []schemas.WorkflowStep, completed map[schemas.WorkflowStep]struct{}) bool {
	for _, dep := range deps {
		if _, ok := completed[dep]; !ok {
			return false
		}
	}
	return true
}

// stuckSteps filters the listed order down to the steps still remaining.
func stuckSteps(steps []schemas.WorkflowStep, remaining map[schemas.WorkflowStep]struct{}) []schemas.WorkflowStep {
	var stuck []schemas.WorkflowStep
	for _, step := range steps {
		if _, ok := remaining[step]; ok {
			stuck = append(stuck, step)
		}
	}
	return stuck
}

func stepStrings(steps []schemas.WorkflowStep) []string {
	out := make([]string, len(steps))
	for i, step := range steps {
		out[i] = string(step)
	}
	return out
}
