// internal/coordinator/sequential.go
package coordinator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/workflow"
)

// runSequential walks the listed step order and stops at the first failure.
// Steps run on the caller's goroutine with the caller's context; the
// definition timeout applies only to concurrent dispatch.
func (c *Coordinator) runSequential(ctx context.Context, wf *schemas.AgentWorkflow, agents map[schemas.WorkflowStep]schemas.Agent, result *schemas.WorkflowResult, logger *zap.Logger) {
	for _, step := range wf.Steps {
		if err := ctx.Err(); err != nil {
			result.ErrorMessages = append(result.ErrorMessages,
				fmt.Sprintf("workflow cancelled before step %s: %v", step, err))
			return
		}

		data, err := c.executeStep(ctx, wf, step, agents[step], result.Results)
		if err != nil {
			result.ErrorMessages = append(result.ErrorMessages, err.Error())
			logger.Warn("Step failed, stopping sequential execution",
				zap.String("step", string(step)),
				zap.Error(err))
			return
		}

		result.StepsCompleted = append(result.StepsCompleted, step)
		result.Results[step] = data
		logger.Debug("Step completed",
			zap.String("step", string(step)),
			zap.Int("envelopes", len(data)))
	}
}

// executeStep wires one step's input from upstream results, drives its task
// to a terminal state, and returns the produced envelopes.
func (c *Coordinator) executeStep(ctx context.Context, wf *schemas.AgentWorkflow, step schemas.WorkflowStep, ag schemas.Agent, results map[schemas.WorkflowStep][]schemas.PatentData) ([]schemas.PatentData, error) {
	taskType, err := workflow.TaskTypeFor(step)
	if err != nil {
		c.metrics.IncStepFailure(string(step), reasonWiring)
		return nil, err
	}
	input, err := workflow.BuildStepInput(wf, step, results)
	if err != nil {
		c.metrics.IncStepFailure(string(step), reasonWiring)
		return nil, err
	}

	task := ag.CreateTask(taskType, input, defaultTaskPriority)
	started := c.now()
	done := ag.ExecuteTask(ctx, task)
	elapsed := c.now().Sub(started)

	if done.Status != schemas.StatusCompleted {
		c.metrics.ObserveStepDuration(string(step), "failed", elapsed)
		c.metrics.IncStepFailure(string(step), reasonAgentError)
		return nil, fmt.Errorf("step %s failed: %s", step, done.Error)
	}

	c.metrics.ObserveStepDuration(string(step), "completed", elapsed)
	return done.Result, nil
}
