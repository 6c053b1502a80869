// internal/workflow/workflow_test.go
package workflow_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/workflow"
)

func TestTaskTypeFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		step schemas.WorkflowStep
		want schemas.TaskType
	}{
		{schemas.StepQuery, schemas.TaskSearchPatents},
		{schemas.StepProcess, schemas.TaskProcessPatents},
		{schemas.StepAnalyze, schemas.TaskComprehensiveAnalysis},
		{schemas.StepCoverage, schemas.TaskAnalyzeCoverage},
		{schemas.StepMarketing, schemas.TaskMarketAnalysis},
	}
	for _, tc := range tests {
		tt := tc
		t.Run(string(tt.step), func(t *testing.T) {
			t.Parallel()
			got, err := workflow.TaskTypeFor(tt.step)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := workflow.TaskTypeFor(schemas.WorkflowStep("litigation"))
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"comprehensive_analysis", "market_focused", "quick_evaluation"}, workflow.Names())
}

func TestDefinitionComprehensive(t *testing.T) {
	t.Parallel()

	wf, err := workflow.Definition("comprehensive_analysis")
	require.NoError(t, err)
	require.NoError(t, workflow.Validate(wf))

	assert.True(t, strings.HasPrefix(wf.WorkflowID, "comprehensive_analysis_"))
	assert.Len(t, strings.TrimPrefix(wf.WorkflowID, "comprehensive_analysis_"), 8)

	assert.Equal(t, []schemas.WorkflowStep{
		schemas.StepQuery, schemas.StepProcess, schemas.StepAnalyze,
		schemas.StepCoverage, schemas.StepMarketing,
	}, wf.Steps)
	assert.True(t, wf.ParallelExecution)
	assert.Equal(t, 300, wf.TimeoutSeconds)

	wantDeps := map[schemas.WorkflowStep][]schemas.WorkflowStep{
		schemas.StepProcess:   {schemas.StepQuery},
		schemas.StepAnalyze:   {schemas.StepProcess},
		schemas.StepCoverage:  {schemas.StepProcess},
		schemas.StepMarketing: {schemas.StepProcess, schemas.StepAnalyze, schemas.StepCoverage},
	}
	if diff := cmp.Diff(wantDeps, wf.Dependencies); diff != "" {
		t.Fatalf("dependency mismatch (-want +got):\n%s", diff)
	}
}

func TestDefinitionCatalog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		steps    int
		parallel bool
		timeout  int
	}{
		{"comprehensive_analysis", 5, true, 300},
		{"quick_evaluation", 3, false, 120},
		{"market_focused", 3, true, 180},
	}
	for _, tc := range tests {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			wf, err := workflow.Definition(tt.name)
			require.NoError(t, err)
			require.NoError(t, workflow.Validate(wf))
			assert.Len(t, wf.Steps, tt.steps)
			assert.Equal(t, tt.parallel, wf.ParallelExecution)
			assert.Equal(t, tt.timeout, wf.TimeoutSeconds)
		})
	}
}

func TestDefinitionIsolatesRuns(t *testing.T) {
	t.Parallel()

	first, err := workflow.Definition("quick_evaluation")
	require.NoError(t, err)
	second, err := workflow.Definition("quick_evaluation")
	require.NoError(t, err)

	assert.NotEqual(t, first.WorkflowID, second.WorkflowID)

	// Mutating one instance must not leak into the next.
	first.Steps[0] = schemas.StepMarketing
	first.Dependencies[schemas.StepProcess][0] = schemas.StepMarketing

	third, err := workflow.Definition("quick_evaluation")
	require.NoError(t, err)
	assert.Equal(t, schemas.StepQuery, third.Steps[0])
	assert.Equal(t, []schemas.WorkflowStep{schemas.StepQuery}, third.Dependencies[schemas.StepProcess])
}

func TestDefinitionUnknown(t *testing.T) {
	t.Parallel()

	_, err := workflow.Definition("patent_litigation")
	require.Error(t, err)
	assert.ErrorIs(t, err, workflow.ErrUnknownWorkflow)
}

func TestValidateRejectsBrokenDefinitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*schemas.AgentWorkflow)
	}{
		{"nil workflow", nil},
		{"unmapped step", func(wf *schemas.AgentWorkflow) {
			wf.Steps = append(wf.Steps, schemas.WorkflowStep("litigation"))
		}},
		{"duplicate step", func(wf *schemas.AgentWorkflow) {
			wf.Steps = append(wf.Steps, wf.Steps[0])
		}},
		{"dependency on unlisted step", func(wf *schemas.AgentWorkflow) {
			wf.Dependencies[schemas.StepProcess] = []schemas.WorkflowStep{schemas.StepMarketing}
		}},
	}
	for _, tc := range tests {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if tt.mutate == nil {
				assert.ErrorIs(t, workflow.Validate(nil), workflow.ErrInvalidWorkflow)
				return
			}
			wf, err := workflow.Definition("quick_evaluation")
			require.NoError(t, err)
			tt.mutate(wf)
			assert.ErrorIs(t, workflow.Validate(wf), workflow.ErrInvalidWorkflow)
		})
	}
}

func TestBuildStepInput(t *testing.T) {
	t.Parallel()

	queryResult := schemas.NewPatentData(schemas.TypeQueryResult, map[string]any{"total_results": 1}, nil)
	processDoc := schemas.NewPatentData(schemas.TypeDocument, map[string]any{}, nil)
	analysisReport := schemas.NewPatentData(schemas.TypeAnalysisReport, map[string]any{}, nil)

	wf, err := workflow.Definition("comprehensive_analysis")
	require.NoError(t, err)
	wf.Input = map[string]any{"keywords": []string{"gene therapy"}}

	t.Run("no prerequisites takes the seed", func(t *testing.T) {
		t.Parallel()
		input, err := workflow.BuildStepInput(wf, schemas.StepQuery, nil)
		require.NoError(t, err)
		require.True(t, input.IsParams())
		assert.Equal(t, wf.Input, input.Params)
	})

	t.Run("nil seed becomes an empty parameter map", func(t *testing.T) {
		t.Parallel()
		bare, err := workflow.Definition("quick_evaluation")
		require.NoError(t, err)
		input, err := workflow.BuildStepInput(bare, schemas.StepQuery, nil)
		require.NoError(t, err)
		require.True(t, input.IsParams())
		require.NoError(t, input.Validate())
	})

	t.Run("single prerequisite takes its results", func(t *testing.T) {
		t.Parallel()
		results := map[schemas.WorkflowStep][]schemas.PatentData{
			schemas.StepQuery: {queryResult},
		}
		input, err := workflow.BuildStepInput(wf, schemas.StepProcess, results)
		require.NoError(t, err)
		require.True(t, input.IsData())
		require.Len(t, input.Data, 1)
		assert.Equal(t, queryResult.ID, input.Data[0].ID)
	})

	t.Run("single prerequisite missing is an error", func(t *testing.T) {
		t.Parallel()
		_, err := workflow.BuildStepInput(wf, schemas.StepProcess, map[schemas.WorkflowStep][]schemas.PatentData{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no result from dependency query")
	})

	t.Run("multiple prerequisites concatenate in declared order", func(t *testing.T) {
		t.Parallel()
		results := map[schemas.WorkflowStep][]schemas.PatentData{
			schemas.StepProcess: {processDoc},
			schemas.StepAnalyze: {analysisReport},
		}
		input, err := workflow.BuildStepInput(wf, schemas.StepMarketing, results)
		require.NoError(t, err)
		require.True(t, input.IsData())
		require.Len(t, input.Data, 2)
		assert.Equal(t, processDoc.ID, input.Data[0].ID)
		assert.Equal(t, analysisReport.ID, input.Data[1].ID)
	})

	t.Run("partial prerequisites still wire", func(t *testing.T) {
		t.Parallel()
		results := map[schemas.WorkflowStep][]schemas.PatentData{
			schemas.StepProcess: {processDoc},
		}
		input, err := workflow.BuildStepInput(wf, schemas.StepMarketing, results)
		require.NoError(t, err)
		require.Len(t, input.Data, 1)
	})

	t.Run("no prerequisites available is an error", func(t *testing.T) {
		t.Parallel()
		_, err := workflow.BuildStepInput(wf, schemas.StepMarketing, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "any of its 3 dependencies")
	})
}
