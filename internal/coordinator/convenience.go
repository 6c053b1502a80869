// internal/coordinator/convenience.go
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mlvn23/patentflow/api/schemas"
)

// RunOption adjusts an instantiated workflow definition before execution,
// never the catalog entry itself.
type RunOption func(*schemas.AgentWorkflow)

// Sequential forces the sequential engine regardless of the catalog default.
func Sequential() RunOption {
	return func(wf *schemas.AgentWorkflow) { wf.ParallelExecution = false }
}

// Parallel forces the wavefront engine regardless of the catalog default.
func Parallel() RunOption {
	return func(wf *schemas.AgentWorkflow) { wf.ParallelExecution = true }
}

// StepTimeout overrides the timeout applied to concurrently dispatched steps.
func StepTimeout(seconds int) RunOption {
	return func(wf *schemas.AgentWorkflow) { wf.TimeoutSeconds = seconds }
}

// defaultClassificationCodes seed keyword searches that carry no explicit
// classification filter. They cover the pharmaceutical and organic chemistry
// classes the shipped stages are tuned for.
var defaultClassificationCodes = []string{"A61K", "A61P", "C07D"}

// techAreaCodes maps a technology area name to the CPC classes searched for
// it. Unknown areas fall back to pharmaceutical preparations.
var techAreaCodes = map[string][]string{
	"pharmaceutical": {"A61K", "A61P"},
	"chemical":       {"C07C", "C07D"},
	"biotech":        {"C12N", "C07K"},
}

// SearchPatents runs the comprehensive analysis workflow seeded with a
// keyword search.
func (c *Coordinator) SearchPatents(ctx context.Context, keywords []string, maxResults int, opts ...RunOption) (*schemas.WorkflowResult, error) {
	if maxResults <= 0 {
		maxResults = 30
	}
	seed := map[string]any{
		"keywords":             keywords,
		"classification_codes": defaultClassificationCodes,
		"max_results":          maxResults,
	}
	return c.ExecuteByName(ctx, "comprehensive_analysis", seed, opts...)
}

// QuickEvaluation runs the short sequential workflow against one patent.
func (c *Coordinator) QuickEvaluation(ctx context.Context, patentNumber string, opts ...RunOption) (*schemas.WorkflowResult, error) {
	seed := map[string]any{
		"patent_number":  patentNumber,
		"analysis_depth": "standard",
	}
	return c.ExecuteByName(ctx, "quick_evaluation", seed, opts...)
}

// MarketAnalysis runs the market focused workflow over one technology area.
func (c *Coordinator) MarketAnalysis(ctx context.Context, technologyArea string, maxResults int, opts ...RunOption) (*schemas.WorkflowResult, error) {
	codes, ok := techAreaCodes[strings.ToLower(technologyArea)]
	if !ok {
		codes = []string{"A61K"}
	}
	if maxResults <= 0 {
		maxResults = 30
	}
	seed := map[string]any{
		"keywords":             []string{technologyArea},
		"classification_codes": codes,
		"max_results":          maxResults,
	}
	return c.ExecuteByName(ctx, "market_focused", seed, opts...)
}

// EvaluatePortfolio runs quick evaluations for several patents concurrently
// and keys the results by patent number. A definition error on any patent
// cancels the remainder; per-step failures stay inside the individual
// results.
func (c *Coordinator) EvaluatePortfolio(ctx context.Context, patentNumbers []string) (map[string]*schemas.WorkflowResult, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.cfg.MaxConcurrentWorkflows)

	var mu sync.Mutex
	out := make(map[string]*schemas.WorkflowResult, len(patentNumbers))

	for _, number := range patentNumbers {
		number := number
		group.Go(func() error {
			res, err := c.QuickEvaluation(groupCtx, number)
			if err != nil {
				return fmt.Errorf("evaluating %s: %w", number, err)
			}
			mu.Lock()
			out[number] = res
			mu.Unlock()
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
