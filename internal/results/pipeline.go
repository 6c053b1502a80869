// internal/results/pipeline.go
package results

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Pipeline turns persisted workflow runs into aggregated reports.
type Pipeline struct {
	source RunSource
	logger *zap.Logger
}

// NewPipeline creates a results pipeline. The source may be nil when run
// persistence is disabled; BuildReport then reports that instead of failing
// on a nil dereference.
func NewPipeline(source RunSource, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		source: source,
		logger: logger.Named("results_pipeline"),
	}
}

// BuildReport loads a stored run and aggregates it.
func (p *Pipeline) BuildReport(ctx context.Context, workflowID string) (*Report, error) {
	if p.source == nil {
		return nil, errors.New("run persistence is disabled, no stored runs to report on")
	}

	result, err := p.source.GetRun(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("loading workflow run %q: %w", workflowID, err)
	}

	report := Aggregate(result)
	p.logger.Info("Report built",
		zap.String("workflow_id", workflowID),
		zap.Int("patents", len(report.Patents)),
		zap.Int("envelopes", report.Summary.TotalEnvelopes))
	return report, nil
}

// ToJSON serializes the report for file output and the JSON reporter.
func (r *Report) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
