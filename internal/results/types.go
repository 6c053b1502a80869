// internal/results/types.go
package results

import (
	"context"

	"github.com/mlvn23/patentflow/api/schemas"
)

// RunSource loads persisted workflow runs. *store.Store satisfies it; the
// pipeline only needs the read side.
type RunSource interface {
	GetRun(ctx context.Context, workflowID string) (*schemas.WorkflowResult, error)
}

// Report is the aggregated view of one workflow run.
type Report struct {
	WorkflowID     string         `json:"workflow_id"`
	Success        bool           `json:"success"`
	Duration       string         `json:"duration"`
	StepsCompleted []string       `json:"steps_completed"`
	Errors         []string       `json:"errors,omitempty"`
	Summary        Summary        `json:"summary"`
	Patents        []PatentRecord `json:"patents"`
}

// Summary holds the aggregate counts for a run.
type Summary struct {
	TotalEnvelopes int            `json:"total_envelopes"`
	UniquePatents  int            `json:"unique_patents"`
	ByType         map[string]int `json:"by_type"`
	ByStep         map[string]int `json:"by_step"`
	ErrorCount     int            `json:"error_count"`
}

// PatentRecord is one deduplicated patent with everything the run learned
// about it.
type PatentRecord struct {
	PatentNumber   string   `json:"patent_number"`
	Title          string   `json:"title,omitempty"`
	URL            string   `json:"url,omitempty"`
	RelevanceScore float64  `json:"relevance_score"`
	Steps          []string `json:"steps"`
	Mentions       int      `json:"mentions"`
}
