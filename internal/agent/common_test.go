// internal/agent/common_test.go
package agent_test

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/config"
)

func testCacheCfg() config.CacheConfig {
	return config.CacheConfig{MaxEntries: 32, TTL: time.Minute}
}

func offlineQueryCfg() config.QueryConfig {
	return config.QueryConfig{
		Offline:        true,
		RequestTimeout: time.Second,
	}
}

// docEnvelope builds a document envelope shaped like the processing agent's
// output.
func docEnvelope(number string, codes, cited, citing []string) schemas.PatentData {
	doc := map[string]any{
		"patent_number":        number,
		"title":                "Compound delivery system",
		"abstract":             "A glucose C6H12O6 based delivery vehicle.",
		"claims":               []string{"1. A delivery method.", "2. The method of claim 1, applied topically."},
		"description":          "Detailed description of the delivery system, its carriers and preferred embodiments across therapeutic uses.",
		"inventors":            []string{"Inventor 1"},
		"assignees":            []string{"Company 1"},
		"publication_date":     "2024-05-01",
		"filing_date":          "2022-05-01",
		"priority_date":        "2021-05-01",
		"classification_codes": codes,
		"cited_patents":        cited,
		"citing_patents":       citing,
		"chemical_structures":  []string{"C6H12O6"},
	}
	return schemas.NewPatentData(schemas.TypeDocument, map[string]any{
		"patent_document":  doc,
		"processing_stats": map[string]any{"claims_count": 2},
		"relevance_score":  0.8,
	}, map[string]any{"patent_number": number})
}

// scriptedLLM returns a fixed completion or error.
type scriptedLLM struct {
	resp  *schemas.CompletionResponse
	err   error
	calls atomic.Int32
}

func (s *scriptedLLM) Complete(ctx context.Context, req schemas.CompletionRequest) (*schemas.CompletionResponse, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func (s *scriptedLLM) Close() error { return nil }

var _ schemas.LLMClient = (*scriptedLLM)(nil)
