// internal/results/aggregate.go
package results

import (
	"slices"
	"sort"

	"github.com/mlvn23/patentflow/api/schemas"
)

// Aggregate flattens a workflow result into a report: every envelope is
// counted, patents are deduplicated by publication number across steps, and
// the records are ordered by relevance score descending with ties broken by
// patent number.
func Aggregate(result *schemas.WorkflowResult) *Report {
	report := &Report{
		WorkflowID:     result.WorkflowID,
		Success:        result.Success,
		Duration:       result.TotalExecutionTime.String(),
		StepsCompleted: make([]string, 0, len(result.StepsCompleted)),
		Errors:         append([]string(nil), result.ErrorMessages...),
		Summary: Summary{
			ByType:     make(map[string]int),
			ByStep:     make(map[string]int),
			ErrorCount: len(result.ErrorMessages),
		},
	}

	records := make(map[string]*PatentRecord)
	for _, step := range result.StepsCompleted {
		report.StepsCompleted = append(report.StepsCompleted, string(step))
		envelopes := result.Results[step]
		report.Summary.TotalEnvelopes += len(envelopes)
		report.Summary.ByStep[string(step)] = len(envelopes)
		for _, env := range envelopes {
			report.Summary.ByType[string(env.Type)]++
			collectMentions(string(step), env, records)
		}
	}

	report.Patents = make([]PatentRecord, 0, len(records))
	for _, rec := range records {
		report.Patents = append(report.Patents, *rec)
	}
	sort.SliceStable(report.Patents, func(i, j int) bool {
		if report.Patents[i].RelevanceScore != report.Patents[j].RelevanceScore {
			return report.Patents[i].RelevanceScore > report.Patents[j].RelevanceScore
		}
		return report.Patents[i].PatentNumber < report.Patents[j].PatentNumber
	})
	report.Summary.UniquePatents = len(report.Patents)
	return report
}

// collectMentions extracts the patent references an envelope carries. Query
// results hold a row per patent under "patents"; every other type references
// a single patent at the top level of its content or metadata.
func collectMentions(step string, env schemas.PatentData, records map[string]*PatentRecord) {
	if env.Type == schemas.TypeQueryResult {
		for _, row := range rowMaps(env.Content["patents"]) {
			number, _ := row["patent_number"].(string)
			if number == "" {
				continue
			}
			title, _ := row["title"].(string)
			url, _ := row["url"].(string)
			mention(records, number, step, title, url, 0)
		}
		return
	}

	number, _ := env.Content["patent_number"].(string)
	if number == "" {
		number, _ = env.Metadata["patent_number"].(string)
	}
	if number == "" {
		return
	}
	title, _ := env.Content["title"].(string)
	url, _ := env.Content["url"].(string)
	score, _ := env.Content["relevance_score"].(float64)
	mention(records, number, step, title, url, score)
}

func mention(records map[string]*PatentRecord, number, step, title, url string, score float64) {
	rec, ok := records[number]
	if !ok {
		rec = &PatentRecord{PatentNumber: number}
		records[number] = rec
	}
	if rec.Title == "" {
		rec.Title = title
	}
	if rec.URL == "" {
		rec.URL = url
	}
	if score > rec.RelevanceScore {
		rec.RelevanceScore = score
	}
	if !slices.Contains(rec.Steps, step) {
		rec.Steps = append(rec.Steps, step)
	}
	rec.Mentions++
}

// rowMaps tolerates both shapes a row list can take: []map[string]any when
// the result came straight from an agent, []any after a JSON round trip
// through the store.
func rowMaps(v any) []map[string]any {
	switch rows := v.(type) {
	case []map[string]any:
		return rows
	case []any:
		out := make([]map[string]any, 0, len(rows))
		for _, r := range rows {
			if m, ok := r.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	}
	return nil
}
