// internal/agent/analyze.go
package agent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/config"
)

// AnalysisAgent scores normalized patent documents and emits one
// analysis_report envelope per document. When an LLM client is wired in it
// drafts the report summary; otherwise, and whenever the model call fails,
// a heuristic summary is used so analysis never depends on the model being
// reachable.
type AnalysisAgent struct {
	*baseAgent
	llm schemas.LLMClient
}

func NewAnalysisAgent(cacheCfg config.CacheConfig, logger *zap.Logger, llm schemas.LLMClient) (*AnalysisAgent, error) {
	base, err := newBaseAgent(schemas.StepAnalyze, logger, cacheCfg,
		[]string{"innovation_scoring", "novelty_assessment", "claims_analysis", "chemical_analysis", "competitive_analysis"},
		[]schemas.PatentType{schemas.TypeDocument},
		schemas.TypeAnalysisReport,
	)
	if err != nil {
		return nil, err
	}
	aa := &AnalysisAgent{baseAgent: base, llm: llm}
	aa.process = aa.processTask
	return aa, nil
}

func (aa *AnalysisAgent) processTask(ctx context.Context, task *schemas.Task) ([]schemas.PatentData, error) {
	if !task.Input.IsData() {
		return nil, fmt.Errorf("analysis tasks take patent data, got parameters")
	}

	var reports []schemas.PatentData
	for _, envelope := range task.Input.Data {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if envelope.Type != schemas.TypeDocument {
			continue
		}
		doc, _ := envelope.Content["patent_document"].(map[string]any)
		if doc == nil {
			continue
		}
		reports = append(reports, aa.analyzeDocument(ctx, doc))
	}
	if len(reports) == 0 {
		return nil, fmt.Errorf("no patent documents in input")
	}
	return reports, nil
}

func (aa *AnalysisAgent) analyzeDocument(ctx context.Context, doc map[string]any) schemas.PatentData {
	number, _ := doc["patent_number"].(string)

	components := map[string]any{
		"technical":   technicalComponent(doc),
		"novelty":     noveltyComponent(doc),
		"claims":      claimsComponent(doc),
		"chemical":    chemicalComponent(doc),
		"commercial":  commercialComponent(doc),
		"competitive": competitiveComponent(doc),
	}

	innovation := innovationScore(doc)
	novelty := noveltyScore(doc)
	confidence := confidenceScore(doc)
	findings := keyFindings(doc, innovation, novelty)
	recommendations := recommendationsFor(doc, innovation, novelty)

	result := map[string]any{
		"innovation_score": innovation,
		"novelty_score":    novelty,
		"confidence_score": confidence,
		"summary":          aa.summarize(ctx, number, doc, innovation, novelty),
		"key_findings":     findings,
		"recommendations":  recommendations,
	}
	content := map[string]any{
		"patent_number":       number,
		"analysis_result":     result,
		"analysis_components": components,
	}
	metadata := map[string]any{
		"patent_number":      number,
		"analysis_timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	return schemas.NewPatentData(schemas.TypeAnalysisReport, content, metadata)
}

// summarize asks the LLM for a two-sentence summary, falling back to the
// heuristic text when no client is wired or the call fails.
func (aa *AnalysisAgent) summarize(ctx context.Context, number string, doc map[string]any, innovation, novelty float64) string {
	fallback := heuristicSummary(number, doc, innovation, novelty)
	if aa.llm == nil {
		return fallback
	}

	title, _ := doc["title"].(string)
	abstract, _ := doc["abstract"].(string)
	resp, err := aa.llm.Complete(ctx, schemas.CompletionRequest{
		SystemPrompt: "You are a patent analyst. Summarize the patent in two sentences for an investment audience.",
		UserPrompt:   fmt.Sprintf("Patent %s: %s\n\nAbstract: %s", number, title, abstract),
	})
	if err != nil {
		aa.logger.Warn("LLM summary failed, using heuristic summary",
			zap.String("patent_number", number),
			zap.Error(err))
		return fallback
	}
	if text := strings.TrimSpace(resp.Text); text != "" {
		return text
	}
	return fallback
}

func heuristicSummary(number string, doc map[string]any, innovation, novelty float64) string {
	title, _ := doc["title"].(string)
	return fmt.Sprintf("%s (%s) scores %.1f/10 on innovation and %.1f/10 on novelty based on claims structure, chemical content and citation posture.",
		title, number, innovation, novelty)
}

// -- component analyses --

func technicalComponent(doc map[string]any) map[string]any {
	desc, _ := doc["description"].(string)
	complexity := "low"
	switch {
	case len(desc) > 600:
		complexity = "high"
	case len(desc) > 200:
		complexity = "moderate"
	}
	return map[string]any{
		"complexity":  complexity,
		"text_length": len(desc),
	}
}

func noveltyComponent(doc map[string]any) map[string]any {
	cited := len(stringsParam(doc, "cited_patents"))
	citing := len(stringsParam(doc, "citing_patents"))
	assessment := "dense prior art field"
	if cited < 5 {
		assessment = "sparse prior art field"
	}
	return map[string]any{
		"cited_patents":  cited,
		"citing_patents": citing,
		"assessment":     assessment,
	}
}

func claimsComponent(doc map[string]any) map[string]any {
	claims := stringsParam(doc, "claims")
	independent := 0
	for _, c := range claims {
		if !strings.Contains(strings.ToLower(c), "of claim") {
			independent++
		}
	}
	breadth := "narrow"
	if independent > 1 {
		breadth = "broad"
	}
	return map[string]any{
		"count":              len(claims),
		"independent_claims": independent,
		"breadth":            breadth,
	}
}

func chemicalComponent(doc map[string]any) map[string]any {
	structures := stringsParam(doc, "chemical_structures")
	return map[string]any{
		"structures_found": len(structures),
		"formulas":         structures,
	}
}

func commercialComponent(doc map[string]any) map[string]any {
	assignees := stringsParam(doc, "assignees")
	signal := "unassigned filing"
	if len(assignees) > 0 {
		signal = "corporate assignee present"
	}
	return map[string]any{
		"assignees":     assignees,
		"market_signal": signal,
	}
}

func competitiveComponent(doc map[string]any) map[string]any {
	citing := len(stringsParam(doc, "citing_patents"))
	pressure := "low"
	if citing > 10 {
		pressure = "high"
	} else if citing > 3 {
		pressure = "moderate"
	}
	return map[string]any{
		"citing_count": citing,
		"pressure":     pressure,
	}
}

// -- scores --

func innovationScore(doc map[string]any) float64 {
	claims := len(stringsParam(doc, "claims"))
	chems := len(stringsParam(doc, "chemical_structures"))
	desc, _ := doc["description"].(string)
	return clampScore(3.0 + 0.8*float64(claims) + 0.5*float64(chems) + float64(len(desc))/400.0)
}

func noveltyScore(doc map[string]any) float64 {
	cited := len(stringsParam(doc, "cited_patents"))
	codes := len(stringsParam(doc, "classification_codes"))
	return clampScore(5.0 - 0.3*float64(cited) + 0.4*float64(codes))
}

// confidenceScore reflects how much of the document is actually populated.
func confidenceScore(doc map[string]any) float64 {
	fields := []string{"title", "abstract", "description", "publication_date"}
	populated := 0
	for _, f := range fields {
		if s, _ := doc[f].(string); s != "" {
			populated++
		}
	}
	if len(stringsParam(doc, "claims")) > 0 {
		populated++
	}
	if len(stringsParam(doc, "classification_codes")) > 0 {
		populated++
	}
	return clampScore(float64(populated) / 6.0 * 10.0)
}

func clampScore(s float64) float64 {
	if s < 0 {
		s = 0
	}
	if s > 10 {
		s = 10
	}
	return math.Round(s*10) / 10
}

func keyFindings(doc map[string]any, innovation, novelty float64) []string {
	findings := []string{
		fmt.Sprintf("%d claims on record", len(stringsParam(doc, "claims"))),
	}
	if n := len(stringsParam(doc, "chemical_structures")); n > 0 {
		findings = append(findings, fmt.Sprintf("%d chemical structures identified", n))
	}
	if innovation >= 7 {
		findings = append(findings, "strong innovation profile")
	}
	if novelty >= 7 {
		findings = append(findings, "limited overlapping prior art")
	}
	return findings
}

func recommendationsFor(doc map[string]any, innovation, novelty float64) []string {
	var recs []string
	if innovation >= 7 {
		recs = append(recs, "Consider continuation applications to extend coverage.")
	}
	if novelty < 4 {
		recs = append(recs, "Commission a prior art search before asserting claims.")
	}
	if len(stringsParam(doc, "citing_patents")) > 3 {
		recs = append(recs, "Conduct a freedom-to-operate review of citing patents.")
	}
	if len(recs) == 0 {
		recs = append(recs, "Maintain the patent and monitor the citation landscape.")
	}
	return recs
}
