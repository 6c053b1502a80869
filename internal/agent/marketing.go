// internal/agent/marketing.go
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/config"
	"go.uber.org/zap"
)

// sectorByCodePrefix maps classification code prefixes to the technology
// sector they signal. First match wins, in the order listed here.
var sectorByCodePrefix = []struct {
	prefix string
	sector string
}{
	{"A61K", "pharmaceutical"},
	{"A61P", "pharmaceutical"},
	{"C07C", "chemical"},
	{"C07D", "chemical"},
	{"C12N", "biotech"},
	{"C07K", "biotech"},
}

// MarketingAgent synthesizes everything upstream stages produced into a
// single market_assessment envelope. It accepts documents, analysis reports
// and coverage maps and degrades gracefully when only some are present.
type MarketingAgent struct {
	*baseAgent
}

func NewMarketingAgent(cacheCfg config.CacheConfig, logger *zap.Logger) (*MarketingAgent, error) {
	base, err := newBaseAgent(schemas.StepMarketing, logger, cacheCfg,
		[]string{"market_sizing", "competitive_positioning", "value_assessment", "commercialization_strategy"},
		[]schemas.PatentType{schemas.TypeDocument, schemas.TypeAnalysisReport, schemas.TypeCoverageMap},
		schemas.TypeMarketAssessment,
	)
	if err != nil {
		return nil, err
	}
	ma := &MarketingAgent{baseAgent: base}
	ma.process = ma.processTask
	return ma, nil
}

func (ma *MarketingAgent) processTask(ctx context.Context, task *schemas.Task) ([]schemas.PatentData, error) {
	if !task.Input.IsData() {
		return nil, fmt.Errorf("market analysis tasks take patent data, got parameters")
	}

	var (
		docs    []map[string]any
		reports []map[string]any
		covers  []map[string]any
	)
	for _, envelope := range task.Input.Data {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch envelope.Type {
		case schemas.TypeDocument:
			if doc, ok := envelope.Content["patent_document"].(map[string]any); ok {
				docs = append(docs, doc)
			}
		case schemas.TypeAnalysisReport:
			reports = append(reports, envelope.Content)
		case schemas.TypeCoverageMap:
			covers = append(covers, envelope.Content)
		}
	}
	if len(docs) == 0 && len(reports) == 0 && len(covers) == 0 {
		return nil, fmt.Errorf("no analyzable patent data in input")
	}

	sector := detectSector(docs)
	subject := assessmentSubject(docs, reports, covers)
	ma.logger.Debug("Assessing market position",
		zap.String("subject", subject),
		zap.String("sector", sector),
		zap.Int("documents", len(docs)),
		zap.Int("reports", len(reports)),
		zap.Int("coverage_maps", len(covers)))

	value := valueAssessment(reports, covers)
	strategy := commercializationStrategy(sector, value)

	content := map[string]any{
		"patent_number":              subject,
		"technology_sector":          sector,
		"market_opportunities":       marketOpportunities(sector),
		"competitive_positions":      competitivePositions(docs),
		"value_assessment":           value,
		"commercialization_strategy": strategy,
		"strategic_recommendations":  marketRecommendations(sector, value, covers),
		"executive_summary":          executiveSummary(subject, sector, value),
	}
	metadata := map[string]any{
		"assessment_timestamp": time.Now().UTC().Format(time.RFC3339),
		"documents_considered": len(docs),
		"reports_considered":   len(reports),
	}
	return []schemas.PatentData{schemas.NewPatentData(schemas.TypeMarketAssessment, content, metadata)}, nil
}

// detectSector picks the technology sector from the first classification
// code that matches a known prefix across all documents.
func detectSector(docs []map[string]any) string {
	for _, doc := range docs {
		for _, code := range stringsParam(doc, "classification_codes") {
			for _, entry := range sectorByCodePrefix {
				if strings.HasPrefix(code, entry.prefix) {
					return entry.sector
				}
			}
		}
	}
	return "general technology"
}

func assessmentSubject(docs, reports, covers []map[string]any) string {
	if len(docs) > 0 {
		if number, ok := docs[0]["patent_number"].(string); ok && number != "" {
			return number
		}
	}
	for _, group := range [][]map[string]any{reports, covers} {
		for _, content := range group {
			if number, ok := content["patent_number"].(string); ok && number != "" {
				return number
			}
		}
	}
	return "portfolio"
}

func marketOpportunities(sector string) []map[string]any {
	switch sector {
	case "pharmaceutical":
		return []map[string]any{
			{"segment": "branded therapeutics", "size": "large", "horizon": "5y"},
			{"segment": "licensing to generics", "size": "medium", "horizon": "10y"},
		}
	case "chemical":
		return []map[string]any{
			{"segment": "specialty chemicals", "size": "medium", "horizon": "3y"},
			{"segment": "process licensing", "size": "medium", "horizon": "7y"},
		}
	case "biotech":
		return []map[string]any{
			{"segment": "therapeutic platforms", "size": "large", "horizon": "8y"},
			{"segment": "research tools", "size": "small", "horizon": "2y"},
		}
	default:
		return []map[string]any{
			{"segment": "direct productization", "size": "unknown", "horizon": "3y"},
		}
	}
}

func competitivePositions(docs []map[string]any) []map[string]any {
	positions := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		number, _ := doc["patent_number"].(string)
		citing := len(stringsParam(doc, "citing_patents"))
		strength := "uncontested"
		if citing > 3 {
			strength = "actively cited"
		}
		positions = append(positions, map[string]any{
			"patent_number": number,
			"citing_count":  citing,
			"position":      strength,
		})
	}
	return positions
}

// valueAssessment blends analysis scores and coverage scores when present.
func valueAssessment(reports, covers []map[string]any) map[string]any {
	innovation := averageScore(reports, "analysis_result", "innovation_score")
	coverage := averageScore(covers, "coverage_summary", "coverage_score")

	band := "speculative"
	blended := 0.0
	samples := 0
	if innovation > 0 {
		blended += innovation
		samples++
	}
	if coverage > 0 {
		blended += coverage
		samples++
	}
	if samples > 0 {
		blended /= float64(samples)
		switch {
		case blended >= 7:
			band = "premium"
		case blended >= 4:
			band = "solid"
		}
	}
	return map[string]any{
		"value_band":           band,
		"avg_innovation_score": innovation,
		"avg_coverage_score":   coverage,
	}
}

func averageScore(contents []map[string]any, section, field string) float64 {
	sum := 0.0
	n := 0
	for _, content := range contents {
		inner, ok := content[section].(map[string]any)
		if !ok {
			continue
		}
		if v, ok := inner[field].(float64); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return clampScore(sum / float64(n))
}

func commercializationStrategy(sector string, value map[string]any) map[string]any {
	band, _ := value["value_band"].(string)
	path := "licensing"
	rationale := "License to established players while retaining core rights."
	if band == "premium" {
		path = "productization"
		rationale = "Portfolio strength supports direct commercialization."
	}
	if sector == "pharmaceutical" && band != "premium" {
		path = "partnering"
		rationale = "Regulatory cost favors a development partner."
	}
	return map[string]any{
		"recommended_path": path,
		"rationale":        rationale,
	}
}

func marketRecommendations(sector string, value map[string]any, covers []map[string]any) []string {
	recs := []string{fmt.Sprintf("Position the portfolio within the %s sector.", sector)}
	if band, _ := value["value_band"].(string); band == "speculative" {
		recs = append(recs, "Strengthen the valuation case with additional analysis before outreach.")
	}
	for _, cover := range covers {
		gaps := stringsParam(cover, "coverage_gaps")
		if len(gaps) > 0 {
			recs = append(recs, fmt.Sprintf("Close coverage gaps (%s) before licensing negotiations.", strings.Join(gaps, ", ")))
			break
		}
	}
	return recs
}

func executiveSummary(subject, sector string, value map[string]any) string {
	band, _ := value["value_band"].(string)
	return fmt.Sprintf("Assessment of %s places it in the %s sector with a %s value profile.", subject, sector, band)
}
