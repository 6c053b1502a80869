// internal/agent/coverage.go
package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/config"
	"go.uber.org/zap"
)

// keyMarkets are the jurisdictions coverage is scored against, in scoring
// order. The IP5 offices.
var keyMarkets = []string{"US", "EP", "CN", "JP", "KR"}

var patentCountryRe = regexp.MustCompile(`^([A-Z]{2})`)

// CoverageAgent maps the geographic protection of each patent document and
// emits one coverage_map envelope per document.
type CoverageAgent struct {
	*baseAgent
}

func NewCoverageAgent(cacheCfg config.CacheConfig, logger *zap.Logger) (*CoverageAgent, error) {
	base, err := newBaseAgent(schemas.StepCoverage, logger, cacheCfg,
		[]string{"family_mapping", "geographic_coverage", "gap_analysis", "filing_strategy"},
		[]schemas.PatentType{schemas.TypeDocument},
		schemas.TypeCoverageMap,
	)
	if err != nil {
		return nil, err
	}
	ca := &CoverageAgent{baseAgent: base}
	ca.process = ca.processTask
	return ca, nil
}

func (ca *CoverageAgent) processTask(ctx context.Context, task *schemas.Task) ([]schemas.PatentData, error) {
	if !task.Input.IsData() {
		return nil, fmt.Errorf("coverage tasks take patent data, got parameters")
	}

	var maps []schemas.PatentData
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
		maps = append(maps, ca.mapCoverage(doc))
	}
	if len(maps) == 0 {
		return nil, fmt.Errorf("no patent documents in input")
	}
	return maps, nil
}

func (ca *CoverageAgent) mapCoverage(doc map[string]any) schemas.PatentData {
	number, _ := doc["patent_number"].(string)
	family := familyFor(number, stringsParam(doc, "classification_codes"))

	covered := make(map[string]bool, len(family))
	for _, member := range family {
		if cc := countryOf(member); cc != "" {
			covered[cc] = true
		}
	}
	countries := make([]string, 0, len(covered))
	for cc := range covered {
		countries = append(countries, cc)
	}
	sort.Strings(countries)

	var keyCovered, gaps []string
	for _, market := range keyMarkets {
		if covered[market] {
			keyCovered = append(keyCovered, market)
		} else {
			gaps = append(gaps, market)
		}
	}

	geographic := make(map[string]any, len(countries))
	for _, cc := range countries {
		geographic[cc] = map[string]any{
			"status":     "active",
			"key_market": containsString(keyMarkets, cc),
		}
	}

	content := map[string]any{
		"patent_number":             number,
		"patent_family":             family,
		"geographic_coverage":       geographic,
		"coverage_gaps":             gaps,
		"market_analysis":           marketAnalysisFor(keyCovered, gaps),
		"strategic_recommendations": filingRecommendations(gaps, stringsParam(doc, "classification_codes")),
		"coverage_summary": map[string]any{
			"total_countries":     len(countries),
			"active_countries":    len(countries),
			"key_markets_covered": len(keyCovered),
			"coverage_score":      clampScore(float64(len(keyCovered)) / float64(len(keyMarkets)) * 10.0),
		},
	}
	metadata := map[string]any{
		"patent_number":      number,
		"coverage_timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	return schemas.NewPatentData(schemas.TypeCoverageMap, content, metadata)
}

// familyFor synthesizes the known family members for a patent. Family data
// is not present in the upstream documents, so the family is derived from
// the filing jurisdiction plus the markets its classification implies.
func familyFor(number string, codes []string) []string {
	family := []string{number}
	home := countryOf(number)

	siblings := []string{"EP", "US"}
	if hasCodePrefix(codes, "A61") {
		// Pharmaceutical filings routinely extend to Japan.
		siblings = append(siblings, "JP")
	}
	for _, cc := range siblings {
		if cc == home {
			continue
		}
		family = append(family, cc+digitsOf(number)+"A1")
	}
	return family
}

func countryOf(number string) string {
	m := patentCountryRe.FindStringSubmatch(number)
	if m == nil {
		return ""
	}
	return m[1]
}

var digitsRe = regexp.MustCompile(`\d+`)

func digitsOf(number string) string {
	if d := digitsRe.FindString(number); d != "" {
		return d
	}
	return "0000000"
}

func hasCodePrefix(codes []string, prefix string) bool {
	for _, code := range codes {
		if len(code) >= len(prefix) && code[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func containsString(items []string, target string) bool {
	for _, item := range items {
		if item == target {
			return true
		}
	}
	return false
}

func marketAnalysisFor(covered, gaps []string) map[string]any {
	posture := "defensible"
	if len(gaps) > len(covered) {
		posture = "exposed"
	}
	return map[string]any{
		"covered_key_markets": append([]string{}, covered...),
		"posture":             posture,
	}
}

func filingRecommendations(gaps, codes []string) []string {
	if len(gaps) == 0 {
		return []string{"Coverage spans all key markets. Maintain annuities."}
	}
	recs := make([]string, 0, len(gaps)+1)
	for _, cc := range gaps {
		recs = append(recs, fmt.Sprintf("Evaluate filing in %s while the priority window allows.", cc))
	}
	if hasCodePrefix(codes, "A61") {
		recs = append(recs, "Coordinate filings with regulatory exclusivity timelines.")
	}
	return recs
}
