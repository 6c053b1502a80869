// internal/agent/query.go
package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/beevik/etree"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mlvn23/patentflow/api/schemas"
	"github.com/mlvn23/patentflow/internal/config"
)

// queryParameters is the normalized search request a query task carries.
type queryParameters struct {
	Keywords            []string
	ClassificationCodes []string
	Inventors           []string
	Assignees           []string
	DateRange           map[string]string
	PatentNumber        string
	MaxResults          int
}

// QueryAgent searches patent databases and emits a single query_result
// envelope per task. In offline mode it synthesizes a deterministic result
// set; online it queries the EPO Open Patent Services search endpoint.
type QueryAgent struct {
	*baseAgent
	cfg     config.QueryConfig
	limiter *rate.Limiter
	client  *http.Client
}

func NewQueryAgent(cfg config.QueryConfig, cacheCfg config.CacheConfig, logger *zap.Logger) (*QueryAgent, error) {
	base, err := newBaseAgent(schemas.StepQuery, logger, cacheCfg,
		[]string{"patent_search", "boolean_query_construction", "multi_database_aggregation", "result_deduplication"},
		nil,
		schemas.TypeQueryResult,
	)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	burst := 1
	if cfg.MaxRequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.MaxRequestsPerMinute))
		burst = cfg.MaxRequestsPerMinute
	}
	qa := &QueryAgent{
		baseAgent: base,
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, burst),
		client:    &http.Client{Timeout: cfg.RequestTimeout},
	}
	qa.process = qa.processTask
	return qa, nil
}

func (qa *QueryAgent) processTask(ctx context.Context, task *schemas.Task) ([]schemas.PatentData, error) {
	if !task.Input.IsParams() {
		return nil, fmt.Errorf("query tasks take search parameters, got patent data")
	}
	params := parseQueryParameters(task.Input.Params)

	if err := qa.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limit: %w", err)
	}

	var (
		rows    []map[string]any
		sources []string
		err     error
	)
	if qa.cfg.Offline {
		for _, source := range []string{"google_patents", "espacenet"} {
			rows = append(rows, qa.simulateSearch(source, params)...)
			sources = append(sources, source)
		}
	} else {
		rows, err = qa.searchOPS(ctx, params)
		if err != nil {
			return nil, err
		}
		sources = []string{"espacenet_ops"}
	}

	rows = deduplicateResults(rows)
	if params.MaxResults > 0 && len(rows) > params.MaxResults {
		rows = rows[:params.MaxResults]
	}
	qa.logger.Debug("Search finished",
		zap.Int("results", len(rows)),
		zap.Strings("sources", sources))

	content := map[string]any{
		"query_parameters": map[string]any{
			"keywords":             params.Keywords,
			"classification_codes": params.ClassificationCodes,
			"inventors":            params.Inventors,
			"assignees":            params.Assignees,
			"date_range":           params.DateRange,
			"max_results":          params.MaxResults,
			"boolean_query":        buildBooleanQuery(params),
		},
		"total_results": len(rows),
		"patents":       rows,
	}
	metadata := map[string]any{
		"search_timestamp":   time.Now().UTC().Format(time.RFC3339),
		"databases_searched": sources,
		"query_type":         "boolean_search",
	}
	return []schemas.PatentData{schemas.NewPatentData(schemas.TypeQueryResult, content, metadata)}, nil
}

func parseQueryParameters(params map[string]any) queryParameters {
	p := queryParameters{
		Keywords:            stringsParam(params, "keywords"),
		ClassificationCodes: stringsParam(params, "classification_codes"),
		Inventors:           stringsParam(params, "inventors"),
		Assignees:           stringsParam(params, "assignees"),
		DateRange:           stringMapParam(params, "date_range"),
		PatentNumber:        stringParam(params, "patent_number"),
		MaxResults:          intParam(params, "max_results", 100),
	}
	// A bare patent number lookup still needs a search term.
	if len(p.Keywords) == 0 && p.PatentNumber != "" {
		p.Keywords = []string{p.PatentNumber}
	}
	return p
}

// buildBooleanQuery renders the parameters as a boolean search expression:
// quoted keywords OR-joined inside a group, field-prefixed terms for
// inventors, assignees and classifications, groups AND-joined.
func buildBooleanQuery(p queryParameters) string {
	var groups []string

	if len(p.Keywords) > 0 {
		quoted := make([]string, len(p.Keywords))
		for i, kw := range p.Keywords {
			quoted[i] = fmt.Sprintf("%q", kw)
		}
		groups = append(groups, "("+strings.Join(quoted, " OR ")+")")
	}
	if len(p.Inventors) > 0 {
		terms := make([]string, len(p.Inventors))
		for i, name := range p.Inventors {
			terms[i] = fmt.Sprintf("inventor:%q", name)
		}
		groups = append(groups, "("+strings.Join(terms, " OR ")+")")
	}
	if len(p.Assignees) > 0 {
		terms := make([]string, len(p.Assignees))
		for i, name := range p.Assignees {
			terms[i] = fmt.Sprintf("assignee:%q", name)
		}
		groups = append(groups, "("+strings.Join(terms, " OR ")+")")
	}
	if len(p.ClassificationCodes) > 0 {
		terms := make([]string, len(p.ClassificationCodes))
		for i, code := range p.ClassificationCodes {
			terms[i] = "classification:" + code
		}
		groups = append(groups, "("+strings.Join(terms, " OR ")+")")
	}

	return strings.Join(groups, " AND ")
}

// simulateSearch fabricates a stable result page for one source. Each source
// contributes at most half the requested results, capped at 50.
func (qa *QueryAgent) simulateSearch(source string, p queryParameters) []map[string]any {
	perSource := p.MaxResults / 2
	if perSource > 50 {
		perSource = 50
	}
	if perSource < 1 {
		perSource = 1
	}

	topic := strings.Join(firstN(p.Keywords, 2), " ")
	if topic == "" {
		topic = "patented technology"
	}

	rows := make([]map[string]any, 0, perSource)
	for i := 0; i < perSource; i++ {
		var number string
		if source == "google_patents" {
			number = fmt.Sprintf("US%dB2", 10000000+i)
		} else {
			number = fmt.Sprintf("EP%07dA1", 3000000+i)
		}
		if p.PatentNumber != "" && i == 0 {
			number = p.PatentNumber
		}
		rows = append(rows, map[string]any{
			"patent_number":    number,
			"title":            fmt.Sprintf("Patent related to %s", topic),
			"inventors":        []string{fmt.Sprintf("Inventor %d", i+1)},
			"assignees":        []string{fmt.Sprintf("Company %d", i%10+1)},
			"publication_date": time.Now().AddDate(0, 0, -30*(i+1)).Format("2006-01-02"),
			"abstract":         fmt.Sprintf("An invention addressing %s.", topic),
			"source":           source,
			"url":              patentURL(source, number),
		})
	}
	return rows
}

func patentURL(source, number string) string {
	if source == "google_patents" {
		return "https://patents.google.com/patent/" + number
	}
	return "https://worldwide.espacenet.com/patent/search?q=pn%3D" + number
}

// searchOPS runs a published-data search against the EPO OPS endpoint and
// extracts docdb publication references from the XML response.
func (qa *QueryAgent) searchOPS(ctx context.Context, p queryParameters) ([]map[string]any, error) {
	query := buildOPSQuery(p)
	if query == "" {
		return nil, fmt.Errorf("search parameters produce an empty query")
	}
	rangeEnd := p.MaxResults
	if rangeEnd <= 0 || rangeEnd > 100 {
		rangeEnd = 100
	}
	endpoint := fmt.Sprintf("%s?q=%s&Range=1-%d", qa.cfg.BaseURL, url.QueryEscape(query), rangeEnd)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building search request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := qa.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("patent search request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("patent search returned status %d", resp.StatusCode)
	}

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}

	var rows []map[string]any
	for _, ref := range doc.FindElements("//publication-reference") {
		docID := ref.FindElement("document-id[@document-id-type='docdb']")
		if docID == nil {
			docID = ref.FindElement("document-id")
		}
		if docID == nil {
			continue
		}
		number := childText(docID, "country") + childText(docID, "doc-number") + childText(docID, "kind")
		if number == "" {
			continue
		}
		rows = append(rows, map[string]any{
			"patent_number": number,
			"title":         "",
			"source":        "espacenet_ops",
			"url":           patentURL("espacenet", number),
		})
	}
	return rows, nil
}

// buildOPSQuery renders the parameters in OPS CQL. Title-and-abstract terms
// for keywords, field codes for the rest.
func buildOPSQuery(p queryParameters) string {
	var groups []string

	appendGroup := func(field string, values []string) {
		if len(values) == 0 {
			return
		}
		terms := make([]string, len(values))
		for i, v := range values {
			terms[i] = fmt.Sprintf("%s=%q", field, v)
		}
		groups = append(groups, "("+strings.Join(terms, " or ")+")")
	}

	if p.PatentNumber != "" {
		appendGroup("pn", []string{p.PatentNumber})
		return strings.Join(groups, " and ")
	}
	appendGroup("ta", p.Keywords)
	appendGroup("in", p.Inventors)
	appendGroup("pa", p.Assignees)
	appendGroup("cpc", p.ClassificationCodes)
	return strings.Join(groups, " and ")
}

func childText(parent *etree.Element, tag string) string {
	if el := parent.FindElement(tag); el != nil {
		return strings.TrimSpace(el.Text())
	}
	return ""
}

// deduplicateResults keeps the first row seen for each patent number.
func deduplicateResults(rows []map[string]any) []map[string]any {
	seen := make(map[string]struct{}, len(rows))
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		number, _ := row["patent_number"].(string)
		if number != "" {
			if _, dup := seen[number]; dup {
				continue
			}
			seen[number] = struct{}{}
		}
		out = append(out, row)
	}
	return out
}
