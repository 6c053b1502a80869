package schemas

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// -- Patent Data Schemas --

// PatentType classifies the payload carried by a PatentData envelope. The
// values are lowercase to align with database ENUMs and report output.
type PatentType string

// Constants defining the closed set of result kinds exchanged between stages.
const (
	TypeQueryResult       PatentType = "query_result"       // Raw hits returned by a patent search.
	TypeDocument          PatentType = "document"           // A normalized patent document.
	TypeChemicalStructure PatentType = "chemical_structure" // An extracted chemical structure.
	TypeAnalysisReport    PatentType = "analysis_report"    // A structured analysis of one or more documents.
	TypeCoverageMap       PatentType = "coverage_map"       // Classification and geography coverage.
	TypeMarketAssessment  PatentType = "market_assessment"  // A synthesized market evaluation.
)

// knownPatentTypes is the membership set used by validation. New kinds are
// added here, not scattered through switch statements.
var knownPatentTypes = map[PatentType]struct{}{
	TypeQueryResult:       {},
	TypeDocument:          {},
	TypeChemicalStructure: {},
	TypeAnalysisReport:    {},
	TypeCoverageMap:       {},
	TypeMarketAssessment:  {},
}

// Valid reports whether the type belongs to the closed set.
func (t PatentType) Valid() bool {
	_, ok := knownPatentTypes[t]
	return ok
}

// PatentData is the immutable result envelope exchanged between stages. The
// Type never changes after creation, and Content must match the shape the
// producing agent declares for that type.
type PatentData struct {
	ID        string         `json:"id"`
	Type      PatentType     `json:"type"`
	Content   map[string]any `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewPatentData builds an envelope with a fresh unique ID and creation
// timestamp. Content and metadata maps are taken as-is; callers that reuse a
// map across envelopes must copy it first.
func NewPatentData(t PatentType, content, metadata map[string]any) PatentData {
	return PatentData{
		ID:        uuid.NewString(),
		Type:      t,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks the envelope invariants: a non-empty ID and a known Type.
func (p *PatentData) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("patent data has empty id")
	}
	if !p.Type.Valid() {
		return fmt.Errorf("patent data %s has unknown type %q", p.ID, p.Type)
	}
	return nil
}
