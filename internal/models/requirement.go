package models

import "fmt"

// Requirement is an extracted requirement with full provenance, ready for
// batching and classification.
type Requirement struct {
	Description     string            `json:"description"`
	Source          string            `json:"source"` // "Sheet!B5" spreadsheet-style reference
	SheetName       string            `json:"sheet_name"`
	RowNumber       int               `json:"row_number"` // 1-based spreadsheet row
	ColumnName      string            `json:"column_name"`
	OriginalID      string            `json:"original_id,omitempty"`
	ConfidenceScore float64           `json:"confidence_score"`
	Category        Category          `json:"category"`
	AdditionalInfo  map[string]string `json:"additional_info,omitempty"`
	MergedContent   map[string]string `json:"merged_cell_content,omitempty"`
	IsEdgeCase      bool              `json:"is_edge_case,omitempty"`
}

// CanonicalKey is a stable identity for chunk-integrity checks: the original
// ID when present, else a truncated content prefix.
func (r *Requirement) CanonicalKey() string {
	if r.OriginalID != "" {
		return r.OriginalID
	}
	if len(r.Description) > 50 {
		return r.Description[:50]
	}
	return r.Description
}

// RequirementType is the classification assigned to a requirement.
type RequirementType string

const (
	TypeFunctional    RequirementType = "Functional"
	TypeNonFunctional RequirementType = "Non-functional"
	TypeBusiness      RequirementType = "Business"
	TypeTechnical     RequirementType = "Technical"
	TypeUser          RequirementType = "User"
)

// ParseRequirementType returns the matching type, defaulting to Functional
// for unrecognized values (classification replies are free text).
func ParseRequirementType(s string) RequirementType {
	switch RequirementType(s) {
	case TypeFunctional, TypeNonFunctional, TypeBusiness, TypeTechnical, TypeUser:
		return RequirementType(s)
	}
	return TypeFunctional
}

// Priority is the business priority assigned to a requirement.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// ParsePriority returns the matching priority, defaulting to Medium.
func ParsePriority(s string) Priority {
	switch Priority(s) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return Priority(s)
	}
	return PriorityMedium
}

// Classification is one requirement's judgment, produced either by the
// external service or by the rule-based fallback. Immutable once created.
type Classification struct {
	OriginalRequirement string          `json:"original_requirement"`
	RequirementType     RequirementType `json:"requirement_type"`
	Priority            Priority        `json:"priority"`
	PriorityReasoning   string          `json:"priority_reasoning,omitempty"`
	RelatedDeliverables string          `json:"related_deliverables"`
	TestCaseSuggestions []string        `json:"test_case_suggestions"`
	Comments            string          `json:"comments,omitempty"`
	Confidence          float64         `json:"analysis_confidence"`
	OriginalID          string          `json:"original_id,omitempty"`
	Source              string          `json:"source,omitempty"`
	UsedFallback        bool            `json:"fallback_analysis,omitempty"`
}

// Validate checks the invariants a classification must satisfy before it is
// merged into the RTM.
func (c *Classification) Validate() error {
	if c.OriginalRequirement == "" {
		return fmt.Errorf("classification missing original requirement text")
	}
	if len(c.TestCaseSuggestions) == 0 {
		return fmt.Errorf("classification has no test case suggestions")
	}
	return nil
}
