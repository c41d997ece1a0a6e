package models

import "time"

// Status is the test status of an RTM entry.
type Status string

const (
	StatusNotTested  Status = "Not Tested"
	StatusInProgress Status = "In Progress"
	StatusApproved   Status = "Approved"
	StatusRejected   Status = "Rejected"
)

// RTMEntry is one row of the traceability matrix: extraction provenance
// merged with its classification and assigned identifiers.
type RTMEntry struct {
	ID                  string          `json:"id"`           // REQ-001
	TestCaseID          string          `json:"test_case_id"` // TC-001
	Description         string          `json:"description"`
	Source              string          `json:"source"`
	SheetName           string          `json:"sheet_name"`
	OriginalID          string          `json:"original_id,omitempty"`
	RequirementType     RequirementType `json:"requirement_type"`
	Priority            Priority        `json:"priority"`
	PriorityReasoning   string          `json:"priority_reasoning,omitempty"`
	Confidence          float64         `json:"analysis_confidence"`
	Status              Status          `json:"status"`
	RelatedDeliverables string          `json:"related_deliverables"`
	TestCaseSuggestions []string        `json:"test_case_suggestions"`
	Comments            string          `json:"comments,omitempty"`
	UsedFallback        bool            `json:"used_fallback"`
}

// RTMStats aggregates counts for the summary view.
type RTMStats struct {
	TotalRequirements int                     `json:"total_requirements"`
	ByType            map[RequirementType]int `json:"by_type"`
	ByPriority        map[Priority]int        `json:"by_priority"`
	BySheet           map[string]int          `json:"by_sheet"`
	AIAnalyzed        int                     `json:"ai_analyzed"`
	FallbackUsed      int                     `json:"fallback_used"`
}

// RTMOutput describes a finished RTM generation run.
type RTMOutput struct {
	FilePath          string        `json:"file_path"`
	RequirementsCount int           `json:"requirements_count"`
	Stats             *RTMStats     `json:"summary_statistics"`
	ProcessingTime    time.Duration `json:"-"`
	SourceFileName    string        `json:"source_file_name"`
	GeneratedAt       time.Time     `json:"generated_at"`
}
