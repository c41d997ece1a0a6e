// Package models defines core data structures for candidates, requirements, chunks, and RTM records.
package models

// Category classifies what kind of content a spreadsheet cell holds.
type Category string

const (
	CategoryRequirement     Category = "requirement"
	CategoryHeader          Category = "header"
	CategoryMetadata        Category = "metadata"
	CategoryDescriptive     Category = "descriptive"
	CategoryShortMeaningful Category = "short_meaningful"
	CategoryExcluded        Category = "excluded"
)

// CandidateMetadata holds derived facts about a candidate's raw text.
type CandidateMetadata struct {
	ContentLength   int    `json:"content_length"`
	WordCount       int    `json:"word_count"`
	HasNumbers      bool   `json:"has_numbers"`
	HasSpecialChars bool   `json:"has_special_chars"`
	IsAllCaps       bool   `json:"is_all_caps"`
	Language        string `json:"language"`
	OriginalRow     int    `json:"original_row"`
}

// Candidate is one piece of requirement-like text found in a spreadsheet cell.
// Content is trimmed and always at least 3 characters; shorter text is never
// emitted. ConfidenceScore is a pure function of Content.
type Candidate struct {
	Content         string            `json:"content"`
	SourceColumn    string            `json:"source_column"`
	RowIndex        int               `json:"row_index"`
	ConfidenceScore float64           `json:"confidence_score"`
	Category        Category          `json:"category"`
	Metadata        CandidateMetadata `json:"metadata"`
	IsValid         bool              `json:"is_valid_requirement"`
}

// ConfidenceTier buckets a column's requirement ratio.
type ConfidenceTier string

const (
	TierHigh    ConfidenceTier = "high"
	TierMedium  ConfidenceTier = "medium"
	TierLow     ConfidenceTier = "low"
	TierVeryLow ConfidenceTier = "very_low"
)

// ColumnProfile aggregates candidate statistics for one column.
// Name-based flags and the content ratio are kept as separate signals: a
// column with a generic header but requirement-shaped content must still be
// detected as a requirement source.
type ColumnProfile struct {
	Name             string           `json:"name"`
	Index            int              `json:"index"`
	IsUnnamed        bool             `json:"is_unnamed"`
	NonEmpty         int              `json:"non_empty"`
	CategoryCounts   map[Category]int `json:"category_counts"`
	RequirementRatio float64          `json:"requirement_ratio"`
	Tier             ConfidenceTier   `json:"tier"`

	NameLooksRequirement bool `json:"name_looks_requirement"`
	NameLooksID          bool `json:"name_looks_id"`
	NameLooksPriority    bool `json:"name_looks_priority"`
	ContentLooksID       bool `json:"content_looks_id"`
}

// IsRequirementSource reports whether the column should be mined for
// candidates, by either its name or its content profile.
func (p *ColumnProfile) IsRequirementSource() bool {
	return p.NameLooksRequirement || p.CategoryCounts[CategoryRequirement] > 0
}

// IsIDSource reports whether the column likely carries requirement IDs.
func (p *ColumnProfile) IsIDSource() bool {
	return p.NameLooksID || p.ContentLooksID
}
