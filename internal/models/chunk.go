package models

// Chunk is an ordered group of requirements submitted to the classification
// service in one request. Member order preserves original discovery order.
// Overlap members repeated from the previous chunk carry context across
// batch boundaries and are discounted by the integrity check.
type Chunk struct {
	ID              string         `json:"chunk_id"`
	SheetName       string         `json:"sheet_name"`
	Index           int            `json:"chunk_index"`
	IsFocusSheet    bool           `json:"is_focus_sheet"`
	Requirements    []*Requirement `json:"requirements"`
	EstimatedTokens int            `json:"estimated_tokens"`
	HasOverlap      bool           `json:"has_overlap"`
	StartRow        int            `json:"start_row,omitempty"`
	EndRow          int            `json:"end_row,omitempty"`
}

// Size returns the number of member requirements, overlap included.
func (c *Chunk) Size() int { return len(c.Requirements) }
