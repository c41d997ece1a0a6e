package extract

import (
	"fmt"
	"sort"
	"strings"
)

// SheetSuggestion recommends a sheet as a focus-analysis candidate.
type SheetSuggestion struct {
	SheetName          string  `json:"sheet_name"`
	ConfidenceScore    float64 `json:"confidence_score"`
	RequirementColumns int     `json:"requirement_columns"`
	TotalRows          int     `json:"total_rows"`
	Reason             string  `json:"recommendation_reason"`
}

// SheetSuggestions scores every sheet of the workbook for focus-sheet
// selection and returns sheets with requirement content, highest confidence
// first.
func (e *Extractor) SheetSuggestions(wb *Workbook) []*SheetSuggestion {
	var suggestions []*SheetSuggestion
	for _, sheet := range wb.Sheets {
		ext := e.ExtractSheet(sheet)

		reqCols := 0
		idCols := 0
		for _, p := range ext.Profiles {
			if p.IsRequirementSource() {
				reqCols++
			}
			if p.IsIDSource() {
				idCols++
			}
		}
		if reqCols == 0 {
			continue
		}

		score := 0.5
		if reqCols > 1 {
			score += 0.2
		}
		if idCols > 0 {
			score += 0.2
		}
		if len(sheet.Rows) > 5 {
			score += 0.1
		}
		if score > 1.0 {
			score = 1.0
		}

		suggestions = append(suggestions, &SheetSuggestion{
			SheetName:          sheet.Name,
			ConfidenceScore:    score,
			RequirementColumns: reqCols,
			TotalRows:          len(sheet.Rows),
			Reason:             recommendationReason(score, reqCols, idCols, len(sheet.Rows)),
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		return suggestions[i].ConfidenceScore > suggestions[j].ConfidenceScore
	})
	return suggestions
}

func recommendationReason(score float64, reqCols, idCols, rows int) string {
	var reasons []string
	if score > 0.8 {
		reasons = append(reasons, "High confidence requirement detection")
	}
	if reqCols > 1 {
		reasons = append(reasons, fmt.Sprintf("Multiple requirement columns (%d)", reqCols))
	}
	if rows > 20 {
		reasons = append(reasons, "Substantial content volume")
	}
	if idCols > 0 {
		reasons = append(reasons, "Contains ID columns")
	}
	if len(reasons) == 0 {
		return "Contains identifiable requirements"
	}
	return strings.Join(reasons, "; ")
}
