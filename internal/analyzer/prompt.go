package analyzer

import (
	"encoding/json"
	"fmt"

	"github.com/reqtrace/rtmgen/internal/models"
)

// detailedPrompt drives focus-sheet batches: full guidance, stricter output
// discipline.
const detailedPrompt = `You are an expert project manager and business analyst specializing in requirements management.

Analyze the provided requirements and produce Requirements Traceability Matrix entries.

For each requirement, provide:
1. Requirement Classification (Functional, Non-functional, Business, Technical, User)
2. Priority Assessment (High, Medium, Low) based on business impact
3. Related Deliverables identification
4. Test Case suggestions (2-3 specific scenarios)

CRITICAL INSTRUCTIONS:
- Use EXACT requirement descriptions from source - do NOT paraphrase
- Preserve original requirement IDs if present
- Reference specific sheet names and cell locations
- Generate comprehensive test case suggestions

Return structured JSON format with "requirements" array.`

// comprehensivePrompt is the lighter variant for non-focus sheets.
const comprehensivePrompt = `You are an expert business analyst. Analyze the following requirements comprehensively.

For each requirement, determine:
1. Requirement Type: Functional, Non-functional, Business, Technical, or User
2. Priority: High, Medium, or Low based on business impact
3. Related Deliverables: Identify relevant project components
4. Test Case Suggestions: Provide 2-3 test scenario ideas

INSTRUCTIONS:
- Maintain EXACT requirement descriptions - do not modify text
- Preserve original IDs and formatting
- Consider business impact for priority assignment
- Be specific with deliverables and test cases

Return JSON with "requirements" array containing analysis for each requirement.`

type promptRequirement struct {
	OriginalID     string            `json:"original_id"`
	Description    string            `json:"description"`
	Source         string            `json:"source"`
	AdditionalInfo map[string]string `json:"additional_info,omitempty"`
	RowNumber      int               `json:"row_number"`
}

// BuildChunkPrompt renders the full prompt for one chunk: base instructions,
// chunk context, and the requirements as a JSON block.
func BuildChunkPrompt(chunk *models.Chunk) (string, error) {
	base := comprehensivePrompt
	analysisType := "COMPREHENSIVE ANALYSIS"
	if chunk.IsFocusSheet {
		base = detailedPrompt
		analysisType = "DETAILED FOCUS SHEET"
	}

	reqs := make([]promptRequirement, 0, chunk.Size())
	for _, r := range chunk.Requirements {
		reqs = append(reqs, promptRequirement{
			OriginalID:     r.OriginalID,
			Description:    r.Description,
			Source:         r.Source,
			AdditionalInfo: r.AdditionalInfo,
			RowNumber:      r.RowNumber,
		})
	}
	data, err := json.MarshalIndent(reqs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal chunk requirements: %w", err)
	}

	context := fmt.Sprintf(`

BATCH PROCESSING CONTEXT:
- Sheet Name: %s
- Batch ID: %s
- Analysis Type: %s
- Requirements in this batch: %d
- Row range: %d - %d

REQUIREMENTS DATA FOR ANALYSIS:
%s

RESPONSE REQUIREMENTS:
- Return valid JSON object with "requirements" array
- Each requirement object must include: original_requirement, requirement_type, priority, priority_reasoning, related_deliverables, test_case_suggestions, comments
- Preserve EXACT original requirement text - do not modify descriptions
- Return exactly one entry per input requirement, in input order
`, chunk.SheetName, chunk.ID, analysisType, chunk.Size(), chunk.StartRow, chunk.EndRow, data)

	return base + context, nil
}
