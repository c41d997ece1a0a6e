package analyzer

import (
	"strings"

	"github.com/reqtrace/rtmgen/internal/models"
)

// RuleClassifier is the keyword-driven fallback used when the classification
// service cannot produce a judgment. Requirements from the focus sheet get a
// functional bias and a higher default priority.
type RuleClassifier struct {
	focusSheet string
}

// NewRuleClassifier creates a fallback classifier. focusSheet may be empty.
func NewRuleClassifier(focusSheet string) *RuleClassifier {
	return &RuleClassifier{focusSheet: strings.ToLower(focusSheet)}
}

const (
	fallbackReasoning = "Rule-based fallback analysis - classification service unavailable"
	fallbackComment   = "Generated using rule-based fallback due to classification service unavailability"
)

// ClassifyChunk produces one rule-based judgment per chunk member, flagged as
// fallback output.
func (rc *RuleClassifier) ClassifyChunk(chunk *models.Chunk) []*models.Classification {
	results := make([]*models.Classification, 0, chunk.Size())
	for _, req := range chunk.Requirements {
		results = append(results, rc.Classify(req))
	}
	return results
}

// Classify judges a single requirement by keyword rules.
func (rc *RuleClassifier) Classify(req *models.Requirement) *models.Classification {
	fromFocus := rc.fromFocusSheet(req)
	return &models.Classification{
		OriginalRequirement: req.Description,
		RequirementType:     rc.requirementType(req.Description, fromFocus),
		Priority:            rc.priority(req.Description, fromFocus),
		PriorityReasoning:   fallbackReasoning,
		RelatedDeliverables: deliverables(req.Description),
		TestCaseSuggestions: testSuggestions(req.Description),
		Comments:            fallbackComment,
		Confidence:          0.6,
		OriginalID:          req.OriginalID,
		Source:              req.Source,
		UsedFallback:        true,
	}
}

func (rc *RuleClassifier) fromFocusSheet(req *models.Requirement) bool {
	if rc.focusSheet == "" {
		return false
	}
	return strings.Contains(strings.ToLower(req.SheetName), rc.focusSheet) ||
		strings.Contains(strings.ToLower(req.Source), rc.focusSheet)
}

func (rc *RuleClassifier) requirementType(description string, fromFocus bool) models.RequirementType {
	desc := strings.ToLower(description)

	if fromFocus {
		if containsAny(desc, "performance", "speed", "response", "time", "memory") {
			return models.TypeNonFunctional
		}
		return models.TypeFunctional
	}

	switch {
	case containsAny(desc, "user", "interface", "display", "screen", "button", "click", "ui", "ux"):
		return models.TypeUser
	case containsAny(desc, "performance", "speed", "response", "time", "memory", "cpu", "bandwidth", "scalability"):
		return models.TypeNonFunctional
	case containsAny(desc, "business", "process", "workflow", "policy", "rule", "compliance"):
		return models.TypeBusiness
	case containsAny(desc, "technical", "system", "integration", "api", "database", "infrastructure"):
		return models.TypeTechnical
	default:
		return models.TypeFunctional
	}
}

func (rc *RuleClassifier) priority(description string, fromFocus bool) models.Priority {
	desc := strings.ToLower(description)
	switch {
	case containsAny(desc, "critical", "essential", "must", "required", "mandatory", "core"):
		return models.PriorityHigh
	case containsAny(desc, "important", "should", "recommended", "key"):
		return models.PriorityMedium
	case fromFocus:
		// Focus sheet items default higher than the rest of the workbook.
		return models.PriorityMedium
	default:
		return models.PriorityLow
	}
}

func deliverables(description string) string {
	desc := strings.ToLower(description)
	var parts []string
	if containsAny(desc, "interface", "ui", "screen") {
		parts = append(parts, "User Interface")
	}
	if containsAny(desc, "database", "data", "storage") {
		parts = append(parts, "Database")
	}
	if containsAny(desc, "api", "service", "integration") {
		parts = append(parts, "API/Integration")
	}
	if containsAny(desc, "report", "dashboard") {
		parts = append(parts, "Reporting")
	}
	if len(parts) == 0 {
		return "Core System Component"
	}
	return strings.Join(parts, ", ")
}

func testSuggestions(description string) []string {
	desc := strings.ToLower(description)
	switch {
	case containsAny(desc, "user", "interface", "display", "screen"):
		return []string{
			"Verify user interface displays correctly",
			"Test user interaction functionality",
			"Validate user experience requirements",
		}
	case containsAny(desc, "performance", "speed", "response", "time"):
		return []string{
			"Measure performance metrics",
			"Test response time under load",
			"Validate performance requirements",
		}
	case containsAny(desc, "integration", "api", "system"):
		return []string{
			"Test integration with external systems",
			"Verify API functionality",
			"Validate system compatibility",
		}
	default:
		return []string{
			"Verify core functionality",
			"Test under normal conditions",
			"Validate requirement is met as specified",
		}
	}
}

func containsAny(s string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
