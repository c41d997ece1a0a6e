// Package classify scores spreadsheet cell text and column profiles to find
// requirement content across arbitrary, unlabeled column layouts.
package classify

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/reqtrace/rtmgen/internal/models"
)

// Keyword sets checked against lowercased content. Matching is substring
// containment; each distinct keyword counts once regardless of repetition.
var (
	strongRequirementWords = []string{
		"shall", "must", "will", "should", "may", "required", "mandatory",
		"essential", "necessary", "obligatory", "need to", "able to",
	}

	technicalRequirementWords = []string{
		"system", "provide", "support", "manage", "ensure", "enable", "allow",
		"capability", "feature", "function", "functionality", "service",
		"interface", "protocol", "api", "database", "security", "authentication",
		"authorization", "encryption", "backup", "monitoring", "logging",
	}

	actionWords = []string{
		"send", "receive", "process", "handle", "generate", "create", "delete",
		"update", "modify", "configure", "install", "deploy", "monitor", "track",
		"report", "validate", "verify", "check", "execute", "perform", "implement",
	}
)

// Shapes that are never requirement content: serial-number headers, short
// codes, pure punctuation, page/table references, response-key legends.
var exclusionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^s\.?no\.?$`),
	regexp.MustCompile(`(?i)^no\.?$`),
	regexp.MustCompile(`^#\d*$`),
	regexp.MustCompile(`^[A-Z]{1,3}$`),
	regexp.MustCompile(`^\d+$`),
	regexp.MustCompile(`^[.]+$`),
	regexp.MustCompile(`^[-]+$`),
	regexp.MustCompile(`^[_]+$`),
	regexp.MustCompile(`(?i)^vendor\s*response.*key`),
	regexp.MustCompile(`(?i)^page \d+`),
	regexp.MustCompile(`(?i)^table \d+`),
	regexp.MustCompile(`^[A-Z]{2,5}-?\d+$`), // REQ-001, TC123 shaped IDs
}

var headerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z\s]{3,20}$`), // short all-caps phrases
	regexp.MustCompile(`^##.*`),
	regexp.MustCompile(`^#.*`),
	regexp.MustCompile(`(?i).*requirements?$`),
	regexp.MustCompile(`(?i).*specifications?$`),
}

var specialCharPattern = regexp.MustCompile(`[•→◦✓✗○●]`)

// Classify categorizes a single cell's trimmed text and computes its
// requirement-confidence score. It is a pure function: identical input
// always yields identical output.
func Classify(content string) (models.Category, float64) {
	return CategoryOf(content), Score(content)
}

// CategoryOf classifies content into requirement, header, metadata,
// descriptive, short_meaningful, or excluded.
func CategoryOf(content string) models.Category {
	clean := strings.TrimSpace(content)
	lower := strings.ToLower(clean)
	words := len(strings.Fields(clean))

	for _, p := range exclusionPatterns {
		if p.MatchString(clean) {
			return models.CategoryExcluded
		}
	}
	for _, p := range headerPatterns {
		if p.MatchString(clean) {
			return models.CategoryHeader
		}
	}

	if containsAny(lower, strongRequirementWords) {
		return models.CategoryRequirement
	}
	if containsAny(lower, technicalRequirementWords) && words >= 3 {
		return models.CategoryRequirement
	}
	if containsAny(lower, actionWords) && words >= 4 {
		return models.CategoryRequirement
	}

	if words >= 5 && !isNumeric(clean) && !isAllCaps(clean) {
		return models.CategoryDescriptive
	}
	if words >= 3 {
		return models.CategoryShortMeaningful
	}
	return models.CategoryMetadata
}

// Score computes the confidence that content is a requirement, in [0, 1].
func Score(content string) float64 {
	clean := strings.TrimSpace(content)
	lower := strings.ToLower(clean)
	words := len(strings.Fields(clean))

	score := 0.0
	score += float64(countMatches(lower, strongRequirementWords)) * 0.3
	score += float64(countMatches(lower, technicalRequirementWords)) * 0.2
	score += float64(countMatches(lower, actionWords)) * 0.15

	if words >= 5 {
		score += 0.2
	} else if words >= 3 {
		score += 0.1
	}

	if isAllCaps(clean) && words <= 3 {
		score -= 0.3
	}
	if isNumeric(clean) {
		score -= 0.5
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Metadata derives per-candidate facts about the raw text.
func Metadata(content string, originalRow int) models.CandidateMetadata {
	return models.CandidateMetadata{
		ContentLength:   len(content),
		WordCount:       len(strings.Fields(content)),
		HasNumbers:      strings.ContainsFunc(content, unicode.IsDigit),
		HasSpecialChars: specialCharPattern.MatchString(content),
		IsAllCaps:       isAllCaps(content),
		Language:        detectLanguageHint(content),
		OriginalRow:     originalRow,
	}
}

func containsAny(lower string, set []string) bool {
	for _, w := range set {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

func countMatches(lower string, set []string) int {
	n := 0
	for _, w := range set {
		if strings.Contains(lower, w) {
			n++
		}
	}
	return n
}

// isAllCaps reports whether the text contains at least one letter and every
// letter is uppercase.
func isAllCaps(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

// isNumeric reports whether the text is entirely digits.
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// detectLanguageHint flags text containing non-ASCII characters.
func detectLanguageHint(s string) string {
	for _, r := range s {
		if r > 127 {
			return "non_english"
		}
	}
	return "english"
}
