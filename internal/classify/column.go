package classify

import (
	"regexp"
	"strings"

	"github.com/reqtrace/rtmgen/internal/models"
)

// Column-name pattern sets. These flag candidate roles independently of the
// cell-level content profile; both signals are retained on the profile so a
// column with a blank or generic header but requirement-shaped content is
// still detected as a requirement source.
var (
	requirementNamePatterns = []string{
		"req", "requirement", "spec", "specification", "need", "shall",
		"must", "should", "will", "description", "function", "feature",
		"capability", "objective", "goal", "criteria",
	}

	idNamePatterns = []string{
		"id", "number", "no", "ref", "reference", "code", "identifier",
	}

	priorityNamePatterns = []string{
		"priority", "importance", "criticality", "level", "status",
	}
)

// ID-shaped content: REQ-001, TC123, 1.2.3 and the like.
var idContentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[A-Z]{2,5}-?\d+$`),
	regexp.MustCompile(`^\d+(\.\d+)*$`),
	regexp.MustCompile(`^[A-Z]+\d+$`),
}

const idContentSampleSize = 10

// AnalyzeColumn classifies every non-empty value of one column and builds its
// profile: per-category tallies, requirement ratio with fixed tier
// breakpoints, and independent name-based role flags.
func AnalyzeColumn(name string, index int, values []string) *models.ColumnProfile {
	profile := &models.ColumnProfile{
		Name:           name,
		Index:          index,
		IsUnnamed:      isPlaceholderName(name),
		CategoryCounts: make(map[models.Category]int),
		Tier:           models.TierVeryLow,
	}

	nameLower := strings.ToLower(name)
	if !profile.IsUnnamed {
		profile.NameLooksRequirement = matchesAnyPattern(nameLower, requirementNamePatterns)
		profile.NameLooksID = matchesAnyPattern(nameLower, idNamePatterns)
		profile.NameLooksPriority = matchesAnyPattern(nameLower, priorityNamePatterns)
	}

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		profile.NonEmpty++
		profile.CategoryCounts[CategoryOf(v)]++
	}
	profile.ContentLooksID = looksLikeIDContent(values)

	if profile.NonEmpty > 0 {
		profile.RequirementRatio = float64(profile.CategoryCounts[models.CategoryRequirement]) / float64(profile.NonEmpty)
	}
	switch {
	case profile.RequirementRatio > 0.7:
		profile.Tier = models.TierHigh
	case profile.RequirementRatio > 0.3:
		profile.Tier = models.TierMedium
	case profile.RequirementRatio > 0.1:
		profile.Tier = models.TierLow
	}

	return profile
}

// looksLikeIDContent samples up to 10 non-empty values and reports true when
// at least 70% of them are ID-shaped.
func looksLikeIDContent(values []string) bool {
	sampled := 0
	idLike := 0
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		sampled++
		for _, p := range idContentPatterns {
			if p.MatchString(v) {
				idLike++
				break
			}
		}
		if sampled == idContentSampleSize {
			break
		}
	}
	if sampled == 0 {
		return false
	}
	return float64(idLike) >= float64(sampled)*0.7
}

func matchesAnyPattern(nameLower string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(nameLower, p) {
			return true
		}
	}
	return false
}

// isPlaceholderName reports whether the column name is an auto-generated
// placeholder, meaning no real header was present.
func isPlaceholderName(name string) bool {
	lower := strings.ToLower(strings.TrimSpace(name))
	return lower == "" || strings.HasPrefix(lower, "unnamed") || strings.HasPrefix(lower, "column ")
}
