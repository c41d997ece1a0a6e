// Package rtm merges classifications back onto extracted requirements and
// renders the traceability matrix workbook.
package rtm

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/reqtrace/rtmgen/internal/analyzer"
	"github.com/reqtrace/rtmgen/internal/models"
)

// SheetAnalysis pairs one sheet's extracted requirements with the
// classifications produced for them. Classifications may contain overlap
// repeats from batch boundaries.
type SheetAnalysis struct {
	SheetName       string
	IsFocusSheet    bool
	Requirements    []*models.Requirement
	Classifications []*models.Classification
}

// Assembler builds RTM entries with sequential identifiers.
type Assembler struct {
	reqPrefix string
	tcPrefix  string
	rules     *analyzer.RuleClassifier
	logger    *zap.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Assembler) {
		a.logger = logger
	}
}

// NewAssembler creates an assembler. Requirements that arrive without a
// classification are padded with rule-based judgments so every extracted
// requirement gets an RTM row.
func NewAssembler(reqPrefix, tcPrefix, focusSheet string, opts ...Option) *Assembler {
	a := &Assembler{
		reqPrefix: reqPrefix,
		tcPrefix:  tcPrefix,
		rules:     analyzer.NewRuleClassifier(focusSheet),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Assemble produces one entry per requirement across all sheets, in sheet
// discovery order, with identifiers numbered sequentially from 1. The same
// numbering is shared by every view of the matrix.
func (a *Assembler) Assemble(sheets []*SheetAnalysis) ([]*models.RTMEntry, *models.RTMStats) {
	var entries []*models.RTMEntry
	counter := 1

	for _, sheet := range sheets {
		byKey := indexClassifications(sheet.Classifications)
		matched := make(map[string]bool)

		for _, req := range sheet.Requirements {
			key := req.CanonicalKey()
			cls, ok := byKey[key]
			if !ok {
				// Classification went missing. Pad with a rule-based
				// judgment rather than dropping the requirement.
				cls = a.rules.Classify(req)
				a.logger.Warn("no classification for requirement, padding with rule-based judgment",
					zap.String("sheet", sheet.SheetName),
					zap.String("key", key))
			}
			matched[key] = true

			entries = append(entries, a.newEntry(counter, sheet.SheetName, req, cls))
			counter++
		}

		for key := range byKey {
			if !matched[key] {
				a.logger.Warn("classification matches no extracted requirement, discarding",
					zap.String("sheet", sheet.SheetName),
					zap.String("key", key))
			}
		}
	}

	return entries, buildStats(entries)
}

func (a *Assembler) newEntry(n int, sheetName string, req *models.Requirement, cls *models.Classification) *models.RTMEntry {
	return &models.RTMEntry{
		ID:                  fmt.Sprintf("%s-%03d", a.reqPrefix, n),
		TestCaseID:          fmt.Sprintf("%s-%03d", a.tcPrefix, n),
		Description:         req.Description,
		Source:              req.Source,
		SheetName:           sheetName,
		OriginalID:          req.OriginalID,
		RequirementType:     cls.RequirementType,
		Priority:            cls.Priority,
		PriorityReasoning:   cls.PriorityReasoning,
		Confidence:          cls.Confidence,
		Status:              models.StatusNotTested,
		RelatedDeliverables: cls.RelatedDeliverables,
		TestCaseSuggestions: cls.TestCaseSuggestions,
		Comments:            cls.Comments,
		UsedFallback:        cls.UsedFallback,
	}
}

// indexClassifications maps classifications by canonical key, keeping the
// first occurrence so overlap repeats from later batches don't override.
func indexClassifications(cls []*models.Classification) map[string]*models.Classification {
	byKey := make(map[string]*models.Classification, len(cls))
	for _, c := range cls {
		key := c.OriginalID
		if key == "" {
			key = c.OriginalRequirement
			if len(key) > 50 {
				key = key[:50]
			}
		}
		if _, exists := byKey[key]; !exists {
			byKey[key] = c
		}
	}
	return byKey
}

func buildStats(entries []*models.RTMEntry) *models.RTMStats {
	stats := &models.RTMStats{
		TotalRequirements: len(entries),
		ByType:            make(map[models.RequirementType]int),
		ByPriority:        make(map[models.Priority]int),
		BySheet:           make(map[string]int),
	}
	for _, e := range entries {
		stats.ByType[e.RequirementType]++
		stats.ByPriority[e.Priority]++
		stats.BySheet[e.SheetName]++
		if e.UsedFallback {
			stats.FallbackUsed++
		} else {
			stats.AIAnalyzed++
		}
	}
	return stats
}
