package extract

import (
	"fmt"
	"strings"

	"github.com/reqtrace/rtmgen/internal/classify"
	"github.com/reqtrace/rtmgen/internal/models"
	"go.uber.org/zap"
)

const minContentLength = 3

// Extractor walks workbook sheets and emits requirement candidates with
// row/column provenance. Candidates are created once during extraction and
// never mutated; validation happens in a single downstream partition pass.
type Extractor struct {
	logger *zap.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithLogger sets a logger for debug output (per-sheet candidate counts, skips).
func WithLogger(l *zap.Logger) ExtractorOption {
	return func(e *Extractor) { e.logger = l }
}

// NewExtractor creates an extractor. Options (e.g. WithLogger) can be passed
// for debug logging.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SheetExtraction is the result of mining one sheet.
type SheetExtraction struct {
	SheetName    string
	Profiles     []*models.ColumnProfile
	Requirements []*models.Requirement // validated + promoted edge cases, discovery order
	Partition    *Partition
}

// Partition buckets candidates by confidence: validated requirements,
// edge cases needing review, headers, and excluded content.
type Partition struct {
	Validated []*models.Candidate
	EdgeCases []*models.Candidate
	Headers   []*models.Candidate
	Excluded  []*models.Candidate
}

// ExtractSheet analyzes every column of the sheet, emits candidates for every
// requirement-source column, partitions them, and converts the validated set
// (plus high-confidence edge cases) into requirements with provenance.
// A sheet with no columns or no data rows yields an empty result, not an error.
func (e *Extractor) ExtractSheet(sheet *Sheet) *SheetExtraction {
	if sheet == nil {
		return &SheetExtraction{Partition: &Partition{}}
	}
	result := &SheetExtraction{SheetName: sheet.Name}
	if len(sheet.ColumnNames) == 0 || len(sheet.Rows) == 0 {
		result.Partition = &Partition{}
		return result
	}

	var candidates []*models.Candidate
	for idx, name := range sheet.ColumnNames {
		values := sheet.Column(idx)
		profile := classify.AnalyzeColumn(name, idx, values)
		result.Profiles = append(result.Profiles, profile)

		if !profile.IsRequirementSource() {
			continue
		}
		candidates = append(candidates, extractCandidates(name, values)...)
	}

	result.Partition = PartitionCandidates(candidates)

	// Validated candidates first, then high-confidence edge cases (flagged,
	// downstream decides). Discovery order within each group is preserved.
	for _, c := range result.Partition.Validated {
		result.Requirements = append(result.Requirements, e.toRequirement(sheet, c, false))
	}
	for _, c := range result.Partition.EdgeCases {
		if c.ConfidenceScore >= 0.5 {
			result.Requirements = append(result.Requirements, e.toRequirement(sheet, c, true))
		}
	}

	if e.logger != nil {
		e.logger.Debug("sheet extracted",
			zap.String("sheet", sheet.Name),
			zap.Int("candidates", len(candidates)),
			zap.Int("validated", len(result.Partition.Validated)),
			zap.Int("edge_cases", len(result.Partition.EdgeCases)),
			zap.Int("requirements", len(result.Requirements)),
		)
	}
	return result
}

// extractCandidates emits a candidate for every non-empty cell of length >=3
// in the column, regardless of its eventual validation outcome.
func extractCandidates(columnName string, values []string) []*models.Candidate {
	var out []*models.Candidate
	for rowIdx, raw := range values {
		content := strings.TrimSpace(raw)
		if len(content) < minContentLength {
			continue
		}
		category, score := classify.Classify(content)
		out = append(out, &models.Candidate{
			Content:         content,
			SourceColumn:    columnName,
			RowIndex:        rowIdx,
			ConfidenceScore: score,
			Category:        category,
			Metadata:        classify.Metadata(content, rowIdx),
		})
	}
	return out
}

// PartitionCandidates splits candidates into validated / edge-case / header /
// excluded buckets by the fixed confidence thresholds. This is the single
// downstream classification pass; candidates themselves are not mutated
// beyond the IsValid flag.
func PartitionCandidates(candidates []*models.Candidate) *Partition {
	p := &Partition{}
	for _, c := range candidates {
		switch {
		case c.ConfidenceScore >= 0.7:
			c.IsValid = true
			p.Validated = append(p.Validated, c)
		case c.ConfidenceScore >= 0.3:
			switch c.Category {
			case models.CategoryRequirement, models.CategoryDescriptive:
				c.IsValid = true
				p.Validated = append(p.Validated, c)
			default:
				p.EdgeCases = append(p.EdgeCases, c)
			}
		case c.ConfidenceScore >= 0.1:
			if c.Category == models.CategoryHeader {
				p.Headers = append(p.Headers, c)
			} else {
				p.EdgeCases = append(p.EdgeCases, c)
			}
		default:
			switch c.Category {
			case models.CategoryHeader:
				p.Headers = append(p.Headers, c)
			case models.CategoryExcluded:
				p.Excluded = append(p.Excluded, c)
			default:
				p.EdgeCases = append(p.EdgeCases, c)
			}
		}
	}
	return p
}

// toRequirement attaches provenance: spreadsheet-style cell reference,
// sibling non-empty cells on the same row, original ID from id-like columns,
// and merged-cell content intersecting the row.
func (e *Extractor) toRequirement(sheet *Sheet, c *models.Candidate, edgeCase bool) *models.Requirement {
	colIdx := columnIndex(sheet, c.SourceColumn)
	req := &models.Requirement{
		Description:     c.Content,
		Source:          fmt.Sprintf("%s!%s", sheet.Name, CellRef(colIdx, c.RowIndex)),
		SheetName:       sheet.Name,
		RowNumber:       c.RowIndex + 2, // 1-based plus header row
		ColumnName:      c.SourceColumn,
		ConfidenceScore: c.ConfidenceScore,
		Category:        c.Category,
		IsEdgeCase:      edgeCase,
	}

	if c.RowIndex < len(sheet.Rows) {
		row := sheet.Rows[c.RowIndex]
		info := make(map[string]string)
		for i, name := range sheet.ColumnNames {
			if name == c.SourceColumn || i >= len(row) {
				continue
			}
			v := strings.TrimSpace(row[i])
			if v == "" {
				continue
			}
			info[name] = v
			if req.OriginalID == "" && looksLikeIDColumnName(name) {
				req.OriginalID = v
			}
		}
		if len(info) > 0 {
			req.AdditionalInfo = info
		}
	}

	if merged := mergedContentForRow(sheet, req.RowNumber); len(merged) > 0 {
		req.MergedContent = merged
	}
	return req
}

func columnIndex(sheet *Sheet, name string) int {
	for i, n := range sheet.ColumnNames {
		if n == name {
			return i
		}
	}
	return 0
}

func looksLikeIDColumnName(name string) bool {
	lower := strings.ToLower(name)
	for _, p := range []string{"id", "no", "number", "ref"} {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// mergedContentForRow collects anchor values of merged ranges that intersect
// the given 1-based spreadsheet row.
func mergedContentForRow(sheet *Sheet, rowNumber int) map[string]string {
	var out map[string]string
	for _, m := range sheet.Merged {
		if m.StartRow <= rowNumber && rowNumber <= m.EndRow && m.Value != "" {
			if out == nil {
				out = make(map[string]string)
			}
			out[m.Range] = m.Value
		}
	}
	return out
}

// CountLikely applies the content classifier to every cell of the sheet and
// counts cells scoring at least 0.3, without building candidate or provenance
// objects. Used for time and cost estimation only.
func (e *Extractor) CountLikely(sheet *Sheet) int {
	if sheet == nil {
		return 0
	}
	count := 0
	for _, row := range sheet.Rows {
		for _, cell := range row {
			content := strings.TrimSpace(cell)
			if len(content) < minContentLength {
				continue
			}
			if classify.Score(content) >= 0.3 {
				count++
			}
		}
	}
	return count
}
