// Package chunker groups extracted requirements into token-budgeted batches
// for the classification service.
package chunker

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/reqtrace/rtmgen/internal/config"
	"github.com/reqtrace/rtmgen/internal/models"
)

// Planner builds classification batches. Each batch stays under the token
// budget (prompt overhead reserved) and under a per-sheet item target, and
// carries the tail of the previous batch as overlap context.
type Planner struct {
	maxTokens     int
	overhead      int
	overlap       int
	focusTarget   int
	defaultTarget int
	logger        *zap.Logger
}

// Option configures a Planner.
type Option func(*Planner)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Planner) {
		p.logger = logger
	}
}

// NewPlanner creates a planner from chunking settings.
func NewPlanner(cfg config.ChunkingConfig, opts ...Option) *Planner {
	p := &Planner{
		maxTokens:     cfg.MaxTokensPerChunk,
		overhead:      cfg.PromptOverheadTokens,
		overlap:       cfg.OverlapCount,
		focusTarget:   cfg.FocusTargetPerChunk,
		defaultTarget: cfg.DefaultTargetPerChunk,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Plan splits a sheet's requirements into ordered chunks. Focus sheets use a
// smaller item target so their batches get more model attention apiece. The
// final partial chunk is always emitted, and a single requirement larger than
// the whole budget still gets a chunk of its own.
func (p *Planner) Plan(sheetName string, reqs []*models.Requirement, isFocus bool) []*models.Chunk {
	if len(reqs) == 0 {
		return nil
	}

	target := p.defaultTarget
	if isFocus {
		target = p.focusTarget
	}
	budget := p.maxTokens - p.overhead
	if budget <= 0 {
		budget = p.maxTokens
	}

	var chunks []*models.Chunk
	var current []*models.Requirement
	currentTokens := 0
	seedCount := 0

	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, p.newChunk(sheetName, len(chunks), isFocus, current, currentTokens, seedCount > 0))

		// Seed the next chunk with the tail of this one. Tiny chunks
		// carry no overlap: repeating most of a two-item batch adds
		// noise, not context.
		var seeds []*models.Requirement
		if p.overlap > 0 && len(current) > p.overlap {
			seeds = append(seeds, current[len(current)-p.overlap:]...)
		}
		current = seeds
		seedCount = len(seeds)
		currentTokens = 0
		for _, s := range seeds {
			currentTokens += EstimateTokens(FormatRequirement(s))
		}
	}

	for _, req := range reqs {
		tokens := EstimateTokens(FormatRequirement(req))
		fresh := len(current) - seedCount
		if fresh > 0 && currentTokens+tokens > budget {
			flush()
		}
		current = append(current, req)
		currentTokens += tokens
		if len(current)-seedCount >= target {
			flush()
		}
	}
	if len(current) > seedCount {
		flush()
	}

	p.logger.Debug("planned chunks",
		zap.String("sheet", sheetName),
		zap.Int("requirements", len(reqs)),
		zap.Int("chunks", len(chunks)),
		zap.Bool("focus", isFocus))
	return chunks
}

func (p *Planner) newChunk(sheetName string, index int, isFocus bool, members []*models.Requirement, tokens int, hasOverlap bool) *models.Chunk {
	chunk := &models.Chunk{
		ID:              fmt.Sprintf("%s_%d", sanitizeID(sheetName), index),
		SheetName:       sheetName,
		Index:           index,
		IsFocusSheet:    isFocus,
		Requirements:    append([]*models.Requirement(nil), members...),
		EstimatedTokens: tokens,
		HasOverlap:      hasOverlap,
	}
	for _, r := range members {
		if chunk.StartRow == 0 || r.RowNumber < chunk.StartRow {
			chunk.StartRow = r.RowNumber
		}
		if r.RowNumber > chunk.EndRow {
			chunk.EndRow = r.RowNumber
		}
	}
	return chunk
}

// FormatRequirement renders one requirement the way it appears inside a
// classification prompt. Token estimates are taken over this rendering so the
// budget tracks what is actually sent.
func FormatRequirement(r *models.Requirement) string {
	parts := make([]string, 0, 4)
	if r.OriginalID != "" {
		parts = append(parts, "ID: "+r.OriginalID)
	}
	parts = append(parts, "Description: "+r.Description)
	if r.Source != "" {
		parts = append(parts, "Source: "+r.Source)
	}
	if len(r.AdditionalInfo) > 0 {
		keys := make([]string, 0, len(r.AdditionalInfo))
		for k := range r.AdditionalInfo {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		infos := make([]string, 0, len(keys))
		for _, k := range keys {
			infos = append(infos, k+": "+r.AdditionalInfo[k])
		}
		parts = append(parts, "Info: "+strings.Join(infos, "; "))
	}
	return strings.Join(parts, " | ")
}

// EstimateMinutes predicts wall-clock processing time for a chunk count given
// the service rate limit and the pause between batches.
func EstimateMinutes(numChunks, requestsPerMinute, interBatchDelaySecs int) int {
	if numChunks <= 0 {
		return 0
	}
	perChunkSecs := interBatchDelaySecs
	if requestsPerMinute > 0 {
		perChunkSecs += 60 / requestsPerMinute
	}
	totalSecs := numChunks * perChunkSecs
	minutes := (totalSecs + 59) / 60
	if minutes < 1 {
		minutes = 1
	}
	return minutes
}

func sanitizeID(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '-'
		}
	}, s)
}
