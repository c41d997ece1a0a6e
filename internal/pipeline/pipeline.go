// Package pipeline runs end-to-end RTM generation: load, extract, batch,
// classify, assemble, write.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/reqtrace/rtmgen/internal/analyzer"
	"github.com/reqtrace/rtmgen/internal/chunker"
	"github.com/reqtrace/rtmgen/internal/config"
	"github.com/reqtrace/rtmgen/internal/extract"
	"github.com/reqtrace/rtmgen/internal/models"
	"github.com/reqtrace/rtmgen/internal/progress"
	"github.com/reqtrace/rtmgen/internal/rtm"
)

// Pipeline orchestrates RTM generation jobs. One worker processes a job's
// batches sequentially; independent jobs may run concurrently and share the
// service client so the rate limit holds across them.
type Pipeline struct {
	cfg       *config.Config
	tracker   *progress.Tracker
	client    *analyzer.Client
	extractor *extract.Extractor
	planner   *chunker.Planner
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithClient replaces the shared classification client.
func WithClient(client *analyzer.Client) Option {
	return func(p *Pipeline) {
		p.client = client
	}
}

// New creates a pipeline. tracker receives job progress and may not be nil.
func New(cfg *config.Config, tracker *progress.Tracker, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:     cfg,
		tracker: tracker,
		client:  analyzer.NewClient(cfg.Analyzer),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.extractor = extract.NewExtractor(extract.WithLogger(p.logger))
	p.planner = chunker.NewPlanner(cfg.Chunking, chunker.WithLogger(p.logger))
	return p
}

// sheetWork carries one sheet through extraction, planning, and analysis.
type sheetWork struct {
	extraction *extract.SheetExtraction
	isFocus    bool
	chunks     []*models.Chunk
	results    []*models.Classification
}

// Run generates the RTM for one file and reports progress under jobID. The
// focus sheet falls back to the configured default when empty; a focus sheet
// absent from the workbook is logged and ignored. Returns the output
// description, or an error after marking the job failed.
func (p *Pipeline) Run(ctx context.Context, jobID, filePath, focusSheet string) (*models.RTMOutput, error) {
	started := time.Now()
	p.tracker.Start(jobID, filepath.Base(filePath))

	out, err := p.run(ctx, jobID, filePath, focusSheet, started)
	if err != nil {
		p.tracker.Fail(jobID, err)
		p.logger.Error("generation job failed",
			zap.String("job_id", jobID),
			zap.String("file", filePath),
			zap.Error(err))
		return nil, err
	}
	p.tracker.Complete(jobID, out.FilePath)
	p.logger.Info("generation job complete",
		zap.String("job_id", jobID),
		zap.String("output", out.FilePath),
		zap.Int("requirements", out.RequirementsCount),
		zap.Duration("took", out.ProcessingTime))
	return out, nil
}

func (p *Pipeline) run(ctx context.Context, jobID, filePath, focusSheet string, started time.Time) (*models.RTMOutput, error) {
	wb, err := extract.LoadWorkbook(filePath)
	if err != nil {
		return nil, err
	}

	if focusSheet == "" {
		focusSheet = p.cfg.Processing.FocusSheet
	}
	if focusSheet != "" && wb.Sheet(focusSheet) == nil {
		p.logger.Warn("focus sheet not present in workbook, proceeding without focus",
			zap.String("focus_sheet", focusSheet),
			zap.Strings("sheets", wb.SheetNames()))
		focusSheet = ""
	}

	// Extract every sheet in workbook order; sheets without requirements
	// drop out here.
	var work []*sheetWork
	for _, sheet := range wb.Sheets {
		extraction := p.extractor.ExtractSheet(sheet)
		if len(extraction.Requirements) == 0 {
			continue
		}
		work = append(work, &sheetWork{
			extraction: extraction,
			isFocus:    sheet.Name == focusSheet,
		})
	}
	if len(work) == 0 {
		return nil, fmt.Errorf("no requirements found in %q", filepath.Base(filePath))
	}

	// Plan and verify batches before any service call. A lost or invented
	// member here would corrupt the matrix, so it fails the job.
	totalBatches := 0
	for _, sw := range work {
		sw.chunks = p.planner.Plan(sw.extraction.SheetName, sw.extraction.Requirements, sw.isFocus)
		if err := chunker.Validate(sw.extraction.Requirements, sw.chunks); err != nil {
			return nil, fmt.Errorf("sheet %q: %w", sw.extraction.SheetName, err)
		}
		totalBatches += len(sw.chunks)
	}
	p.tracker.SetTotalBatches(jobID, totalBatches)

	// Classify focus sheet first, then the rest in workbook order.
	an := analyzer.New(p.cfg.Analyzer, focusSheet, p.tracker,
		analyzer.WithClient(p.client), analyzer.WithLogger(p.logger))
	for _, focusPass := range []bool{true, false} {
		for _, sw := range work {
			if sw.isFocus != focusPass {
				continue
			}
			results, err := an.AnalyzeChunks(ctx, jobID, sw.chunks)
			if err != nil {
				return nil, err
			}
			sw.results = results
		}
	}

	// Assemble in workbook order regardless of processing order.
	analyses := make([]*rtm.SheetAnalysis, 0, len(work))
	for _, sw := range work {
		analyses = append(analyses, &rtm.SheetAnalysis{
			SheetName:       sw.extraction.SheetName,
			IsFocusSheet:    sw.isFocus,
			Requirements:    sw.extraction.Requirements,
			Classifications: sw.results,
		})
	}
	assembler := rtm.NewAssembler(
		p.cfg.Processing.RequirementIDPrefix,
		p.cfg.Processing.TestCaseIDPrefix,
		focusSheet,
		rtm.WithLogger(p.logger))
	entries, stats := assembler.Assemble(analyses)

	outPath, err := p.outputPath(filePath)
	if err != nil {
		return nil, err
	}
	writer := rtm.NewWriter(focusSheet)
	if err := writer.Write(outPath, entries, stats); err != nil {
		return nil, err
	}

	return &models.RTMOutput{
		FilePath:          outPath,
		RequirementsCount: len(entries),
		Stats:             stats,
		ProcessingTime:    time.Since(started),
		SourceFileName:    filepath.Base(filePath),
		GeneratedAt:       time.Now(),
	}, nil
}

func (p *Pipeline) outputPath(inputPath string) (string, error) {
	dir := p.cfg.Storage.OutputDir
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	base := filepath.Base(inputPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	name := fmt.Sprintf("RTM_%s_%s.xlsx", base, time.Now().Format("20060102_150405"))
	return filepath.Join(dir, name), nil
}

// SheetInfo loads a workbook and scores each sheet as a focus-sheet
// candidate.
func (p *Pipeline) SheetInfo(path string) ([]*extract.SheetSuggestion, error) {
	wb, err := extract.LoadWorkbook(path)
	if err != nil {
		return nil, err
	}
	return p.extractor.SheetSuggestions(wb), nil
}

// Estimate describes the expected cost of a generation run.
type Estimate struct {
	TotalRequirements int            `json:"total_requirements"`
	PerSheet          map[string]int `json:"per_sheet"`
	EstimatedBatches  int            `json:"estimated_batches"`
	EstimatedAPICalls int            `json:"estimated_api_calls"`
	EstimatedMinutes  int            `json:"estimated_minutes"`
	FocusSheet        string         `json:"focus_sheet,omitempty"`
	FocusRequirements int            `json:"focus_requirements"`
}

// EstimateRun predicts batch counts and wall-clock time from lightweight
// requirement counting, without calling the classification service.
func (p *Pipeline) EstimateRun(path, focusSheet string) (*Estimate, error) {
	wb, err := extract.LoadWorkbook(path)
	if err != nil {
		return nil, err
	}
	if focusSheet == "" {
		focusSheet = p.cfg.Processing.FocusSheet
	}

	est := &Estimate{
		PerSheet:   make(map[string]int),
		FocusSheet: focusSheet,
	}
	for _, sheet := range wb.Sheets {
		count := p.extractor.CountLikely(sheet)
		if count == 0 {
			continue
		}
		est.PerSheet[sheet.Name] = count
		est.TotalRequirements += count

		target := p.cfg.Chunking.DefaultTargetPerChunk
		if sheet.Name == focusSheet {
			target = p.cfg.Chunking.FocusTargetPerChunk
			est.FocusRequirements = count
		}
		if target <= 0 {
			target = 1
		}
		est.EstimatedBatches += (count + target - 1) / target
	}
	est.EstimatedAPICalls = est.EstimatedBatches
	est.EstimatedMinutes = chunker.EstimateMinutes(est.EstimatedBatches,
		p.cfg.Analyzer.RequestsPerMinute, p.cfg.Analyzer.InterBatchDelaySecs)
	return est, nil
}
