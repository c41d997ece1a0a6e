package analyzer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/reqtrace/rtmgen/internal/config"
	"github.com/reqtrace/rtmgen/internal/models"
	"github.com/reqtrace/rtmgen/internal/progress"
)

// Analyzer runs chunks through the classification service one at a time and
// substitutes rule-based judgments for any batch the service cannot handle.
// A failed batch never fails the job.
type Analyzer struct {
	client  *Client
	rules   *RuleClassifier
	tracker *progress.Tracker
	delay   time.Duration
	logger  *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// WithClient replaces the service client.
func WithClient(client *Client) Option {
	return func(a *Analyzer) {
		a.client = client
	}
}

// New creates an analyzer from service settings. tracker receives batch
// progress and may not be nil.
func New(cfg config.AnalyzerConfig, focusSheet string, tracker *progress.Tracker, opts ...Option) *Analyzer {
	a := &Analyzer{
		client:  NewClient(cfg),
		rules:   NewRuleClassifier(focusSheet),
		tracker: tracker,
		delay:   time.Duration(cfg.InterBatchDelaySecs) * time.Second,
		logger:  zap.NewNop(),
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Usage returns the service consumption counters.
func (a *Analyzer) Usage() Usage {
	return a.client.Usage()
}

// AnalyzeChunks classifies every chunk in order and returns the concatenated
// judgments. Chunks the service rejects fall back to rule-based analysis, so
// the result always covers every chunk member. Only context cancellation
// aborts the run.
func (a *Analyzer) AnalyzeChunks(ctx context.Context, jobID string, chunks []*models.Chunk) ([]*models.Classification, error) {
	var all []*models.Classification
	fallbackBatches := 0

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a.tracker.BatchStart(jobID, chunk.SheetName,
			fmt.Sprintf("Analyzing %s batch %d of %d (%d requirements)",
				chunk.SheetName, i+1, len(chunks), chunk.Size()))

		results, err := a.client.Classify(ctx, chunk)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger.Warn("batch classification failed, using rule-based fallback",
				zap.String("chunk_id", chunk.ID),
				zap.String("sheet", chunk.SheetName),
				zap.Error(err))
			results = a.rules.ClassifyChunk(chunk)
			fallbackBatches++
		}
		all = append(all, results...)
		a.tracker.BatchComplete(jobID)

		if a.delay > 0 && i < len(chunks)-1 {
			a.tracker.Waiting(jobID, "Waiting between batches to respect service limits")
			if err := a.sleep(ctx, a.delay); err != nil {
				return nil, err
			}
		}
	}

	a.logger.Info("chunk analysis complete",
		zap.String("job_id", jobID),
		zap.Int("chunks", len(chunks)),
		zap.Int("fallback_batches", fallbackBatches),
		zap.Int("classifications", len(all)))
	return all, nil
}
