package analyzer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reqtrace/rtmgen/internal/config"
	"github.com/reqtrace/rtmgen/internal/models"
	"github.com/reqtrace/rtmgen/internal/progress"
)

func newTestAnalyzer(baseURL string, tracker *progress.Tracker) *Analyzer {
	client := newTestClient(baseURL)
	a := New(config.AnalyzerConfig{InterBatchDelaySecs: 2}, "Tool Requirements", tracker, WithClient(client))
	a.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return a
}

func TestAnalyzeChunks_ServiceDownFallsBackAndCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	tracker := progress.New()
	tracker.Start("job-1", "reqs.xlsx")
	tracker.SetTotalBatches("job-1", 2)

	a := newTestAnalyzer(srv.URL, tracker)
	chunks := []*models.Chunk{testChunk(3), testChunk(2)}
	results, err := a.AnalyzeChunks(context.Background(), "job-1", chunks)
	if err != nil {
		t.Fatalf("AnalyzeChunks() error = %v; a dead service must not fail the job", err)
	}
	if len(results) != 5 {
		t.Fatalf("got %d classifications, want 5", len(results))
	}
	for i, r := range results {
		if !r.UsedFallback {
			t.Errorf("classification %d not flagged as fallback", i)
		}
	}

	snap, _ := tracker.Get("job-1")
	if snap.CompletedBatches != 2 {
		t.Errorf("completed batches = %d, want 2", snap.CompletedBatches)
	}
}

func TestAnalyzeChunks_HealthyService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionReply(t, 3))
	}))
	defer srv.Close()

	tracker := progress.New()
	tracker.Start("job-1", "reqs.xlsx")
	tracker.SetTotalBatches("job-1", 1)

	a := newTestAnalyzer(srv.URL, tracker)
	results, err := a.AnalyzeChunks(context.Background(), "job-1", []*models.Chunk{testChunk(3)})
	if err != nil {
		t.Fatalf("AnalyzeChunks() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d classifications, want 3", len(results))
	}
	for i, r := range results {
		if r.UsedFallback {
			t.Errorf("classification %d wrongly flagged as fallback", i)
		}
	}
}

func TestAnalyzeChunks_ContextCancelled(t *testing.T) {
	tracker := progress.New()
	tracker.Start("job-1", "reqs.xlsx")

	a := newTestAnalyzer("http://127.0.0.1:0", tracker)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.AnalyzeChunks(ctx, "job-1", []*models.Chunk{testChunk(1)}); err == nil {
		t.Fatal("cancelled context must abort analysis")
	}
}
