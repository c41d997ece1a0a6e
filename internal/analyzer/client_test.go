package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/reqtrace/rtmgen/internal/config"
	"github.com/reqtrace/rtmgen/internal/models"
)

func testChunk(n int) *models.Chunk {
	reqs := make([]*models.Requirement, n)
	for i := range reqs {
		reqs[i] = &models.Requirement{
			Description: fmt.Sprintf("The system shall handle case %d", i),
			Source:      fmt.Sprintf("Scope!B%d", i+2),
			SheetName:   "Scope",
			RowNumber:   i + 2,
			OriginalID:  fmt.Sprintf("R-%d", i+1),
		}
	}
	return &models.Chunk{
		ID:           "Scope_ab12cd34",
		SheetName:    "Scope",
		Requirements: reqs,
		StartRow:     2,
		EndRow:       n + 1,
	}
}

// completionReply wraps n classification entries in the chat completion
// envelope the service returns.
func completionReply(t *testing.T, n int) []byte {
	t.Helper()
	entries := make([]map[string]any, n)
	for i := range entries {
		entries[i] = map[string]any{
			"original_requirement":  fmt.Sprintf("The system shall handle case %d", i),
			"requirement_type":      "Functional",
			"priority":              "High",
			"priority_reasoning":    "core flow",
			"related_deliverables":  "API/Integration",
			"test_case_suggestions": []string{"verify happy path", "verify rejection"},
			"analysis_confidence":   0.95,
		}
	}
	inner, err := json.Marshal(map[string]any{"requirements": entries})
	if err != nil {
		t.Fatal(err)
	}
	outer, err := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": string(inner)}},
		},
		"usage": map[string]any{"total_tokens": 321},
	})
	if err != nil {
		t.Fatal(err)
	}
	return outer
}

func newTestClient(baseURL string) *Client {
	c := NewClient(config.AnalyzerConfig{
		BaseURL:       baseURL,
		APIKey:        "test-key",
		Model:         "primary-model",
		FallbackModel: "fallback-model",
		MaxRetries:    3,
	})
	c.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	c.limiter.sleep = c.sleep
	return c
}

func TestClient_Classify(t *testing.T) {
	var mu sync.Mutex
	var gotAuth, gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		mu.Lock()
		gotAuth = r.Header.Get("Authorization")
		gotModel = req.Model
		mu.Unlock()
		w.Write(completionReply(t, 3))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	results, err := c.Classify(context.Background(), testChunk(3))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d classifications, want 3", len(results))
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("authorization header = %q", gotAuth)
	}
	if gotModel != "primary-model" {
		t.Errorf("model = %q, want primary-model", gotModel)
	}

	first := results[0]
	if first.RequirementType != models.TypeFunctional || first.Priority != models.PriorityHigh {
		t.Errorf("classification = %s/%s", first.RequirementType, first.Priority)
	}
	if first.UsedFallback {
		t.Error("service classification must not be flagged as fallback")
	}
	if first.OriginalID != "R-1" {
		t.Errorf("original ID not backfilled from chunk member: %q", first.OriginalID)
	}
	if first.Source != "Scope!B2" {
		t.Errorf("source not backfilled: %q", first.Source)
	}

	usage := c.Usage()
	if usage.RequestsMade != 1 || usage.TokensUsed != 321 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestClient_Classify_ParaphrasedEcho(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entries := make([]map[string]any, 3)
		for i := range entries {
			entries[i] = map[string]any{
				"original_requirement":  fmt.Sprintf("Handles scenario number %d gracefully", i),
				"requirement_type":      "Functional",
				"priority":              "Medium",
				"related_deliverables":  "API/Integration",
				"test_case_suggestions": []string{"verify happy path"},
				"analysis_confidence":   0.9,
			}
		}
		inner, _ := json.Marshal(map[string]any{"requirements": entries})
		outer, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": string(inner)}},
			},
		})
		w.Write(outer)
	}))
	defer srv.Close()

	chunk := testChunk(3)
	results, err := newTestClient(srv.URL).Classify(context.Background(), chunk)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	for i, r := range results {
		if r.OriginalRequirement != chunk.Requirements[i].Description {
			t.Errorf("entry %d carries %q, want the member text %q",
				i, r.OriginalRequirement, chunk.Requirements[i].Description)
		}
	}
}

func TestClient_Classify_CountMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(completionReply(t, 2))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.Classify(context.Background(), testChunk(3)); err == nil {
		t.Fatal("short reply must be an error, got nil")
	}
}

func TestClient_Misconfigured(t *testing.T) {
	c := NewClient(config.AnalyzerConfig{BaseURL: "http://localhost", Model: "m"})
	if _, err := c.Classify(context.Background(), testChunk(1)); !errors.Is(err, ErrMisconfigured) {
		t.Errorf("missing API key: err = %v, want ErrMisconfigured", err)
	}
}

func TestClient_RateLimitedExhaustsBothModels(t *testing.T) {
	var mu sync.Mutex
	var modelsSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		modelsSeen = append(modelsSeen, req.Model)
		mu.Unlock()
		http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, err := c.Classify(context.Background(), testChunk(2))
	if err == nil {
		t.Fatal("persistent 429 must surface an error")
	}
	if len(modelsSeen) != 6 { // 3 attempts on each model
		t.Fatalf("made %d requests, want 6", len(modelsSeen))
	}
	for i, m := range modelsSeen {
		want := "primary-model"
		if i >= 3 {
			want = "fallback-model"
		}
		if m != want {
			t.Errorf("request %d used %q, want %q", i, m, want)
		}
	}
}

func TestClient_TokenLimitSwitchesModelImmediately(t *testing.T) {
	var mu sync.Mutex
	var modelsSeen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		mu.Lock()
		modelsSeen = append(modelsSeen, req.Model)
		mu.Unlock()
		if req.Model == "primary-model" {
			http.Error(w, `{"error":"request too large"}`, http.StatusRequestEntityTooLarge)
			return
		}
		w.Write(completionReply(t, 2))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	results, err := c.Classify(context.Background(), testChunk(2))
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d classifications, want 2", len(results))
	}
	want := []string{"primary-model", "fallback-model"}
	if len(modelsSeen) != len(want) {
		t.Fatalf("requests = %v, want %v", modelsSeen, want)
	}
	for i := range want {
		if modelsSeen[i] != want[i] {
			t.Errorf("request %d used %q, want %q", i, modelsSeen[i], want[i])
		}
	}
}

func TestClient_TransientErrorRetriesThenSucceeds(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}
		w.Write(completionReply(t, 1))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	if _, err := c.Classify(context.Background(), testChunk(1)); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("made %d requests, want 2", calls)
	}
}

func TestLimiter_PacesRequests(t *testing.T) {
	l := NewLimiter(30) // one request per 2s
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	var slept time.Duration
	l.now = func() time.Time { return now }
	l.sleep = func(ctx context.Context, d time.Duration) error {
		slept += d
		now = now.Add(d)
		return nil
	}

	ctx := context.Background()
	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if slept != 0 {
		t.Errorf("first request should not wait, slept %v", slept)
	}
	if err := l.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	if slept != 2*time.Second {
		t.Errorf("second request slept %v, want 2s", slept)
	}
}

func TestBuildChunkPrompt(t *testing.T) {
	chunk := testChunk(2)
	chunk.IsFocusSheet = true
	prompt, err := BuildChunkPrompt(chunk)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"DETAILED FOCUS SHEET",
		"The system shall handle case 0",
		"Scope!B2",
		`"requirements" array`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("focus prompt missing %q", want)
		}
	}

	chunk.IsFocusSheet = false
	prompt, err = BuildChunkPrompt(chunk)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(prompt, "COMPREHENSIVE ANALYSIS") {
		t.Error("non-focus prompt missing comprehensive marker")
	}
	if strings.Contains(prompt, "DETAILED FOCUS SHEET") {
		t.Error("non-focus prompt should not use the detailed variant")
	}
}
