// Package analyzer classifies requirement batches through an OpenAI-compatible
// chat completion service, with a rule-based fallback when the service is
// unavailable.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reqtrace/rtmgen/internal/config"
	"github.com/reqtrace/rtmgen/internal/models"
)

// ErrMisconfigured reports that the client lacks the settings needed to call
// the classification service.
var ErrMisconfigured = errors.New("analyzer client misconfigured")

// Client calls an OpenAI-compatible chat completion endpoint. Requests are
// paced by a rate limiter; errors go through retry with exponential backoff
// and a secondary model fallback.
type Client struct {
	baseURL       string
	apiKey        string
	model         string
	fallbackModel string
	temperature   float64
	maxTokens     int
	maxRetries    int

	httpClient *http.Client
	limiter    *Limiter
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error

	mu           sync.Mutex
	requestsMade int
	tokensUsed   int
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithClientLogger sets the logger.
func WithClientLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient builds a client from analyzer settings.
func NewClient(cfg config.AnalyzerConfig, opts ...ClientOption) *Client {
	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		model:         cfg.Model,
		fallbackModel: cfg.FallbackModel,
		temperature:   cfg.Temperature,
		maxTokens:     cfg.MaxTokens,
		maxRetries:    cfg.MaxRetries,
		httpClient:    &http.Client{Timeout: timeout},
		limiter:       NewLimiter(cfg.RequestsPerMinute),
		logger:        zap.NewNop(),
		sleep:         sleepContext,
	}
	if c.maxRetries <= 0 {
		c.maxRetries = 3
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Usage is a running count of service consumption.
type Usage struct {
	RequestsMade int `json:"requests_made"`
	TokensUsed   int `json:"tokens_used"`
}

// Usage returns consumption counters since the client was created.
func (c *Client) Usage() Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Usage{RequestsMade: c.requestsMade, TokensUsed: c.tokensUsed}
}

// Classify sends one chunk for classification and returns one judgment per
// member, in member order. The reply must contain exactly chunk.Size()
// entries; anything else is an error and the caller should fall back.
func (c *Client) Classify(ctx context.Context, chunk *models.Chunk) ([]*models.Classification, error) {
	if c.apiKey == "" || c.baseURL == "" || c.model == "" {
		return nil, ErrMisconfigured
	}

	prompt, err := BuildChunkPrompt(chunk)
	if err != nil {
		return nil, err
	}

	content, err := c.completeWithFallback(ctx, prompt)
	if err != nil {
		return nil, err
	}

	results, err := parseClassifications(content)
	if err != nil {
		return nil, err
	}
	if len(results) != chunk.Size() {
		return nil, fmt.Errorf("classification count mismatch: got %d entries for %d requirements", len(results), chunk.Size())
	}
	// Entries map to members positionally, so carry the member's own text and
	// provenance rather than trusting the service to echo them verbatim. A
	// paraphrased echo would otherwise never match during assembly.
	for i, r := range chunk.Requirements {
		results[i].OriginalRequirement = r.Description
		if results[i].OriginalID == "" {
			results[i].OriginalID = r.OriginalID
		}
		if results[i].Source == "" {
			results[i].Source = r.Source
		}
	}
	return results, nil
}

// completeWithFallback runs the retry machine: primary model first, then the
// fallback model. 429s back off exponentially on the same model; token-limit
// errors jump straight to the fallback model; other errors retry briefly and
// hand over to the fallback once the primary's attempts are spent.
func (c *Client) completeWithFallback(ctx context.Context, prompt string) (string, error) {
	modelChain := []string{c.model}
	if c.fallbackModel != "" && c.fallbackModel != c.model {
		modelChain = append(modelChain, c.fallbackModel)
	}

	var lastErr error
	for mi, model := range modelChain {
		primary := mi == 0
	attempts:
		for attempt := 0; attempt < c.maxRetries; attempt++ {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", err
			}

			content, err := c.complete(ctx, model, prompt)
			if err == nil {
				if !primary {
					c.logger.Info("fallback model succeeded", zap.String("model", model))
				}
				return content, nil
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err

			switch {
			case isRateLimited(err):
				wait := time.Duration(1<<attempt) * 5 * time.Second
				c.logger.Warn("rate limited, backing off",
					zap.String("model", model),
					zap.Int("attempt", attempt+1),
					zap.Duration("wait", wait))
				if err := c.sleep(ctx, wait); err != nil {
					return "", err
				}
			case isTokenLimit(err):
				if primary {
					c.logger.Warn("token limit on primary model, switching",
						zap.String("model", model),
						zap.String("fallback", c.fallbackModel))
					break attempts
				}
				if attempt == c.maxRetries-1 {
					return "", fmt.Errorf("both models hit token limits: %w", err)
				}
			default:
				c.logger.Error("completion request failed",
					zap.String("model", model),
					zap.Int("attempt", attempt+1),
					zap.Error(err))
				if attempt == c.maxRetries-1 {
					if primary {
						break attempts
					}
					return "", fmt.Errorf("both models failed after %d attempts: %w", c.maxRetries, err)
				}
				if err := c.sleep(ctx, time.Duration(1<<attempt)*time.Second); err != nil {
					return "", err
				}
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no completion produced")
	}
	return "", lastErr
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
	ResponseFormat *formatSpec   `json:"response_format,omitempty"`
}

type formatSpec struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// apiError carries the HTTP status so the retry machine can tell quota
// exhaustion from oversized payloads.
type apiError struct {
	status int
	body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("completion service returned %d: %s", e.status, e.body)
}

func (c *Client) complete(ctx context.Context, model, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:          model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
		ResponseFormat: &formatSpec{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("marshal completion request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &apiError{status: resp.StatusCode, body: strings.TrimSpace(string(payload))}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("completion response has no choices")
	}

	c.mu.Lock()
	c.requestsMade++
	c.tokensUsed += parsed.Usage.TotalTokens
	c.mu.Unlock()

	return parsed.Choices[0].Message.Content, nil
}

func isRateLimited(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) && ae.status == http.StatusTooManyRequests {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "rate limit")
}

func isTokenLimit(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) && ae.status == http.StatusRequestEntityTooLarge {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too large") || strings.Contains(msg, "token")
}

// rawClassification mirrors the reply schema before type normalization.
type rawClassification struct {
	OriginalRequirement string   `json:"original_requirement"`
	RequirementType     string   `json:"requirement_type"`
	Priority            string   `json:"priority"`
	PriorityReasoning   string   `json:"priority_reasoning"`
	RelatedDeliverables string   `json:"related_deliverables"`
	TestCaseSuggestions []string `json:"test_case_suggestions"`
	Comments            string   `json:"comments"`
	Confidence          float64  `json:"analysis_confidence"`
	OriginalID          string   `json:"original_id"`
	Source              string   `json:"source"`
}

func parseClassifications(content string) ([]*models.Classification, error) {
	var envelope struct {
		Requirements []rawClassification `json:"requirements"`
	}
	if err := json.Unmarshal([]byte(content), &envelope); err != nil {
		return nil, fmt.Errorf("parse classification reply: %w", err)
	}
	if envelope.Requirements == nil {
		return nil, errors.New("classification reply missing requirements array")
	}

	results := make([]*models.Classification, 0, len(envelope.Requirements))
	for _, raw := range envelope.Requirements {
		confidence := raw.Confidence
		if confidence == 0 {
			confidence = 0.9
		}
		results = append(results, &models.Classification{
			OriginalRequirement: raw.OriginalRequirement,
			RequirementType:     models.ParseRequirementType(raw.RequirementType),
			Priority:            models.ParsePriority(raw.Priority),
			PriorityReasoning:   raw.PriorityReasoning,
			RelatedDeliverables: raw.RelatedDeliverables,
			TestCaseSuggestions: raw.TestCaseSuggestions,
			Comments:            raw.Comments,
			Confidence:          confidence,
			OriginalID:          raw.OriginalID,
			Source:              raw.Source,
		})
	}
	return results, nil
}
