package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// SQLGenerator turns a natural-language question into SQL
type SQLGenerator interface {
	GenerateSQL(ctx context.Context, question string) (string, error)
}

// YandexGPTConfig configures the completion client
type YandexGPTConfig struct {
	URL           string
	APIKey        string
	FolderID      string
	Model         string
	Timeout       time.Duration
	MaxRetries    int
	RatePerSecond float64
	Temperature   float64
	MaxTokens     int
}

type completionRequest struct {
	ModelURI          string            `json:"modelUri"`
	CompletionOptions completionOptions `json:"completionOptions"`
	Messages          []completionMsg   `json:"messages"`
}

type completionOptions struct {
	Stream      bool    `json:"stream"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"maxTokens"`
}

type completionMsg struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type completionResponse struct {
	Result struct {
		Alternatives []struct {
			Message completionMsg `json:"message"`
			Status  string        `json:"status"`
		} `json:"alternatives"`
		ModelVersion string `json:"modelVersion"`
	} `json:"result"`
}

// YandexGPTClient calls the YandexGPT completion API
type YandexGPTClient struct {
	cfg        YandexGPTConfig
	httpClient *http.Client
	prompts    *PromptService
	limiter    *rate.Limiter
	backoff    *BackoffCalculator
	breaker    *CircuitBreaker
	logger     *slog.Logger
}

// NewYandexGPTClient creates a client. Zero config fields select the
// defaults of the public endpoint.
func NewYandexGPTClient(cfg YandexGPTConfig, prompts *PromptService, logger *slog.Logger) *YandexGPTClient {
	if cfg.Model == "" {
		cfg.Model = "yandexgpt-lite"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.1
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if logger == nil {
		logger = slog.Default()
	}

	burst := int(cfg.RatePerSecond)
	if burst < 1 {
		burst = 1
	}

	return &YandexGPTClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		prompts:    prompts,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst),
		backoff:    NewBackoffCalculator(500*time.Millisecond, 5*time.Second, 2.0, 20),
		breaker:    NewCircuitBreaker(5, 30*time.Second),
		logger:     logger.With("component", "yandexgpt"),
	}
}

// GenerateSQL renders the prompt for question and returns the cleaned
// statement the model produced.
func (c *YandexGPTClient) GenerateSQL(ctx context.Context, question string) (string, error) {
	prompt, err := c.prompts.Render(question)
	if err != nil {
		return "", err
	}

	text, err := c.completeWithRetry(ctx, prompt)
	if err != nil {
		return "", err
	}

	sql := CleanSQL(text)
	if sql == "" {
		return "", ErrEmptySQL
	}
	c.logger.Debug("generated SQL", "sql", sql)
	return sql, nil
}

// CircuitOpen reports whether the client is currently refusing calls
func (c *YandexGPTClient) CircuitOpen() bool {
	return c.breaker.IsOpen()
}

func (c *YandexGPTClient) completeWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr *LLMError

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if !c.breaker.Allow() {
			return "", ErrCircuitOpen
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limiter: %w", err)
		}

		text, err := c.complete(ctx, prompt)
		if err == nil {
			c.breaker.RecordSuccess()
			return text, nil
		}

		lastErr = ClassifyError(err)
		if !lastErr.Retryable() {
			if lastErr.IsAuthError() && c.breaker.RecordFailure() {
				c.logger.Warn("⚠️  LLM circuit breaker opened", "error", lastErr)
			}
			return "", lastErr
		}
		if c.breaker.RecordFailure() {
			c.logger.Warn("⚠️  LLM circuit breaker opened", "error", lastErr)
			return "", lastErr
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		delay := c.backoff.NextDelay(attempt)
		if lastErr.RetryAfter > delay {
			delay = lastErr.RetryAfter
		}
		c.logger.Warn("LLM request failed, retrying",
			"attempt", attempt+1, "delay", delay, "category", lastErr.Category, "error", lastErr)

		select {
		case <-ctx.Done():
			return "", ClassifyError(ctx.Err())
		case <-time.After(delay):
		}
	}

	return "", lastErr
}

func (c *YandexGPTClient) complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(completionRequest{
		ModelURI: fmt.Sprintf("gpt://%s/%s", c.cfg.FolderID, c.cfg.Model),
		CompletionOptions: completionOptions{
			Temperature: c.cfg.Temperature,
			MaxTokens:   c.cfg.MaxTokens,
		},
		Messages: []completionMsg{{Role: "user", Text: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("x-folder-id", c.cfg.FolderID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", ClassifyHTTPError(resp.StatusCode, string(respBody), resp.Header.Get("Retry-After"))
	}

	var out completionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", &LLMError{Category: ErrorCategoryPermanent, Message: "failed to decode completion", Cause: err}
	}
	if len(out.Result.Alternatives) == 0 {
		return "", &LLMError{Category: ErrorCategoryPermanent, Message: "completion has no alternatives"}
	}

	return out.Result.Alternatives[0].Message.Text, nil
}

var codeFence = regexp.MustCompile("(?i)```(?:sql)?")

// CleanSQL strips markdown fences, surrounding whitespace and trailing
// semicolons from a model reply.
func CleanSQL(text string) string {
	sql := codeFence.ReplaceAllString(text, "")
	sql = strings.TrimSpace(sql)
	sql = strings.TrimRight(sql, "; \t\n")
	return strings.TrimSpace(sql)
}
