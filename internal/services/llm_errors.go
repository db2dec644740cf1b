package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrorCategory classifies LLM errors for retry decisions
type ErrorCategory int

const (
	// ErrorCategoryUnknown - unclassified error, not retried
	ErrorCategoryUnknown ErrorCategory = iota

	// ErrorCategoryTransient - timeout, 429, 5xx, network error
	ErrorCategoryTransient

	// ErrorCategoryPermanent - auth error, bad request, unparsable response
	ErrorCategoryPermanent
)

// String returns a human-readable category name
func (c ErrorCategory) String() string {
	switch c {
	case ErrorCategoryTransient:
		return "transient"
	case ErrorCategoryPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// LLMError wraps a completion failure with its classification
type LLMError struct {
	Category   ErrorCategory
	Message    string
	StatusCode int           // HTTP status code if applicable
	RetryAfter time.Duration // From the Retry-After header
	Cause      error
}

func (e *LLMError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("[%d] %s", e.StatusCode, e.Message)
	}
	return e.Message
}

func (e *LLMError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether another attempt may succeed
func (e *LLMError) Retryable() bool {
	return e.Category == ErrorCategoryTransient
}

// IsAuthError reports a rejected API key or folder permission. Retrying
// cannot help, but repeated auth failures should trip the circuit breaker.
func (e *LLMError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// ClassifyHTTPError classifies a non-200 completion response
func ClassifyHTTPError(statusCode int, body, retryAfter string) *LLMError {
	err := &LLMError{
		StatusCode: statusCode,
		Message:    fmt.Sprintf("HTTP %d: %s", statusCode, truncateString(body, 200)),
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		err.Category = ErrorCategoryTransient
		err.RetryAfter = parseRetryAfter(retryAfter)

	case statusCode >= 500 && statusCode < 600,
		statusCode == http.StatusRequestTimeout:
		err.Category = ErrorCategoryTransient

	case statusCode == http.StatusUnauthorized,
		statusCode == http.StatusForbidden,
		statusCode == http.StatusBadRequest,
		statusCode == http.StatusNotFound,
		statusCode == http.StatusUnprocessableEntity:
		err.Category = ErrorCategoryPermanent

	default:
		err.Category = ErrorCategoryUnknown
	}

	return err
}

func parseRetryAfter(value string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// ClassifyError classifies a transport-level error
func ClassifyError(err error) *LLMError {
	if err == nil {
		return nil
	}

	var llmErr *LLMError
	if errors.As(err, &llmErr) {
		return llmErr
	}

	// The caller's own cancellation is final
	if errors.Is(err, context.Canceled) {
		return &LLMError{Category: ErrorCategoryPermanent, Message: "Request canceled", Cause: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &LLMError{Category: ErrorCategoryTransient, Message: "Request timed out", Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &LLMError{
			Category: ErrorCategoryTransient,
			Message:  fmt.Sprintf("Network error: %s", truncateString(err.Error(), 100)),
			Cause:    err,
		}
	}

	errStr := err.Error()
	if strings.Contains(errStr, "certificate") || strings.Contains(errStr, "x509:") || strings.Contains(errStr, "tls:") {
		return &LLMError{Category: ErrorCategoryPermanent, Message: "TLS/Certificate error", Cause: err}
	}
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "EOF") {
		return &LLMError{
			Category: ErrorCategoryTransient,
			Message:  fmt.Sprintf("Network error: %s", truncateString(errStr, 100)),
			Cause:    err,
		}
	}

	return &LLMError{
		Category: ErrorCategoryUnknown,
		Message:  truncateString(errStr, 200),
		Cause:    err,
	}
}

// BackoffCalculator computes retry delays with exponential backoff and jitter
type BackoffCalculator struct {
	initialDelay  time.Duration
	maxDelay      time.Duration
	multiplier    float64
	jitterPercent int
}

// NewBackoffCalculator creates a calculator; zero values select defaults
func NewBackoffCalculator(initialDelay, maxDelay time.Duration, multiplier float64, jitterPercent int) *BackoffCalculator {
	if initialDelay <= 0 {
		initialDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	if multiplier <= 0 {
		multiplier = 2.0
	}
	if jitterPercent < 0 {
		jitterPercent = 20
	}

	return &BackoffCalculator{
		initialDelay:  initialDelay,
		maxDelay:      maxDelay,
		multiplier:    multiplier,
		jitterPercent: jitterPercent,
	}
}

// NextDelay calculates the delay for the given attempt number (0-indexed)
func (b *BackoffCalculator) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(b.initialDelay) * math.Pow(b.multiplier, float64(attempt))
	if delay > float64(b.maxDelay) {
		delay = float64(b.maxDelay)
	}

	if b.jitterPercent > 0 {
		jitterRange := delay * float64(b.jitterPercent) / 100.0
		delay += (rand.Float64()*2 - 1) * jitterRange
	}

	if delay < 0 {
		delay = float64(b.initialDelay)
	}
	return time.Duration(delay)
}

// CircuitBreaker opens after threshold consecutive failures and lets a
// single trial request through once cooldown has passed.
type CircuitBreaker struct {
	mu        sync.Mutex
	failures  int
	openedAt  time.Time
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// NewCircuitBreaker creates a breaker; threshold <= 0 selects 5
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a request may be attempted
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.failures < cb.threshold {
		return true
	}
	if cb.now().Sub(cb.openedAt) >= cb.cooldown {
		// Half-open: one trial, then re-arm the cooldown
		cb.openedAt = cb.now()
		return true
	}
	return false
}

// RecordFailure counts a failure and returns true if the breaker is open
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.failures == cb.threshold {
		cb.openedAt = cb.now()
	}
	return cb.failures >= cb.threshold
}

// RecordSuccess closes the breaker
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.openedAt = time.Time{}
}

// IsOpen reports whether the breaker is currently rejecting requests
func (cb *CircuitBreaker) IsOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures >= cb.threshold && cb.now().Sub(cb.openedAt) < cb.cooldown
}

// truncateString truncates s to maxLen bytes without splitting a rune
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
