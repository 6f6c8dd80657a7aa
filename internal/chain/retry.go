package chain

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// RetryConfig controls exponential backoff for RPC submissions.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// DefaultRetryConfig returns the retry policy used for anchor submissions.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// retryablePatterns matches transient RPC failures worth retrying. Anything
// else (reverts, bad signatures, malformed transactions) fails fast.
var retryablePatterns = []string{
	"connection refused",
	"timeout",
	"temporary failure",
	"nonce too low",
	"replacement transaction underpriced",
	"network error",
	"EOF",
}

// IsRetryable reports whether an RPC error is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// RetryWithBackoff runs fn until it succeeds, the error is non-retryable,
// the retry budget is exhausted, or the context is cancelled.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return fmt.Errorf("chain: non-retryable: %w", err)
		}
		if attempt == cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("chain: retry cancelled: %w", ctx.Err())
		case <-time.After(backoffFor(attempt, cfg)):
		}
	}

	return fmt.Errorf("chain: retries exhausted: %w", lastErr)
}

func backoffFor(attempt int, cfg RetryConfig) time.Duration {
	backoff := float64(cfg.InitialBackoff) * math.Pow(cfg.BackoffFactor, float64(attempt))
	if backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}
	return time.Duration(backoff)
}
