// Package retry implements the exponential-backoff wrapper used around
// outbound calls to the RAG backend and LLM providers.
//
// The policy: attempt an operation up to MaxAttempts times; before retry n
// sleep 2^(n-1) * BaseDelay plus uniform jitter in [0, Jitter), capped at
// MaxDelay. Only transient failures are retried; permanent failures
// (auth, validation) abort immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"
)

// Config configures the retry behavior.
// The zero value is not useful; use DefaultConfig and override fields.
type Config struct {
	MaxAttempts int           // Total attempts including the first (default: 3)
	BaseDelay   time.Duration // Delay before the first retry (default: 1s)
	MaxDelay    time.Duration // Backoff cap (default: 10s)
	Jitter      time.Duration // Upper bound of random jitter added per retry (default: 500ms)

	// Retryable classifies errors. nil means DefaultRetryable.
	Retryable func(error) bool
}

// DefaultConfig returns the retry policy used for backend calls.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Jitter:      500 * time.Millisecond,
	}
}

// transientPatterns groups error substrings by failure category.
// Matched case-insensitively against err.Error().
//
// String matching is used because neither net/http nor the backend contract
// expose typed errors for every transient failure mode.
var transientPatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "connection refused", "timeout", "temporary", "eof"}, // network errors
}

// DefaultRetryable reports whether err looks transient.
// Context cancellation is never retryable.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, group := range transientPatterns {
		for _, pattern := range group {
			if strings.Contains(msg, pattern) {
				return true
			}
		}
	}
	return false
}

// Do runs op with the configured retry policy.
// The last error is returned, wrapped with the attempt count, when every
// attempt fails. Context cancellation aborts the backoff sleep immediately.
func Do(ctx context.Context, cfg Config, logger *slog.Logger, op func(ctx context.Context) error) error {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultConfig().BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultConfig().MaxDelay
	}
	retryable := cfg.Retryable
	if retryable == nil {
		retryable = DefaultRetryable
	}

	var lastErr error
	start := time.Now()

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Debug("operation recovered after retry",
					"attempts", attempt,
					"elapsed", time.Since(start))
			}
			return nil
		}

		lastErr = err

		if !retryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		delay := Backoff(attempt, cfg)
		logger.Debug("retrying after transient error",
			"attempt", attempt,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return fmt.Errorf("canceled during retry backoff: %w", ctx.Err())
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("after %d attempts (elapsed %v): %w",
		cfg.MaxAttempts, time.Since(start).Round(time.Millisecond), lastErr)
}

// Backoff computes the sleep before the retry that follows failed attempt n
// (n is 1-based): 2^(n-1) * BaseDelay + jitter, capped at MaxDelay.
func Backoff(attempt int, cfg Config) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := cfg.BaseDelay << (attempt - 1)
	if delay > cfg.MaxDelay || delay <= 0 { // <= 0 guards shift overflow
		delay = cfg.MaxDelay
	}
	if cfg.Jitter > 0 {
		delay += time.Duration(rand.Int64N(int64(cfg.Jitter)))
	}
	if delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return delay
}
