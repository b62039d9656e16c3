package storage

import (
	"context"
	"time"

	"github.com/iconidentify/dlab/internal/config"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryConfig returns sensible defaults for retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
	}
}

// RetryFromConfig builds a RetryConfig from the download settings. A
// non-positive retry count still yields one attempt.
func RetryFromConfig(cfg config.DownloadConfig) RetryConfig {
	attempts := cfg.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	return RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  cfg.RetryDelay,
		MaxDelay:      cfg.MaxRetryDelay,
		BackoffFactor: 2.0,
	}
}

// Retry executes a function with exponential backoff retry logic.
func Retry[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T

	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		// Don't wait after the last attempt
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		// Wait with exponential backoff
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}

		// Increase delay for next attempt
		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return zero, lastErr
}
