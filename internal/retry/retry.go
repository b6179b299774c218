package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxRetries   int           // Retries after the initial attempt
	InitialDelay time.Duration // Initial delay before first retry
	MaxDelay     time.Duration // Maximum delay between retries
	Multiplier   float64       // Multiplier for exponential backoff
}

// DefaultRetryConfig returns a default retry configuration
// Pattern: 1s, 2s, 4s with jitter, capped at 30s
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int           `json:"attempts"`
	Success       bool          `json:"success"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"lastError,omitempty"`
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context, attempt int) error

// WithExponentialBackoff executes a function with exponential backoff retry
// logic. Only retryable failures (transient, timeout, rate limit) trigger
// another attempt; permanent failures return immediately. The context bounds
// the whole operation: when it expires mid-backoff the last error becomes the
// context error, which classifies as a timeout.
func WithExponentialBackoff(ctx context.Context, config *RetryConfig, fn RetryFunc) *RetryResult {
	logger := logging.FromContext(ctx)
	startTime := time.Now()

	result := &RetryResult{
		Attempts: 0,
		Success:  false,
	}

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		err := fn(ctx, attempt+1)
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(startTime)

			if attempt > 0 {
				logger.WithFields(map[string]interface{}{
					"attempts":      result.Attempts,
					"totalDuration": result.TotalDuration,
				}).Info("Operation succeeded after retry")
			}

			return result
		}

		result.LastError = err

		// Permanent failures are not worth another attempt
		if !scanerr.IsRetryable(err) {
			logger.WithFields(map[string]interface{}{
				"attempt": result.Attempts,
				"kind":    string(scanerr.KindOf(err)),
				"error":   err.Error(),
			}).Warn("Operation failed with non-retryable error")
			break
		}

		if attempt >= config.MaxRetries {
			logger.WithFields(map[string]interface{}{
				"attempts":      result.Attempts,
				"totalDuration": time.Since(startTime),
				"error":         err.Error(),
			}).Error("Operation failed after max retry attempts")
			break
		}

		// Check context cancellation
		if ctx.Err() != nil {
			logger.WithError(ctx.Err()).Warn("Retry cancelled due to context cancellation")
			result.LastError = ctx.Err()
			break
		}

		delay := calculateDelay(config, attempt+1)

		logger.WithFields(map[string]interface{}{
			"attempt":    result.Attempts,
			"maxRetries": config.MaxRetries,
			"delay":      delay.String(),
			"kind":       string(scanerr.KindOf(err)),
			"error":      err.Error(),
		}).Warn("Operation failed, retrying with exponential backoff")

		// Wait before retry
		select {
		case <-time.After(delay):
			// Continue to next attempt
		case <-ctx.Done():
			logger.WithError(ctx.Err()).Warn("Retry cancelled during backoff")
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			return result
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// calculateDelay calculates the delay before the given retry (1-based).
// The exponential delay is jittered into [delay/2, delay) so that concurrent
// jobs hammered by the same outage do not retry in lockstep.
func calculateDelay(config *RetryConfig, retry int) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(retry-1))

	// Cap at max delay
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	// Half fixed, half random
	return time.Duration(delay/2 + rand.Float64()*delay/2)
}

// WithRetry is a simpler retry function that uses default configuration
func WithRetry(ctx context.Context, fn RetryFunc) error {
	config := DefaultRetryConfig()
	result := WithExponentialBackoff(ctx, config, fn)

	if !result.Success {
		return fmt.Errorf("operation failed after %d attempts: %w", result.Attempts, result.LastError)
	}

	return nil
}

// RetryStats tracks statistics about retry operations
type RetryStats struct {
	TotalOperations int     `json:"totalOperations"`
	SuccessfulOps   int     `json:"successfulOps"`
	FailedOps       int     `json:"failedOps"`
	TotalRetries    int     `json:"totalRetries"`
	AverageAttempts float64 `json:"averageAttempts"`
}

// RetryStatsTracker tracks retry statistics across concurrent operations
type RetryStatsTracker struct {
	mu    sync.Mutex
	stats RetryStats
}

// NewRetryStatsTracker creates a new retry stats tracker
func NewRetryStatsTracker() *RetryStatsTracker {
	return &RetryStatsTracker{}
}

// RecordResult records the result of a retry operation
func (rst *RetryStatsTracker) RecordResult(result *RetryResult) {
	rst.mu.Lock()
	defer rst.mu.Unlock()

	rst.stats.TotalOperations++

	if result.Success {
		rst.stats.SuccessfulOps++
	} else {
		rst.stats.FailedOps++
	}

	if result.Attempts > 1 {
		rst.stats.TotalRetries += result.Attempts - 1
	}

	rst.stats.AverageAttempts = float64(rst.stats.TotalRetries+rst.stats.TotalOperations) / float64(rst.stats.TotalOperations)
}

// GetStats returns the current retry statistics
func (rst *RetryStatsTracker) GetStats() RetryStats {
	rst.mu.Lock()
	defer rst.mu.Unlock()
	return rst.stats
}

// Reset resets the retry statistics
func (rst *RetryStatsTracker) Reset() {
	rst.mu.Lock()
	defer rst.mu.Unlock()
	rst.stats = RetryStats{}
}
