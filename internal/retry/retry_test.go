package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
)

// fastConfig keeps backoff delays negligible in tests.
func fastConfig(maxRetries int) *RetryConfig {
	return &RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		calls++
		return nil
	})

	if !result.Success {
		t.Fatal("expected success")
	}
	if result.Attempts != 1 || calls != 1 {
		t.Errorf("attempts = %d, calls = %d, want 1/1", result.Attempts, calls)
	}
}

func TestTransientFailuresThenSuccess(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		calls++
		if calls <= 2 {
			return scanerr.Transient("pagespeed", "upstream 503", nil)
		}
		return nil
	})

	if !result.Success {
		t.Fatalf("expected success after transient failures, got %v", result.LastError)
	}
	if result.Attempts != 3 {
		t.Errorf("attempts = %d, want 3", result.Attempts)
	}
}

func TestPermanentErrorStopsImmediately(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		calls++
		return scanerr.Permanent("pagespeed", "origin returned 404", nil)
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (permanent errors must not retry)", calls)
	}
	if scanerr.KindOf(result.LastError) != scanerr.KindPermanent {
		t.Errorf("last error kind = %v, want permanent", scanerr.KindOf(result.LastError))
	}
}

func TestRateLimitErrorRetries(t *testing.T) {
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(2), func(ctx context.Context, attempt int) error {
		calls++
		if calls == 1 {
			return scanerr.RateLimit("aiquality")
		}
		return nil
	})

	if !result.Success {
		t.Fatalf("expected success, got %v", result.LastError)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (rate limit errors retry like transients)", calls)
	}
}

func TestExhaustsRetryBudget(t *testing.T) {
	wantErr := scanerr.Transient("pagespeed", "upstream 502", nil)
	calls := 0
	result := WithExponentialBackoff(context.Background(), fastConfig(3), func(ctx context.Context, attempt int) error {
		calls++
		return wantErr
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (1 initial + 3 retries)", calls)
	}
	if !errors.Is(result.LastError, wantErr) {
		t.Errorf("last error = %v, want the final attempt's error", result.LastError)
	}
}

func TestZeroRetriesMeansSingleAttempt(t *testing.T) {
	calls := 0
	WithExponentialBackoff(context.Background(), fastConfig(0), func(ctx context.Context, attempt int) error {
		calls++
		return scanerr.Transient("pagespeed", "flaky", nil)
	})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDeadlineStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	config := &RetryConfig{
		MaxRetries:   10,
		InitialDelay: 50 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	result := WithExponentialBackoff(ctx, config, func(ctx context.Context, attempt int) error {
		return scanerr.Transient("pagespeed", "still down", nil)
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	if result.Attempts > 2 {
		t.Errorf("attempts = %d, deadline should have stopped retrying early", result.Attempts)
	}
	if scanerr.KindOf(result.LastError) != scanerr.KindTimeout {
		t.Errorf("last error kind = %v, want timeout when the overall deadline elapses",
			scanerr.KindOf(result.LastError))
	}
}

func TestCancellationDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	config := &RetryConfig{
		MaxRetries:   5,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	result := WithExponentialBackoff(ctx, config, func(ctx context.Context, attempt int) error {
		return scanerr.Transient("pagespeed", "still down", nil)
	})

	if result.Success {
		t.Fatal("expected failure")
	}
	if !errors.Is(result.LastError, context.Canceled) {
		t.Errorf("last error = %v, want context.Canceled", result.LastError)
	}
	if time.Since(start) > time.Second {
		t.Error("cancellation should interrupt the backoff wait")
	}
}

func TestCalculateDelayJitterBounds(t *testing.T) {
	config := &RetryConfig{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}

	tests := []struct {
		retry int
		base  time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
	}

	for _, tt := range tests {
		for i := 0; i < 50; i++ {
			d := calculateDelay(config, tt.retry)
			if d < tt.base/2 || d >= tt.base {
				t.Fatalf("retry %d: delay %v outside [%v, %v)", tt.retry, d, tt.base/2, tt.base)
			}
		}
	}
}

func TestCalculateDelayRespectsMax(t *testing.T) {
	config := &RetryConfig{
		MaxRetries:   10,
		InitialDelay: time.Second,
		MaxDelay:     4 * time.Second,
		Multiplier:   2.0,
	}

	for i := 0; i < 50; i++ {
		if d := calculateDelay(config, 8); d >= 4*time.Second {
			t.Fatalf("delay %v exceeds cap", d)
		}
	}
}

func TestWithRetryWrapsFinalError(t *testing.T) {
	base := scanerr.Permanent("pagespeed", "bad request", nil)
	err := WithRetry(context.Background(), func(ctx context.Context, attempt int) error {
		return base
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, base) {
		t.Errorf("wrapped error should preserve the cause, got %v", err)
	}
}

func TestRetryStatsTracker(t *testing.T) {
	tracker := NewRetryStatsTracker()

	tracker.RecordResult(&RetryResult{Attempts: 1, Success: true})
	tracker.RecordResult(&RetryResult{Attempts: 3, Success: true})
	tracker.RecordResult(&RetryResult{Attempts: 4, Success: false})

	stats := tracker.GetStats()
	if stats.TotalOperations != 3 {
		t.Errorf("TotalOperations = %d, want 3", stats.TotalOperations)
	}
	if stats.SuccessfulOps != 2 || stats.FailedOps != 1 {
		t.Errorf("ops = %d/%d, want 2/1", stats.SuccessfulOps, stats.FailedOps)
	}
	if stats.TotalRetries != 5 {
		t.Errorf("TotalRetries = %d, want 5", stats.TotalRetries)
	}

	tracker.Reset()
	if tracker.GetStats().TotalOperations != 0 {
		t.Error("Reset should clear stats")
	}
}
