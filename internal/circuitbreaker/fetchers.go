package circuitbreaker

import (
	"context"
	"errors"

	"github.com/codeforpakistan/watchtower-api/internal/job"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// PerformanceFetcher wraps a performance source with breaker protection.
type PerformanceFetcher struct {
	inner   job.PerformanceFetcher
	breaker *Breaker
}

// WrapPerformance protects a performance fetcher with the given breaker.
func WrapPerformance(inner job.PerformanceFetcher, breaker *Breaker) *PerformanceFetcher {
	return &PerformanceFetcher{inner: inner, breaker: breaker}
}

// Fetch implements job.PerformanceFetcher.
func (f *PerformanceFetcher) Fetch(ctx context.Context, website *models.Website, strategy types.ScanStrategy) (*models.PerformanceMetrics, error) {
	var metrics *models.PerformanceMetrics

	err := f.breaker.Execute(ctx, func() error {
		var fetchErr error
		metrics, fetchErr = f.inner.Fetch(ctx, website, strategy)
		return fetchErr
	})
	if err != nil {
		return nil, mapBreakerError(f.breaker.Name(), err)
	}

	return metrics, nil
}

// AIFetcher wraps an AI source with breaker protection.
type AIFetcher struct {
	inner   job.AIFetcher
	breaker *Breaker
}

// WrapAI protects an AI fetcher with the given breaker.
func WrapAI(inner job.AIFetcher, breaker *Breaker) *AIFetcher {
	return &AIFetcher{inner: inner, breaker: breaker}
}

// Assess implements job.AIFetcher.
func (f *AIFetcher) Assess(ctx context.Context, website *models.Website) (*models.AIAssessment, error) {
	var assessment *models.AIAssessment

	err := f.breaker.Execute(ctx, func() error {
		var assessErr error
		assessment, assessErr = f.inner.Assess(ctx, website)
		return assessErr
	})
	if err != nil {
		return nil, mapBreakerError(f.breaker.Name(), err)
	}

	return assessment, nil
}

// mapBreakerError classifies breaker rejections as transient source
// failures: the provider may well recover by the next cadence, and the
// retry executor's backoff keeps in-process retries cheap against a
// locally rejected call.
func mapBreakerError(name string, err error) error {
	if errors.Is(err, ErrOpen) || errors.Is(err, ErrHalfOpenSaturated) {
		return scanerr.Transient(name, "circuit breaker rejected the call", err)
	}
	return err
}
