package job

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/retry"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
	"github.com/codeforpakistan/watchtower-api/internal/score"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// PerformanceFetcher measures a website's performance. A (nil, nil) return
// means the source is absent for this scan, not an error.
type PerformanceFetcher interface {
	Fetch(ctx context.Context, website *models.Website, strategy types.ScanStrategy) (*models.PerformanceMetrics, error)
}

// AIFetcher assesses a website's quality dimensions. A (nil, nil) return
// means the source is absent for this scan, not an error.
type AIFetcher interface {
	Assess(ctx context.Context, website *models.Website) (*models.AIAssessment, error)
}

// Outcome is the runner's settlement verdict for a job. State is the
// terminal state the job has earned; Report or Failure is the artifact to
// persist before the scheduler applies that state (completed means produced
// AND persisted, so the runner leaves the job in aggregating). Cancelled
// jobs carry no artifact and are already in their terminal state.
type Outcome struct {
	State   types.JobState
	Report  *models.Report
	Failure *models.ScanFailure
}

// RunnerConfig holds configuration for a job runner.
type RunnerConfig struct {
	Performance PerformanceFetcher
	AI          AIFetcher
	Aggregator  *score.Aggregator
	Retry       *retry.RetryConfig
	JobDeadline time.Duration
}

// Runner executes scan jobs: it calls both sources concurrently, retries
// transient source errors, and aggregates whatever the sources produced.
type Runner struct {
	performance PerformanceFetcher
	ai          AIFetcher
	aggregator  *score.Aggregator
	retryConfig *retry.RetryConfig
	jobDeadline time.Duration
}

// NewRunner creates a job runner.
func NewRunner(cfg *RunnerConfig) (*Runner, error) {
	if cfg.Performance == nil {
		return nil, fmt.Errorf("performance fetcher cannot be nil")
	}
	if cfg.AI == nil {
		return nil, fmt.Errorf("AI fetcher cannot be nil")
	}
	if cfg.Aggregator == nil {
		return nil, fmt.Errorf("aggregator cannot be nil")
	}

	retryConfig := cfg.Retry
	if retryConfig == nil {
		retryConfig = retry.DefaultRetryConfig()
	}

	jobDeadline := cfg.JobDeadline
	if jobDeadline <= 0 {
		jobDeadline = 3 * time.Minute
	}

	return &Runner{
		performance: cfg.Performance,
		ai:          cfg.AI,
		aggregator:  cfg.Aggregator,
		retryConfig: retryConfig,
		jobDeadline: jobDeadline,
	}, nil
}

// Run executes a single job through aggregation and returns its settlement
// verdict. Source failures are absorbed into the verdict: a job fails only
// when both sources errored, and it is cancelled only when ctx is done
// before aggregation.
func (r *Runner) Run(ctx context.Context, scanJob *ScanJob) (*Outcome, error) {
	logger := logging.FromContext(ctx).WithScan(
		scanJob.ID.String(), scanJob.Website.ID.String(), scanJob.Website.URL)

	if err := scanJob.transition(types.JobRunning); err != nil {
		return nil, err
	}
	logger.WithField("trigger", string(scanJob.Trigger)).Info("scan started")

	jobCtx, cancel := context.WithTimeout(ctx, r.jobDeadline)
	defer cancel()

	var (
		wg      sync.WaitGroup
		metrics *models.PerformanceMetrics
		ai      *models.AIAssessment
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		metrics = r.fetchPerformance(jobCtx, scanJob)
	}()
	go func() {
		defer wg.Done()
		ai = r.fetchAI(jobCtx, scanJob)
	}()
	wg.Wait()

	// Cancellation boundary: if the scheduler shut down while the sources
	// were in flight, the job ends cancelled and nothing is persisted.
	if ctx.Err() != nil {
		scanJob.Cancel()
		logger.Warn("scan cancelled before aggregation")
		return &Outcome{State: types.JobCancelled}, nil
	}

	if err := scanJob.transition(types.JobAggregating); err != nil {
		return nil, err
	}

	return r.aggregate(scanJob, metrics, ai, logger)
}

// fetchPerformance runs the performance source with retries and records its
// outcome on the job. It returns nil when the source errored or is absent.
func (r *Runner) fetchPerformance(ctx context.Context, scanJob *ScanJob) *models.PerformanceMetrics {
	var metrics *models.PerformanceMetrics
	result := retry.WithExponentialBackoff(ctx, r.retryConfig, func(ctx context.Context, attempt int) error {
		m, err := r.performance.Fetch(ctx, scanJob.Website, scanJob.Strategy)
		if err != nil {
			return err
		}
		metrics = m
		return nil
	})

	if !result.Success {
		scanJob.setPerformanceOutcome(SourceOutcome{State: types.SourceError, Err: result.LastError})
		return nil
	}
	if metrics == nil {
		scanJob.setPerformanceOutcome(SourceOutcome{State: types.SourceAbsent})
		return nil
	}
	scanJob.setPerformanceOutcome(SourceOutcome{State: types.SourceDone})
	return metrics
}

// fetchAI runs the AI quality source with retries and records its outcome on
// the job. It returns nil when the source errored or is absent.
func (r *Runner) fetchAI(ctx context.Context, scanJob *ScanJob) *models.AIAssessment {
	var assessment *models.AIAssessment
	result := retry.WithExponentialBackoff(ctx, r.retryConfig, func(ctx context.Context, attempt int) error {
		a, err := r.ai.Assess(ctx, scanJob.Website)
		if err != nil {
			return err
		}
		assessment = a
		return nil
	})

	if !result.Success {
		scanJob.setAIOutcome(SourceOutcome{State: types.SourceError, Err: result.LastError})
		return nil
	}
	if assessment == nil {
		scanJob.setAIOutcome(SourceOutcome{State: types.SourceAbsent})
		return nil
	}
	scanJob.setAIOutcome(SourceOutcome{State: types.SourceDone})
	return assessment
}

// aggregate derives the settlement verdict from the two sub-results. The
// job is left in aggregating; the scheduler applies the terminal transition
// once the verdict's artifact is persisted.
func (r *Runner) aggregate(scanJob *ScanJob, metrics *models.PerformanceMetrics, ai *models.AIAssessment, logger *logging.Logger) (*Outcome, error) {
	perfOutcome, aiOutcome := scanJob.sourceOutcomes()

	// A job fails only when both sources errored. An absent source never
	// fails a job on its own.
	if perfOutcome.State == types.SourceError && aiOutcome.State == types.SourceError {
		failure := r.buildFailure(scanJob, perfOutcome, aiOutcome)
		scanJob.setError(fmt.Errorf("both sources failed: performance: %v; ai: %v", perfOutcome.Err, aiOutcome.Err))
		logger.WithFields(map[string]interface{}{
			"performance_error": perfOutcome.Err.Error(),
			"ai_error":          aiOutcome.Err.Error(),
		}).Error("scan failed: no source produced data")
		return &Outcome{State: types.JobFailed, Failure: failure}, nil
	}

	aggregated, err := r.aggregator.Aggregate(metrics, ai)
	if err != nil {
		// Neither source produced data, but at least one finished absent
		// rather than in error. The job completes with nothing to persist.
		if scanerr.KindOf(err) == scanerr.KindNoData {
			logger.Warn("scan completed without data: all sources absent")
			return &Outcome{State: types.JobCompleted}, nil
		}
		return nil, err
	}

	report := r.buildReport(scanJob, metrics, ai, aggregated)
	scanJob.setReport(report)

	logger.WithFields(map[string]interface{}{
		"composite":    aggregated.Composite,
		"degraded":     aggregated.Degraded,
		"shame_worthy": aggregated.ShameWorthy,
	}).Info("scan completed")
	return &Outcome{State: types.JobCompleted, Report: report}, nil
}

// sourceOutcomes returns both sub-results under a single lock acquisition.
func (j *ScanJob) sourceOutcomes() (SourceOutcome, SourceOutcome) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.performance, j.ai
}

func (r *Runner) buildReport(scanJob *ScanJob, metrics *models.PerformanceMetrics, ai *models.AIAssessment, aggregated *score.Result) *models.Report {
	return &models.Report{
		ID:           uuid.New(),
		WebsiteID:    scanJob.Website.ID,
		ScanTime:     time.Now().UTC(),
		Strategy:     scanJob.Strategy,
		Trigger:      scanJob.Trigger,
		Performance:  metrics,
		AI:           ai,
		Composite:    aggregated.Composite,
		Dimensions:   aggregated.Dimensions,
		Degraded:     aggregated.Degraded,
		ShameWorthy:  aggregated.ShameWorthy,
		ShameReasons: aggregated.ShameReasons,
	}
}

func (r *Runner) buildFailure(scanJob *ScanJob, perfOutcome, aiOutcome SourceOutcome) *models.ScanFailure {
	perfMsg := perfOutcome.Err.Error()
	aiMsg := aiOutcome.Err.Error()
	return &models.ScanFailure{
		ID:                   uuid.New(),
		WebsiteID:            scanJob.Website.ID,
		OccurredAt:           time.Now().UTC(),
		Trigger:              scanJob.Trigger,
		PerformanceErrorKind: string(scanerr.KindOf(perfOutcome.Err)),
		PerformanceError:     &perfMsg,
		AIErrorKind:          string(scanerr.KindOf(aiOutcome.Err)),
		AIError:              &aiMsg,
	}
}
