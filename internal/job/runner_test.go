package job

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/retry"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
	"github.com/codeforpakistan/watchtower-api/internal/score"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

type fakePerformance func(ctx context.Context) (*models.PerformanceMetrics, error)

func (f fakePerformance) Fetch(ctx context.Context, _ *models.Website, _ types.ScanStrategy) (*models.PerformanceMetrics, error) {
	return f(ctx)
}

type fakeAI func(ctx context.Context) (*models.AIAssessment, error)

func (f fakeAI) Assess(ctx context.Context, _ *models.Website) (*models.AIAssessment, error) {
	return f(ctx)
}

func goodMetrics() *models.PerformanceMetrics {
	return &models.PerformanceMetrics{Score: 80}
}

func goodAssessment() *models.AIAssessment {
	return &models.AIAssessment{Accessibility: 90, Design: 70, Usability: 80, Content: 60}
}

func newTestRunner(t *testing.T, perf PerformanceFetcher, ai AIFetcher) *Runner {
	t.Helper()

	aggregator, err := score.NewAggregator(score.DefaultWeights(), score.DefaultShamePolicy())
	if err != nil {
		t.Fatalf("NewAggregator() error = %v", err)
	}

	runner, err := NewRunner(&RunnerConfig{
		Performance: perf,
		AI:          ai,
		Aggregator:  aggregator,
		Retry: &retry.RetryConfig{
			MaxRetries:   2,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2.0,
		},
		JobDeadline: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}
	return runner
}

func TestRunBothSourcesSucceed(t *testing.T) {
	runner := newTestRunner(t,
		fakePerformance(func(ctx context.Context) (*models.PerformanceMetrics, error) {
			return goodMetrics(), nil
		}),
		fakeAI(func(ctx context.Context) (*models.AIAssessment, error) {
			return goodAssessment(), nil
		}),
	)

	scanJob := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)
	outcome, err := runner.Run(context.Background(), scanJob)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcome.State != types.JobCompleted {
		t.Fatalf("outcome state = %v, want completed", outcome.State)
	}
	if outcome.Report == nil {
		t.Fatal("completed scan with data should produce a report")
	}
	if outcome.Failure != nil {
		t.Error("completed scan should not produce a failure record")
	}
	if outcome.Report.Composite != 77.0 {
		t.Errorf("Composite = %v, want 77.0", outcome.Report.Composite)
	}
	if outcome.Report.Degraded {
		t.Error("both sources present, report must not be degraded")
	}
	// The terminal transition belongs to the scheduler, after persistence.
	if scanJob.State() != types.JobAggregating {
		t.Errorf("job state = %v, want aggregating until the verdict is persisted", scanJob.State())
	}
	if err := scanJob.Settle(types.JobCompleted, nil); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if scanJob.State() != types.JobCompleted {
		t.Errorf("job state = %v, want completed after settling", scanJob.State())
	}

	status := scanJob.Snapshot()
	if status.Performance.State != types.SourceDone || status.AI.State != types.SourceDone {
		t.Errorf("source states = %v/%v, want done/done", status.Performance.State, status.AI.State)
	}
}

func TestRunPerformanceErrorDegradesReport(t *testing.T) {
	runner := newTestRunner(t,
		fakePerformance(func(ctx context.Context) (*models.PerformanceMetrics, error) {
			return nil, scanerr.Permanent("pagespeed", "quota exhausted", nil)
		}),
		fakeAI(func(ctx context.Context) (*models.AIAssessment, error) {
			return goodAssessment(), nil
		}),
	)

	scanJob := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)
	outcome, err := runner.Run(context.Background(), scanJob)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcome.State != types.JobCompleted {
		t.Fatalf("outcome state = %v, want completed despite one source failing", outcome.State)
	}
	if outcome.Report == nil {
		t.Fatal("one healthy source should still produce a report")
	}
	if !outcome.Report.Degraded {
		t.Error("single-source report must be marked degraded")
	}
	if outcome.Report.Composite != 75.0 {
		t.Errorf("Composite = %v, want the AI-composite 75.0", outcome.Report.Composite)
	}

	status := scanJob.Snapshot()
	if status.Performance.State != types.SourceError {
		t.Errorf("performance source state = %v, want error", status.Performance.State)
	}
	if status.Performance.ErrorKind != "permanent" {
		t.Errorf("performance error kind = %q, want permanent", status.Performance.ErrorKind)
	}
}

func TestRunBothSourcesFail(t *testing.T) {
	runner := newTestRunner(t,
		fakePerformance(func(ctx context.Context) (*models.PerformanceMetrics, error) {
			return nil, scanerr.Permanent("pagespeed", "bad request", nil)
		}),
		fakeAI(func(ctx context.Context) (*models.AIAssessment, error) {
			return nil, scanerr.Permanent("aiquality", "invalid model", nil)
		}),
	)

	scanJob := NewScanJob(testWebsite(), types.TriggerManual, types.StrategyMobile)
	outcome, err := runner.Run(context.Background(), scanJob)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcome.State != types.JobFailed {
		t.Fatalf("outcome state = %v, want failed when both sources error", outcome.State)
	}
	if outcome.Report != nil {
		t.Error("failed scan must not produce a report")
	}
	if outcome.Failure == nil {
		t.Fatal("failed scan must produce a failure record")
	}
	if outcome.Failure.PerformanceErrorKind != "permanent" || outcome.Failure.AIErrorKind != "permanent" {
		t.Errorf("failure kinds = %q/%q, want permanent/permanent",
			outcome.Failure.PerformanceErrorKind, outcome.Failure.AIErrorKind)
	}
	if outcome.Failure.WebsiteID != scanJob.Website.ID {
		t.Errorf("failure website = %v, want %v", outcome.Failure.WebsiteID, scanJob.Website.ID)
	}

	status := scanJob.Snapshot()
	if status.Error == nil {
		t.Error("failed job snapshot should carry a terminal error")
	}
}

func TestRunAllSourcesAbsent(t *testing.T) {
	runner := newTestRunner(t,
		fakePerformance(func(ctx context.Context) (*models.PerformanceMetrics, error) {
			return nil, nil
		}),
		fakeAI(func(ctx context.Context) (*models.AIAssessment, error) {
			return nil, nil
		}),
	)

	scanJob := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)
	outcome, err := runner.Run(context.Background(), scanJob)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcome.State != types.JobCompleted {
		t.Fatalf("outcome state = %v, want completed when sources are merely absent", outcome.State)
	}
	if outcome.Report != nil {
		t.Error("no data means no report")
	}
	if outcome.Failure != nil {
		t.Error("absent sources are not failures")
	}

	status := scanJob.Snapshot()
	if status.Performance.State != types.SourceAbsent || status.AI.State != types.SourceAbsent {
		t.Errorf("source states = %v/%v, want absent/absent", status.Performance.State, status.AI.State)
	}
}

func TestRunErrorPlusAbsentCompletesWithoutData(t *testing.T) {
	runner := newTestRunner(t,
		fakePerformance(func(ctx context.Context) (*models.PerformanceMetrics, error) {
			return nil, scanerr.Permanent("pagespeed", "bad request", nil)
		}),
		fakeAI(func(ctx context.Context) (*models.AIAssessment, error) {
			return nil, nil
		}),
	)

	scanJob := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)
	outcome, err := runner.Run(context.Background(), scanJob)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// One error plus one absent source is not a failure: failed requires
	// both sources to error.
	if outcome.State != types.JobCompleted {
		t.Fatalf("outcome state = %v, want completed", outcome.State)
	}
	if outcome.Report != nil || outcome.Failure != nil {
		t.Error("error+absent scan should persist neither report nor failure")
	}
}

func TestRunRetriesTransientSourceErrors(t *testing.T) {
	var calls int32
	runner := newTestRunner(t,
		fakePerformance(func(ctx context.Context) (*models.PerformanceMetrics, error) {
			if atomic.AddInt32(&calls, 1) <= 2 {
				return nil, scanerr.Transient("pagespeed", "upstream 503", nil)
			}
			return goodMetrics(), nil
		}),
		fakeAI(func(ctx context.Context) (*models.AIAssessment, error) {
			return goodAssessment(), nil
		}),
	)

	scanJob := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)
	outcome, err := runner.Run(context.Background(), scanJob)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("performance fetch calls = %d, want 3 (two transient failures, then success)", got)
	}
	if outcome.State != types.JobCompleted {
		t.Fatalf("outcome state = %v, want completed", outcome.State)
	}
	if outcome.Report == nil || outcome.Report.Degraded {
		t.Error("recovered source should yield a full, non-degraded report")
	}
}

func TestRunSourcesExecuteConcurrently(t *testing.T) {
	perfArrived := make(chan struct{})
	aiArrived := make(chan struct{})

	rendezvous := func(mine chan<- struct{}, other <-chan struct{}) error {
		mine <- struct{}{}
		select {
		case <-other:
			return nil
		case <-time.After(2 * time.Second):
			return scanerr.Timeout("test", "peer source never started", nil)
		}
	}

	runner := newTestRunner(t,
		fakePerformance(func(ctx context.Context) (*models.PerformanceMetrics, error) {
			if err := rendezvous(perfArrived, aiArrived); err != nil {
				return nil, err
			}
			return goodMetrics(), nil
		}),
		fakeAI(func(ctx context.Context) (*models.AIAssessment, error) {
			if err := rendezvous(aiArrived, perfArrived); err != nil {
				return nil, err
			}
			return goodAssessment(), nil
		}),
	)

	scanJob := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)
	outcome, err := runner.Run(context.Background(), scanJob)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The rendezvous only resolves if both sources were in flight at once.
	if outcome.State != types.JobCompleted || outcome.Report == nil {
		t.Fatalf("outcome = %+v, want completed with report", outcome)
	}
	if outcome.Report.Degraded {
		t.Error("both sources rendezvoused, report must not be degraded")
	}
}

func TestRunCancellationLeavesNothingToPersist(t *testing.T) {
	block := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	runner := newTestRunner(t,
		fakePerformance(func(ctx context.Context) (*models.PerformanceMetrics, error) {
			return nil, block(ctx)
		}),
		fakeAI(func(ctx context.Context) (*models.AIAssessment, error) {
			return nil, block(ctx)
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	scanJob := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)
	outcome, err := runner.Run(ctx, scanJob)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if outcome.State != types.JobCancelled {
		t.Fatalf("outcome state = %v, want cancelled", outcome.State)
	}
	if outcome.Report != nil || outcome.Failure != nil {
		t.Error("cancelled scan must persist neither report nor failure")
	}
	if scanJob.State() != types.JobCancelled {
		t.Errorf("job state = %v, want cancelled", scanJob.State())
	}
}

func TestRunJobDeadlineFailsTheJob(t *testing.T) {
	block := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	aggregator, err := score.NewAggregator(score.DefaultWeights(), score.DefaultShamePolicy())
	if err != nil {
		t.Fatalf("NewAggregator() error = %v", err)
	}
	runner, err := NewRunner(&RunnerConfig{
		Performance: fakePerformance(func(ctx context.Context) (*models.PerformanceMetrics, error) {
			return nil, block(ctx)
		}),
		AI: fakeAI(func(ctx context.Context) (*models.AIAssessment, error) {
			return nil, block(ctx)
		}),
		Aggregator: aggregator,
		Retry: &retry.RetryConfig{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2.0,
		},
		JobDeadline: 30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	scanJob := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)
	outcome, err := runner.Run(context.Background(), scanJob)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The deadline elapsing is the job's own failure, not a shutdown: both
	// sources report timeouts and the job fails rather than cancels.
	if outcome.State != types.JobFailed {
		t.Fatalf("outcome state = %v, want failed on job deadline", outcome.State)
	}
	if outcome.Failure == nil {
		t.Fatal("deadline failure must produce a failure record")
	}
	if outcome.Failure.PerformanceErrorKind != "timeout" {
		t.Errorf("performance error kind = %q, want timeout", outcome.Failure.PerformanceErrorKind)
	}
}

func TestNewRunnerValidation(t *testing.T) {
	aggregator, err := score.NewAggregator(score.DefaultWeights(), score.DefaultShamePolicy())
	if err != nil {
		t.Fatalf("NewAggregator() error = %v", err)
	}

	perf := fakePerformance(func(ctx context.Context) (*models.PerformanceMetrics, error) { return nil, nil })
	ai := fakeAI(func(ctx context.Context) (*models.AIAssessment, error) { return nil, nil })

	if _, err := NewRunner(&RunnerConfig{AI: ai, Aggregator: aggregator}); err == nil {
		t.Error("NewRunner should reject a nil performance fetcher")
	}
	if _, err := NewRunner(&RunnerConfig{Performance: perf, Aggregator: aggregator}); err == nil {
		t.Error("NewRunner should reject a nil AI fetcher")
	}
	if _, err := NewRunner(&RunnerConfig{Performance: perf, AI: ai}); err == nil {
		t.Error("NewRunner should reject a nil aggregator")
	}
}
