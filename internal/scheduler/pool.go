package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/job"
	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

const (
	// DefaultWorkers is the fixed worker pool size.
	DefaultWorkers = 5
	// DefaultQueueCapacity bounds the shared job queue.
	DefaultQueueCapacity = 32
	// DefaultPersistTimeout bounds the post-scan persistence step so a slow
	// store cannot wedge a worker indefinitely.
	DefaultPersistTimeout = 15 * time.Second
	// DefaultCadence is how long after a completed scan a website becomes
	// due again.
	DefaultCadence = 24 * time.Hour
	// DefaultFailedRetryCadence reschedules a failed website sooner than the
	// normal cadence, without retrying it every tick.
	DefaultFailedRetryCadence = 4 * time.Hour
)

var (
	// ErrAlreadyInFlight is returned when a scan for the website is already
	// enqueued or running.
	ErrAlreadyInFlight = errors.New("a scan for this website is already in flight")
	// ErrStopped is returned when jobs are submitted after shutdown began.
	ErrStopped = errors.New("worker pool is stopped")
)

// Store is the persistence surface the scheduler consumes. Writes are
// atomic per entity; no cross-entity transaction is assumed.
type Store interface {
	ListWebsitesDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Website, error)
	SaveReport(ctx context.Context, report *models.Report) error
	SaveFailure(ctx context.Context, failure *models.ScanFailure) error
	UpdateLastScanned(ctx context.Context, websiteID uuid.UUID, scannedAt, nextScanAt time.Time) error
}

// ReportObserver is notified after a report has been durably persisted.
// Observers feed derived views (rankings, score history); their errors never
// affect the job's terminal state.
type ReportObserver interface {
	ReportPersisted(ctx context.Context, website *models.Website, report *models.Report)
}

// PoolConfig holds configuration for a worker pool.
type PoolConfig struct {
	Workers            int
	QueueCapacity      int
	Store              Store
	Runner             *job.Runner
	Tracker            *job.Tracker
	Guard              *InflightGuard
	Strategy           types.ScanStrategy
	Cadence            time.Duration
	FailedRetryCadence time.Duration
	PersistTimeout     time.Duration
	Observers          []ReportObserver
}

// PoolStats is a point-in-time view of pool activity.
type PoolStats struct {
	Workers       int   `json:"workers"`
	QueueDepth    int   `json:"queueDepth"`
	QueueCapacity int   `json:"queueCapacity"`
	InFlight      int   `json:"inFlight"`
	Submitted     int64 `json:"submitted"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Cancelled     int64 `json:"cancelled"`
	Rejected      int64 `json:"rejected"`
}

// Pool executes scan jobs on a fixed set of workers pulling from one
// bounded queue. Submission never blocks: a full queue yields backpressure
// to the caller instead of unbounded growth.
type Pool struct {
	workers            int
	queue              chan *job.ScanJob
	store              Store
	runner             *job.Runner
	tracker            *job.Tracker
	guard              *InflightGuard
	strategy           types.ScanStrategy
	cadence            time.Duration
	failedRetryCadence time.Duration
	persistTimeout     time.Duration
	observers          []ReportObserver

	mu      sync.RWMutex
	running bool
	stopped bool

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	logger    *logging.Logger

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	cancelled atomic.Int64
	rejected  atomic.Int64
}

// NewPool creates a worker pool.
func NewPool(cfg *PoolConfig) (*Pool, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	queueCapacity := cfg.QueueCapacity
	if queueCapacity <= 0 {
		queueCapacity = DefaultQueueCapacity
	}
	tracker := cfg.Tracker
	if tracker == nil {
		tracker = job.NewTracker(0)
	}
	guard := cfg.Guard
	if guard == nil {
		guard = NewInflightGuard()
	}
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = types.StrategyMobile
	}
	cadence := cfg.Cadence
	if cadence <= 0 {
		cadence = DefaultCadence
	}
	failedRetryCadence := cfg.FailedRetryCadence
	if failedRetryCadence <= 0 {
		failedRetryCadence = DefaultFailedRetryCadence
	}
	persistTimeout := cfg.PersistTimeout
	if persistTimeout <= 0 {
		persistTimeout = DefaultPersistTimeout
	}

	return &Pool{
		workers:            workers,
		queue:              make(chan *job.ScanJob, queueCapacity),
		store:              cfg.Store,
		runner:             cfg.Runner,
		tracker:            tracker,
		guard:              guard,
		strategy:           strategy,
		cadence:            cadence,
		failedRetryCadence: failedRetryCadence,
		persistTimeout:     persistTimeout,
		observers:          cfg.Observers,
	}, nil
}

// Tracker exposes the job tracker for status queries.
func (p *Pool) Tracker() *job.Tracker {
	return p.tracker
}

// Guard exposes the in-flight guard.
func (p *Pool) Guard() *InflightGuard {
	return p.guard
}

// Start launches the workers. The given context is the pool's run context:
// cancelling it propagates to every in-flight external call.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return fmt.Errorf("worker pool is already running")
	}
	if p.stopped {
		return ErrStopped
	}
	p.running = true
	p.runCtx, p.runCancel = context.WithCancel(ctx)
	p.logger = logging.FromContext(ctx)

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	p.logger.WithFields(map[string]interface{}{
		"workers":        p.workers,
		"queue_capacity": cap(p.queue),
	}).Info("worker pool started")
	return nil
}

// Submit enqueues a scan job for the website. It never blocks: a website
// already in flight yields ErrAlreadyInFlight, a full queue yields a
// backpressure error, and a pool that is not running yields ErrStopped.
// The returned job is the caller's status handle.
func (p *Pool) Submit(website *models.Website, trigger types.ScanTrigger) (*job.ScanJob, error) {
	if !p.guard.TryAcquire(website.ID) {
		return nil, ErrAlreadyInFlight
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped || !p.running {
		p.guard.Release(website.ID)
		return nil, ErrStopped
	}

	scanJob := job.NewScanJob(website, trigger, p.strategy)
	select {
	case p.queue <- scanJob:
		p.tracker.Add(scanJob)
		p.submitted.Add(1)
		return scanJob, nil
	default:
		p.guard.Release(website.ID)
		p.rejected.Add(1)
		return nil, scanerr.Backpressure(fmt.Sprintf("scan queue is full (capacity %d)", cap(p.queue)))
	}
}

// Stop shuts the pool down gracefully: no new submissions are accepted,
// in-flight external calls are cancelled, and every accepted job reaches a
// terminal state before Stop returns. The context bounds how long to wait.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("worker pool is not running")
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrStopped
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	p.logger.Info("worker pool stopping")
	p.runCancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopped")
	return nil
}

// Stats returns current pool counters.
func (p *Pool) Stats() PoolStats {
	active, _ := p.tracker.Counts()
	return PoolStats{
		Workers:       p.workers,
		QueueDepth:    len(p.queue),
		QueueCapacity: cap(p.queue),
		InFlight:      active,
		Submitted:     p.submitted.Load(),
		Completed:     p.completed.Load(),
		Failed:        p.failed.Load(),
		Cancelled:     p.cancelled.Load(),
		Rejected:      p.rejected.Load(),
	}
}

// worker pulls jobs until the queue is closed and drained.
func (p *Pool) worker(id int) {
	defer p.wg.Done()

	logger := p.logger.WithField("worker", id)
	for scanJob := range p.queue {
		p.execute(scanJob, logger)
	}
}

// execute runs one job to its terminal state and releases its guard.
func (p *Pool) execute(scanJob *job.ScanJob, logger *logging.Logger) {
	defer func() {
		p.guard.Release(scanJob.Website.ID)
		p.tracker.Retire(scanJob)
	}()

	// Jobs drained after shutdown began are cancelled without running.
	if p.runCtx.Err() != nil {
		scanJob.Cancel()
		p.cancelled.Add(1)
		return
	}

	ctx := logging.WithLogger(p.runCtx, logger)
	outcome, err := p.runner.Run(ctx, scanJob)
	if err != nil {
		logger.ErrorWithErr("scan job aborted", err)
		scanJob.Cancel()
		p.cancelled.Add(1)
		return
	}

	p.settle(scanJob, outcome, logger)
}

// settle persists the job's artifact and applies its terminal state. It
// runs on a fresh context so shutdown cannot tear a computed report away
// from the store mid-write.
func (p *Pool) settle(scanJob *job.ScanJob, outcome *job.Outcome, logger *logging.Logger) {
	if outcome.State == types.JobCancelled {
		p.cancelled.Add(1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.persistTimeout)
	defer cancel()
	ctx = logging.WithLogger(ctx, logger)

	state := outcome.State
	var settleErr error

	switch {
	case outcome.Report != nil:
		if err := p.retryOnce(ctx, func() error { return p.store.SaveReport(ctx, outcome.Report) }); err != nil {
			// The computed score must not vanish silently with the job.
			logger.WithFields(map[string]interface{}{
				"website_id": scanJob.Website.ID.String(),
				"composite":  outcome.Report.Composite,
				"degraded":   outcome.Report.Degraded,
			}).ErrorWithErr("report persistence failed twice, marking job failed", err)
			state = types.JobFailed
			settleErr = err
		}
	case outcome.Failure != nil:
		if err := p.retryOnce(ctx, func() error { return p.store.SaveFailure(ctx, outcome.Failure) }); err != nil {
			logger.ErrorWithErr("failure record persistence failed", err)
		}
	}

	if err := scanJob.Settle(state, settleErr); err != nil {
		logger.ErrorWithErr("job settlement failed", err)
		return
	}

	switch state {
	case types.JobCompleted:
		p.completed.Add(1)
	case types.JobFailed:
		p.failed.Add(1)
	}

	// last_scanned advances on every terminal scan, completed or failed, so
	// an unreachable website is not reselected every tick. Failed scans come
	// due again sooner than the website's normal cadence.
	scannedAt := time.Now().UTC()
	nextScanAt := scannedAt.Add(scanJob.Website.Cadence(p.cadence))
	if state == types.JobFailed {
		nextScanAt = scannedAt.Add(p.failedRetryCadence)
	}
	if err := p.retryOnce(ctx, func() error {
		return p.store.UpdateLastScanned(ctx, scanJob.Website.ID, scannedAt, nextScanAt)
	}); err != nil {
		logger.ErrorWithErr("last_scanned update failed", err)
	}

	if state == types.JobCompleted && outcome.Report != nil {
		for _, observer := range p.observers {
			observer.ReportPersisted(ctx, scanJob.Website, outcome.Report)
		}
	}
}

// retryOnce runs a persistence write, retrying exactly once immediately on
// failure.
func (p *Pool) retryOnce(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	return fn()
}
