package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

const (
	// DefaultTickInterval is how often the scheduler looks for due websites.
	DefaultTickInterval = time.Minute
	// DefaultDueBatchLimit caps how many due websites one tick may enqueue.
	DefaultDueBatchLimit = 100
)

// SchedulerConfig holds configuration for the periodic scheduler.
type SchedulerConfig struct {
	Pool          *Pool
	Store         Store
	TickInterval  time.Duration
	DueBatchLimit int
}

// SchedulerStatus describes the scheduler's current activity.
type SchedulerStatus struct {
	Running       bool          `json:"running"`
	TickInterval  time.Duration `json:"tickInterval"`
	LastTickTime  time.Time     `json:"lastTickTime"`
	Ticks         int64         `json:"ticks"`
	TotalEnqueued int64         `json:"totalEnqueued"`
}

// Scheduler periodically selects websites whose scans are due and submits
// them to the worker pool. Its cadence is independent of worker execution:
// a slow scan never delays the tick, and a full queue merely means the
// leftover websites stay due for the next tick.
type Scheduler struct {
	pool          *Pool
	store         Store
	tickInterval  time.Duration
	dueBatchLimit int

	mu            sync.RWMutex
	running       bool
	lastTickTime  time.Time
	ticks         int64
	totalEnqueued int64

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewScheduler creates a periodic scheduler.
func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	if cfg.Pool == nil {
		return nil, fmt.Errorf("pool cannot be nil")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	tickInterval := cfg.TickInterval
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	dueBatchLimit := cfg.DueBatchLimit
	if dueBatchLimit <= 0 {
		dueBatchLimit = DefaultDueBatchLimit
	}

	return &Scheduler{
		pool:          cfg.Pool,
		store:         cfg.Store,
		tickInterval:  tickInterval,
		dueBatchLimit: dueBatchLimit,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}, nil
}

// Start begins the tick loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.mu.Unlock()

	logging.FromContext(ctx).WithField("tick_interval", s.tickInterval.String()).Info("scheduler started")

	go s.tickLoop(ctx)
	return nil
}

// Stop halts the tick loop. The context bounds how long to wait for the
// loop to exit.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return nil
}

// tickLoop runs ticks on a fixed cadence until stopped.
func (s *Scheduler) tickLoop(ctx context.Context) {
	defer close(s.doneCh)

	logger := logging.FromContext(ctx)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("scheduler tick loop: context cancelled")
			return
		case <-s.stopCh:
			logger.Info("scheduler tick loop: stop signal received")
			return
		case <-ticker.C:
			enqueued, err := s.Tick(ctx)
			if err != nil {
				logger.ErrorWithErr("scheduler tick failed", err)
				continue
			}
			if enqueued > 0 {
				logger.WithField("enqueued", enqueued).Info("scheduler tick enqueued due websites")
			}
		}
	}
}

// Tick selects websites due before now and submits each to the pool. It
// returns how many jobs were enqueued. Websites already in flight are
// skipped; a full queue ends the tick early, leaving the remainder due for
// the next one.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	logger := logging.FromContext(ctx)

	now := time.Now().UTC()
	websites, err := s.store.ListWebsitesDueBefore(ctx, now, s.dueBatchLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to list due websites: %w", err)
	}

	enqueued := 0
	for _, website := range websites {
		_, err := s.pool.Submit(website, types.TriggerScheduled)
		switch {
		case err == nil:
			enqueued++
		case errors.Is(err, ErrAlreadyInFlight):
			// A previous scan of this website is still in flight.
			continue
		case errors.Is(err, ErrStopped):
			s.recordTick(now, enqueued)
			return enqueued, nil
		case scanerr.KindOf(err) == scanerr.KindBackpressure:
			logger.WithFields(map[string]interface{}{
				"enqueued": enqueued,
				"due":      len(websites),
			}).Warn("scan queue full, deferring remaining websites to next tick")
			s.recordTick(now, enqueued)
			return enqueued, nil
		default:
			logger.WithField("website_id", website.ID.String()).ErrorWithErr("failed to submit scan", err)
		}
	}

	s.recordTick(now, enqueued)
	return enqueued, nil
}

func (s *Scheduler) recordTick(at time.Time, enqueued int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTickTime = at
	s.ticks++
	s.totalEnqueued += int64(enqueued)
}

// Status returns the scheduler's current counters.
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SchedulerStatus{
		Running:       s.running,
		TickInterval:  s.tickInterval,
		LastTickTime:  s.lastTickTime,
		Ticks:         s.ticks,
		TotalEnqueued: s.totalEnqueued,
	}
}
