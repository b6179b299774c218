package scheduler

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

func newTestScheduler(t *testing.T, pool *Pool, store Store, mutate func(*SchedulerConfig)) *Scheduler {
	t.Helper()

	cfg := &SchedulerConfig{
		Pool:          pool,
		Store:         store,
		TickInterval:  time.Hour, // ticks are driven manually unless a test starts the loop
		DueBatchLimit: 50,
	}
	if mutate != nil {
		mutate(cfg)
	}
	scheduler, err := NewScheduler(cfg)
	require.NoError(t, err)
	return scheduler
}

func TestTickEnqueuesDueWebsites(t *testing.T) {
	websites := []*models.Website{newWebsite("health"), newWebsite("education"), newWebsite("railways")}
	store := newMemStore(websites...)
	pool := newTestPool(t, store, healthyPerf(), healthyAI(), nil)
	scheduler := newTestScheduler(t, pool, store, nil)

	enqueued, err := scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, enqueued)

	// Every scan settles and advances next_scan_at past the cadence window.
	require.Eventually(t, func() bool {
		for _, website := range websites {
			if _, ok := store.record(website.ID); !ok {
				return false
			}
		}
		return true
	}, 5*time.Second, 5*time.Millisecond)

	// Nothing is due anymore, so the next tick enqueues nothing.
	enqueued, err = scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.Zero(t, enqueued)

	status := scheduler.Status()
	require.Equal(t, int64(2), status.Ticks)
	require.Equal(t, int64(3), status.TotalEnqueued)
}

func TestTickSkipsWebsitesAlreadyInFlight(t *testing.T) {
	website := newWebsite("cabinet")
	store := newMemStore(website)

	gate := make(chan struct{})
	started := make(chan struct{}, 4)
	blockingPerf := perfFunc(func(ctx context.Context) (*models.PerformanceMetrics, error) {
		started <- struct{}{}
		select {
		case <-gate:
			return &models.PerformanceMetrics{Score: 80}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	pool := newTestPool(t, store, blockingPerf, healthyAI(), nil)
	scheduler := newTestScheduler(t, pool, store, nil)

	enqueued, err := scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, enqueued)
	<-started

	// The website is still in flight and still "due" in the store, but the
	// guard keeps the tick from double-scanning it.
	enqueued, err = scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.Zero(t, enqueued)

	close(gate)
}

func TestTickDefersRemainderOnBackpressure(t *testing.T) {
	due := make([]*models.Website, 0, 6)
	for i := 0; i < 6; i++ {
		due = append(due, newWebsite(fmt.Sprintf("due-%d", i)))
	}
	store := newMemStore(due...)

	gate := make(chan struct{})
	started := make(chan struct{}, 8)
	blockingPerf := perfFunc(func(ctx context.Context) (*models.PerformanceMetrics, error) {
		started <- struct{}{}
		select {
		case <-gate:
			return &models.PerformanceMetrics{Score: 80}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	pool := newTestPool(t, store, blockingPerf, healthyAI(), func(cfg *PoolConfig) {
		cfg.Workers = 1
		cfg.QueueCapacity = 1
	})
	scheduler := newTestScheduler(t, pool, store, nil)

	// Occupy the single worker before ticking so queue arithmetic is exact.
	blocker := newWebsite("blocker")
	_, err := pool.Submit(blocker, types.TriggerManual)
	require.NoError(t, err)
	<-started

	// One queue slot: the tick accepts one website, hits backpressure on
	// the second, and defers the rest without error.
	enqueued, err := scheduler.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, enqueued)
	require.GreaterOrEqual(t, pool.Stats().Rejected, int64(1))

	close(gate)
}

func TestTickPropagatesListErrors(t *testing.T) {
	store := newMemStore()
	store.listErr = fmt.Errorf("database offline")

	pool := newTestPool(t, store, healthyPerf(), healthyAI(), nil)
	scheduler := newTestScheduler(t, pool, store, nil)

	_, err := scheduler.Tick(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "database offline")
}

func TestSchedulerTickLoop(t *testing.T) {
	websites := []*models.Website{newWebsite("loop-a"), newWebsite("loop-b")}
	store := newMemStore(websites...)
	pool := newTestPool(t, store, healthyPerf(), healthyAI(), nil)
	scheduler := newTestScheduler(t, pool, store, func(cfg *SchedulerConfig) {
		cfg.TickInterval = 20 * time.Millisecond
	})

	require.NoError(t, scheduler.Start(context.Background()))
	require.Error(t, scheduler.Start(context.Background()), "double start must be rejected")

	require.Eventually(t, func() bool {
		for _, website := range websites {
			if _, ok := store.record(website.ID); !ok {
				return false
			}
		}
		return true
	}, 5*time.Second, 5*time.Millisecond, "tick loop never scanned the due websites")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, scheduler.Stop(ctx))

	status := scheduler.Status()
	require.False(t, status.Running)
	require.GreaterOrEqual(t, status.Ticks, int64(1))
}

func TestSchedulerValidation(t *testing.T) {
	store := newMemStore()
	pool := newTestPool(t, store, healthyPerf(), healthyAI(), nil)

	_, err := NewScheduler(&SchedulerConfig{Store: store})
	require.Error(t, err, "nil pool must be rejected")

	_, err = NewScheduler(&SchedulerConfig{Pool: pool})
	require.Error(t, err, "nil store must be rejected")

	scheduler := newTestScheduler(t, pool, store, nil)
	require.Error(t, scheduler.Stop(context.Background()), "stopping a never-started scheduler must fail")
}
