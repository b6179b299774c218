// Package scheduler owns scan orchestration: the bounded worker pool that
// executes scan jobs, the per-website in-flight guard, and the periodic tick
// that enqueues websites whose scans are due.
package scheduler

import (
	"sync"

	"github.com/google/uuid"
)

// InflightGuard enforces at most one scan job per website at a time, from
// the moment the job is enqueued until it settles. It is mutual exclusion,
// not advisory: two workers can never hold the same website simultaneously.
type InflightGuard struct {
	mu       sync.Mutex
	inflight map[uuid.UUID]struct{}
}

// NewInflightGuard creates an empty guard.
func NewInflightGuard() *InflightGuard {
	return &InflightGuard{
		inflight: make(map[uuid.UUID]struct{}),
	}
}

// TryAcquire claims the website if no scan holds it, reporting whether the
// claim succeeded. It never blocks.
func (g *InflightGuard) TryAcquire(websiteID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.inflight[websiteID]; held {
		return false
	}
	g.inflight[websiteID] = struct{}{}
	return true
}

// Release frees the website for future scans. Releasing an unheld website is
// a no-op.
func (g *InflightGuard) Release(websiteID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, websiteID)
}

// Held reports whether a scan currently holds the website.
func (g *InflightGuard) Held(websiteID uuid.UUID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.inflight[websiteID]
	return held
}

// Count returns the number of websites with a scan in flight.
func (g *InflightGuard) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.inflight)
}
