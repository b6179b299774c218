package job

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultTrackerCapacity is how many finished jobs the tracker retains for
// status queries once they leave the active set.
const DefaultTrackerCapacity = 256

// Tracker indexes scan jobs by ID so status queries can find them while they
// run and for a while after they finish. Finished jobs are kept in a bounded
// FIFO window; the oldest is dropped when the window is full.
type Tracker struct {
	mu       sync.RWMutex
	active   map[uuid.UUID]*ScanJob
	retired  map[uuid.UUID]*ScanJob
	order    []uuid.UUID
	capacity int
}

// NewTracker creates a tracker retaining up to capacity finished jobs.
func NewTracker(capacity int) *Tracker {
	if capacity <= 0 {
		capacity = DefaultTrackerCapacity
	}
	return &Tracker{
		active:   make(map[uuid.UUID]*ScanJob),
		retired:  make(map[uuid.UUID]*ScanJob),
		capacity: capacity,
	}
}

// Add registers a job in the active set.
func (t *Tracker) Add(scanJob *ScanJob) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active[scanJob.ID] = scanJob
}

// Retire moves a job from the active set into the retention window,
// evicting the oldest retained job if the window is full.
func (t *Tracker) Retire(scanJob *ScanJob) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.active, scanJob.ID)

	if len(t.order) >= t.capacity {
		oldest := t.order[0]
		t.order = t.order[1:]
		delete(t.retired, oldest)
	}
	t.retired[scanJob.ID] = scanJob
	t.order = append(t.order, scanJob.ID)
}

// Get looks up a job by ID in the active set, then the retention window.
func (t *Tracker) Get(id uuid.UUID) (*ScanJob, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if scanJob, ok := t.active[id]; ok {
		return scanJob, true
	}
	scanJob, ok := t.retired[id]
	return scanJob, ok
}

// Counts returns the number of active and retained jobs.
func (t *Tracker) Counts() (active, retired int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.active), len(t.retired)
}
