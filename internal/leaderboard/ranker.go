// Package leaderboard maintains the ranked view over each website's current
// report. The ranking is derived state: it can always be rebuilt from
// reports alone, and the incremental path is tested against the full
// rebuild as its correctness baseline.
package leaderboard

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// trendEpsilon is the composite delta below which a change counts as flat.
const trendEpsilon = 1e-9

// Source loads ranking snapshots from the report store.
type Source interface {
	// ListRankingSnapshots returns a snapshot for every rankable website.
	ListRankingSnapshots(ctx context.Context) ([]*models.RankingSnapshot, error)
	// RankingSnapshot returns the snapshot for one website, or nil if the
	// website is not rankable (missing, inactive, or never scanned).
	RankingSnapshot(ctx context.Context, websiteID uuid.UUID) (*models.RankingSnapshot, error)
}

// Cache receives the full ordered board after every recompute. A nil cache
// disables write-through.
type Cache interface {
	SaveLeaderboard(ctx context.Context, entries []*models.LeaderboardEntry) error
}

// Ranker holds the board in memory as an ordered slice plus a position
// index, so a single website's rescan reinserts one entry instead of
// re-sorting the whole table.
type Ranker struct {
	mu      sync.RWMutex
	entries []*models.LeaderboardEntry
	index   map[uuid.UUID]int
	source  Source
	cache   Cache
}

// NewRanker creates a ranker over the given source. cache may be nil.
func NewRanker(source Source, cache Cache) (*Ranker, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	return &Ranker{
		index:  make(map[uuid.UUID]int),
		source: source,
		cache:  cache,
	}, nil
}

// entryLess is the total order of the board: composite descending, ties
// broken by registration time ascending, then website ID. Two distinct
// websites never compare equal, so the ordering is deterministic.
func entryLess(a, b *models.LeaderboardEntry) bool {
	if a.Composite != b.Composite {
		return a.Composite > b.Composite
	}
	if !a.RegisteredAt.Equal(b.RegisteredAt) {
		return a.RegisteredAt.Before(b.RegisteredAt)
	}
	return bytes.Compare(a.WebsiteID[:], b.WebsiteID[:]) < 0
}

// buildEntry projects a snapshot into a board entry. It returns nil for
// snapshots without a current report.
func buildEntry(snapshot *models.RankingSnapshot) *models.LeaderboardEntry {
	if snapshot == nil || snapshot.Current == nil {
		return nil
	}

	report := snapshot.Current
	entry := &models.LeaderboardEntry{
		WebsiteID:    snapshot.Website.ID,
		Name:         snapshot.Website.Name,
		URL:          snapshot.Website.URL,
		Level:        snapshot.Website.Level,
		AgencyType:   snapshot.Website.AgencyType,
		Composite:    report.Composite,
		Dimensions:   report.Dimensions,
		Degraded:     report.Degraded,
		ShameWorthy:  report.ShameWorthy,
		LastScanned:  report.ScanTime,
		RegisteredAt: snapshot.Website.CreatedAt,
	}

	if snapshot.PreviousComposite != nil {
		delta := report.Composite - *snapshot.PreviousComposite
		entry.TrendDelta = &delta
		switch {
		case delta > trendEpsilon:
			entry.TrendDirection = types.TrendUp
		case delta < -trendEpsilon:
			entry.TrendDirection = types.TrendDown
		default:
			entry.TrendDirection = types.TrendFlat
		}
	}
	return entry
}

// Rebuild recomputes the whole board from the source with a full re-sort.
// It is both the cold-start path and the correctness baseline for Update.
func (r *Ranker) Rebuild(ctx context.Context) error {
	snapshots, err := r.source.ListRankingSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ranking snapshots: %w", err)
	}

	entries := make([]*models.LeaderboardEntry, 0, len(snapshots))
	for _, snapshot := range snapshots {
		if entry := buildEntry(snapshot); entry != nil {
			entries = append(entries, entry)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entryLess(entries[i], entries[j])
	})

	r.mu.Lock()
	r.entries = entries
	r.reindexLocked(0)
	r.mu.Unlock()

	r.writeThrough(ctx)
	return nil
}

// Update reinserts a single website's entry after a new report. The board
// stays sorted via one binary-searched insertion; no full re-sort happens.
func (r *Ranker) Update(ctx context.Context, websiteID uuid.UUID) error {
	snapshot, err := r.source.RankingSnapshot(ctx, websiteID)
	if err != nil {
		return fmt.Errorf("failed to load ranking snapshot: %w", err)
	}

	entry := buildEntry(snapshot)

	r.mu.Lock()
	from := r.removeLocked(websiteID)
	if entry != nil {
		at := r.insertLocked(entry)
		if at < from {
			from = at
		}
	}
	r.reindexLocked(from)
	r.mu.Unlock()

	r.writeThrough(ctx)
	return nil
}

// Remove drops a website from the board (deactivated or deleted sites).
func (r *Ranker) Remove(ctx context.Context, websiteID uuid.UUID) {
	r.mu.Lock()
	from := r.removeLocked(websiteID)
	r.reindexLocked(from)
	r.mu.Unlock()

	r.writeThrough(ctx)
}

// removeLocked deletes the website's entry if present and returns the index
// it occupied (len(entries) if absent). Callers hold r.mu.
func (r *Ranker) removeLocked(websiteID uuid.UUID) int {
	at, ok := r.index[websiteID]
	if !ok {
		return len(r.entries)
	}
	delete(r.index, websiteID)
	r.entries = append(r.entries[:at], r.entries[at+1:]...)
	return at
}

// insertLocked places the entry at its sorted position and returns that
// position. Callers hold r.mu.
func (r *Ranker) insertLocked(entry *models.LeaderboardEntry) int {
	at := sort.Search(len(r.entries), func(i int) bool {
		return entryLess(entry, r.entries[i])
	})
	r.entries = append(r.entries, nil)
	copy(r.entries[at+1:], r.entries[at:])
	r.entries[at] = entry
	return at
}

// reindexLocked refreshes ranks and index positions from the given offset.
// Callers hold r.mu.
func (r *Ranker) reindexLocked(from int) {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(r.entries); i++ {
		r.entries[i].Rank = i + 1
		r.index[r.entries[i].WebsiteID] = i
	}
}

// writeThrough pushes the current board to the cache, if one is configured.
func (r *Ranker) writeThrough(ctx context.Context) {
	if r.cache == nil {
		return
	}
	entries := r.Leaderboard(nil, 0)
	if err := r.cache.SaveLeaderboard(ctx, entries); err != nil {
		logging.FromContext(ctx).ErrorWithErr("leaderboard cache write failed", err)
	}
}

// Leaderboard returns the board, optionally filtered to one government
// level, capped at limit entries (0 means all). Ranks are the global
// positions, preserved across filtering.
func (r *Ranker) Leaderboard(level *types.GovernmentLevel, limit int) []*models.LeaderboardEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.LeaderboardEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if level != nil && entry.Level != *level {
			continue
		}
		clone := *entry
		result = append(result, &clone)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

// ShameWall returns the shame-worthy entries, worst composite first,
// optionally filtered by level and capped at limit (0 means all).
func (r *Ranker) ShameWall(level *types.GovernmentLevel, limit int) []*models.LeaderboardEntry {
	r.mu.RLock()
	shamed := make([]*models.LeaderboardEntry, 0)
	for _, entry := range r.entries {
		if !entry.ShameWorthy {
			continue
		}
		if level != nil && entry.Level != *level {
			continue
		}
		clone := *entry
		shamed = append(shamed, &clone)
	}
	r.mu.RUnlock()

	// The board is sorted best-first; the wall reads worst-first.
	for i, j := 0, len(shamed)-1; i < j; i, j = i+1, j-1 {
		shamed[i], shamed[j] = shamed[j], shamed[i]
	}
	if limit > 0 && len(shamed) > limit {
		shamed = shamed[:limit]
	}
	return shamed
}

// Entry returns one website's board entry, if ranked.
func (r *Ranker) Entry(websiteID uuid.UUID) (*models.LeaderboardEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	at, ok := r.index[websiteID]
	if !ok {
		return nil, false
	}
	clone := *r.entries[at]
	return &clone, true
}

// Len returns the number of ranked websites.
func (r *Ranker) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ReportPersisted lets the ranker consume worker pool notifications: every
// persisted report narrows the recompute to that one website.
func (r *Ranker) ReportPersisted(ctx context.Context, website *models.Website, _ *models.Report) {
	if err := r.Update(ctx, website.ID); err != nil {
		logging.FromContext(ctx).WithField("website_id", website.ID.String()).
			ErrorWithErr("scoped leaderboard update failed", err)
	}
}
