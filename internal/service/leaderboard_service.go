package service

import (
	"context"
	"time"

	apperrors "github.com/codeforpakistan/watchtower-api/internal/errors"
	"github.com/codeforpakistan/watchtower-api/internal/leaderboard"
	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/storage"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// BoardSnapshotCache reads the last persisted board snapshot. Used only
// when the in-memory ranker is empty (for example a failed rebuild at
// startup), so readers get a stale board instead of nothing.
type BoardSnapshotCache interface {
	GetLeaderboard(ctx context.Context) (*storage.CachedLeaderboard, error)
}

// LeaderboardService serves the ranked board and the shame wall.
type LeaderboardService struct {
	ranker *leaderboard.Ranker
	cache  BoardSnapshotCache
}

// NewLeaderboardService creates a new leaderboard service. cache may be nil
// to disable the stale-snapshot fallback.
func NewLeaderboardService(ranker *leaderboard.Ranker, cache BoardSnapshotCache) *LeaderboardService {
	return &LeaderboardService{
		ranker: ranker,
		cache:  cache,
	}
}

// BoardQuery represents leaderboard and shame wall filters
type BoardQuery struct {
	Level *string `json:"level,omitempty"`
	Limit int     `json:"limit,omitempty"` // 0 means all
}

// BoardView represents a served board. Stale marks entries read from the
// cached snapshot rather than the live ranker.
type BoardView struct {
	Entries []*models.LeaderboardEntry `json:"entries"`
	Count   int                        `json:"count"`
	Stale   bool                       `json:"stale,omitempty"`
	AsOf    *time.Time                 `json:"asOf,omitempty"`
}

// Leaderboard returns the board best-first, optionally filtered to one
// government level.
func (s *LeaderboardService) Leaderboard(ctx context.Context, query *BoardQuery) (*BoardView, error) {
	level, err := parseBoardLevel(query.Level)
	if err != nil {
		return nil, err
	}

	if s.ranker.Len() > 0 {
		entries := s.ranker.Leaderboard(level, query.Limit)
		return &BoardView{Entries: entries, Count: len(entries)}, nil
	}
	return s.staleBoard(ctx, level, query.Limit, false)
}

// ShameWall returns the shame-worthy entries worst-first, optionally
// filtered to one government level.
func (s *LeaderboardService) ShameWall(ctx context.Context, query *BoardQuery) (*BoardView, error) {
	level, err := parseBoardLevel(query.Level)
	if err != nil {
		return nil, err
	}

	if s.ranker.Len() > 0 {
		entries := s.ranker.ShameWall(level, query.Limit)
		return &BoardView{Entries: entries, Count: len(entries)}, nil
	}
	return s.staleBoard(ctx, level, query.Limit, true)
}

// staleBoard serves the cached snapshot when the ranker has nothing. An
// empty board is a valid state for a fresh deployment, so cache misses and
// cache errors both degrade to an empty view rather than failing the read.
func (s *LeaderboardService) staleBoard(ctx context.Context, level *types.GovernmentLevel, limit int, shameOnly bool) (*BoardView, error) {
	empty := &BoardView{Entries: []*models.LeaderboardEntry{}}
	if s.cache == nil {
		return empty, nil
	}

	snapshot, err := s.cache.GetLeaderboard(ctx)
	if err != nil {
		logging.FromContext(ctx).ErrorWithErr("failed to read cached leaderboard snapshot", err)
		return empty, nil
	}
	if snapshot == nil {
		return empty, nil
	}

	entries := make([]*models.LeaderboardEntry, 0, len(snapshot.Entries))
	for _, entry := range snapshot.Entries {
		if shameOnly && !entry.ShameWorthy {
			continue
		}
		if level != nil && entry.Level != *level {
			continue
		}
		clone := *entry
		entries = append(entries, &clone)
	}
	if shameOnly {
		// Snapshot entries are best-first; the wall reads worst-first.
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	asOf := snapshot.CachedAt
	return &BoardView{
		Entries: entries,
		Count:   len(entries),
		Stale:   true,
		AsOf:    &asOf,
	}, nil
}

func parseBoardLevel(raw *string) (*types.GovernmentLevel, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	if !types.ValidGovernmentLevel(*raw) {
		return nil, apperrors.NewInvalidParameterError("level", "must be one of federal, state, local")
	}
	level := types.GovernmentLevel(*raw)
	return &level, nil
}
