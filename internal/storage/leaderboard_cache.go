package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/codeforpakistan/watchtower-api/internal/models"
)

// leaderboardKey is the single Redis key holding the current board snapshot
const leaderboardKey = "leaderboard:current"

// CachedLeaderboard is the serialized board snapshot. It is a cache of the
// ranker's in-memory state, rebuildable at any time and never authoritative.
type CachedLeaderboard struct {
	Entries  []*models.LeaderboardEntry `json:"entries"`
	CachedAt time.Time                  `json:"cachedAt"`
}

// LeaderboardCache mirrors the computed board into Redis after every
// recompute, for out-of-process consumers and for serving a stale board
// when the ranker has nothing (for example a failed rebuild at startup).
type LeaderboardCache struct {
	redis *RedisCache
	ttl   time.Duration
}

// NewLeaderboardCache creates a new leaderboard cache
func NewLeaderboardCache(redis *RedisCache, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		redis: redis,
		ttl:   ttl,
	}
}

// SaveLeaderboard replaces the cached board snapshot. Implements the
// ranker's write-through cache interface.
func (c *LeaderboardCache) SaveLeaderboard(ctx context.Context, entries []*models.LeaderboardEntry) error {
	snapshot := &CachedLeaderboard{
		Entries:  entries,
		CachedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal leaderboard snapshot: %w", err)
	}
	if err := c.redis.Set(ctx, leaderboardKey, data, c.ttl); err != nil {
		return fmt.Errorf("failed to cache leaderboard snapshot: %w", err)
	}
	return nil
}

// GetLeaderboard returns the cached board snapshot, or nil on a cache miss
func (c *LeaderboardCache) GetLeaderboard(ctx context.Context) (*CachedLeaderboard, error) {
	data, err := c.redis.Get(ctx, leaderboardKey)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cached leaderboard: %w", err)
	}

	var snapshot CachedLeaderboard
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached leaderboard: %w", err)
	}
	return &snapshot, nil
}

// Invalidate drops the cached board snapshot
func (c *LeaderboardCache) Invalidate(ctx context.Context) error {
	return c.redis.Del(ctx, leaderboardKey)
}
