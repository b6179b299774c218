package storage

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

func boardEntries() []*models.LeaderboardEntry {
	perf := 82.0
	return []*models.LeaderboardEntry{
		{
			Rank:      1,
			WebsiteID: uuid.New(),
			Name:      "Federal Board of Revenue",
			URL:       "https://fbr.gov.pk",
			Level:     types.LevelFederal,
			Composite: 84.5,
			Dimensions: models.DimensionScores{
				Performance: &perf,
			},
			LastScanned:  time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
			RegisteredAt: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			Rank:         2,
			WebsiteID:    uuid.New(),
			Name:         "Punjab Portal",
			URL:          "https://punjab.gov.pk",
			Level:        types.LevelState,
			Composite:    61.25,
			ShameWorthy:  false,
			LastScanned:  time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
			RegisteredAt: time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC),
		},
	}
}

func TestLeaderboardCacheRoundTrip(t *testing.T) {
	redis, _ := newTestRedis(t)
	cache := NewLeaderboardCache(redis, time.Minute)
	ctx := testContext(t)
	entries := boardEntries()

	require.NoError(t, cache.SaveLeaderboard(ctx, entries))

	snapshot, err := cache.GetLeaderboard(ctx)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.False(t, snapshot.CachedAt.IsZero())
	require.Len(t, snapshot.Entries, 2)

	got := snapshot.Entries[0]
	require.Equal(t, entries[0].WebsiteID, got.WebsiteID)
	require.Equal(t, 1, got.Rank)
	require.Equal(t, "Federal Board of Revenue", got.Name)
	require.Equal(t, 84.5, got.Composite)
	require.NotNil(t, got.Dimensions.Performance)
	require.Equal(t, 82.0, *got.Dimensions.Performance)
}

func TestLeaderboardCacheMissReturnsNil(t *testing.T) {
	redis, _ := newTestRedis(t)
	cache := NewLeaderboardCache(redis, time.Minute)

	snapshot, err := cache.GetLeaderboard(testContext(t))
	require.NoError(t, err)
	require.Nil(t, snapshot)
}

func TestLeaderboardCacheSaveReplacesSnapshot(t *testing.T) {
	redis, _ := newTestRedis(t)
	cache := NewLeaderboardCache(redis, time.Minute)
	ctx := testContext(t)

	require.NoError(t, cache.SaveLeaderboard(ctx, boardEntries()))
	require.NoError(t, cache.SaveLeaderboard(ctx, boardEntries()[:1]))

	snapshot, err := cache.GetLeaderboard(ctx)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	require.Len(t, snapshot.Entries, 1)
}

func TestLeaderboardCacheInvalidate(t *testing.T) {
	redis, _ := newTestRedis(t)
	cache := NewLeaderboardCache(redis, time.Minute)
	ctx := testContext(t)

	require.NoError(t, cache.SaveLeaderboard(ctx, boardEntries()))
	require.NoError(t, cache.Invalidate(ctx))

	snapshot, err := cache.GetLeaderboard(ctx)
	require.NoError(t, err)
	require.Nil(t, snapshot)
}

func TestLeaderboardCacheExpires(t *testing.T) {
	redis, mr := newTestRedis(t)
	cache := NewLeaderboardCache(redis, time.Second)
	ctx := testContext(t)

	require.NoError(t, cache.SaveLeaderboard(ctx, boardEntries()))

	mr.FastForward(2 * time.Second)

	snapshot, err := cache.GetLeaderboard(ctx)
	require.NoError(t, err)
	require.Nil(t, snapshot)
}

func TestLeaderboardCacheEmptyBoard(t *testing.T) {
	redis, _ := newTestRedis(t)
	cache := NewLeaderboardCache(redis, time.Minute)
	ctx := testContext(t)

	require.NoError(t, cache.SaveLeaderboard(ctx, nil))

	snapshot, err := cache.GetLeaderboard(ctx)
	require.NoError(t, err)
	require.NotNil(t, snapshot, "an empty board is still a snapshot, not a miss")
	require.Empty(t, snapshot.Entries)
}
