package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// stubReportSource counts repository hits so tests can tell cache hits
// from fallthroughs.
type stubReportSource struct {
	report *models.Report
	err    error
	calls  int
}

func (s *stubReportSource) LatestReport(_ context.Context, _ uuid.UUID) (*models.Report, error) {
	s.calls++
	return s.report, s.err
}

func sampleReport(websiteID uuid.UUID) *models.Report {
	perf := 73.0
	return &models.Report{
		ID:        uuid.New(),
		WebsiteID: websiteID,
		ScanTime:  time.Date(2024, 6, 2, 4, 30, 0, 0, time.UTC),
		Strategy:  types.StrategyMobile,
		Trigger:   types.TriggerScheduled,
		Performance: &models.PerformanceMetrics{
			Score:     73,
			FetchedAt: time.Date(2024, 6, 2, 4, 30, 0, 0, time.UTC),
		},
		Composite: 73,
		Dimensions: models.DimensionScores{
			Performance: &perf,
		},
		Degraded:  true,
		CreatedAt: time.Date(2024, 6, 2, 4, 30, 5, 0, time.UTC),
	}
}

func TestReportCachePopulatesOnMiss(t *testing.T) {
	redis, _ := newTestRedis(t)
	websiteID := uuid.New()
	source := &stubReportSource{report: sampleReport(websiteID)}
	cache := NewReportCache(redis, source, time.Minute)
	ctx := testContext(t)

	got, err := cache.GetLatest(ctx, websiteID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, source.report.ID, got.ID)
	require.Equal(t, 1, source.calls)

	// Second read is served from the cache.
	got, err = cache.GetLatest(ctx, websiteID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, source.report.ID, got.ID)
	require.Equal(t, types.StrategyMobile, got.Strategy)
	require.True(t, got.Degraded)
	require.Equal(t, 1, source.calls)
}

func TestReportCacheNeverScannedIsNotCached(t *testing.T) {
	redis, _ := newTestRedis(t)
	source := &stubReportSource{}
	cache := NewReportCache(redis, source, time.Minute)
	ctx := testContext(t)
	websiteID := uuid.New()

	got, err := cache.GetLatest(ctx, websiteID)
	require.NoError(t, err)
	require.Nil(t, got)
	require.Equal(t, 1, source.calls)

	// A nil result must not be pinned: the next read asks the store again.
	got, err = cache.GetLatest(ctx, websiteID)
	require.NoError(t, err)
	require.Nil(t, got)
	require.Equal(t, 2, source.calls)
}

func TestReportCacheDropsMalformedEntry(t *testing.T) {
	redis, mr := newTestRedis(t)
	websiteID := uuid.New()
	source := &stubReportSource{report: sampleReport(websiteID)}
	cache := NewReportCache(redis, source, time.Minute)
	ctx := testContext(t)

	require.NoError(t, mr.Set(latestReportKey(websiteID), "{not json"))

	got, err := cache.GetLatest(ctx, websiteID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, source.report.ID, got.ID)
	require.Equal(t, 1, source.calls)

	// The bad entry was replaced, so the follow-up read hits the cache.
	_, err = cache.GetLatest(ctx, websiteID)
	require.NoError(t, err)
	require.Equal(t, 1, source.calls)
}

func TestReportCacheInvalidateForcesRefetch(t *testing.T) {
	redis, _ := newTestRedis(t)
	websiteID := uuid.New()
	source := &stubReportSource{report: sampleReport(websiteID)}
	cache := NewReportCache(redis, source, time.Minute)
	ctx := testContext(t)

	_, err := cache.GetLatest(ctx, websiteID)
	require.NoError(t, err)
	require.Equal(t, 1, source.calls)

	require.NoError(t, cache.InvalidateWebsite(ctx, websiteID))

	fresh := sampleReport(websiteID)
	source.report = fresh

	got, err := cache.GetLatest(ctx, websiteID)
	require.NoError(t, err)
	require.Equal(t, fresh.ID, got.ID)
	require.Equal(t, 2, source.calls)
}

func TestReportCachePropagatesSourceError(t *testing.T) {
	redis, _ := newTestRedis(t)
	source := &stubReportSource{err: errors.New("store offline")}
	cache := NewReportCache(redis, source, time.Minute)

	got, err := cache.GetLatest(testContext(t), uuid.New())
	require.Error(t, err)
	require.Nil(t, got)
}
