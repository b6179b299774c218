package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/models"
)

// latestReportSource is the repository surface the cache reads through to
type latestReportSource interface {
	LatestReport(ctx context.Context, websiteID uuid.UUID) (*models.Report, error)
}

// ReportCache is a read-through cache for each website's latest report,
// invalidated whenever a new report lands. Scans are far rarer than reads,
// so most report lookups never reach Postgres.
type ReportCache struct {
	redis   *RedisCache
	reports latestReportSource
	ttl     time.Duration
}

// NewReportCache creates a new latest-report cache
func NewReportCache(redis *RedisCache, reports latestReportSource, ttl time.Duration) *ReportCache {
	return &ReportCache{
		redis:   redis,
		reports: reports,
		ttl:     ttl,
	}
}

// latestReportKey builds the cache key for a website's latest report
// Format: report:latest:<website-id>
func latestReportKey(websiteID uuid.UUID) string {
	return fmt.Sprintf("report:latest:%s", websiteID)
}

// GetLatest returns the website's most recent report, from cache when
// possible. Nil means the website has never completed a scan; a cold or
// unreachable cache falls through to the repository.
func (c *ReportCache) GetLatest(ctx context.Context, websiteID uuid.UUID) (*models.Report, error) {
	key := latestReportKey(websiteID)

	logger := logging.FromContext(ctx).WithField("website_id", websiteID.String())

	data, err := c.redis.Get(ctx, key)
	switch {
	case err == nil:
		var report models.Report
		if err := json.Unmarshal([]byte(data), &report); err == nil {
			return &report, nil
		}
		// Unreadable entries are dropped and refetched.
		logger.Warn("dropping malformed cached report")
		_ = c.redis.Del(ctx, key)
	case !errors.Is(err, redis.Nil):
		logger.WithError(err).Warn("report cache read failed, falling back to store")
	}

	report, err := c.reports.LatestReport(ctx, websiteID)
	if err != nil || report == nil {
		return report, err
	}

	if data, err := json.Marshal(report); err == nil {
		if err := c.redis.Set(ctx, key, data, c.ttl); err != nil {
			logger.WithError(err).Warn("failed to cache latest report")
		}
	}
	return report, nil
}

// InvalidateWebsite drops the cached report after a new scan lands
func (c *ReportCache) InvalidateWebsite(ctx context.Context, websiteID uuid.UUID) error {
	return c.redis.Del(ctx, latestReportKey(websiteID))
}
