package storage

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/models"
)

// Store bundles the Postgres repositories behind the persistence surface
// the scheduler and the ranker consume. Report writes also drop the
// website's cached latest report when a cache is attached.
type Store struct {
	websites    *WebsiteRepository
	reports     *ReportRepository
	failures    *FailureRepository
	reportCache *ReportCache
}

// NewStore creates a store over one Postgres connection
func NewStore(db *PostgresDB) *Store {
	return &Store{
		websites: NewWebsiteRepository(db),
		reports:  NewReportRepository(db),
		failures: NewFailureRepository(db),
	}
}

// AttachReportCache wires latest-report cache invalidation into report
// writes. Optional; a store without a cache just writes Postgres.
func (s *Store) AttachReportCache(cache *ReportCache) {
	s.reportCache = cache
}

// Websites returns the website registry repository
func (s *Store) Websites() *WebsiteRepository {
	return s.websites
}

// Reports returns the report repository
func (s *Store) Reports() *ReportRepository {
	return s.reports
}

// Failures returns the scan failure repository
func (s *Store) Failures() *FailureRepository {
	return s.failures
}

// ListWebsitesDueBefore returns active websites due for a scan
func (s *Store) ListWebsitesDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Website, error) {
	return s.websites.ListDueBefore(ctx, cutoff, limit)
}

// SaveReport persists a report and invalidates the website's cached latest
// report. The cache drop is best-effort: a failed invalidation only shortens
// to the TTL how long readers may see the superseded report.
func (s *Store) SaveReport(ctx context.Context, report *models.Report) error {
	if err := s.reports.Save(ctx, report); err != nil {
		return err
	}
	if s.reportCache != nil {
		if err := s.reportCache.InvalidateWebsite(ctx, report.WebsiteID); err != nil {
			logging.FromContext(ctx).WithField("website_id", report.WebsiteID.String()).
				WithError(err).Warn("failed to invalidate cached report")
		}
	}
	return nil
}

// SaveFailure persists a scan failure record
func (s *Store) SaveFailure(ctx context.Context, failure *models.ScanFailure) error {
	return s.failures.Save(ctx, failure)
}

// UpdateLastScanned records a terminal scan and schedules the next one
func (s *Store) UpdateLastScanned(ctx context.Context, websiteID uuid.UUID, scannedAt, nextScanAt time.Time) error {
	return s.websites.UpdateLastScanned(ctx, websiteID, scannedAt, nextScanAt)
}

// ListRankingSnapshots loads a ranking snapshot for every rankable website
func (s *Store) ListRankingSnapshots(ctx context.Context) ([]*models.RankingSnapshot, error) {
	return s.reports.ListRankingSnapshots(ctx)
}

// RankingSnapshot loads the ranking snapshot for one website
func (s *Store) RankingSnapshot(ctx context.Context, websiteID uuid.UUID) (*models.RankingSnapshot, error) {
	return s.reports.RankingSnapshot(ctx, websiteID)
}
