package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/codeforpakistan/watchtower-api/internal/errors"
	"github.com/codeforpakistan/watchtower-api/internal/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ReportStore is the persistence surface for report reads.
type ReportStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error)
	ListByWebsite(ctx context.Context, websiteID uuid.UUID, limit, offset int) ([]*models.Report, error)
}

// LatestReportReader serves a website's most recent report, cached.
type LatestReportReader interface {
	GetLatest(ctx context.Context, websiteID uuid.UUID) (*models.Report, error)
}

// FailureStore is the persistence surface for scan failure reads.
type FailureStore interface {
	ListByWebsite(ctx context.Context, websiteID uuid.UUID, limit int) ([]*models.ScanFailure, error)
	ListRecent(ctx context.Context, since time.Time, limit int) ([]*models.ScanFailure, error)
}

// WebsiteLookup resolves website existence for report queries.
type WebsiteLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Website, error)
}

// ReportService serves persisted scan outcomes: reports and failures.
type ReportService struct {
	websites WebsiteLookup
	reports  ReportStore
	latest   LatestReportReader
	failures FailureStore
}

// NewReportService creates a new report service
func NewReportService(websites WebsiteLookup, reports ReportStore, latest LatestReportReader, failures FailureStore) *ReportService {
	return &ReportService{
		websites: websites,
		reports:  reports,
		latest:   latest,
		failures: failures,
	}
}

// Latest returns the website's most recent report, through the cache.
func (s *ReportService) Latest(ctx context.Context, websiteID uuid.UUID) (*models.Report, error) {
	if err := s.requireWebsite(ctx, websiteID); err != nil {
		return nil, err
	}

	report, err := s.latest.GetLatest(ctx, websiteID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load latest report", err)
	}
	if report == nil {
		return nil, apperrors.NewNoReportError(websiteID.String())
	}
	return report, nil
}

// History returns the website's reports, newest first.
func (s *ReportService) History(ctx context.Context, websiteID uuid.UUID, limit, offset int) ([]*models.Report, error) {
	if err := s.requireWebsite(ctx, websiteID); err != nil {
		return nil, err
	}
	if offset < 0 {
		return nil, apperrors.NewInvalidParameterError("offset", "cannot be negative")
	}

	reports, err := s.reports.ListByWebsite(ctx, websiteID, clampPageSize(limit), offset)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list reports", err)
	}
	return reports, nil
}

// Get returns one report by id.
func (s *ReportService) Get(ctx context.Context, reportID uuid.UUID) (*models.Report, error) {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load report", err)
	}
	if report == nil {
		return nil, apperrors.NewReportNotFoundError(reportID.String())
	}
	return report, nil
}

// Failures returns the website's scan failure history, newest first.
func (s *ReportService) Failures(ctx context.Context, websiteID uuid.UUID, limit int) ([]*models.ScanFailure, error) {
	if err := s.requireWebsite(ctx, websiteID); err != nil {
		return nil, err
	}

	failures, err := s.failures.ListByWebsite(ctx, websiteID, clampPageSize(limit))
	if err != nil {
		return nil, apperrors.NewDatabaseError("list scan failures", err)
	}
	return failures, nil
}

// RecentFailures returns the newest failures across the fleet since the
// given time.
func (s *ReportService) RecentFailures(ctx context.Context, since time.Time, limit int) ([]*models.ScanFailure, error) {
	failures, err := s.failures.ListRecent(ctx, since, clampPageSize(limit))
	if err != nil {
		return nil, apperrors.NewDatabaseError("list recent failures", err)
	}
	return failures, nil
}

func (s *ReportService) requireWebsite(ctx context.Context, websiteID uuid.UUID) error {
	website, err := s.websites.GetByID(ctx, websiteID)
	if err != nil {
		return apperrors.NewDatabaseError("load website", err)
	}
	if website == nil {
		return apperrors.NewWebsiteNotFoundError(websiteID.String())
	}
	return nil
}

func clampPageSize(limit int) int {
	if limit <= 0 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}
