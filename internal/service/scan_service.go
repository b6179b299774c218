// Package service sits between the HTTP API and the engine internals: it
// validates input, maps domain sentinels to categorized errors, and keeps
// the in-memory leaderboard in step with registry changes.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/codeforpakistan/watchtower-api/internal/errors"
	"github.com/codeforpakistan/watchtower-api/internal/job"
	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
	"github.com/codeforpakistan/watchtower-api/internal/scheduler"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// ScanRegistry is the registry surface the scan facade consumes.
type ScanRegistry interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Website, error)
	ScheduleRetry(ctx context.Context, websiteID uuid.UUID, nextScanAt time.Time) error
	MarkAllDue(ctx context.Context, now time.Time) (int64, error)
}

// ScanSubmitter accepts scan jobs for execution, at most one in flight per
// website.
type ScanSubmitter interface {
	Submit(website *models.Website, trigger types.ScanTrigger) (*job.ScanJob, error)
}

// ScanService exposes manual scan triggering and job status lookups.
type ScanService struct {
	websites ScanRegistry
	pool     ScanSubmitter
	tracker  *job.Tracker
}

// NewScanService creates a new scan service
func NewScanService(websites ScanRegistry, pool ScanSubmitter, tracker *job.Tracker) *ScanService {
	return &ScanService{
		websites: websites,
		pool:     pool,
		tracker:  tracker,
	}
}

// ScanReceipt acknowledges an accepted manual scan.
type ScanReceipt struct {
	JobID      uuid.UUID         `json:"jobId"`
	WebsiteID  uuid.UUID         `json:"websiteId"`
	URL        string            `json:"url"`
	Trigger    types.ScanTrigger `json:"trigger"`
	State      types.JobState    `json:"state"`
	EnqueuedAt time.Time         `json:"enqueuedAt"`
}

// TriggerScan enqueues a manual scan for one website. A website with a scan
// already in flight conflicts; a full queue is backpressure, but the website
// is re-marked due first so the scheduler picks it up once the queue drains.
func (s *ScanService) TriggerScan(ctx context.Context, websiteID uuid.UUID) (*ScanReceipt, error) {
	website, err := s.websites.GetByID(ctx, websiteID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load website", err)
	}
	if website == nil {
		return nil, apperrors.NewWebsiteNotFoundError(websiteID.String())
	}
	if !website.Active {
		return nil, apperrors.NewWebsiteInactiveError(websiteID.String())
	}

	scanJob, err := s.pool.Submit(website, types.TriggerManual)
	switch {
	case err == nil:
		return &ScanReceipt{
			JobID:      scanJob.ID,
			WebsiteID:  website.ID,
			URL:        website.URL,
			Trigger:    scanJob.Trigger,
			State:      scanJob.State(),
			EnqueuedAt: scanJob.EnqueuedAt,
		}, nil
	case errors.Is(err, scheduler.ErrAlreadyInFlight):
		return nil, apperrors.NewScanInFlightError(websiteID.String())
	case errors.Is(err, scheduler.ErrStopped):
		return nil, apperrors.NewServiceUnavailableError("scan scheduler")
	case scanerr.KindOf(err) == scanerr.KindBackpressure:
		rescheduled := s.rescheduleDeferred(ctx, websiteID)
		return nil, apperrors.NewQueueFullError(queueFullRetryAfter, rescheduled)
	default:
		return nil, apperrors.NewInternalError("failed to submit scan", err)
	}
}

// queueFullRetryAfter is the advisory Retry-After for backpressure, in
// seconds. One scheduler tick is the soonest a deferred website can move.
const queueFullRetryAfter = 60

// rescheduleDeferred marks the website due now so the periodic tick retries
// the deferred manual scan. Best effort: the caller still gets backpressure.
func (s *ScanService) rescheduleDeferred(ctx context.Context, websiteID uuid.UUID) bool {
	if err := s.websites.ScheduleRetry(ctx, websiteID, time.Now().UTC()); err != nil {
		logging.FromContext(ctx).WithField("website_id", websiteID.String()).
			ErrorWithErr("failed to reschedule deferred scan", err)
		return false
	}
	return true
}

// TriggerAll marks every active website due immediately, returning how many
// were marked. Scans fan out over subsequent scheduler ticks rather than
// flooding the queue in one burst.
func (s *ScanService) TriggerAll(ctx context.Context) (int64, error) {
	marked, err := s.websites.MarkAllDue(ctx, time.Now().UTC())
	if err != nil {
		return 0, apperrors.NewDatabaseError("mark websites due", err)
	}
	return marked, nil
}

// JobStatus returns a point-in-time snapshot of a tracked scan job.
func (s *ScanService) JobStatus(jobID uuid.UUID) (*job.Status, error) {
	scanJob, ok := s.tracker.Get(jobID)
	if !ok {
		return nil, apperrors.NewJobNotFoundError(jobID.String())
	}
	return scanJob.Snapshot(), nil
}
