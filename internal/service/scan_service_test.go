package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/codeforpakistan/watchtower-api/internal/errors"
	"github.com/codeforpakistan/watchtower-api/internal/job"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
	"github.com/codeforpakistan/watchtower-api/internal/scheduler"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// Mock collaborators for testing

type mockScanRegistry struct {
	websites  map[uuid.UUID]*models.Website
	getErr    error
	retries   map[uuid.UUID]time.Time
	retryErr  error
	markedDue int64
	markErr   error
}

func (m *mockScanRegistry) GetByID(_ context.Context, id uuid.UUID) (*models.Website, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.websites[id], nil
}

func (m *mockScanRegistry) ScheduleRetry(_ context.Context, websiteID uuid.UUID, nextScanAt time.Time) error {
	if m.retryErr != nil {
		return m.retryErr
	}
	if m.retries == nil {
		m.retries = make(map[uuid.UUID]time.Time)
	}
	m.retries[websiteID] = nextScanAt
	return nil
}

func (m *mockScanRegistry) MarkAllDue(_ context.Context, _ time.Time) (int64, error) {
	if m.markErr != nil {
		return 0, m.markErr
	}
	return m.markedDue, nil
}

type mockSubmitter struct {
	err       error
	submitted []*job.ScanJob
}

func (m *mockSubmitter) Submit(website *models.Website, trigger types.ScanTrigger) (*job.ScanJob, error) {
	if m.err != nil {
		return nil, m.err
	}
	scanJob := job.NewScanJob(website, trigger, types.StrategyMobile)
	m.submitted = append(m.submitted, scanJob)
	return scanJob, nil
}

func activeWebsite() *models.Website {
	return &models.Website{
		ID:     uuid.New(),
		Name:   "Ministry of Finance",
		URL:    "https://finance.gov.pk",
		Level:  types.LevelFederal,
		Active: true,
	}
}

func errorCode(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		t.Fatal("expected an error, got nil")
	}
	catErr, ok := err.(*apperrors.CategorizedError)
	if !ok {
		t.Fatalf("expected a CategorizedError, got %T: %v", err, err)
	}
	return catErr.Code
}

func TestTriggerScanSubmitsManualJob(t *testing.T) {
	website := activeWebsite()
	registry := &mockScanRegistry{websites: map[uuid.UUID]*models.Website{website.ID: website}}
	submitter := &mockSubmitter{}
	svc := NewScanService(registry, submitter, job.NewTracker(8))

	receipt, err := svc.TriggerScan(context.Background(), website.ID)
	if err != nil {
		t.Fatalf("TriggerScan() error = %v", err)
	}

	if receipt.WebsiteID != website.ID {
		t.Errorf("receipt website = %s, want %s", receipt.WebsiteID, website.ID)
	}
	if receipt.Trigger != types.TriggerManual {
		t.Errorf("receipt trigger = %s, want %s", receipt.Trigger, types.TriggerManual)
	}
	if receipt.State != types.JobPending {
		t.Errorf("receipt state = %s, want %s", receipt.State, types.JobPending)
	}
	if len(submitter.submitted) != 1 {
		t.Fatalf("expected 1 submitted job, got %d", len(submitter.submitted))
	}
	if receipt.JobID != submitter.submitted[0].ID {
		t.Errorf("receipt job id = %s, want %s", receipt.JobID, submitter.submitted[0].ID)
	}
}

func TestTriggerScanUnknownWebsite(t *testing.T) {
	registry := &mockScanRegistry{websites: map[uuid.UUID]*models.Website{}}
	svc := NewScanService(registry, &mockSubmitter{}, job.NewTracker(8))

	_, err := svc.TriggerScan(context.Background(), uuid.New())
	if code := errorCode(t, err); code != "WEBSITE_NOT_FOUND" {
		t.Errorf("error code = %s, want WEBSITE_NOT_FOUND", code)
	}
}

func TestTriggerScanInactiveWebsite(t *testing.T) {
	website := activeWebsite()
	website.Active = false
	registry := &mockScanRegistry{websites: map[uuid.UUID]*models.Website{website.ID: website}}
	submitter := &mockSubmitter{}
	svc := NewScanService(registry, submitter, job.NewTracker(8))

	_, err := svc.TriggerScan(context.Background(), website.ID)
	if code := errorCode(t, err); code != "WEBSITE_INACTIVE" {
		t.Errorf("error code = %s, want WEBSITE_INACTIVE", code)
	}
	if len(submitter.submitted) != 0 {
		t.Errorf("inactive website must not reach the pool, got %d submissions", len(submitter.submitted))
	}
}

func TestTriggerScanAlreadyInFlight(t *testing.T) {
	website := activeWebsite()
	registry := &mockScanRegistry{websites: map[uuid.UUID]*models.Website{website.ID: website}}
	svc := NewScanService(registry, &mockSubmitter{err: scheduler.ErrAlreadyInFlight}, job.NewTracker(8))

	_, err := svc.TriggerScan(context.Background(), website.ID)
	if code := errorCode(t, err); code != "SCAN_IN_FLIGHT" {
		t.Errorf("error code = %s, want SCAN_IN_FLIGHT", code)
	}
}

func TestTriggerScanBackpressureReschedules(t *testing.T) {
	website := activeWebsite()
	registry := &mockScanRegistry{websites: map[uuid.UUID]*models.Website{website.ID: website}}
	svc := NewScanService(registry, &mockSubmitter{err: scanerr.Backpressure("scan queue is full")}, job.NewTracker(8))

	_, err := svc.TriggerScan(context.Background(), website.ID)
	if code := errorCode(t, err); code != "QUEUE_FULL" {
		t.Errorf("error code = %s, want QUEUE_FULL", code)
	}

	// The deferred website is re-marked due so the scheduler retries it.
	if _, ok := registry.retries[website.ID]; !ok {
		t.Error("expected the website to be rescheduled after backpressure")
	}

	catErr := err.(*apperrors.CategorizedError)
	if rescheduled, _ := catErr.Details["rescheduled"].(bool); !rescheduled {
		t.Error("expected rescheduled=true in error details")
	}
}

func TestTriggerScanBackpressureRescheduleFailure(t *testing.T) {
	website := activeWebsite()
	registry := &mockScanRegistry{
		websites: map[uuid.UUID]*models.Website{website.ID: website},
		retryErr: context.DeadlineExceeded,
	}
	svc := NewScanService(registry, &mockSubmitter{err: scanerr.Backpressure("scan queue is full")}, job.NewTracker(8))

	_, err := svc.TriggerScan(context.Background(), website.ID)
	if code := errorCode(t, err); code != "QUEUE_FULL" {
		t.Errorf("error code = %s, want QUEUE_FULL", code)
	}

	catErr := err.(*apperrors.CategorizedError)
	if rescheduled, _ := catErr.Details["rescheduled"].(bool); rescheduled {
		t.Error("expected rescheduled=false when the reschedule write fails")
	}
}

func TestTriggerScanStoppedPool(t *testing.T) {
	website := activeWebsite()
	registry := &mockScanRegistry{websites: map[uuid.UUID]*models.Website{website.ID: website}}
	svc := NewScanService(registry, &mockSubmitter{err: scheduler.ErrStopped}, job.NewTracker(8))

	_, err := svc.TriggerScan(context.Background(), website.ID)
	if code := errorCode(t, err); code != "SERVICE_UNAVAILABLE" {
		t.Errorf("error code = %s, want SERVICE_UNAVAILABLE", code)
	}
}

func TestTriggerAll(t *testing.T) {
	registry := &mockScanRegistry{markedDue: 42}
	svc := NewScanService(registry, &mockSubmitter{}, job.NewTracker(8))

	marked, err := svc.TriggerAll(context.Background())
	if err != nil {
		t.Fatalf("TriggerAll() error = %v", err)
	}
	if marked != 42 {
		t.Errorf("marked = %d, want 42", marked)
	}
}

func TestJobStatus(t *testing.T) {
	website := activeWebsite()
	tracker := job.NewTracker(8)
	scanJob := job.NewScanJob(website, types.TriggerManual, types.StrategyMobile)
	tracker.Add(scanJob)

	svc := NewScanService(&mockScanRegistry{}, &mockSubmitter{}, tracker)

	status, err := svc.JobStatus(scanJob.ID)
	if err != nil {
		t.Fatalf("JobStatus() error = %v", err)
	}
	if status.JobID != scanJob.ID {
		t.Errorf("status job id = %s, want %s", status.JobID, scanJob.ID)
	}
	if status.State != types.JobPending {
		t.Errorf("status state = %s, want %s", status.State, types.JobPending)
	}

	_, err = svc.JobStatus(uuid.New())
	if code := errorCode(t, err); code != "JOB_NOT_FOUND" {
		t.Errorf("error code = %s, want JOB_NOT_FOUND", code)
	}
}
