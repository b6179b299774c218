package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/models"
)

type mockReportStore struct {
	reports    map[uuid.UUID]*models.Report
	byWebsite  []*models.Report
	lastLimit  int
	lastOffset int
}

func (m *mockReportStore) GetByID(_ context.Context, id uuid.UUID) (*models.Report, error) {
	return m.reports[id], nil
}

func (m *mockReportStore) ListByWebsite(_ context.Context, _ uuid.UUID, limit, offset int) ([]*models.Report, error) {
	m.lastLimit = limit
	m.lastOffset = offset
	return m.byWebsite, nil
}

type mockLatestReader struct {
	report *models.Report
}

func (m *mockLatestReader) GetLatest(_ context.Context, _ uuid.UUID) (*models.Report, error) {
	return m.report, nil
}

type mockFailureStore struct {
	failures  []*models.ScanFailure
	lastLimit int
}

func (m *mockFailureStore) ListByWebsite(_ context.Context, _ uuid.UUID, limit int) ([]*models.ScanFailure, error) {
	m.lastLimit = limit
	return m.failures, nil
}

func (m *mockFailureStore) ListRecent(_ context.Context, _ time.Time, limit int) ([]*models.ScanFailure, error) {
	m.lastLimit = limit
	return m.failures, nil
}

func TestLatestReportThroughCache(t *testing.T) {
	website := activeWebsite()
	report := &models.Report{ID: uuid.New(), WebsiteID: website.ID, Composite: 73}
	registry := &mockScanRegistry{websites: map[uuid.UUID]*models.Website{website.ID: website}}
	svc := NewReportService(registry, &mockReportStore{}, &mockLatestReader{report: report}, &mockFailureStore{})

	got, err := svc.Latest(context.Background(), website.ID)
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if got.ID != report.ID {
		t.Errorf("report id = %s, want %s", got.ID, report.ID)
	}
}

func TestLatestReportNeverScanned(t *testing.T) {
	website := activeWebsite()
	registry := &mockScanRegistry{websites: map[uuid.UUID]*models.Website{website.ID: website}}
	svc := NewReportService(registry, &mockReportStore{}, &mockLatestReader{}, &mockFailureStore{})

	_, err := svc.Latest(context.Background(), website.ID)
	if code := errorCode(t, err); code != "NO_REPORT" {
		t.Errorf("error code = %s, want NO_REPORT", code)
	}
}

func TestLatestReportUnknownWebsite(t *testing.T) {
	svc := NewReportService(&mockScanRegistry{}, &mockReportStore{}, &mockLatestReader{}, &mockFailureStore{})

	_, err := svc.Latest(context.Background(), uuid.New())
	if code := errorCode(t, err); code != "WEBSITE_NOT_FOUND" {
		t.Errorf("error code = %s, want WEBSITE_NOT_FOUND", code)
	}
}

func TestHistoryClampsPageSize(t *testing.T) {
	website := activeWebsite()
	registry := &mockScanRegistry{websites: map[uuid.UUID]*models.Website{website.ID: website}}
	store := &mockReportStore{}
	svc := NewReportService(registry, store, &mockLatestReader{}, &mockFailureStore{})

	if _, err := svc.History(context.Background(), website.ID, 1000, 0); err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if store.lastLimit != maxPageSize {
		t.Errorf("limit = %d, want clamp to %d", store.lastLimit, maxPageSize)
	}

	if _, err := svc.History(context.Background(), website.ID, 0, 0); err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if store.lastLimit != defaultPageSize {
		t.Errorf("limit = %d, want default %d", store.lastLimit, defaultPageSize)
	}

	if _, err := svc.History(context.Background(), website.ID, 10, -1); err == nil {
		t.Error("expected an error for negative offset")
	}
}

func TestGetReportNotFound(t *testing.T) {
	svc := NewReportService(&mockScanRegistry{}, &mockReportStore{}, &mockLatestReader{}, &mockFailureStore{})

	_, err := svc.Get(context.Background(), uuid.New())
	if code := errorCode(t, err); code != "REPORT_NOT_FOUND" {
		t.Errorf("error code = %s, want REPORT_NOT_FOUND", code)
	}
}

func TestWebsiteFailures(t *testing.T) {
	website := activeWebsite()
	registry := &mockScanRegistry{websites: map[uuid.UUID]*models.Website{website.ID: website}}
	failureStore := &mockFailureStore{failures: []*models.ScanFailure{
		{ID: uuid.New(), WebsiteID: website.ID},
	}}
	svc := NewReportService(registry, &mockReportStore{}, &mockLatestReader{}, failureStore)

	failures, err := svc.Failures(context.Background(), website.ID, 0)
	if err != nil {
		t.Fatalf("Failures() error = %v", err)
	}
	if len(failures) != 1 {
		t.Errorf("failures = %d, want 1", len(failures))
	}
	if failureStore.lastLimit != defaultPageSize {
		t.Errorf("limit = %d, want default %d", failureStore.lastLimit, defaultPageSize)
	}

	_, err = svc.Failures(context.Background(), uuid.New(), 0)
	if code := errorCode(t, err); code != "WEBSITE_NOT_FOUND" {
		t.Errorf("error code = %s, want WEBSITE_NOT_FOUND", code)
	}
}
