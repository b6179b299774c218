package job

import (
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

func testWebsite() *models.Website {
	return &models.Website{
		ID:     uuid.New(),
		Name:   "Ministry of Testing",
		URL:    "https://mot.gov.pk",
		Level:  types.LevelFederal,
		Active: true,
	}
}

func TestJobLifecycleHappyPath(t *testing.T) {
	scanJob := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)

	if scanJob.State() != types.JobPending {
		t.Fatalf("new job state = %v, want pending", scanJob.State())
	}

	for _, next := range []types.JobState{types.JobRunning, types.JobAggregating, types.JobCompleted} {
		if err := scanJob.transition(next); err != nil {
			t.Fatalf("transition to %v failed: %v", next, err)
		}
		if scanJob.State() != next {
			t.Fatalf("state = %v, want %v", scanJob.State(), next)
		}
	}
}

func TestJobRejectsIllegalTransitions(t *testing.T) {
	tests := []struct {
		name string
		path []types.JobState
		to   types.JobState
	}{
		{"pending cannot aggregate", nil, types.JobAggregating},
		{"pending cannot complete", nil, types.JobCompleted},
		{"running cannot complete directly", []types.JobState{types.JobRunning}, types.JobCompleted},
		{"completed is terminal", []types.JobState{types.JobRunning, types.JobAggregating, types.JobCompleted}, types.JobRunning},
		{"failed is terminal", []types.JobState{types.JobRunning, types.JobAggregating, types.JobFailed}, types.JobAggregating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanJob := NewScanJob(testWebsite(), types.TriggerManual, types.StrategyMobile)
			for _, step := range tt.path {
				if err := scanJob.transition(step); err != nil {
					t.Fatalf("setup transition to %v failed: %v", step, err)
				}
			}
			if err := scanJob.transition(tt.to); err == nil {
				t.Errorf("transition %v -> %v should fail", scanJob.State(), tt.to)
			}
		})
	}
}

func TestCancelFromNonTerminalStates(t *testing.T) {
	for _, path := range [][]types.JobState{
		nil,
		{types.JobRunning},
		{types.JobRunning, types.JobAggregating},
	} {
		scanJob := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)
		for _, step := range path {
			if err := scanJob.transition(step); err != nil {
				t.Fatalf("setup transition to %v failed: %v", step, err)
			}
		}
		if !scanJob.Cancel() {
			t.Errorf("Cancel() from %v path should succeed", path)
		}
		if scanJob.State() != types.JobCancelled {
			t.Errorf("state after Cancel = %v, want cancelled", scanJob.State())
		}
	}
}

func TestCancelIgnoresTerminalJobs(t *testing.T) {
	scanJob := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)
	for _, step := range []types.JobState{types.JobRunning, types.JobAggregating, types.JobCompleted} {
		if err := scanJob.transition(step); err != nil {
			t.Fatalf("setup transition to %v failed: %v", step, err)
		}
	}

	if scanJob.Cancel() {
		t.Error("Cancel() on a completed job should report false")
	}
	if scanJob.State() != types.JobCompleted {
		t.Errorf("state = %v, completed jobs must stay completed", scanJob.State())
	}
}

func TestSettleRecordsTerminalError(t *testing.T) {
	scanJob := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)
	for _, step := range []types.JobState{types.JobRunning, types.JobAggregating} {
		if err := scanJob.transition(step); err != nil {
			t.Fatalf("setup transition to %v failed: %v", step, err)
		}
	}

	persistErr := fmt.Errorf("report write failed twice")
	if err := scanJob.Settle(types.JobFailed, persistErr); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if scanJob.State() != types.JobFailed {
		t.Errorf("state = %v, want failed", scanJob.State())
	}

	status := scanJob.Snapshot()
	if status.Error == nil || *status.Error != persistErr.Error() {
		t.Errorf("snapshot error = %v, want the persistence error", status.Error)
	}
}

func TestSnapshotCarriesSourceOutcomes(t *testing.T) {
	scanJob := NewScanJob(testWebsite(), types.TriggerManual, types.StrategyDesktop)
	scanJob.setPerformanceOutcome(SourceOutcome{State: types.SourceDone})
	scanJob.setAIOutcome(SourceOutcome{State: types.SourceError, Err: fmt.Errorf("model unavailable")})

	status := scanJob.Snapshot()

	if status.WebsiteID != scanJob.Website.ID {
		t.Errorf("WebsiteID = %v, want %v", status.WebsiteID, scanJob.Website.ID)
	}
	if status.Strategy != types.StrategyDesktop {
		t.Errorf("Strategy = %v, want desktop", status.Strategy)
	}
	if status.Performance.State != types.SourceDone {
		t.Errorf("Performance.State = %v, want done", status.Performance.State)
	}
	if status.AI.State != types.SourceError {
		t.Errorf("AI.State = %v, want error", status.AI.State)
	}
	if status.AI.ErrorKind != "transient" {
		t.Errorf("AI.ErrorKind = %q, want unclassified errors reported transient", status.AI.ErrorKind)
	}
	if status.Composite != nil {
		t.Error("Composite should be nil before a report exists")
	}
}

func TestTrackerFindsActiveAndRetiredJobs(t *testing.T) {
	tracker := NewTracker(4)

	scanJob := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)
	tracker.Add(scanJob)

	if _, ok := tracker.Get(scanJob.ID); !ok {
		t.Fatal("active job should be findable")
	}

	tracker.Retire(scanJob)
	if _, ok := tracker.Get(scanJob.ID); !ok {
		t.Fatal("retired job should remain findable")
	}

	active, retired := tracker.Counts()
	if active != 0 || retired != 1 {
		t.Errorf("Counts() = (%d, %d), want (0, 1)", active, retired)
	}
}

func TestTrackerEvictsOldestRetiredJob(t *testing.T) {
	tracker := NewTracker(2)

	first := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)
	second := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)
	third := NewScanJob(testWebsite(), types.TriggerScheduled, types.StrategyMobile)

	for _, scanJob := range []*ScanJob{first, second, third} {
		tracker.Add(scanJob)
		tracker.Retire(scanJob)
	}

	if _, ok := tracker.Get(first.ID); ok {
		t.Error("oldest retired job should have been evicted")
	}
	if _, ok := tracker.Get(second.ID); !ok {
		t.Error("second job should still be retained")
	}
	if _, ok := tracker.Get(third.ID); !ok {
		t.Error("third job should still be retained")
	}

	if _, retired := tracker.Counts(); retired != 2 {
		t.Errorf("retired count = %d, want 2", retired)
	}
}

func TestTrackerUnknownJob(t *testing.T) {
	tracker := NewTracker(0)
	if _, ok := tracker.Get(uuid.New()); ok {
		t.Error("unknown job ID should not be found")
	}
}
