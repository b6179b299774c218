// Package job defines the scan job lifecycle: a job fans out to the
// performance and AI quality sources, aggregates their sub-results into a
// single report, and settles in exactly one terminal state.
package job

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// SourceOutcome records how one scan source finished.
type SourceOutcome struct {
	State types.SourceState
	Err   error
}

// ScanJob is a single scan of one website. Its state moves
// pending -> running -> aggregating -> completed|failed, with cancelled
// reachable from any non-terminal state.
type ScanJob struct {
	ID         uuid.UUID
	Website    *models.Website
	Trigger    types.ScanTrigger
	Strategy   types.ScanStrategy
	EnqueuedAt time.Time

	mu          sync.RWMutex
	state       types.JobState
	startedAt   *time.Time
	finishedAt  *time.Time
	performance SourceOutcome
	ai          SourceOutcome
	report      *models.Report
	err         error
}

// legalTransitions maps each state to the states it may move to.
var legalTransitions = map[types.JobState][]types.JobState{
	types.JobPending:     {types.JobRunning, types.JobCancelled},
	types.JobRunning:     {types.JobAggregating, types.JobCancelled},
	types.JobAggregating: {types.JobCompleted, types.JobFailed, types.JobCancelled},
}

// NewScanJob creates a pending scan job for a website.
func NewScanJob(website *models.Website, trigger types.ScanTrigger, strategy types.ScanStrategy) *ScanJob {
	return &ScanJob{
		ID:         uuid.New(),
		Website:    website,
		Trigger:    trigger,
		Strategy:   strategy,
		EnqueuedAt: time.Now().UTC(),
		state:      types.JobPending,
		performance: SourceOutcome{
			State: types.SourcePending,
		},
		ai: SourceOutcome{
			State: types.SourcePending,
		},
	}
}

// State returns the job's current lifecycle state.
func (j *ScanJob) State() types.JobState {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.state
}

// transition moves the job to a new state, enforcing the lifecycle graph.
func (j *ScanJob) transition(to types.JobState) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, allowed := range legalTransitions[j.state] {
		if allowed == to {
			j.applyLocked(to)
			return nil
		}
	}
	return fmt.Errorf("illegal job transition %s -> %s", j.state, to)
}

// Settle applies the terminal state decided for this job once its artifact
// has been persisted (or persistence has definitively failed). A non-nil err
// is recorded as the job's terminal error.
func (j *ScanJob) Settle(state types.JobState, err error) error {
	if err != nil {
		j.setError(err)
	}
	return j.transition(state)
}

// Cancel moves the job to cancelled unless it already reached a terminal
// state. It reports whether the cancellation took effect.
func (j *ScanJob) Cancel() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.state.IsTerminal() {
		return false
	}
	j.applyLocked(types.JobCancelled)
	return true
}

// applyLocked records the state change plus its timestamps. Callers hold j.mu.
func (j *ScanJob) applyLocked(to types.JobState) {
	now := time.Now().UTC()
	switch to {
	case types.JobRunning:
		j.startedAt = &now
	case types.JobCompleted, types.JobFailed, types.JobCancelled:
		j.finishedAt = &now
	}
	j.state = to
}

// setPerformanceOutcome records the performance source's sub-result.
func (j *ScanJob) setPerformanceOutcome(outcome SourceOutcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.performance = outcome
}

// setAIOutcome records the AI quality source's sub-result.
func (j *ScanJob) setAIOutcome(outcome SourceOutcome) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.ai = outcome
}

// setReport attaches the aggregated report to a completed job.
func (j *ScanJob) setReport(report *models.Report) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.report = report
}

// setError records the terminal error of a failed job.
func (j *ScanJob) setError(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.err = err
}

// Report returns the aggregated report, or nil if the job has not completed
// with data.
func (j *ScanJob) Report() *models.Report {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.report
}

// SourceStatus describes one source's outcome in a job status snapshot.
type SourceStatus struct {
	State     types.SourceState `json:"state"`
	ErrorKind string            `json:"errorKind,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Status is a point-in-time snapshot of a scan job, safe to serialize while
// the job is still moving.
type Status struct {
	JobID       uuid.UUID          `json:"jobId"`
	WebsiteID   uuid.UUID          `json:"websiteId"`
	URL         string             `json:"url"`
	Trigger     types.ScanTrigger  `json:"trigger"`
	Strategy    types.ScanStrategy `json:"strategy"`
	State       types.JobState     `json:"state"`
	EnqueuedAt  time.Time          `json:"enqueuedAt"`
	StartedAt   *time.Time         `json:"startedAt,omitempty"`
	FinishedAt  *time.Time         `json:"finishedAt,omitempty"`
	Performance SourceStatus       `json:"performance"`
	AI          SourceStatus       `json:"ai"`
	Composite   *float64           `json:"composite,omitempty"`
	Degraded    *bool              `json:"degraded,omitempty"`
	Error       *string            `json:"error,omitempty"`
}

// Snapshot captures the job's current state for status queries.
func (j *ScanJob) Snapshot() *Status {
	j.mu.RLock()
	defer j.mu.RUnlock()

	status := &Status{
		JobID:       j.ID,
		WebsiteID:   j.Website.ID,
		URL:         j.Website.URL,
		Trigger:     j.Trigger,
		Strategy:    j.Strategy,
		State:       j.state,
		EnqueuedAt:  j.EnqueuedAt,
		StartedAt:   j.startedAt,
		FinishedAt:  j.finishedAt,
		Performance: sourceStatus(j.performance),
		AI:          sourceStatus(j.ai),
	}

	if j.report != nil {
		composite := j.report.Composite
		degraded := j.report.Degraded
		status.Composite = &composite
		status.Degraded = &degraded
	}
	if j.err != nil {
		msg := j.err.Error()
		status.Error = &msg
	}
	return status
}

func sourceStatus(outcome SourceOutcome) SourceStatus {
	status := SourceStatus{State: outcome.State}
	if outcome.Err != nil {
		status.ErrorKind = string(scanerr.KindOf(outcome.Err))
		status.Error = outcome.Err.Error()
	}
	return status
}
