// Package types provides common type definitions for the watchtower scan engine.
package types

// GovernmentLevel represents the tier of government that operates a website
type GovernmentLevel string

const (
	// LevelFederal represents federal government websites
	LevelFederal GovernmentLevel = "federal"
	// LevelState represents state or provincial government websites
	LevelState GovernmentLevel = "state"
	// LevelLocal represents local and municipal government websites
	LevelLocal GovernmentLevel = "local"
)

// ValidGovernmentLevel reports whether s names a known government level
func ValidGovernmentLevel(s string) bool {
	switch GovernmentLevel(s) {
	case LevelFederal, LevelState, LevelLocal:
		return true
	}
	return false
}

// ScanStrategy represents the device profile a performance scan emulates
type ScanStrategy string

const (
	// StrategyMobile emulates a mobile device on a throttled connection
	StrategyMobile ScanStrategy = "mobile"
	// StrategyDesktop emulates an unthrottled desktop browser
	StrategyDesktop ScanStrategy = "desktop"
)

// JobState represents the lifecycle state of a scan job
type JobState string

const (
	// JobPending represents a job accepted into the queue but not yet claimed
	JobPending JobState = "pending"
	// JobRunning represents a job whose source fetches are in flight
	JobRunning JobState = "running"
	// JobAggregating represents a job combining its source results into scores
	JobAggregating JobState = "aggregating"
	// JobCompleted represents a job that produced and persisted a report
	JobCompleted JobState = "completed"
	// JobFailed represents a job that ended without a usable report
	JobFailed JobState = "failed"
	// JobCancelled represents a job stopped by shutdown or explicit dequeue
	JobCancelled JobState = "cancelled"
)

// IsTerminal reports whether the state admits no further transitions
func (s JobState) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// SourceState represents the progress of a single data source within a job
type SourceState string

const (
	// SourcePending represents a source fetch that has not finished
	SourcePending SourceState = "pending"
	// SourceDone represents a source fetch that returned data
	SourceDone SourceState = "done"
	// SourceAbsent represents a source that returned no data without a hard error
	SourceAbsent SourceState = "absent"
	// SourceError represents a source fetch that exhausted its attempts
	SourceError SourceState = "error"
)

// ScanTrigger represents how a scan job was initiated
type ScanTrigger string

const (
	// TriggerScheduled represents a job enqueued by the periodic scheduler tick
	TriggerScheduled ScanTrigger = "scheduled"
	// TriggerManual represents a job enqueued through the API
	TriggerManual ScanTrigger = "manual"
)

// LeaderboardSort represents the ordering applied to leaderboard queries
type LeaderboardSort string

const (
	// SortComposite orders by the weighted composite score
	SortComposite LeaderboardSort = "composite"
	// SortPerformance orders by the performance score
	SortPerformance LeaderboardSort = "performance"
	// SortAccessibility orders by the AI accessibility score
	SortAccessibility LeaderboardSort = "accessibility"
)

// TrendDirection represents score movement between consecutive reports
type TrendDirection string

const (
	// TrendUp represents an improved composite score
	TrendUp TrendDirection = "up"
	// TrendDown represents a worsened composite score
	TrendDown TrendDirection = "down"
	// TrendFlat represents an unchanged composite score
	TrendFlat TrendDirection = "flat"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
