package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// ScanFailure represents a scan that reached a terminal state without a
// usable report. One row per failed job, with the per-source error kinds
// preserved for operator triage.
type ScanFailure struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	WebsiteID  uuid.UUID         `json:"websiteId" db:"website_id"`
	OccurredAt time.Time         `json:"occurredAt" db:"occurred_at"`
	Trigger    types.ScanTrigger `json:"trigger" db:"trigger"`
	// Error kinds are scanerr.Kind values stored as strings; empty means the
	// source did not error (it may still have come back absent)
	PerformanceErrorKind string  `json:"performanceErrorKind,omitempty" db:"performance_error_kind"`
	PerformanceError     *string `json:"performanceError,omitempty" db:"performance_error"`
	AIErrorKind          string  `json:"aiErrorKind,omitempty" db:"ai_error_kind"`
	AIError              *string `json:"aiError,omitempty" db:"ai_error"`
}
