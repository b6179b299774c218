package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// Website represents a registered government website under scan coverage
type Website struct {
	ID         uuid.UUID             `json:"id" db:"id"`
	Name       string                `json:"name" db:"name"`
	URL        string                `json:"url" db:"url"`
	Level      types.GovernmentLevel `json:"level" db:"level"`
	AgencyType string                `json:"agencyType,omitempty" db:"agency_type"` // e.g. "ministry", "regulator", "municipality"
	Active     bool                  `json:"active" db:"active"`
	// CadenceSeconds overrides the engine-wide scan cadence; 0 means use the default
	CadenceSeconds int64      `json:"cadenceSeconds,omitempty" db:"cadence_seconds"`
	CreatedAt      time.Time  `json:"createdAt" db:"created_at"`
	LastScanned    *time.Time `json:"lastScanned,omitempty" db:"last_scanned"`
	NextScanAt     *time.Time `json:"nextScanAt,omitempty" db:"next_scan_at"`
}

// Cadence returns the effective scan cadence, falling back to def when the
// website carries no override
func (w *Website) Cadence(def time.Duration) time.Duration {
	if w.CadenceSeconds <= 0 {
		return def
	}
	return time.Duration(w.CadenceSeconds) * time.Second
}
