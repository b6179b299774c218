package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// ScoreSample represents one append-only score observation in ClickHouse.
// The authoritative report lives in Postgres; samples exist for fleet-wide
// statistics and per-website score history without touching the OLTP store.
type ScoreSample struct {
	WebsiteID   uuid.UUID             `json:"websiteId" ch:"website_id"`
	Level       types.GovernmentLevel `json:"level" ch:"level"`
	AgencyType  string                `json:"agencyType" ch:"agency_type"`
	ScanTime    time.Time             `json:"scanTime" ch:"scan_time"`
	Strategy    types.ScanStrategy    `json:"strategy" ch:"strategy"`
	Composite   float64               `json:"composite" ch:"composite"`
	Performance *float64              `json:"performance,omitempty" ch:"performance"`
	AIComposite *float64              `json:"aiComposite,omitempty" ch:"ai_composite"`
	Degraded    bool                  `json:"degraded" ch:"degraded"`
	ShameWorthy bool                  `json:"shameWorthy" ch:"shame_worthy"`
}
