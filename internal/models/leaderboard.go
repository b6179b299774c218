package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// LeaderboardEntry represents one website's position in the ranked board
type LeaderboardEntry struct {
	Rank           int                   `json:"rank"`
	WebsiteID      uuid.UUID             `json:"websiteId"`
	Name           string                `json:"name"`
	URL            string                `json:"url"`
	Level          types.GovernmentLevel `json:"level"`
	AgencyType     string                `json:"agencyType,omitempty"`
	Composite      float64               `json:"composite"`
	Dimensions     DimensionScores       `json:"dimensions"`
	Degraded       bool                  `json:"degraded"`
	ShameWorthy    bool                  `json:"shameWorthy"`
	TrendDelta     *float64              `json:"trendDelta,omitempty"` // composite change vs previous report
	TrendDirection types.TrendDirection  `json:"trendDirection,omitempty"`
	LastScanned    time.Time             `json:"lastScanned"`
	RegisteredAt   time.Time             `json:"registeredAt"`
}

// RankingSnapshot represents everything the ranker needs about one website:
// the website itself, its current report, and the composite of the report
// before that (for trend computation). Current is nil for never-scanned sites.
type RankingSnapshot struct {
	Website           Website  `json:"website"`
	Current           *Report  `json:"current,omitempty"`
	PreviousComposite *float64 `json:"previousComposite,omitempty"`
}
