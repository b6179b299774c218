package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// CoreWebVitals represents field metrics collected from real visitors
// (75th percentile values; milliseconds except CumulativeLayoutShift)
type CoreWebVitals struct {
	FirstContentfulPaintMs   *float64 `json:"firstContentfulPaintMs,omitempty"`
	LargestContentfulPaintMs *float64 `json:"largestContentfulPaintMs,omitempty"`
	CumulativeLayoutShift    *float64 `json:"cumulativeLayoutShift,omitempty"`
	InteractionToNextPaintMs *float64 `json:"interactionToNextPaintMs,omitempty"`
	TimeToFirstByteMs        *float64 `json:"timeToFirstByteMs,omitempty"`
}

// LabMetrics represents metrics from a single simulated page load
type LabMetrics struct {
	FirstContentfulPaintMs   float64 `json:"firstContentfulPaintMs"`
	LargestContentfulPaintMs float64 `json:"largestContentfulPaintMs"`
	TotalBlockingTimeMs      float64 `json:"totalBlockingTimeMs"`
	CumulativeLayoutShift    float64 `json:"cumulativeLayoutShift"`
	SpeedIndexMs             float64 `json:"speedIndexMs"`
	TimeToInteractiveMs      float64 `json:"timeToInteractiveMs"`
	TotalByteWeight          int64   `json:"totalByteWeight"`
}

// PerformanceMetrics represents the outcome of a performance scan for one URL
type PerformanceMetrics struct {
	Score         float64        `json:"score"`                   // performance category, 0-100
	Accessibility *float64       `json:"accessibility,omitempty"` // automated accessibility checks, 0-100
	BestPractices *float64       `json:"bestPractices,omitempty"`
	SEO           *float64       `json:"seo,omitempty"`
	FieldData     *CoreWebVitals `json:"fieldData,omitempty"`
	LabData       *LabMetrics    `json:"labData,omitempty"`
	FinalURL      string         `json:"finalUrl,omitempty"` // URL after redirects
	FetchedAt     time.Time      `json:"fetchedAt"`
}

// AIAssessment represents a model-graded quality review of one website.
// All scores are 0-100.
type AIAssessment struct {
	Accessibility         float64  `json:"accessibility"`
	Design                float64  `json:"design"`
	Content               float64  `json:"content"`
	Usability             float64  `json:"usability"`
	LanguageAccessibility *string  `json:"languageAccessibility,omitempty"` // availability of local-language content
	Recommendations       []string `json:"recommendations,omitempty"`
	Model                 string   `json:"model,omitempty"`
}

// DimensionScores represents the per-dimension breakdown attached to a report.
// A nil dimension means its source produced no data for this scan.
type DimensionScores struct {
	Performance   *float64 `json:"performance,omitempty"`
	Accessibility *float64 `json:"accessibility,omitempty"`
	Design        *float64 `json:"design,omitempty"`
	Content       *float64 `json:"content,omitempty"`
	Usability     *float64 `json:"usability,omitempty"`
	AIComposite   *float64 `json:"aiComposite,omitempty"`
}

// Report represents the persisted outcome of one completed scan
type Report struct {
	ID           uuid.UUID           `json:"id" db:"id"`
	WebsiteID    uuid.UUID           `json:"websiteId" db:"website_id"`
	ScanTime     time.Time           `json:"scanTime" db:"scan_time"`
	Strategy     types.ScanStrategy  `json:"strategy" db:"strategy"`
	Trigger      types.ScanTrigger   `json:"trigger" db:"trigger"`
	Performance  *PerformanceMetrics `json:"performance,omitempty" db:"performance"`
	AI           *AIAssessment       `json:"ai,omitempty" db:"ai"`
	Composite    float64             `json:"composite" db:"composite"`
	Dimensions   DimensionScores     `json:"dimensions" db:"dimensions"`
	Degraded     bool                `json:"degraded" db:"degraded"` // true when only one source produced data
	ShameWorthy  bool                `json:"shameWorthy" db:"shame_worthy"`
	ShameReasons []string            `json:"shameReasons,omitempty" db:"shame_reasons"`
	CreatedAt    time.Time           `json:"createdAt" db:"created_at"`
}
