package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

// ScoreHistoryRepository handles append-only score samples in ClickHouse.
// One row lands per completed scan; fleet statistics and per-website trend
// queries run here instead of against the Postgres reports table.
type ScoreHistoryRepository struct {
	db *ClickHouseDB
}

// NewScoreHistoryRepository creates a new score history repository
func NewScoreHistoryRepository(db *ClickHouseDB) *ScoreHistoryRepository {
	return &ScoreHistoryRepository{db: db}
}

// Insert appends a single score sample
func (r *ScoreHistoryRepository) Insert(ctx context.Context, sample *models.ScoreSample) error {
	query := `
		INSERT INTO score_samples (
			website_id, level, agency_type, scan_time, strategy,
			composite, performance, ai_composite, degraded, shame_worthy
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err := r.db.Conn().Exec(ctx, query,
		sample.WebsiteID,
		string(sample.Level),
		sample.AgencyType,
		sample.ScanTime,
		string(sample.Strategy),
		sample.Composite,
		sample.Performance,
		sample.AIComposite,
		sample.Degraded,
		sample.ShameWorthy,
	)

	if err != nil {
		return fmt.Errorf("failed to insert score sample: %w", err)
	}
	return nil
}

// BatchInsert appends multiple score samples in one batch, used when
// backfilling history from existing reports
func (r *ScoreHistoryRepository) BatchInsert(ctx context.Context, samples []*models.ScoreSample) error {
	if len(samples) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO score_samples (
			website_id, level, agency_type, scan_time, strategy,
			composite, performance, ai_composite, degraded, shame_worthy
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, sample := range samples {
		err := batch.Append(
			sample.WebsiteID,
			string(sample.Level),
			sample.AgencyType,
			sample.ScanTime,
			string(sample.Strategy),
			sample.Composite,
			sample.Performance,
			sample.AIComposite,
			sample.Degraded,
			sample.ShameWorthy,
		)
		if err != nil {
			return fmt.Errorf("failed to append sample for website %s to batch: %w", sample.WebsiteID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// ReportPersisted records a score sample for every durably persisted report.
// History is derived data, so insert errors are logged and swallowed rather
// than surfaced into the job's terminal state.
func (r *ScoreHistoryRepository) ReportPersisted(ctx context.Context, website *models.Website, report *models.Report) {
	sample := &models.ScoreSample{
		WebsiteID:   website.ID,
		Level:       website.Level,
		AgencyType:  website.AgencyType,
		ScanTime:    report.ScanTime,
		Strategy:    report.Strategy,
		Composite:   report.Composite,
		Performance: report.Dimensions.Performance,
		AIComposite: report.Dimensions.AIComposite,
		Degraded:    report.Degraded,
		ShameWorthy: report.ShameWorthy,
	}

	if err := r.Insert(ctx, sample); err != nil {
		logging.FromContext(ctx).WithField("website_id", website.ID.String()).
			WithError(err).Error("failed to record score sample")
	}
}

// LevelStats aggregates one government level's scans over a time window
type LevelStats struct {
	Level            types.GovernmentLevel `json:"level"`
	Websites         uint64                `json:"websites"`
	Scans            uint64                `json:"scans"`
	AvgComposite     float64               `json:"avgComposite"`
	AvgPerformance   *float64              `json:"avgPerformance,omitempty"`
	AvgAIComposite   *float64              `json:"avgAiComposite,omitempty"`
	DegradedScans    uint64                `json:"degradedScans"`
	ShameWorthyScans uint64                `json:"shameWorthyScans"`
}

// FleetStats aggregates scan outcomes per government level since the given
// time. Averages over nullable per-source scores skip absent values.
func (r *ScoreHistoryRepository) FleetStats(ctx context.Context, since time.Time) ([]*LevelStats, error) {
	query := `
		SELECT level,
			   uniqExact(website_id) AS websites,
			   count() AS scans,
			   avg(composite) AS avg_composite,
			   avg(performance) AS avg_performance,
			   avg(ai_composite) AS avg_ai_composite,
			   countIf(degraded) AS degraded_scans,
			   countIf(shame_worthy) AS shame_worthy_scans
		FROM score_samples
		WHERE scan_time >= ?
		GROUP BY level
		ORDER BY level
	`

	rows, err := r.db.Conn().Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query fleet stats: %w", err)
	}
	defer rows.Close()

	var stats []*LevelStats
	for rows.Next() {
		var s LevelStats
		var level string
		err := rows.Scan(
			&level,
			&s.Websites,
			&s.Scans,
			&s.AvgComposite,
			&s.AvgPerformance,
			&s.AvgAIComposite,
			&s.DegradedScans,
			&s.ShameWorthyScans,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fleet stats row: %w", err)
		}
		s.Level = types.GovernmentLevel(level)
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}

// DailyAverage is one day's fleet-wide composite average
type DailyAverage struct {
	Day          time.Time `json:"day"`
	AvgComposite float64   `json:"avgComposite"`
	Scans        uint64    `json:"scans"`
}

// DailyAverages returns per-day fleet-wide composite averages since the
// given time, oldest first, for trend charting
func (r *ScoreHistoryRepository) DailyAverages(ctx context.Context, since time.Time) ([]*DailyAverage, error) {
	query := `
		SELECT toStartOfDay(scan_time) AS day,
			   avg(composite) AS avg_composite,
			   count() AS scans
		FROM score_samples
		WHERE scan_time >= ?
		GROUP BY day
		ORDER BY day
	`

	rows, err := r.db.Conn().Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query daily averages: %w", err)
	}
	defer rows.Close()

	var averages []*DailyAverage
	for rows.Next() {
		var avg DailyAverage
		if err := rows.Scan(&avg.Day, &avg.AvgComposite, &avg.Scans); err != nil {
			return nil, fmt.Errorf("failed to scan daily average row: %w", err)
		}
		averages = append(averages, &avg)
	}
	return averages, rows.Err()
}

// WebsiteHistory returns one website's score samples since the given time,
// oldest first
func (r *ScoreHistoryRepository) WebsiteHistory(ctx context.Context, websiteID uuid.UUID, since time.Time, limit int) ([]*models.ScoreSample, error) {
	query := `
		SELECT website_id, level, agency_type, scan_time, strategy,
			   composite, performance, ai_composite, degraded, shame_worthy
		FROM score_samples
		WHERE website_id = ? AND scan_time >= ?
		ORDER BY scan_time ASC
		LIMIT ?
	`

	rows, err := r.db.Conn().Query(ctx, query, websiteID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query website history: %w", err)
	}
	defer rows.Close()

	var samples []*models.ScoreSample
	for rows.Next() {
		var sample models.ScoreSample
		var level, strategy string
		err := rows.Scan(
			&sample.WebsiteID,
			&level,
			&sample.AgencyType,
			&sample.ScanTime,
			&strategy,
			&sample.Composite,
			&sample.Performance,
			&sample.AIComposite,
			&sample.Degraded,
			&sample.ShameWorthy,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan score sample row: %w", err)
		}
		sample.Level = types.GovernmentLevel(level)
		sample.Strategy = types.ScanStrategy(strategy)
		samples = append(samples, &sample)
	}
	return samples, rows.Err()
}
