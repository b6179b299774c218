package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/codeforpakistan/watchtower-api/internal/models"
)

// reportColumns is the scan column list shared by every report query
const reportColumns = `id, website_id, scan_time, strategy, trigger,
	   performance, ai, composite, dimensions, degraded,
	   shame_worthy, shame_reasons, created_at`

// currentReportSubquery picks the report that represents a website on the
// board: the most recent non-degraded one when any exists, otherwise the
// most recent overall. degraded ASC sorts false before true.
const currentReportSubquery = `
	SELECT ` + reportColumns + `
	FROM reports
	WHERE website_id = w.id
	ORDER BY degraded ASC, scan_time DESC
	LIMIT 1
`

// ReportRepository handles scan report persistence. Reports are immutable:
// new scans append, nothing updates or deletes except website removal.
type ReportRepository struct {
	db *PostgresDB
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *PostgresDB) *ReportRepository {
	return &ReportRepository{db: db}
}

// ErrEmptyReport rejects reports carrying no source data. A scan where both
// sources came back empty is a failure, never a report.
var ErrEmptyReport = errors.New("report carries no source data")

// Save persists a completed scan's report. The ID and creation time are
// filled in when the caller left them zero.
func (r *ReportRepository) Save(ctx context.Context, report *models.Report) error {
	if report.Performance == nil && report.AI == nil {
		return ErrEmptyReport
	}
	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	// Absent sources stay SQL NULL rather than the JSON literal null.
	var performanceJSON, aiJSON []byte
	var err error
	if report.Performance != nil {
		if performanceJSON, err = json.Marshal(report.Performance); err != nil {
			return fmt.Errorf("failed to marshal performance metrics: %w", err)
		}
	}
	if report.AI != nil {
		if aiJSON, err = json.Marshal(report.AI); err != nil {
			return fmt.Errorf("failed to marshal ai assessment: %w", err)
		}
	}
	dimensionsJSON, err := json.Marshal(report.Dimensions)
	if err != nil {
		return fmt.Errorf("failed to marshal dimension scores: %w", err)
	}

	query := `
		INSERT INTO reports (
			id, website_id, scan_time, strategy, trigger,
			performance, ai, composite, dimensions, degraded,
			shame_worthy, shame_reasons, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.db.Pool().Exec(ctx, query,
		report.ID,
		report.WebsiteID,
		report.ScanTime,
		report.Strategy,
		report.Trigger,
		performanceJSON,
		aiJSON,
		report.Composite,
		dimensionsJSON,
		report.Degraded,
		report.ShameWorthy,
		report.ShameReasons,
		report.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to save report: %w", err)
	}
	return nil
}

// LatestReport returns the most recent report for a website, degraded or
// not, or nil when the website has never completed a scan
func (r *ReportRepository) LatestReport(ctx context.Context, websiteID uuid.UUID) (*models.Report, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE website_id = $1
		ORDER BY scan_time DESC
		LIMIT 1
	`

	report, err := scanReport(r.db.Pool().QueryRow(ctx, query, websiteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest report: %w", err)
	}
	return report, nil
}

// CurrentReport returns the report that represents the website for ranking:
// the most recent non-degraded one when any exists, else the most recent
// overall. Nil when the website has never completed a scan.
func (r *ReportRepository) CurrentReport(ctx context.Context, websiteID uuid.UUID) (*models.Report, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE website_id = $1
		ORDER BY degraded ASC, scan_time DESC
		LIMIT 1
	`

	report, err := scanReport(r.db.Pool().QueryRow(ctx, query, websiteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get current report: %w", err)
	}
	return report, nil
}

// PreviousReport returns the most recent report strictly older than before,
// used for trend deltas. Nil when the given report was the first.
func (r *ReportRepository) PreviousReport(ctx context.Context, websiteID uuid.UUID, before time.Time) (*models.Report, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE website_id = $1 AND scan_time < $2
		ORDER BY scan_time DESC
		LIMIT 1
	`

	report, err := scanReport(r.db.Pool().QueryRow(ctx, query, websiteID, before))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get previous report: %w", err)
	}
	return report, nil
}

// ListByWebsite returns a website's scan history, newest first
func (r *ReportRepository) ListByWebsite(ctx context.Context, websiteID uuid.UUID, limit, offset int) ([]*models.Report, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE website_id = $1
		ORDER BY scan_time DESC
	`
	args := []any{websiteID}
	argPos := 2

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, limit)
		argPos++
	}
	if offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argPos)
		args = append(args, offset)
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// GetByID retrieves one report, or nil when it does not exist
func (r *ReportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	query := `
		SELECT ` + reportColumns + `
		FROM reports
		WHERE id = $1
	`

	report, err := scanReport(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return report, nil
}

// ListRankingSnapshots loads one snapshot per active scanned website: the
// website row, its current report, and the composite of the report before
// the current one. One round trip feeds a full leaderboard rebuild.
func (r *ReportRepository) ListRankingSnapshots(ctx context.Context) ([]*models.RankingSnapshot, error) {
	query := `
		SELECT w.id, w.name, w.url, w.level, w.agency_type, w.active,
			   w.cadence_seconds, w.created_at, w.last_scanned, w.next_scan_at,
			   cur.id, cur.website_id, cur.scan_time, cur.strategy, cur.trigger,
			   cur.performance, cur.ai, cur.composite, cur.dimensions,
			   cur.degraded, cur.shame_worthy, cur.shame_reasons, cur.created_at,
			   prev.composite
		FROM websites w
		JOIN LATERAL (` + currentReportSubquery + `) cur ON true
		LEFT JOIN LATERAL (
			SELECT composite
			FROM reports
			WHERE website_id = w.id AND scan_time < cur.scan_time
			ORDER BY scan_time DESC
			LIMIT 1
		) prev ON true
		WHERE w.active
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list ranking snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.RankingSnapshot
	for rows.Next() {
		snapshot, err := scanRankingSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ranking snapshot: %w", err)
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

// RankingSnapshot loads the snapshot for one website, or nil when the
// website is missing, inactive, or has never completed a scan
func (r *ReportRepository) RankingSnapshot(ctx context.Context, websiteID uuid.UUID) (*models.RankingSnapshot, error) {
	query := `
		SELECT w.id, w.name, w.url, w.level, w.agency_type, w.active,
			   w.cadence_seconds, w.created_at, w.last_scanned, w.next_scan_at,
			   cur.id, cur.website_id, cur.scan_time, cur.strategy, cur.trigger,
			   cur.performance, cur.ai, cur.composite, cur.dimensions,
			   cur.degraded, cur.shame_worthy, cur.shame_reasons, cur.created_at,
			   prev.composite
		FROM websites w
		JOIN LATERAL (` + currentReportSubquery + `) cur ON true
		LEFT JOIN LATERAL (
			SELECT composite
			FROM reports
			WHERE website_id = w.id AND scan_time < cur.scan_time
			ORDER BY scan_time DESC
			LIMIT 1
		) prev ON true
		WHERE w.active AND w.id = $1
	`

	snapshot, err := scanRankingSnapshot(r.db.Pool().QueryRow(ctx, query, websiteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get ranking snapshot: %w", err)
	}
	return snapshot, nil
}

func scanReport(row rowScanner) (*models.Report, error) {
	var report models.Report
	var performanceJSON, aiJSON, dimensionsJSON []byte

	err := row.Scan(
		&report.ID,
		&report.WebsiteID,
		&report.ScanTime,
		&report.Strategy,
		&report.Trigger,
		&performanceJSON,
		&aiJSON,
		&report.Composite,
		&dimensionsJSON,
		&report.Degraded,
		&report.ShameWorthy,
		&report.ShameReasons,
		&report.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalReportPayloads(&report, performanceJSON, aiJSON, dimensionsJSON); err != nil {
		return nil, err
	}
	return &report, nil
}

func scanRankingSnapshot(row rowScanner) (*models.RankingSnapshot, error) {
	var snapshot models.RankingSnapshot
	var report models.Report
	var performanceJSON, aiJSON, dimensionsJSON []byte

	err := row.Scan(
		&snapshot.Website.ID,
		&snapshot.Website.Name,
		&snapshot.Website.URL,
		&snapshot.Website.Level,
		&snapshot.Website.AgencyType,
		&snapshot.Website.Active,
		&snapshot.Website.CadenceSeconds,
		&snapshot.Website.CreatedAt,
		&snapshot.Website.LastScanned,
		&snapshot.Website.NextScanAt,
		&report.ID,
		&report.WebsiteID,
		&report.ScanTime,
		&report.Strategy,
		&report.Trigger,
		&performanceJSON,
		&aiJSON,
		&report.Composite,
		&dimensionsJSON,
		&report.Degraded,
		&report.ShameWorthy,
		&report.ShameReasons,
		&report.CreatedAt,
		&snapshot.PreviousComposite,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalReportPayloads(&report, performanceJSON, aiJSON, dimensionsJSON); err != nil {
		return nil, err
	}
	snapshot.Current = &report
	return &snapshot, nil
}

func unmarshalReportPayloads(report *models.Report, performanceJSON, aiJSON, dimensionsJSON []byte) error {
	if performanceJSON != nil {
		report.Performance = &models.PerformanceMetrics{}
		if err := json.Unmarshal(performanceJSON, report.Performance); err != nil {
			return fmt.Errorf("failed to unmarshal performance metrics: %w", err)
		}
	}
	if aiJSON != nil {
		report.AI = &models.AIAssessment{}
		if err := json.Unmarshal(aiJSON, report.AI); err != nil {
			return fmt.Errorf("failed to unmarshal ai assessment: %w", err)
		}
	}
	if dimensionsJSON != nil {
		if err := json.Unmarshal(dimensionsJSON, &report.Dimensions); err != nil {
			return fmt.Errorf("failed to unmarshal dimension scores: %w", err)
		}
	}
	return nil
}
