package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/models"
)

// FailureRepository handles scan failure records, kept for operator triage
// of websites that never produce a report
type FailureRepository struct {
	db *PostgresDB
}

// NewFailureRepository creates a new failure repository
func NewFailureRepository(db *PostgresDB) *FailureRepository {
	return &FailureRepository{db: db}
}

// Save persists one failed scan's error kinds and messages
func (r *FailureRepository) Save(ctx context.Context, failure *models.ScanFailure) error {
	if failure.ID == uuid.Nil {
		failure.ID = uuid.New()
	}
	if failure.OccurredAt.IsZero() {
		failure.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO scan_failures (
			id, website_id, occurred_at, trigger,
			performance_error_kind, performance_error,
			ai_error_kind, ai_error
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		failure.ID,
		failure.WebsiteID,
		failure.OccurredAt,
		failure.Trigger,
		failure.PerformanceErrorKind,
		failure.PerformanceError,
		failure.AIErrorKind,
		failure.AIError,
	)

	if err != nil {
		return fmt.Errorf("failed to save scan failure: %w", err)
	}
	return nil
}

// ListByWebsite returns a website's failure history, newest first
func (r *FailureRepository) ListByWebsite(ctx context.Context, websiteID uuid.UUID, limit int) ([]*models.ScanFailure, error) {
	query := `
		SELECT id, website_id, occurred_at, trigger,
			   performance_error_kind, performance_error,
			   ai_error_kind, ai_error
		FROM scan_failures
		WHERE website_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	return r.queryFailures(ctx, query, websiteID, limit)
}

// ListRecent returns the newest failures across all websites
func (r *FailureRepository) ListRecent(ctx context.Context, since time.Time, limit int) ([]*models.ScanFailure, error) {
	query := `
		SELECT id, website_id, occurred_at, trigger,
			   performance_error_kind, performance_error,
			   ai_error_kind, ai_error
		FROM scan_failures
		WHERE occurred_at >= $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`

	return r.queryFailures(ctx, query, since, limit)
}

func (r *FailureRepository) queryFailures(ctx context.Context, query string, args ...any) ([]*models.ScanFailure, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan failures: %w", err)
	}
	defer rows.Close()

	var failures []*models.ScanFailure
	for rows.Next() {
		var failure models.ScanFailure
		err := rows.Scan(
			&failure.ID,
			&failure.WebsiteID,
			&failure.OccurredAt,
			&failure.Trigger,
			&failure.PerformanceErrorKind,
			&failure.PerformanceError,
			&failure.AIErrorKind,
			&failure.AIError,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failure row: %w", err)
		}
		failures = append(failures, &failure)
	}
	return failures, rows.Err()
}
