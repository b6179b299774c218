package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

var (
	// ErrWebsiteNotFound is returned by writes against a missing website
	ErrWebsiteNotFound = errors.New("website not found")
	// ErrDuplicateURL is returned when registering a URL that is already tracked
	ErrDuplicateURL = errors.New("website URL already registered")
)

// uniqueViolation is the Postgres error code for a unique constraint breach
const uniqueViolation = "23505"

// websiteColumns is the scan column list shared by every website query
const websiteColumns = `id, name, url, level, agency_type, active,
	   cadence_seconds, created_at, last_scanned, next_scan_at`

// WebsiteRepository handles website registry persistence
type WebsiteRepository struct {
	db *PostgresDB
}

// NewWebsiteRepository creates a new website repository
func NewWebsiteRepository(db *PostgresDB) *WebsiteRepository {
	return &WebsiteRepository{db: db}
}

// Create registers a new website. It fills in the ID and registration time
// when the caller left them zero, and leaves next_scan_at NULL so the
// scheduler picks the site up on its next tick.
func (r *WebsiteRepository) Create(ctx context.Context, website *models.Website) error {
	if website.ID == uuid.Nil {
		website.ID = uuid.New()
	}
	if website.CreatedAt.IsZero() {
		website.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO websites (
			id, name, url, level, agency_type, active,
			cadence_seconds, created_at, last_scanned, next_scan_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		website.ID,
		website.Name,
		website.URL,
		website.Level,
		website.AgencyType,
		website.Active,
		website.CadenceSeconds,
		website.CreatedAt,
		website.LastScanned,
		website.NextScanAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateURL, website.URL)
		}
		return fmt.Errorf("failed to create website: %w", err)
	}
	return nil
}

// GetByID retrieves a website by ID
func (r *WebsiteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Website, error) {
	query := `
		SELECT ` + websiteColumns + `
		FROM websites
		WHERE id = $1
	`

	website, err := scanWebsite(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found, return nil without error
		}
		return nil, fmt.Errorf("failed to get website: %w", err)
	}
	return website, nil
}

// GetByURL retrieves a website by its registered URL
func (r *WebsiteRepository) GetByURL(ctx context.Context, url string) (*models.Website, error) {
	query := `
		SELECT ` + websiteColumns + `
		FROM websites
		WHERE url = $1
	`

	website, err := scanWebsite(r.db.Pool().QueryRow(ctx, query, url))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get website by url: %w", err)
	}
	return website, nil
}

// WebsiteFilters defines filters for listing websites
type WebsiteFilters struct {
	Level  *types.GovernmentLevel
	Active *bool
	Limit  int
	Offset int
}

// List retrieves websites with optional filters and pagination, newest first
func (r *WebsiteRepository) List(ctx context.Context, filters *WebsiteFilters) ([]*models.Website, error) {
	query := `
		SELECT ` + websiteColumns + `
		FROM websites
		WHERE 1=1
	`
	args := []any{}
	argPos := 1

	if filters != nil {
		if filters.Level != nil {
			query += fmt.Sprintf(" AND level = $%d", argPos)
			args = append(args, *filters.Level)
			argPos++
		}
		if filters.Active != nil {
			query += fmt.Sprintf(" AND active = $%d", argPos)
			args = append(args, *filters.Active)
			argPos++
		}
	}

	query += " ORDER BY created_at DESC, id"

	if filters != nil {
		if filters.Limit > 0 {
			query += fmt.Sprintf(" LIMIT $%d", argPos)
			args = append(args, filters.Limit)
			argPos++
		}
		if filters.Offset > 0 {
			query += fmt.Sprintf(" OFFSET $%d", argPos)
			args = append(args, filters.Offset)
		}
	}

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list websites: %w", err)
	}
	defer rows.Close()

	var websites []*models.Website
	for rows.Next() {
		website, err := scanWebsite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan website: %w", err)
		}
		websites = append(websites, website)
	}
	return websites, rows.Err()
}

// Update rewrites a website's registry fields. Scan bookkeeping columns
// (last_scanned, next_scan_at) are owned by the scheduler and not touched.
func (r *WebsiteRepository) Update(ctx context.Context, website *models.Website) error {
	query := `
		UPDATE websites
		SET name = $2, url = $3, level = $4, agency_type = $5,
			active = $6, cadence_seconds = $7
		WHERE id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query,
		website.ID,
		website.Name,
		website.URL,
		website.Level,
		website.AgencyType,
		website.Active,
		website.CadenceSeconds,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateURL, website.URL)
		}
		return fmt.Errorf("failed to update website: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrWebsiteNotFound, website.ID)
	}
	return nil
}

// Delete removes a website and, via FK cascade, its reports and failures
func (r *WebsiteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM websites WHERE id = $1`
	result, err := r.db.Pool().Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete website: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrWebsiteNotFound, id)
	}
	return nil
}

// ListDueBefore returns active websites whose next scan is due at or before
// the cutoff, never-scanned sites first so new registrations get their
// baseline scan ahead of routine rescans. A NULL next_scan_at means the
// website has never reached a terminal scan.
func (r *WebsiteRepository) ListDueBefore(ctx context.Context, cutoff time.Time, limit int) ([]*models.Website, error) {
	query := `
		SELECT ` + websiteColumns + `
		FROM websites
		WHERE active AND (next_scan_at IS NULL OR next_scan_at <= $1)
		ORDER BY next_scan_at ASC NULLS FIRST, created_at ASC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due websites: %w", err)
	}
	defer rows.Close()

	var websites []*models.Website
	for rows.Next() {
		website, err := scanWebsite(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan website: %w", err)
		}
		websites = append(websites, website)
	}
	return websites, rows.Err()
}

// UpdateLastScanned records a completed scan and schedules the next one
func (r *WebsiteRepository) UpdateLastScanned(ctx context.Context, websiteID uuid.UUID, scannedAt, nextScanAt time.Time) error {
	query := `
		UPDATE websites
		SET last_scanned = $2, next_scan_at = $3
		WHERE id = $1
	`
	result, err := r.db.Pool().Exec(ctx, query, websiteID, scannedAt, nextScanAt)
	if err != nil {
		return fmt.Errorf("failed to update last scanned: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrWebsiteNotFound, websiteID)
	}
	return nil
}

// ScheduleRetry moves only next_scan_at, so failed scans come due again
// without counting as completed ones
func (r *WebsiteRepository) ScheduleRetry(ctx context.Context, websiteID uuid.UUID, nextScanAt time.Time) error {
	query := `UPDATE websites SET next_scan_at = $2 WHERE id = $1`
	result, err := r.db.Pool().Exec(ctx, query, websiteID, nextScanAt)
	if err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrWebsiteNotFound, websiteID)
	}
	return nil
}

// MarkAllDue makes every active website immediately due, returning how many
// were rescheduled. Backing write for the scan-everything trigger; the
// scheduler still paces the actual work through the queue.
func (r *WebsiteRepository) MarkAllDue(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE websites SET next_scan_at = $1 WHERE active`
	result, err := r.db.Pool().Exec(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to mark websites due: %w", err)
	}
	return result.RowsAffected(), nil
}

// Count returns the number of websites, split by active flag when it is set
func (r *WebsiteRepository) Count(ctx context.Context, active *bool) (int64, error) {
	query := `SELECT COUNT(*) FROM websites`
	args := []any{}
	if active != nil {
		query += ` WHERE active = $1`
		args = append(args, *active)
	}

	var count int64
	if err := r.db.Pool().QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count websites: %w", err)
	}
	return count, nil
}

// rowScanner is the common surface of pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanWebsite(row rowScanner) (*models.Website, error) {
	var website models.Website
	err := row.Scan(
		&website.ID,
		&website.Name,
		&website.URL,
		&website.Level,
		&website.AgencyType,
		&website.Active,
		&website.CadenceSeconds,
		&website.CreatedAt,
		&website.LastScanned,
		&website.NextScanAt,
	)
	if err != nil {
		return nil, err
	}
	return &website, nil
}
