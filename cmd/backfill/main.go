// Package main provides a backfill CLI that rebuilds the ClickHouse score
// history from the reports already persisted in Postgres. Safe to re-run:
// the history table is append-only, so re-running duplicates rows - truncate
// score_samples first when repairing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/codeforpakistan/watchtower-api/internal/config"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/storage"
)

func main() {
	batchSize := flag.Int("batch", 500, "Reports fetched and inserted per batch")
	dryRun := flag.Bool("dry-run", false, "Count reports without writing to ClickHouse")
	flag.Parse()

	fmt.Println("Watchtower Score History Backfill")
	log.Println("Backfill starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize database connections
	log.Println("Connecting to databases...")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		log.Fatalf("Failed to connect to ClickHouse: %v", err)
	}
	defer clickhouse.Close()

	log.Println("Database connections established")

	// Initialize repositories
	websiteRepo := storage.NewWebsiteRepository(postgres)
	reportRepo := storage.NewReportRepository(postgres)
	historyRepo := storage.NewScoreHistoryRepository(clickhouse)

	ctx := context.Background()
	start := time.Now()

	websites, err := websiteRepo.List(ctx, nil)
	if err != nil {
		log.Fatalf("Failed to list websites: %v", err)
	}
	log.Printf("Backfilling score history for %d websites (batch size %d)", len(websites), *batchSize)

	var totalReports int
	for _, website := range websites {
		count, err := backfillWebsite(ctx, reportRepo, historyRepo, website, *batchSize, *dryRun)
		if err != nil {
			log.Fatalf("Failed to backfill website %s (%s): %v", website.Name, website.ID, err)
		}
		if count > 0 {
			log.Printf("  %s: %d reports", website.Name, count)
		}
		totalReports += count
	}

	if *dryRun {
		log.Printf("Dry run complete: %d reports across %d websites would be backfilled", totalReports, len(websites))
		return
	}
	log.Printf("Backfill complete: %d score samples from %d websites in %s",
		totalReports, len(websites), time.Since(start).Round(time.Millisecond))
}

// backfillWebsite pages through one website's reports oldest-batch-last and
// appends a score sample per report.
func backfillWebsite(
	ctx context.Context,
	reports *storage.ReportRepository,
	history *storage.ScoreHistoryRepository,
	website *models.Website,
	batchSize int,
	dryRun bool,
) (int, error) {
	var total int
	for offset := 0; ; offset += batchSize {
		batch, err := reports.ListByWebsite(ctx, website.ID, batchSize, offset)
		if err != nil {
			return total, fmt.Errorf("failed to list reports: %w", err)
		}
		if len(batch) == 0 {
			return total, nil
		}

		samples := make([]*models.ScoreSample, 0, len(batch))
		for _, report := range batch {
			samples = append(samples, &models.ScoreSample{
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
			})
		}

		if !dryRun {
			if err := history.BatchInsert(ctx, samples); err != nil {
				return total, fmt.Errorf("failed to insert samples: %w", err)
			}
		}
		total += len(samples)

		if len(batch) < batchSize {
			return total, nil
		}
	}
}
