// Package main provides a one-shot scan CLI: it scores a single URL and
// prints the report as JSON, without touching any database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/aiquality"
	"github.com/codeforpakistan/watchtower-api/internal/config"
	"github.com/codeforpakistan/watchtower-api/internal/job"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/pagespeed"
	"github.com/codeforpakistan/watchtower-api/internal/retry"
	"github.com/codeforpakistan/watchtower-api/internal/score"
	"github.com/codeforpakistan/watchtower-api/internal/types"
)

func main() {
	urlFlag := flag.String("url", "", "Website URL to scan (required)")
	strategyFlag := flag.String("strategy", "mobile", "Scan strategy: mobile, desktop")
	flag.Parse()

	if *urlFlag == "" {
		fmt.Println("Usage: scan -url https://example.gov.pk [-strategy mobile|desktop]")
		os.Exit(1)
	}

	parsed, err := url.Parse(*urlFlag)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		fmt.Printf("Invalid URL: %s\n", *urlFlag)
		os.Exit(1)
	}

	strategy := types.ScanStrategy(*strategyFlag)
	if strategy != types.StrategyMobile && strategy != types.StrategyDesktop {
		fmt.Printf("Unknown strategy: %s\n", *strategyFlag)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// No gates or quotas for a single call.
	pagespeedClient, err := pagespeed.NewClient(&pagespeed.Config{
		APIKey:  cfg.PageSpeed.APIKey,
		BaseURL: cfg.PageSpeed.BaseURL,
		Timeout: cfg.PageSpeed.Timeout,
	})
	if err != nil {
		fmt.Printf("Error creating PageSpeed client: %v\n", err)
		os.Exit(1)
	}

	aiClient, err := aiquality.NewClient(&aiquality.Config{
		APIKey:          cfg.AIQuality.APIKey,
		BaseURL:         cfg.AIQuality.BaseURL,
		Model:           cfg.AIQuality.Model,
		Timeout:         cfg.AIQuality.Timeout,
		MaxContentBytes: cfg.AIQuality.MaxContentBytes,
	})
	if err != nil {
		fmt.Printf("Error creating AI quality client: %v\n", err)
		os.Exit(1)
	}
	if cfg.AIQuality.APIKey == "" {
		fmt.Println("Warning: AI_API_KEY not set - scoring on performance only")
	}

	aggregator, err := score.NewAggregator(
		score.Weights{
			Performance: cfg.Scoring.PerformanceWeight,
			AIQuality:   cfg.Scoring.AIWeight,
		},
		score.ShamePolicy{
			MinPerformance:   cfg.Scoring.ShameMinPerformance,
			MinAccessibility: cfg.Scoring.ShameMinAccessibility,
			MinComposite:     cfg.Scoring.ShameMinComposite,
		},
	)
	if err != nil {
		fmt.Printf("Invalid scoring configuration: %v\n", err)
		os.Exit(1)
	}

	runner, err := job.NewRunner(&job.RunnerConfig{
		Performance: pagespeedClient,
		AI:          aiClient,
		Aggregator:  aggregator,
		Retry: &retry.RetryConfig{
			MaxRetries:   cfg.Retry.MaxRetries,
			InitialDelay: cfg.Retry.BaseDelay,
			MaxDelay:     cfg.Retry.MaxDelay,
			Multiplier:   2.0,
		},
		JobDeadline: cfg.Scan.JobDeadline,
	})
	if err != nil {
		fmt.Printf("Error creating job runner: %v\n", err)
		os.Exit(1)
	}

	website := &models.Website{
		ID:   uuid.New(),
		Name: parsed.Host,
		URL:  *urlFlag,
	}

	fmt.Printf("Scanning %s (%s)...\n", *urlFlag, strategy)
	start := time.Now()

	scanJob := job.NewScanJob(website, types.TriggerManual, strategy)
	outcome, err := runner.Run(context.Background(), scanJob)
	if err != nil {
		fmt.Printf("Scan failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Scan finished in %s (state: %s)\n\n", time.Since(start).Round(time.Millisecond), outcome.State)

	switch {
	case outcome.Report != nil:
		out, err := json.MarshalIndent(outcome.Report, "", "  ")
		if err != nil {
			fmt.Printf("Error encoding report: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))

	case outcome.Failure != nil:
		fmt.Println("No source produced data:")
		if outcome.Failure.PerformanceError != nil {
			fmt.Printf("  performance (%s): %s\n", outcome.Failure.PerformanceErrorKind, *outcome.Failure.PerformanceError)
		}
		if outcome.Failure.AIError != nil {
			fmt.Printf("  ai (%s): %s\n", outcome.Failure.AIErrorKind, *outcome.Failure.AIError)
		}
		os.Exit(1)

	default:
		fmt.Println("Scan produced no data (all sources absent)")
	}
}
