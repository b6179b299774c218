// Package main provides the API server entry point for the watchtower service.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codeforpakistan/watchtower-api/internal/aiquality"
	"github.com/codeforpakistan/watchtower-api/internal/api"
	"github.com/codeforpakistan/watchtower-api/internal/circuitbreaker"
	"github.com/codeforpakistan/watchtower-api/internal/config"
	"github.com/codeforpakistan/watchtower-api/internal/job"
	"github.com/codeforpakistan/watchtower-api/internal/leaderboard"
	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/pagespeed"
	"github.com/codeforpakistan/watchtower-api/internal/ratelimit"
	"github.com/codeforpakistan/watchtower-api/internal/retry"
	"github.com/codeforpakistan/watchtower-api/internal/scheduler"
	"github.com/codeforpakistan/watchtower-api/internal/score"
	"github.com/codeforpakistan/watchtower-api/internal/service"
	"github.com/codeforpakistan/watchtower-api/internal/storage"
)

func main() {
	fmt.Println("Watchtower API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Initialize database connections
	logger.Info("Connecting to databases...")

	// Connect to Postgres
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	// Connect to ClickHouse
	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	// Connect to Redis
	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	logger.Info("Database connections established")

	// Initialize storage
	store := storage.NewStore(postgres)
	reportCache := storage.NewReportCache(redis, store.Reports(), cfg.Cache.TTL)
	store.AttachReportCache(reportCache)
	leaderboardCache := storage.NewLeaderboardCache(redis, cfg.Cache.TTL)
	historyRepo := storage.NewScoreHistoryRepository(clickhouse)

	// Initialize the scan engine
	logger.Info("Initializing scan engine...")

	// Outbound pacing: per-capability token buckets, with cross-instance
	// daily quotas coordinated through Redis.
	var pagespeedQuota *ratelimit.DailyQuota
	if cfg.RateLimit.PageSpeed.DailyQuota > 0 {
		pagespeedQuota, err = ratelimit.NewDailyQuota(&ratelimit.DailyQuotaConfig{
			Redis: redis.Client(),
			Name:  "pagespeed",
			Limit: cfg.RateLimit.PageSpeed.DailyQuota,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create PageSpeed daily quota")
		}
	}
	pagespeedGate, err := ratelimit.NewGate(&ratelimit.GateConfig{
		Name:           "pagespeed",
		PerSecond:      cfg.RateLimit.PageSpeed.PerSecond,
		Burst:          cfg.RateLimit.PageSpeed.Burst,
		AcquireTimeout: cfg.RateLimit.PageSpeed.AcquireTimeout,
		Quota:          pagespeedQuota,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create PageSpeed rate gate")
	}

	var aiQuota *ratelimit.DailyQuota
	if cfg.RateLimit.AI.DailyQuota > 0 {
		aiQuota, err = ratelimit.NewDailyQuota(&ratelimit.DailyQuotaConfig{
			Redis: redis.Client(),
			Name:  "aiquality",
			Limit: cfg.RateLimit.AI.DailyQuota,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create AI daily quota")
		}
	}
	aiGate, err := ratelimit.NewGate(&ratelimit.GateConfig{
		Name:           "aiquality",
		PerSecond:      cfg.RateLimit.AI.PerSecond,
		Burst:          cfg.RateLimit.AI.Burst,
		AcquireTimeout: cfg.RateLimit.AI.AcquireTimeout,
		Quota:          aiQuota,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create AI rate gate")
	}

	// One breaker per capability: a broken PageSpeed API must not take
	// down AI assessments, and vice versa.
	breakers := circuitbreaker.NewManager()
	pagespeedBreaker := breakers.GetOrCreate("pagespeed", circuitbreaker.DefaultConfig("pagespeed"))
	aiBreaker := breakers.GetOrCreate("aiquality", circuitbreaker.DefaultConfig("aiquality"))

	// Capability clients
	pagespeedClient, err := pagespeed.NewClient(&pagespeed.Config{
		APIKey:  cfg.PageSpeed.APIKey,
		BaseURL: cfg.PageSpeed.BaseURL,
		Timeout: cfg.PageSpeed.Timeout,
		Gate:    pagespeedGate,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create PageSpeed client")
	}
	if cfg.PageSpeed.APIKey == "" {
		logger.Warn("PAGESPEED_API_KEY not set - anonymous calls have a very low quota")
	}

	aiClient, err := aiquality.NewClient(&aiquality.Config{
		APIKey:          cfg.AIQuality.APIKey,
		BaseURL:         cfg.AIQuality.BaseURL,
		Model:           cfg.AIQuality.Model,
		Timeout:         cfg.AIQuality.Timeout,
		MaxContentBytes: cfg.AIQuality.MaxContentBytes,
		Gate:            aiGate,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create AI quality client")
	}
	if cfg.AIQuality.APIKey == "" {
		logger.Warn("AI_API_KEY not set - AI assessments are disabled, scans degrade to performance only")
	}

	performance := circuitbreaker.WrapPerformance(pagespeedClient, pagespeedBreaker)
	ai := circuitbreaker.WrapAI(aiClient, aiBreaker)

	// Scoring
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
		logger.WithError(err).Fatal("Invalid scoring configuration")
	}

	// Job runner, tracker, and in-flight guard
	runner, err := job.NewRunner(&job.RunnerConfig{
		Performance: performance,
		AI:          ai,
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
		logger.WithError(err).Fatal("Failed to create job runner")
	}

	tracker := job.NewTracker(job.DefaultTrackerCapacity)
	guard := scheduler.NewInflightGuard()

	// Leaderboard
	ranker, err := leaderboard.NewRanker(store, leaderboardCache)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create leaderboard ranker")
	}

	// Worker pool: persisted reports feed the leaderboard and the score
	// history in ClickHouse.
	pool, err := scheduler.NewPool(&scheduler.PoolConfig{
		Workers:            cfg.Scan.Workers,
		QueueCapacity:      cfg.Scan.QueueCapacity,
		Store:              store,
		Runner:             runner,
		Tracker:            tracker,
		Guard:              guard,
		Strategy:           cfg.Scan.Strategy,
		Cadence:            cfg.Scan.Cadence,
		FailedRetryCadence: cfg.Scan.FailedRetryCadence,
		Observers:          []scheduler.ReportObserver{ranker, historyRepo},
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create worker pool")
	}

	sched, err := scheduler.NewScheduler(&scheduler.SchedulerConfig{
		Pool:          pool,
		Store:         store,
		TickInterval:  cfg.Scan.TickInterval,
		DueBatchLimit: cfg.Scan.DueBatchLimit,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create scheduler")
	}

	// Run context for the engine: cancelling it propagates to every
	// in-flight external call.
	runCtx, cancelRun := context.WithCancel(logging.WithLogger(context.Background(), logger))
	defer cancelRun()

	if err := pool.Start(runCtx); err != nil {
		logger.WithError(err).Fatal("Failed to start worker pool")
	}
	if err := sched.Start(runCtx); err != nil {
		logger.WithError(err).Fatal("Failed to start scheduler")
	}

	// Warm the leaderboard from the registry before serving traffic. A
	// failure is not fatal: the board serves the stale Redis snapshot
	// until the next persisted report repairs it.
	if err := ranker.Rebuild(runCtx); err != nil {
		logger.WithError(err).Warn("Leaderboard rebuild failed - serving stale snapshot until next scan")
	} else {
		logger.WithField("entries", ranker.Len()).Info("Leaderboard warmed")
	}

	// Initialize services
	logger.Info("Initializing services...")

	websiteService := service.NewWebsiteService(store.Websites(), ranker)
	reportService := service.NewReportService(store.Websites(), store.Reports(), reportCache, store.Failures())
	scanService := service.NewScanService(store.Websites(), pool, tracker)
	leaderboardService := service.NewLeaderboardService(ranker, leaderboardCache)
	statsService := service.NewStatsService(historyRepo, store.Websites(), sched, pool, breakers)

	logger.Info("Services initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		ClientPerMinute: cfg.RateLimit.ClientPerMinute,
		ClientBurst:     cfg.RateLimit.ClientBurst,
	}

	server := api.NewServer(
		serverConfig,
		websiteService,
		reportService,
		scanService,
		leaderboardService,
		statsService,
		api.HealthDeps{
			Postgres:   postgres,
			Redis:      redis,
			ClickHouse: clickhouse,
		},
	)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	// Stop the scheduler first so no new scans are enqueued, then the HTTP
	// server so no manual scans arrive, then drain the pool.
	if err := sched.Stop(ctx); err != nil {
		logger.WithError(err).Error("Scheduler failed to stop cleanly")
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := pool.Stop(ctx); err != nil {
		logger.WithError(err).Error("Worker pool failed to drain")
	}

	logger.Info("Server exited")
}
