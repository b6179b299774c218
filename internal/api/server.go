// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/codeforpakistan/watchtower-api/internal/job"
	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/service"
	"github.com/codeforpakistan/watchtower-api/internal/storage"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// Service interfaces for dependency injection and testing

// WebsiteServiceInterface defines the interface for website registry operations
type WebsiteServiceInterface interface {
	Create(ctx context.Context, input *service.CreateWebsiteInput) (*models.Website, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Website, error)
	List(ctx context.Context, input *service.ListWebsitesInput) ([]*models.Website, int64, error)
	Update(ctx context.Context, id uuid.UUID, input *service.UpdateWebsiteInput) (*models.Website, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ReportServiceInterface defines the interface for report read operations
type ReportServiceInterface interface {
	Latest(ctx context.Context, websiteID uuid.UUID) (*models.Report, error)
	History(ctx context.Context, websiteID uuid.UUID, limit, offset int) ([]*models.Report, error)
	Get(ctx context.Context, reportID uuid.UUID) (*models.Report, error)
	Failures(ctx context.Context, websiteID uuid.UUID, limit int) ([]*models.ScanFailure, error)
	RecentFailures(ctx context.Context, since time.Time, limit int) ([]*models.ScanFailure, error)
}

// ScanServiceInterface defines the interface for manual scan operations
type ScanServiceInterface interface {
	TriggerScan(ctx context.Context, websiteID uuid.UUID) (*service.ScanReceipt, error)
	TriggerAll(ctx context.Context) (int64, error)
	JobStatus(jobID uuid.UUID) (*job.Status, error)
}

// LeaderboardServiceInterface defines the interface for ranking reads
type LeaderboardServiceInterface interface {
	Leaderboard(ctx context.Context, query *service.BoardQuery) (*service.BoardView, error)
	ShameWall(ctx context.Context, query *service.BoardQuery) (*service.BoardView, error)
}

// StatsServiceInterface defines the interface for fleet statistics reads
type StatsServiceInterface interface {
	Overview(ctx context.Context, since time.Time) (*service.FleetOverview, error)
	DailyAverages(ctx context.Context, since time.Time) ([]*storage.DailyAverage, error)
	WebsiteHistory(ctx context.Context, websiteID uuid.UUID, since time.Time, limit int) ([]*models.ScoreSample, error)
	Engine() *service.EngineStatus
}

// HealthChecker is satisfied by the storage handles.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthDeps holds the backing stores the health endpoint probes. Any nil
// entry is skipped, so partial deployments still report cleanly.
type HealthDeps struct {
	Postgres   HealthChecker
	Redis      HealthChecker
	ClickHouse HealthChecker
}

// Server represents the HTTP API server.
type Server struct {
	router             *mux.Router
	httpServer         *http.Server
	websiteService     WebsiteServiceInterface
	reportService      ReportServiceInterface
	scanService        ScanServiceInterface
	leaderboardService LeaderboardServiceInterface
	statsService       StatsServiceInterface
	health             HealthDeps
	config             *ServerConfig
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	ClientPerMinute int // Sustained requests per minute per client IP
	ClientBurst     int // Burst headroom per client IP
}

// NewServer creates a new API server instance.
func NewServer(
	config *ServerConfig,
	websiteService WebsiteServiceInterface,
	reportService ReportServiceInterface,
	scanService ScanServiceInterface,
	leaderboardService LeaderboardServiceInterface,
	statsService StatsServiceInterface,
	health HealthDeps,
) *Server {
	s := &Server{
		router:             mux.NewRouter(),
		websiteService:     websiteService,
		reportService:      reportService,
		scanService:        scanService,
		leaderboardService: leaderboardService,
		statsService:       statsService,
		health:             health,
		config:             config,
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	// Set up middleware (order matters!)
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(CompressionMiddleware)

	// Set up routes
	s.setupRoutes()

	// Create HTTP server
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check endpoint (not rate limited, orchestrators poll it)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// API routes, throttled per client IP
	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(RateLimitMiddleware(NewRateLimiter(s.config.ClientPerMinute, s.config.ClientBurst)))

	// Website registry endpoints
	api.HandleFunc("/websites", s.handleCreateWebsite).Methods("POST")
	api.HandleFunc("/websites", s.handleListWebsites).Methods("GET")
	api.HandleFunc("/websites/{id}", s.handleGetWebsite).Methods("GET")
	api.HandleFunc("/websites/{id}", s.handleUpdateWebsite).Methods("PUT")
	api.HandleFunc("/websites/{id}", s.handleDeleteWebsite).Methods("DELETE")

	// Report endpoints
	api.HandleFunc("/websites/{id}/report", s.handleLatestReport).Methods("GET")
	api.HandleFunc("/websites/{id}/reports", s.handleReportHistory).Methods("GET")
	api.HandleFunc("/websites/{id}/failures", s.handleWebsiteFailures).Methods("GET")
	api.HandleFunc("/websites/{id}/history", s.handleScoreHistory).Methods("GET")
	api.HandleFunc("/reports/{id}", s.handleGetReport).Methods("GET")
	api.HandleFunc("/failures", s.handleRecentFailures).Methods("GET")

	// Scan endpoints
	api.HandleFunc("/websites/{id}/scan", s.handleTriggerScan).Methods("POST")
	api.HandleFunc("/scans/all", s.handleTriggerAll).Methods("POST")
	api.HandleFunc("/scans/{id}", s.handleJobStatus).Methods("GET")

	// Ranking endpoints
	api.HandleFunc("/leaderboard", s.handleLeaderboard).Methods("GET")
	api.HandleFunc("/shame-wall", s.handleShameWall).Methods("GET")

	// Statistics endpoints
	api.HandleFunc("/stats", s.handleStatsOverview).Methods("GET")
	api.HandleFunc("/stats/daily", s.handleDailyAverages).Methods("GET")
}

// handleHealth reports process health, engine status, and dependency
// reachability. Any unreachable dependency degrades the response to 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]HealthChecker{
		"postgres":   s.health.Postgres,
		"redis":      s.health.Redis,
		"clickhouse": s.health.ClickHouse,
	}

	status := "healthy"
	dependencies := make(map[string]string)
	for name, checker := range checks {
		if checker == nil {
			continue
		}
		if err := checker.Ping(ctx); err != nil {
			status = "degraded"
			dependencies[name] = "down"
		} else {
			dependencies[name] = "up"
		}
	}

	response := map[string]interface{}{
		"status":       status,
		"service":      "watchtower-api",
		"dependencies": dependencies,
	}
	if s.statsService != nil {
		response["engine"] = s.statsService.Engine()
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	respondJSON(w, code, response)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Infof("Starting API server on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down API server...")
	return s.httpServer.Shutdown(ctx)
}
