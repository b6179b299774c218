package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codeforpakistan/watchtower-api/internal/circuitbreaker"
	apperrors "github.com/codeforpakistan/watchtower-api/internal/errors"
	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/scheduler"
	"github.com/codeforpakistan/watchtower-api/internal/storage"
)

// HistoryStore is the score history surface (ClickHouse).
type HistoryStore interface {
	FleetStats(ctx context.Context, since time.Time) ([]*storage.LevelStats, error)
	DailyAverages(ctx context.Context, since time.Time) ([]*storage.DailyAverage, error)
	WebsiteHistory(ctx context.Context, websiteID uuid.UUID, since time.Time, limit int) ([]*models.ScoreSample, error)
}

// RegistryCounter exposes website counts for overview stats.
type RegistryCounter interface {
	Count(ctx context.Context, active *bool) (int64, error)
}

// StatsService serves fleet statistics from the score history plus live
// engine health counters.
type StatsService struct {
	history   HistoryStore
	websites  RegistryCounter
	scheduler *scheduler.Scheduler
	pool      *scheduler.Pool
	breakers  *circuitbreaker.Manager
}

// NewStatsService creates a new stats service. scheduler, pool, and
// breakers may be nil for read-only deployments.
func NewStatsService(
	history HistoryStore,
	websites RegistryCounter,
	sched *scheduler.Scheduler,
	pool *scheduler.Pool,
	breakers *circuitbreaker.Manager,
) *StatsService {
	return &StatsService{
		history:   history,
		websites:  websites,
		scheduler: sched,
		pool:      pool,
		breakers:  breakers,
	}
}

// FleetOverview aggregates registry counts and per-level scan statistics
// over one time window.
type FleetOverview struct {
	Since          time.Time             `json:"since"`
	TotalWebsites  int64                 `json:"totalWebsites"`
	ActiveWebsites int64                 `json:"activeWebsites"`
	Levels         []*storage.LevelStats `json:"levels"`
}

// Overview returns fleet-wide statistics since the given time.
func (s *StatsService) Overview(ctx context.Context, since time.Time) (*FleetOverview, error) {
	total, err := s.websites.Count(ctx, nil)
	if err != nil {
		return nil, apperrors.NewDatabaseError("count websites", err)
	}
	active := true
	activeCount, err := s.websites.Count(ctx, &active)
	if err != nil {
		return nil, apperrors.NewDatabaseError("count active websites", err)
	}

	levels, err := s.history.FleetStats(ctx, since)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load fleet statistics", err)
	}

	return &FleetOverview{
		Since:          since,
		TotalWebsites:  total,
		ActiveWebsites: activeCount,
		Levels:         levels,
	}, nil
}

// DailyAverages returns the fleet's day-by-day average composite since the
// given time.
func (s *StatsService) DailyAverages(ctx context.Context, since time.Time) ([]*storage.DailyAverage, error) {
	days, err := s.history.DailyAverages(ctx, since)
	if err != nil {
		return nil, apperrors.NewDatabaseError("load daily averages", err)
	}
	return days, nil
}

// WebsiteHistory returns one website's score samples since the given time,
// oldest first, for trend charts.
func (s *StatsService) WebsiteHistory(ctx context.Context, websiteID uuid.UUID, since time.Time, limit int) ([]*models.ScoreSample, error) {
	samples, err := s.history.WebsiteHistory(ctx, websiteID, since, clampPageSize(limit))
	if err != nil {
		return nil, apperrors.NewDatabaseError("load website history", err)
	}
	return samples, nil
}

// EngineStatus is a point-in-time view of the scan engine's moving parts.
type EngineStatus struct {
	Scheduler *scheduler.SchedulerStatus      `json:"scheduler,omitempty"`
	Pool      *scheduler.PoolStats            `json:"pool,omitempty"`
	Breakers  map[string]circuitbreaker.Stats `json:"breakers,omitempty"`
}

// Engine returns live scheduler, pool, and circuit breaker counters.
func (s *StatsService) Engine() *EngineStatus {
	status := &EngineStatus{}
	if s.scheduler != nil {
		schedStatus := s.scheduler.Status()
		status.Scheduler = &schedStatus
	}
	if s.pool != nil {
		poolStats := s.pool.Stats()
		status.Pool = &poolStats
	}
	if s.breakers != nil {
		status.Breakers = s.breakers.AllStats()
	}
	return status
}
