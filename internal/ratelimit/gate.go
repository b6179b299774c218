// Package ratelimit paces outbound calls to external scan capabilities.
// Each capability gets an independent token-bucket gate, optionally backed by
// a Redis-coordinated daily quota shared across engine instances.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
)

// Default gate configuration values.
const (
	DefaultPerSecond      = 1.0
	DefaultBurst          = 1
	DefaultAcquireTimeout = 30 * time.Second
)

// GateConfig holds configuration for one capability gate.
type GateConfig struct {
	// Name identifies the capability in errors and stats, e.g. "pagespeed".
	Name string

	// PerSecond is the sustained request rate. Default: 1.
	PerSecond float64

	// Burst is the token bucket size. Default: 1.
	Burst int

	// AcquireTimeout bounds how long an Acquire call may wait for a token.
	// Default: 30s.
	AcquireTimeout time.Duration

	// Quota optionally caps total calls per UTC day across instances.
	Quota *DailyQuota
}

// Validate checks if the configuration is valid.
func (c *GateConfig) Validate() error {
	if c.Name == "" {
		return errors.New("gate name is required")
	}
	if c.PerSecond < 0 {
		return errors.New("per-second rate cannot be negative")
	}
	if c.Burst < 0 {
		return errors.New("burst cannot be negative")
	}
	if c.AcquireTimeout < 0 {
		return errors.New("acquire timeout cannot be negative")
	}
	return nil
}

// GateStats contains counters for one gate since process start.
type GateStats struct {
	Name        string `json:"name"`
	Acquired    int64  `json:"acquired"`
	TimedOut    int64  `json:"timedOut"`
	QuotaDenied int64  `json:"quotaDenied"`
}

// Gate bounds the call rate to one external capability. Gates are
// independent: an exhausted pagespeed gate never delays AI calls.
type Gate struct {
	name           string
	limiter        *rate.Limiter
	acquireTimeout time.Duration
	quota          *DailyQuota

	mu    sync.Mutex
	stats GateStats
}

// NewGate creates a gate with the given configuration.
// Returns an error if the configuration is invalid.
func NewGate(cfg *GateConfig) (*Gate, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Apply defaults
	perSecond := cfg.PerSecond
	if perSecond == 0 {
		perSecond = DefaultPerSecond
	}

	burst := cfg.Burst
	if burst == 0 {
		burst = DefaultBurst
	}

	acquireTimeout := cfg.AcquireTimeout
	if acquireTimeout == 0 {
		acquireTimeout = DefaultAcquireTimeout
	}

	return &Gate{
		name:           cfg.Name,
		limiter:        rate.NewLimiter(rate.Limit(perSecond), burst),
		acquireTimeout: acquireTimeout,
		quota:          cfg.Quota,
		stats:          GateStats{Name: cfg.Name},
	}, nil
}

// Acquire blocks until a token is available, the acquire timeout elapses, or
// ctx is done. An elapsed acquire timeout produces a rate-limit error, which
// callers retry like any transient failure; caller cancellation is passed
// through untouched so jobs can distinguish shutdown from pacing.
func (g *Gate) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, g.acquireTimeout)
	defer cancel()

	if err := g.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.mu.Lock()
		g.stats.TimedOut++
		g.mu.Unlock()
		return scanerr.RateLimit(g.name)
	}

	if g.quota != nil {
		ok, err := g.quota.TrySpend(ctx, 1)
		if err == nil && !ok {
			g.mu.Lock()
			g.stats.QuotaDenied++
			g.mu.Unlock()
			return scanerr.RateLimit(g.name)
		}
		// Quota errors fail open: a Redis blip must not stop scanning.
	}

	g.mu.Lock()
	g.stats.Acquired++
	g.mu.Unlock()
	return nil
}

// Allow reports whether a token is immediately available and consumes it if
// so. It never waits and never touches the daily quota.
func (g *Gate) Allow() bool {
	return g.limiter.Allow()
}

// Stats returns a copy of the gate counters.
func (g *Gate) Stats() GateStats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stats
}

// Name returns the capability name.
func (g *Gate) Name() string {
	return g.name
}
