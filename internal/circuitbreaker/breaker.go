// Package circuitbreaker shields the external scan capabilities from being
// hammered while they are already failing. Each capability gets its own
// breaker: a broken PageSpeed API must not block AI assessments.
//
// Only infrastructure failures (transient faults, timeouts) count toward
// tripping. Permanent errors prove the provider answered, and caller
// cancellation says nothing about provider health; neither opens the circuit.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/codeforpakistan/watchtower-api/internal/logging"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
)

// State represents the breaker state
type State string

const (
	// StateClosed means calls flow through normally
	StateClosed State = "closed"
	// StateOpen means calls are rejected without reaching the provider
	StateOpen State = "open"
	// StateHalfOpen means a few probe calls test whether the provider recovered
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned when the circuit is open and the call was not attempted.
var ErrOpen = errors.New("circuit breaker is open")

// ErrHalfOpenSaturated is returned when the half-open probe budget is spent.
var ErrHalfOpenSaturated = errors.New("circuit breaker half-open probe limit reached")

// Config configures one breaker.
type Config struct {
	// Name identifies the capability, e.g. "pagespeed".
	Name string

	// MaxFailures is the consecutive-failure count that opens the circuit.
	MaxFailures int

	// FailureThreshold is the failure rate (0-1) that opens the circuit
	// once MinSamples calls have been observed since the last state change.
	FailureThreshold float64

	// MinSamples is the call count needed before the rate is trusted.
	MinSamples int

	// Timeout is how long an open circuit waits before probing.
	Timeout time.Duration

	// HalfOpenMaxCalls is the probe budget in the half-open state.
	HalfOpenMaxCalls int
}

// DefaultConfig returns breaker settings tuned for slow scan APIs: open
// after five straight infrastructure failures, probe again after a minute.
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxFailures:      5,
		FailureThreshold: 0.6,
		MinSamples:       10,
		Timeout:          time.Minute,
		HalfOpenMaxCalls: 2,
	}
}

// Breaker implements the circuit breaker pattern for one scan capability.
type Breaker struct {
	name             string
	maxFailures      int
	failureThreshold float64
	minSamples       int
	timeout          time.Duration
	halfOpenMaxCalls int

	mu               sync.RWMutex
	state            State
	failures         int
	successes        int
	totalCalls       int
	consecutiveFails int
	lastFailureTime  time.Time
	lastStateChange  time.Time
}

// New creates a breaker from the configuration, filling zero fields with
// the defaults.
func New(cfg *Config) *Breaker {
	if cfg == nil {
		cfg = DefaultConfig("")
	}
	defaults := DefaultConfig(cfg.Name)

	maxFailures := cfg.MaxFailures
	if maxFailures <= 0 {
		maxFailures = defaults.MaxFailures
	}
	failureThreshold := cfg.FailureThreshold
	if failureThreshold <= 0 {
		failureThreshold = defaults.FailureThreshold
	}
	minSamples := cfg.MinSamples
	if minSamples <= 0 {
		minSamples = defaults.MinSamples
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaults.Timeout
	}
	halfOpenMaxCalls := cfg.HalfOpenMaxCalls
	if halfOpenMaxCalls <= 0 {
		halfOpenMaxCalls = defaults.HalfOpenMaxCalls
	}

	return &Breaker{
		name:             cfg.Name,
		maxFailures:      maxFailures,
		failureThreshold: failureThreshold,
		minSamples:       minSamples,
		timeout:          timeout,
		halfOpenMaxCalls: halfOpenMaxCalls,
		state:            StateClosed,
		lastStateChange:  time.Now(),
	}
}

// Execute runs fn under breaker protection. When the circuit is open the
// call is rejected with ErrOpen before fn runs; fn's own error is always
// passed through unchanged.
func (b *Breaker) Execute(ctx context.Context, fn func() error) error {
	if err := b.before(); err != nil {
		return err
	}

	err := fn()
	b.after(ctx, err)

	return err
}

// before checks whether a call may proceed.
func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if time.Since(b.lastStateChange) > b.timeout {
			b.setState(StateHalfOpen)
			logging.WithFields(map[string]interface{}{
				"breaker": b.name,
				"state":   StateHalfOpen,
			}).Info("circuit breaker probing for recovery")
			b.totalCalls++
			return nil
		}
		return ErrOpen

	case StateHalfOpen:
		if b.totalCalls >= b.halfOpenMaxCalls {
			return ErrHalfOpenSaturated
		}
		b.totalCalls++
		return nil

	default:
		b.totalCalls++
		return nil
	}
}

// after records the call outcome.
func (b *Breaker) after(ctx context.Context, err error) {
	// Cancelled calls say nothing about provider health.
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled)) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if countsAsFailure(err) {
		b.onFailure()
	} else {
		b.onSuccess()
	}
}

// countsAsFailure reports whether an error is evidence of an unhealthy
// provider. A permanent error is a healthy provider saying no.
func countsAsFailure(err error) bool {
	if err == nil {
		return false
	}
	switch scanerr.KindOf(err) {
	case scanerr.KindTransient, scanerr.KindTimeout:
		return true
	}
	return false
}

func (b *Breaker) onSuccess() {
	b.successes++
	b.consecutiveFails = 0

	if b.state == StateHalfOpen && b.successes >= b.halfOpenMaxCalls {
		b.setState(StateClosed)
		logging.WithFields(map[string]interface{}{
			"breaker": b.name,
			"state":   StateClosed,
		}).Info("circuit breaker closed after recovery")
	}
}

func (b *Breaker) onFailure() {
	b.failures++
	b.consecutiveFails++
	b.lastFailureTime = time.Now()

	switch b.state {
	case StateClosed:
		if b.shouldOpen() {
			rate := b.failureRate()
			b.setState(StateOpen)
			logging.WithFields(map[string]interface{}{
				"breaker":          b.name,
				"state":            StateOpen,
				"consecutiveFails": b.consecutiveFails,
				"failureRate":      rate,
			}).Warn("circuit breaker opened")
		}

	case StateHalfOpen:
		// One failed probe is enough evidence.
		b.setState(StateOpen)
		logging.WithFields(map[string]interface{}{
			"breaker": b.name,
			"state":   StateOpen,
		}).Warn("circuit breaker reopened after failed probe")
	}
}

// shouldOpen holds the trip conditions: a run of consecutive failures, or a
// high failure rate over enough samples.
func (b *Breaker) shouldOpen() bool {
	if b.consecutiveFails >= b.maxFailures {
		return true
	}
	return b.totalCalls >= b.minSamples && b.failureRate() >= b.failureThreshold
}

func (b *Breaker) failureRate() float64 {
	if b.totalCalls == 0 {
		return 0
	}
	return float64(b.failures) / float64(b.totalCalls)
}

// setState transitions the breaker and resets the per-state counters, so
// rates are always computed over the current state's window. The
// consecutive-failure streak survives transitions; recovery alone clears it.
func (b *Breaker) setState(state State) {
	b.state = state
	b.lastStateChange = time.Now()
	b.failures = 0
	b.successes = 0
	b.totalCalls = 0
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Name returns the capability name.
func (b *Breaker) Name() string {
	return b.name
}

// Stats represents a point-in-time view of one breaker.
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	Failures         int       `json:"failures"`
	Successes        int       `json:"successes"`
	TotalCalls       int       `json:"totalCalls"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	FailureRate      float64   `json:"failureRate"`
	LastFailureTime  time.Time `json:"lastFailureTime"`
	LastStateChange  time.Time `json:"lastStateChange"`
}

// Stats returns a snapshot of the breaker counters for the current state
// window.
func (b *Breaker) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return Stats{
		Name:             b.name,
		State:            b.state,
		Failures:         b.failures,
		Successes:        b.successes,
		TotalCalls:       b.totalCalls,
		ConsecutiveFails: b.consecutiveFails,
		FailureRate:      b.failureRate(),
		LastFailureTime:  b.lastFailureTime,
		LastStateChange:  b.lastStateChange,
	}
}

// Reset forces the breaker back to closed with clean counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.setState(StateClosed)
	b.consecutiveFails = 0

	logging.WithField("breaker", b.name).Info("circuit breaker manually reset")
}

// Manager holds the breakers for all scan capabilities.
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewManager creates an empty breaker manager.
func NewManager() *Manager {
	return &Manager{breakers: make(map[string]*Breaker)}
}

// GetOrCreate returns the named breaker, creating it from cfg (or the
// defaults when cfg is nil) on first use.
func (m *Manager) GetOrCreate(name string, cfg *Config) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if breaker, ok := m.breakers[name]; ok {
		return breaker
	}

	if cfg == nil {
		cfg = DefaultConfig(name)
	} else if cfg.Name == "" {
		cfg.Name = name
	}

	breaker := New(cfg)
	m.breakers[name] = breaker
	return breaker
}

// Get returns the named breaker, or nil when it does not exist.
func (m *Manager) Get(name string) *Breaker {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.breakers[name]
}

// AllStats returns a snapshot of every registered breaker.
func (m *Manager) AllStats() map[string]Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]Stats, len(m.breakers))
	for name, breaker := range m.breakers {
		result[name] = breaker.Stats()
	}
	return result
}
