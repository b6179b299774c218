// Package score combines per-source scan results into the composite scores
// that drive reports, rankings and the shame wall.
package score

import (
	"errors"
	"fmt"
	"math"

	"github.com/codeforpakistan/watchtower-api/internal/models"
	"github.com/codeforpakistan/watchtower-api/internal/scanerr"
)

// Default weights and shame thresholds.
const (
	DefaultPerformanceWeight     = 0.4
	DefaultAIWeight              = 0.6
	DefaultShameMinPerformance   = 30.0
	DefaultShameMinAccessibility = 50.0
	DefaultShameMinComposite     = 40.0
)

// weightSumTolerance absorbs float drift when validating that weights sum to 1.
const weightSumTolerance = 1e-9

// Weights holds the named dimension weights for the composite score.
type Weights struct {
	Performance float64 `json:"performance"`
	AIQuality   float64 `json:"aiQuality"`
}

// DefaultWeights returns the standard 40/60 performance/AI split.
func DefaultWeights() Weights {
	return Weights{
		Performance: DefaultPerformanceWeight,
		AIQuality:   DefaultAIWeight,
	}
}

// Validate checks that the weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	if w.Performance < 0 || w.AIQuality < 0 {
		return errors.New("weights cannot be negative")
	}
	if math.Abs(w.Performance+w.AIQuality-1.0) > weightSumTolerance {
		return fmt.Errorf("weights must sum to 1, got %v", w.Performance+w.AIQuality)
	}
	return nil
}

// ShamePolicy defines the thresholds below which a report is flagged for the
// shame wall. Only dimensions the scan actually produced are evaluated.
type ShamePolicy struct {
	MinPerformance   float64 `json:"minPerformance"`
	MinAccessibility float64 `json:"minAccessibility"`
	MinComposite     float64 `json:"minComposite"`
}

// DefaultShamePolicy returns the standard shame thresholds.
func DefaultShamePolicy() ShamePolicy {
	return ShamePolicy{
		MinPerformance:   DefaultShameMinPerformance,
		MinAccessibility: DefaultShameMinAccessibility,
		MinComposite:     DefaultShameMinComposite,
	}
}

// Result is the outcome of aggregating one scan's source results.
type Result struct {
	Composite    float64
	Dimensions   models.DimensionScores
	Degraded     bool
	ShameWorthy  bool
	ShameReasons []string
}

// Aggregator combines per-source scan outcomes into scores. It is pure and
// deterministic: the same inputs always produce bit-identical results, and
// sources are positional so there is no ordering to vary.
type Aggregator struct {
	weights Weights
	shame   ShamePolicy
}

// NewAggregator creates an aggregator with the given weights and shame policy.
// Returns an error if the weights are invalid.
func NewAggregator(weights Weights, shame ShamePolicy) (*Aggregator, error) {
	if err := weights.Validate(); err != nil {
		return nil, fmt.Errorf("invalid weights: %w", err)
	}
	return &Aggregator{weights: weights, shame: shame}, nil
}

// Weights returns the configured weights.
func (a *Aggregator) Weights() Weights {
	return a.weights
}

// Aggregate combines a performance result and an AI assessment, either of
// which may be nil, into a composite score with a per-dimension breakdown.
//
// Both present: composite = performance-weight x performance score +
// AI-weight x AI-composite, where AI-composite is the unweighted mean of the
// four AI dimensions. One present: composite = that source's own score and
// the result is degraded. Neither present: a no-data error, and the caller
// must not persist a report. Scores are clamped to [0,100] on the way in and
// rounded to two decimals on the way out.
func (a *Aggregator) Aggregate(perf *models.PerformanceMetrics, ai *models.AIAssessment) (*Result, error) {
	if perf == nil && ai == nil {
		return nil, scanerr.NoData("no source produced data")
	}

	result := &Result{}

	var perfScore float64
	if perf != nil {
		perfScore = clamp(perf.Score)
		result.Dimensions.Performance = ptr(round2(perfScore))
	}

	var aiComposite float64
	if ai != nil {
		accessibility := clamp(ai.Accessibility)
		design := clamp(ai.Design)
		content := clamp(ai.Content)
		usability := clamp(ai.Usability)

		aiComposite = (accessibility + design + content + usability) / 4

		result.Dimensions.Accessibility = ptr(round2(accessibility))
		result.Dimensions.Design = ptr(round2(design))
		result.Dimensions.Content = ptr(round2(content))
		result.Dimensions.Usability = ptr(round2(usability))
		result.Dimensions.AIComposite = ptr(round2(aiComposite))
	}

	switch {
	case perf != nil && ai != nil:
		result.Composite = round2(a.weights.Performance*perfScore + a.weights.AIQuality*aiComposite)
	case perf != nil:
		result.Composite = round2(perfScore)
		result.Degraded = true
	default:
		result.Composite = round2(aiComposite)
		result.Degraded = true
	}

	result.ShameReasons = a.shameReasons(perf, ai, result.Composite)
	result.ShameWorthy = len(result.ShameReasons) > 0

	return result, nil
}

// shameReasons evaluates the shame policy against the dimensions present.
func (a *Aggregator) shameReasons(perf *models.PerformanceMetrics, ai *models.AIAssessment, composite float64) []string {
	var reasons []string

	if perf != nil && clamp(perf.Score) < a.shame.MinPerformance {
		reasons = append(reasons, fmt.Sprintf("performance score %.1f below %.1f",
			clamp(perf.Score), a.shame.MinPerformance))
	}
	if ai != nil && clamp(ai.Accessibility) < a.shame.MinAccessibility {
		reasons = append(reasons, fmt.Sprintf("accessibility score %.1f below %.1f",
			clamp(ai.Accessibility), a.shame.MinAccessibility))
	}
	if composite < a.shame.MinComposite {
		reasons = append(reasons, fmt.Sprintf("composite score %.1f below %.1f",
			composite, a.shame.MinComposite))
	}

	return reasons
}

// clamp bounds a score to [0, 100].
func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// round2 rounds to two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func ptr(v float64) *float64 {
	return &v
}
