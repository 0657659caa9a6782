// Package recovery implements the Recovery Analyzer and Pattern Detector
// (spec.md §4.5). The Analyzer is pure (a composite score over four
// normalized factors comparing a recent window to a 30-day baseline); the
// Detector is a cached, advisory bundle of behavioral patterns that the
// Ghost Engine turns into Skip Predictor features; neither the Optimal
// Window Finder nor the Trust State Machine consumes it.
package recovery

import (
	"fmt"

	"github.com/vedprakash-m/ghost-trust-engine/internal/config"
	"github.com/vedprakash-m/ghost-trust-engine/internal/metrics"
)

// MetricName is the metrics.Registry name the Analyzer registers its
// composite-score formula under.
const MetricName = "recovery_score"

// MetricVersion is bumped whenever the composite-score formula changes.
const MetricVersion = 1

// Impact classifies a Factor's current standing.
type Impact string

const (
	ImpactPositive Impact = "positive"
	ImpactNeutral  Impact = "neutral"
	ImpactNegative Impact = "negative"
)

// Trend classifies a Factor's recent-vs-baseline direction.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Factor is one of the four normalized inputs to the composite recovery
// score (spec.md §4.5).
type Factor struct {
	NormalizedValue float64 // [0, 1]
	Impact          Impact
	Trend           Trend
	Description     string
}

// Status bands the composite score into a recovery state (spec.md §4.5).
type Status string

const (
	StatusFullyRecovered     Status = "fully_recovered"
	StatusPartiallyRecovered Status = "partially_recovered"
	StatusFatigued           Status = "fatigued"
	StatusNeedsRest          Status = "needs_rest"
)

func statusFor(score float64) Status {
	switch {
	case score >= 75:
		return StatusFullyRecovered
	case score >= 50:
		return StatusPartiallyRecovered
	case score >= 25:
		return StatusFatigued
	default:
		return StatusNeedsRest
	}
}

// Recommendation is the fixed action/intensity pair a Status maps to.
type Recommendation struct {
	Action    string
	Intensity string
}

var recommendations = map[Status]Recommendation{
	StatusFullyRecovered:     {Action: "proceed_as_planned", Intensity: "full"},
	StatusPartiallyRecovered: {Action: "proceed_with_caution", Intensity: "moderate"},
	StatusFatigued:           {Action: "consider_lighter_session", Intensity: "light"},
	StatusNeedsRest:          {Action: "rest_or_active_recovery", Intensity: "rest"},
}

// Assessment is the Recovery Analyzer's output.
type Assessment struct {
	Score          float64 // [0, 100]
	Status         Status
	Recommendation Recommendation

	HRVTrend       Factor
	Sleep          Factor
	RecentStrain   Factor
	RestingHRTrend Factor
}

// Inputs bundles the recent (3-7 day) and 30-day baseline windows for each
// factor. Callers assemble these from RawStore readings; this package
// never reads a store directly.
type Inputs struct {
	RecentHRV, BaselineHRV               []float64 // ms
	RecentSleepHours, BaselineSleepHours []float64
	RecentStrain, BaselineStrain         []float64 // active-calorie load or equivalent
	RecentRestingHR, BaselineRestingHR   []float64 // bpm
}

// Engine computes Assessments against a fixed factor-weight configuration.
// Holds no mutable state; safe for concurrent use.
type Engine struct {
	cfg      *config.Config
	registry *metrics.Registry
}

// New creates an Engine bound to cfg's recovery weights.
func New(cfg *config.Config, registry *metrics.Registry) *Engine {
	if registry != nil {
		registry.Register(MetricName, MetricVersion)
	}
	return &Engine{cfg: cfg, registry: registry}
}

// direction records whether a higher recent-vs-baseline value is good
// (HRV, sleep) or bad (strain, resting heart rate).
type direction int

const (
	higherIsBetter direction = iota
	lowerIsBetter
)

// Assess computes the composite recovery score and its four contributing
// factors (spec.md §4.5).
func (e *Engine) Assess(in Inputs) Assessment {
	hrv := computeFactor(mean(in.RecentHRV), mean(in.BaselineHRV), higherIsBetter, "HRV")
	sleep := computeFactor(mean(in.RecentSleepHours), mean(in.BaselineSleepHours), higherIsBetter, "sleep")
	strain := computeFactor(mean(in.RecentStrain), mean(in.BaselineStrain), lowerIsBetter, "recent strain")
	restingHR := computeFactor(mean(in.RecentRestingHR), mean(in.BaselineRestingHR), lowerIsBetter, "resting heart rate")

	compute := func() float64 {
		w := e.cfg.RecoveryWeights
		raw := w["hrv_trend"]*hrv.NormalizedValue +
			w["sleep"]*sleep.NormalizedValue +
			w["recent_strain"]*strain.NormalizedValue +
			w["resting_hr_trend"]*restingHR.NormalizedValue
		return raw * 100
	}

	var score float64
	if e.registry != nil {
		score = e.registry.Compute(MetricName, MetricVersion, map[string]any{
			"hrv":        hrv.NormalizedValue,
			"sleep":      sleep.NormalizedValue,
			"strain":     strain.NormalizedValue,
			"resting_hr": restingHR.NormalizedValue,
		}, compute)
	} else {
		score = compute()
	}

	status := statusFor(score)
	return Assessment{
		Score:          score,
		Status:         status,
		Recommendation: recommendations[status],
		HRVTrend:       hrv,
		Sleep:          sleep,
		RecentStrain:   strain,
		RestingHRTrend: restingHR,
	}
}

// computeFactor compares recentMean to baselineMean and normalizes the
// result to [0, 1], where 0.5 means "matches baseline," ~1.0 means
// "meaningfully better," and ~0.0 means "meaningfully worse." Missing
// baseline data (baselineMean <= 0) is treated as neutral rather than an
// extreme in either direction.
func computeFactor(recentMean, baselineMean float64, dir direction, label string) Factor {
	if baselineMean <= 0 {
		return Factor{
			NormalizedValue: 0.5,
			Impact:          ImpactNeutral,
			Trend:           TrendStable,
			Description:     fmt.Sprintf("%s: insufficient baseline data", label),
		}
	}

	var ratio float64
	if dir == higherIsBetter {
		ratio = recentMean / baselineMean
	} else if recentMean > 0 {
		ratio = baselineMean / recentMean
	} else {
		ratio = 1
	}

	normalized := ratio * 0.5
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	trend := TrendStable
	switch {
	case ratio > 1.05:
		trend = TrendImproving
	case ratio < 0.95:
		trend = TrendDeclining
	}

	impact := ImpactNeutral
	switch {
	case normalized >= 0.6:
		impact = ImpactPositive
	case normalized <= 0.4:
		impact = ImpactNegative
	}

	return Factor{
		NormalizedValue: normalized,
		Impact:          impact,
		Trend:           trend,
		Description:     fmt.Sprintf("%s: recent %.2f vs. 30-day baseline %.2f", label, recentMean, baselineMean),
	}
}
