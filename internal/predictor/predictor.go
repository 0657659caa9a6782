// Package predictor implements the Skip Predictor (spec.md §4.4): a
// rule-based, feature-weighted probability that a scheduled TrainingBlock
// will be skipped, plus a confidence score derived from how much history
// backs the estimate. Like internal/attribution, it is pure — callers
// gather Features from the Phenome stores and pass them in; nothing here
// reads a store directly.
package predictor

import (
	"github.com/vedprakash-m/ghost-trust-engine/internal/config"
	"github.com/vedprakash-m/ghost-trust-engine/internal/metrics"
)

// MetricName is the metrics.Registry name this package registers its
// formula under.
const MetricName = "skip_probability"

// MetricVersion is bumped whenever the weighting formula's shape changes.
const MetricVersion = 1

// activationThreshold is the minimum normalized feature value required for
// a feature to contribute at all (spec.md §4.4: "time-slot miss-rate >
// 0.5" is given as the worked example; this package applies the same 0.5
// gate uniformly across every proportion-shaped feature for consistency).
const activationThreshold = 0.5

// streakPerDay and streakCap implement the streak-length feature's fixed
// formula verbatim (spec.md §4.4: "each day −0.03, capped at −0.15").
const (
	streakPerDay = 0.03
	streakCap    = 0.15
	// minActivatingStreak is the shortest streak that counts as
	// "established" enough to suppress skip risk at all.
	minActivatingStreak = 3
)

// Recommendation is the action the caller should take given an
// Assessment's skip probability (spec.md §4.4 recommendation mapping).
type Recommendation string

const (
	RecommendProceed              Recommendation = "proceed"
	RecommendMonitorClosely       Recommendation = "monitor_closely"
	RecommendConsiderRescheduling Recommendation = "consider_rescheduling"
	RecommendSuggestAlternative   Recommendation = "suggest_alternative"
	RecommendProactiveReschedule  Recommendation = "proactive_reschedule"
)

// recommendationFor maps a clamped skip probability to a Recommendation.
func recommendationFor(p float64) Recommendation {
	switch {
	case p < 0.2:
		return RecommendProceed
	case p < 0.4:
		return RecommendMonitorClosely
	case p < 0.6:
		return RecommendConsiderRescheduling
	case p < 0.8:
		return RecommendSuggestAlternative
	default:
		return RecommendProactiveReschedule
	}
}

// Features bundles everything the Skip Predictor needs for one
// TrainingBlock. Callers assemble it from the Phenome stores and analytics
// (TimeSlotStats for TimeSlotMissRate, past TrainingBlocks on the same
// weekday for DayOfWeekMissRate, the Pattern Detector's bundle for
// WorkoutTypeAdherence and StreakLength, the Recovery Analyzer's latest
// score, and the busy-slot share of the 06:00-22:00 day for CalendarDensity).
type Features struct {
	TimeSlotMissRate     float64 // [0, 1]
	WorkoutTypeAdherence float64 // [0, 1]
	RecoveryScore        float64 // [0, 100]; 0 means "unknown," not "fully depleted"
	CalendarDensity      float64 // [0, 1]: fraction of the day window already booked
	DayOfWeekMissRate    float64 // [0, 1]
	StreakLength         int     // consecutive completed workouts immediately preceding this block

	// DataPoints is the number of historical observations backing
	// TimeSlotMissRate/DayOfWeekMissRate, used only to compute Confidence.
	DataPoints int
}

// Assessment is the Skip Predictor's output for one TrainingBlock.
type Assessment struct {
	SkipProbability float64
	Confidence      float64
	Recommendation  Recommendation
}

// Engine computes Assessments against a fixed feature-weight
// configuration. Holds no mutable state; safe for concurrent use.
type Engine struct {
	cfg      *config.Config
	registry *metrics.Registry
}

// New creates an Engine bound to cfg's feature weights.
func New(cfg *config.Config, registry *metrics.Registry) *Engine {
	if registry != nil {
		registry.Register(MetricName, MetricVersion)
	}
	return &Engine{cfg: cfg, registry: registry}
}

// Assess computes the skip probability, confidence, and recommendation for
// f (spec.md §4.4).
func (e *Engine) Assess(f Features) Assessment {
	compute := func() float64 { return e.skipProbability(f) }

	var probability float64
	if e.registry != nil {
		probability = e.registry.Compute(MetricName, MetricVersion, map[string]any{
			"time_slot_miss_rate":     f.TimeSlotMissRate,
			"workout_type_adherence":  f.WorkoutTypeAdherence,
			"recovery_score":          f.RecoveryScore,
			"calendar_density":        f.CalendarDensity,
			"day_of_week_miss_rate":   f.DayOfWeekMissRate,
			"streak_length":           f.StreakLength,
		}, compute)
	} else {
		probability = compute()
	}

	return Assessment{
		SkipProbability: probability,
		Confidence:      confidence(f),
		Recommendation:  recommendationFor(probability),
	}
}

// skipProbability turns each feature into a risk contribution in [0, weight]
// and sums the activated ones. "−" direction features (workout-type
// adherence, recovery score) are risk contributors too — a LOW value of a
// protective signal is itself the risk — so each is inverted to
// 1-normalizedValue before the same >activationThreshold gate and weighted
// sum applies uniformly across all five proportion-shaped features. Streak
// length is the exception: spec.md §4.4 gives it an explicit, literal
// formula (−0.03/day, capped at −0.15) that subtracts directly from the
// total rather than folding into the weighted sum (see DESIGN.md).
func (e *Engine) skipProbability(f Features) float64 {
	w := e.cfg.FeatureWeights
	var p float64

	if f.TimeSlotMissRate > activationThreshold {
		p += w["time_slot_miss_rate"] * f.TimeSlotMissRate
	}
	if adherenceRisk := 1 - f.WorkoutTypeAdherence; adherenceRisk > activationThreshold {
		p += w["workout_type_adherence"] * adherenceRisk
	}
	// RecoveryScore == 0 means "unknown," not "fully depleted" (Features
	// doc comment); an unknown recovery score never activates this feature.
	if recoveryRisk := 1 - f.RecoveryScore/100; f.RecoveryScore > 0 && recoveryRisk > activationThreshold {
		p += w["recovery_score"] * recoveryRisk
	}
	if f.CalendarDensity > activationThreshold {
		p += w["calendar_density"] * f.CalendarDensity
	}
	if f.DayOfWeekMissRate > activationThreshold {
		p += w["day_of_week_miss_rate"] * f.DayOfWeekMissRate
	}
	if f.StreakLength >= minActivatingStreak {
		reduction := float64(f.StreakLength) * streakPerDay
		if reduction > streakCap {
			reduction = streakCap
		}
		p -= reduction
	}

	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// confidence implements spec.md §4.4's data-availability scoring: a base
// of 0.5, plus 0.1 for each of five signals that enough data exists to
// trust the estimate, capped at 1.0.
func confidence(f Features) float64 {
	c := 0.5
	for _, threshold := range []int{10, 30, 90} {
		if f.DataPoints >= threshold {
			c += 0.1
		}
	}
	if f.RecoveryScore != 0 {
		c += 0.1
	}
	if f.CalendarDensity >= 0 {
		c += 0.1
	}
	if c > 1.0 {
		return 1.0
	}
	return c
}
