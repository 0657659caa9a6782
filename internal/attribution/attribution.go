// Package attribution implements the Trust Attribution Engine (spec.md
// §4.2): pure event-to-delta calculation. Nothing in this package performs
// I/O, reads a clock, or consults randomness — delta is a deterministic
// function of (event, phase, trustScore, streak) so the same inputs always
// produce the byte-identical result the testable properties require.
package attribution

import (
	"math"

	"github.com/vedprakash-m/ghost-trust-engine/internal/config"
	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
	"github.com/vedprakash-m/ghost-trust-engine/internal/metrics"
)

// MetricName is the metrics.Registry name this package registers its
// formula under.
const MetricName = "trust_delta"

// MetricVersion is bumped whenever the delta formula's shape changes in a
// way that would make old provenance entries misleading.
const MetricVersion = 1

// maxAbsDelta bounds |delta| after all modifiers (spec.md §4.2).
const maxAbsDelta = 20.0

// MaxAbsDelta is maxAbsDelta exported for call sites (the Trust State
// Machine's streak bonus) that add to a delta after Delta returns and must
// re-clamp the combined total to the same bound.
const MaxAbsDelta = maxAbsDelta

// Engine computes attribution deltas against a fixed weight configuration.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	cfg      *config.Config
	registry *metrics.Registry
}

// New creates an Engine bound to cfg's base weights and phase modifiers,
// recording every computation to registry if non-nil.
func New(cfg *config.Config, registry *metrics.Registry) *Engine {
	if registry != nil {
		registry.Register(MetricName, MetricVersion)
	}
	return &Engine{cfg: cfg, registry: registry}
}

// baseWeightKey maps an event (and, for BlockDeleted, whether it targeted
// an auto-scheduled block) to the config key carrying its base weight.
func baseWeightKey(e domain.TrustEvent) (string, bool) {
	switch e.Kind {
	case domain.EventWorkoutCompleted:
		return "workout_completed", true
	case domain.EventBlockAccepted:
		return "block_accepted", true
	case domain.EventProposalAccepted:
		return "proposal_accepted", true
	case domain.EventTriageResponded:
		return "triage_responded", true
	case domain.EventAppOpened:
		return "app_opened", true
	case domain.EventBlockMissed:
		return "block_missed", true
	case domain.EventProposalRejected:
		return "proposal_rejected", true
	case domain.EventBlockDeleted:
		if e.WasAutoScheduledDeletion() {
			return "block_deleted_auto", true
		}
		return "block_deleted_manual", true
	case domain.EventPermissionRevoked:
		return "permission_revoked", true
	default:
		return "", false
	}
}

// Delta computes the signed trust delta for e, given the phase and
// trustScore at the moment of application. Returns (delta, ok); ok is
// false for an unrecognized event kind (spec.md §4.1 "unknown event
// variant" path — caller logs and skips, no state change).
func (a *Engine) Delta(e domain.TrustEvent, phase domain.TrustPhase, trustScore float64) (float64, bool) {
	key, ok := baseWeightKey(e)
	if !ok {
		return 0, false
	}
	base, ok := a.cfg.BaseWeights[key]
	if !ok {
		return 0, false
	}

	compute := func() float64 {
		phaseMod := a.cfg.PhaseModifiers[phase.String()]
		if phaseMod == 0 {
			phaseMod = 1.0
		}
		confMod := confidenceModifier(e)
		raw := base * phaseMod * confMod
		return applyDiminishingReturns(raw, trustScore)
	}

	var delta float64
	if a.registry != nil {
		delta = a.registry.Compute(MetricName, MetricVersion, map[string]any{
			"event":       string(e.Kind),
			"phase":       phase.String(),
			"trust_score": trustScore,
		}, compute)
	} else {
		delta = compute()
	}

	if delta > maxAbsDelta {
		delta = maxAbsDelta
	} else if delta < -maxAbsDelta {
		delta = -maxAbsDelta
	}
	return delta, true
}

// confidenceModifier applies the per-event-kind modifier described in
// spec.md §4.2. WorkoutCompleted scales with session duration;
// BlockMissed scales the penalty directly by the stated excuse's weight —
// NoReason carries weight 1.0 (full penalty), every recognized excuse
// shrinks the penalty toward zero. All other events use a neutral 1.0
// modifier.
func confidenceModifier(e domain.TrustEvent) float64 {
	switch e.Kind {
	case domain.EventWorkoutCompleted:
		if e.Workout == nil {
			return 1.0
		}
		minutes := e.Workout.Duration.Minutes()
		return math.Min(1.5, minutes/45.0)
	case domain.EventBlockMissed:
		return e.MissedReason.ExcuseWeight()
	default:
		return 1.0
	}
}

// applyDiminishingReturns scales a raw delta so high-trust users have more
// to lose and low-trust users find it easier to gain (spec.md §4.2).
func applyDiminishingReturns(raw float64, trustScore float64) float64 {
	if raw >= 0 {
		return raw * (100 - trustScore) / 100
	}
	return raw * (1 + trustScore/100)
}

// streakCap is the maximum streak bonus (spec.md §4.2).
const streakCap = 5.0

// StreakBonus returns the additional delta earned for consecutive
// WorkoutCompleted events. consecutive counts completed workouts in the
// current unbroken streak (including the one just completed). Zero for 2
// or fewer; otherwise 0.5 per day in the streak, capped at 5.0.
func StreakBonus(consecutive int) float64 {
	if consecutive <= 2 {
		return 0
	}
	bonus := 0.5 * float64(consecutive)
	if bonus > streakCap {
		return streakCap
	}
	return bonus
}
