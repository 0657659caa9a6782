package predictor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vedprakash-m/ghost-trust-engine/internal/config"
	"github.com/vedprakash-m/ghost-trust-engine/internal/metrics"
)

func newTestEngine() *Engine {
	return New(config.DefaultConfig(), metrics.New(100))
}

func TestNoActivatedFeaturesYieldsZeroProbabilityAndProceed(t *testing.T) {
	e := newTestEngine()
	a := e.Assess(Features{
		TimeSlotMissRate:     0.1,
		WorkoutTypeAdherence: 0.9, // high adherence: protective, not a risk contributor
		RecoveryScore:        80,  // well recovered: protective
		CalendarDensity:      0.1,
		DayOfWeekMissRate:    0.1,
		StreakLength:         0,
	})
	require.Zero(t, a.SkipProbability)
	require.Equal(t, RecommendProceed, a.Recommendation)
}

func TestHighMissRateDensityAndLowAdherenceDriveProactiveReschedule(t *testing.T) {
	e := newTestEngine()
	a := e.Assess(Features{
		TimeSlotMissRate:     0.95,
		WorkoutTypeAdherence: 0.05,
		RecoveryScore:        5,
		CalendarDensity:      0.95,
		DayOfWeekMissRate:    0.9,
		DataPoints:           100,
	})
	require.Equal(t, RecommendProactiveReschedule, a.Recommendation)
	require.LessOrEqual(t, a.SkipProbability, 1.0)
}

func TestHighAdherenceAndRecoverySuppressSkipProbabilityRelativeToLow(t *testing.T) {
	e := newTestEngine()
	lowProtection := e.Assess(Features{
		TimeSlotMissRate:     0.9,
		WorkoutTypeAdherence: 0.1,
		RecoveryScore:        10,
	})
	highProtection := e.Assess(Features{
		TimeSlotMissRate:     0.9,
		WorkoutTypeAdherence: 0.95,
		RecoveryScore:        95,
	})
	require.Less(t, highProtection.SkipProbability, lowProtection.SkipProbability)
}

func TestStreakLengthReducesProbabilityAndCapsAtThreeCap(t *testing.T) {
	e := newTestEngine()
	base := e.Assess(Features{TimeSlotMissRate: 0.9, StreakLength: 0})
	fiveDayStreak := e.Assess(Features{TimeSlotMissRate: 0.9, StreakLength: 5})
	tenDayStreak := e.Assess(Features{TimeSlotMissRate: 0.9, StreakLength: 10})

	require.Less(t, fiveDayStreak.SkipProbability, base.SkipProbability)
	// 5 days already exceeds the 0.15 cap (5 * 0.03 = 0.15); 10 days must
	// not reduce probability any further than 5 days did.
	require.InDelta(t, fiveDayStreak.SkipProbability, tenDayStreak.SkipProbability, 1e-9)
}

func TestConfidenceGrowsWithDataAvailabilityAndCapsAtOne(t *testing.T) {
	e := newTestEngine()
	sparse := e.Assess(Features{DataPoints: 0, RecoveryScore: 0, CalendarDensity: 0})
	require.InDelta(t, 0.6, sparse.Confidence, 1e-9) // 0.5 base + 0.1 for non-negative density

	rich := e.Assess(Features{DataPoints: 90, RecoveryScore: 60, CalendarDensity: 0.2})
	require.InDelta(t, 1.0, rich.Confidence, 1e-9)
}

func TestRecommendationMappingBoundaries(t *testing.T) {
	require.Equal(t, RecommendProceed, recommendationFor(0.19))
	require.Equal(t, RecommendMonitorClosely, recommendationFor(0.2))
	require.Equal(t, RecommendMonitorClosely, recommendationFor(0.39))
	require.Equal(t, RecommendConsiderRescheduling, recommendationFor(0.4))
	require.Equal(t, RecommendConsiderRescheduling, recommendationFor(0.59))
	require.Equal(t, RecommendSuggestAlternative, recommendationFor(0.6))
	require.Equal(t, RecommendSuggestAlternative, recommendationFor(0.79))
	require.Equal(t, RecommendProactiveReschedule, recommendationFor(0.8))
}

func TestSkipProbabilityNeverLeavesZeroToOne(t *testing.T) {
	e := newTestEngine()
	a := e.Assess(Features{
		TimeSlotMissRate:     1.0,
		WorkoutTypeAdherence: 0.0,
		RecoveryScore:        0.01,
		CalendarDensity:      1.0,
		DayOfWeekMissRate:    1.0,
		StreakLength:         0,
	})
	require.GreaterOrEqual(t, a.SkipProbability, 0.0)
	require.LessOrEqual(t, a.SkipProbability, 1.0)
}
