package recovery

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vedprakash-m/ghost-trust-engine/internal/config"
	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
)

func blockAt(day time.Time, hour int, status domain.BlockStatus, wt domain.WorkoutType) domain.TrainingBlock {
	start := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.UTC)
	return domain.TrainingBlock{
		ID: "b", StartTime: start, EndTime: start.Add(45 * time.Minute),
		Status: status, WorkoutType: wt,
	}
}

// mondaysAndTuesdays builds a block history where Monday 07:00 runs are
// completed reliably and Tuesday 07:00 runs are missed reliably.
func mondaysAndTuesdays() []domain.TrainingBlock {
	var blocks []domain.TrainingBlock
	base := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC) // a Monday
	for week := 0; week < 6; week++ {
		monday := base.AddDate(0, 0, week*7)
		tuesday := monday.AddDate(0, 0, 1)
		blocks = append(blocks, blockAt(monday, 7, domain.BlockCompleted, domain.WorkoutRun))
		blocks = append(blocks, blockAt(tuesday, 7, domain.BlockMissed, domain.WorkoutRun))
	}
	return blocks
}

func TestWeekdayPatternIdentifiesBestAndWorstDaysWithEnoughSamples(t *testing.T) {
	blocks := mondaysAndTuesdays()
	pattern := detectWeekdayPattern(blocks)

	require.Contains(t, pattern.BestDays, 1)  // Monday
	require.Contains(t, pattern.WorstDays, 2) // Tuesday
}

func TestWeekdayPatternIgnoresDaysBelowSampleFloor(t *testing.T) {
	base := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	blocks := []domain.TrainingBlock{
		blockAt(base, 7, domain.BlockCompleted, domain.WorkoutRun),
		blockAt(base, 7, domain.BlockCompleted, domain.WorkoutRun),
	}
	pattern := detectWeekdayPattern(blocks)
	require.Empty(t, pattern.BestDays)
	require.Empty(t, pattern.WorstDays)
}

func TestStreakPatternTracksCurrentAndLongestRuns(t *testing.T) {
	base := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	blocks := []domain.TrainingBlock{
		blockAt(base, 7, domain.BlockCompleted, domain.WorkoutRun),
		blockAt(base.AddDate(0, 0, 1), 7, domain.BlockCompleted, domain.WorkoutRun),
		blockAt(base.AddDate(0, 0, 2), 7, domain.BlockMissed, domain.WorkoutRun),
		blockAt(base.AddDate(0, 0, 3), 7, domain.BlockCompleted, domain.WorkoutRun),
	}
	streak := detectStreakPattern(blocks)
	require.Equal(t, 1, streak.CurrentStreak)
	require.Equal(t, 2, streak.LongestStreak)
}

func TestSkipPatternFindsCommonSkipDay(t *testing.T) {
	blocks := mondaysAndTuesdays()
	pattern := detectSkipPattern(blocks)
	require.Contains(t, pattern.CommonSkipDays, 2) // every miss is on Tuesday
}

func TestDetectorCachesWithinTTLAndRefreshesAfter(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PatternCacheHours = 6
	clock := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	d := NewDetector(cfg).WithClock(func() time.Time { return clock })

	blocks := mondaysAndTuesdays()
	first := d.Patterns(blocks, nil, false)

	clock = clock.Add(1 * time.Hour)
	second := d.Patterns(nil, nil, false) // would look empty if recomputed
	require.Same(t, first, second)

	clock = clock.Add(6 * time.Hour)
	third := d.Patterns(nil, nil, false)
	require.NotSame(t, first, third)
	require.Zero(t, third.DataPoints)
}

func TestConfidentRequiresAtLeastTenDataPoints(t *testing.T) {
	cfg := config.DefaultConfig()
	d := NewDetector(cfg)

	sparse := d.Patterns(mondaysAndTuesdays()[:4], nil, true)
	require.False(t, sparse.Confident)

	rich := d.Patterns(mondaysAndTuesdays(), nil, true)
	require.True(t, rich.Confident)
}
