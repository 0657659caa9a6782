package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
)

// TestOptimalWindowOnPackedDay seeds the "Optimal window on a packed day"
// scenario: a calendar with four busy blocks and a 45-minute workout. The
// Finder must return at least one window, none overlapping a busy block,
// and each suggested start time must fall within its own window (at or
// after its start, before its end).
func TestOptimalWindowOnPackedDay(t *testing.T) {
	f := newTestFinder()
	date := day(t, 0, 0)

	busy := []domain.TimeWindow{
		{Start: day(t, 9, 0), End: day(t, 10, 0)},
		{Start: day(t, 11, 0), End: day(t, 12, 30)},
		{Start: day(t, 14, 0), End: day(t, 15, 0)},
		{Start: day(t, 17, 0), End: day(t, 18, 0)},
	}

	candidates := f.Find(Inputs{
		Date:            date,
		WorkoutType:     domain.WorkoutRun,
		WorkoutDuration: 45 * time.Minute,
		K:               10,
		BusySlots:       busy,
	})
	require.NotEmpty(t, candidates)

	for _, c := range candidates {
		for _, b := range busy {
			require.False(t, c.Window.Overlaps(b), "candidate %v overlaps busy block %v", c.Window, b)
		}
		require.True(t, c.SuggestedStartTime.After(c.Window.Start) || c.SuggestedStartTime.Equal(c.Window.Start))
		require.True(t, c.SuggestedStartTime.Before(c.Window.End))
	}
}
