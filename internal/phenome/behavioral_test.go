package phenome

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
)

func TestBehavioralStoreRecordPenaltyPromotesAtThreshold(t *testing.T) {
	s := NewBehavioralStore()
	key := domain.TimeSlotKey{DayOfWeek: 1, HourOfDay: 7}

	require.False(t, s.RecordPenalty(key))
	require.False(t, s.RecordPenalty(key))
	require.False(t, s.IsSacred(key))

	promoted := s.RecordPenalty(key)
	require.True(t, promoted)
	require.True(t, s.IsSacred(key))

	stats := s.SlotStats(key)
	require.Equal(t, 3, stats.PenaltyCount)
}

func TestBehavioralStoreRecordPenaltyIsIdempotentAfterPromotion(t *testing.T) {
	s := NewBehavioralStore()
	key := domain.TimeSlotKey{DayOfWeek: 2, HourOfDay: 6}
	for i := 0; i < 3; i++ {
		s.RecordPenalty(key)
	}
	require.True(t, s.IsSacred(key))

	// A fourth penalty should not "re-promote" or duplicate the sacred entry.
	promoted := s.RecordPenalty(key)
	require.False(t, promoted)
	require.Len(t, s.SacredTimes(), 1)
}

func TestBehavioralStoreDesignateSacredTimeBypassesThreshold(t *testing.T) {
	s := NewBehavioralStore()
	key := domain.TimeSlotKey{DayOfWeek: 6, HourOfDay: 8}
	s.DesignateSacredTime(key, domain.SacredWeekendMorning)
	require.True(t, s.IsSacred(key))
}

func TestBehavioralStoreSlotStatsDefaultsWhenUnseen(t *testing.T) {
	s := NewBehavioralStore()
	key := domain.TimeSlotKey{DayOfWeek: 3, HourOfDay: 18}
	stats := s.SlotStats(key)
	require.InDelta(t, 0.5, stats.CompletionRate(), 0.001)
}

func TestBehavioralStoreReadersSeeConsistentSnapshotDuringConcurrentWrites(t *testing.T) {
	s := NewBehavioralStore()
	key := domain.TimeSlotKey{DayOfWeek: 4, HourOfDay: 9}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				s.RecordCompletion(key, time.Now())
			}
		}
	}()

	for i := 0; i < 1000; i++ {
		stats := s.SlotStats(key)
		require.GreaterOrEqual(t, stats.CompletedCount, 0)
	}
	close(stop)
	wg.Wait()
}

func TestBehavioralStoreRestoreReplacesContents(t *testing.T) {
	s := NewBehavioralStore()
	s.RecordPenalty(domain.TimeSlotKey{DayOfWeek: 1, HourOfDay: 1})

	s.Restore(
		[]domain.WorkoutPreference{{Type: domain.WorkoutRun, Weight: 2.0}},
		[]domain.SacredTime{{Key: domain.TimeSlotKey{DayOfWeek: 7, HourOfDay: 10}, Reason: domain.SacredLunchHour}},
		nil, nil,
	)

	require.False(t, s.IsSacred(domain.TimeSlotKey{DayOfWeek: 1, HourOfDay: 1}))
	require.True(t, s.IsSacred(domain.TimeSlotKey{DayOfWeek: 7, HourOfDay: 10}))

	pref, ok := s.Preference(domain.WorkoutRun)
	require.True(t, ok)
	require.InDelta(t, 2.0, pref.Weight, 0.001)
}
