package phenome

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
	"github.com/vedprakash-m/ghost-trust-engine/internal/ports"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ghost.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	hr := 140.0
	snap := ports.PhenomeSnapshot{
		Sleep:     []domain.SleepRecord{{Date: time.Now(), TotalDuration: 7 * time.Hour, EfficiencyPct: 0.9}},
		HRV:       []domain.HRVReading{{Timestamp: time.Now(), ValueMS: 55}},
		RestingHR: []domain.RestingHRSample{{Timestamp: time.Now(), BPM: 52}},
		Workouts: []domain.DetectedWorkout{{
			ID: "w1", Type: domain.WorkoutRun, StartDate: time.Now(), EndDate: time.Now().Add(30 * time.Minute),
			Duration: 30 * time.Minute, ActiveCalories: 300, AverageHeartRate: &hr, Source: domain.SourceHealthKit,
		}},
		Blocks: []domain.TrainingBlock{{
			ID: "b1", WorkoutType: domain.WorkoutRun, StartTime: time.Now(), EndTime: time.Now().Add(time.Hour),
			Status: domain.BlockScheduled, GeneratedWorkout: &domain.GeneratedWorkout{Type: domain.WorkoutRun, TargetMinutes: 30},
		}},
		MorningStates:   []domain.MorningState{{Date: time.Now(), RecoveryScore: 0.7, FlaggedBlocks: []string{"b1"}}},
		Preferences:     []domain.WorkoutPreference{{Type: domain.WorkoutRun, Weight: 1.5}},
		SacredTimes:     []domain.SacredTime{{Key: domain.TimeSlotKey{DayOfWeek: 1, HourOfDay: 6}, Reason: domain.SacredRepeatedDeletions, CreatedAt: time.Now()}},
		TimeSlotStats:   []domain.TimeSlotStats{{Key: domain.TimeSlotKey{DayOfWeek: 1, HourOfDay: 6}, CompletedCount: 2, MissedCount: 1}},
		WorkoutPatterns: []domain.WorkoutPattern{{Type: domain.WorkoutRun, AdherenceRate: 0.8, PreferredDays: []int{1, 3, 5}, LastUpdated: time.Now()}},
		TrustPhase:      domain.PhaseScheduler,
		TrustScore:      42.5,
		Receipts: []domain.DecisionReceipt{{
			ID: "r1", Timestamp: time.Now(), Type: domain.ReceiptPhasePromotion, Outcome: domain.OutcomeAccepted,
			Confidence: 0.8, Decision: "promote", ExpiresAt: time.Now().Add(time.Hour),
		}},
	}

	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)

	require.Len(t, loaded.Sleep, 1)
	require.Len(t, loaded.HRV, 1)
	require.Len(t, loaded.RestingHR, 1)
	require.Len(t, loaded.Workouts, 1)
	require.NotNil(t, loaded.Workouts[0].AverageHeartRate)
	require.InDelta(t, 140.0, *loaded.Workouts[0].AverageHeartRate, 0.01)

	require.Len(t, loaded.Blocks, 1)
	require.NotNil(t, loaded.Blocks[0].GeneratedWorkout)
	require.Equal(t, 30, loaded.Blocks[0].GeneratedWorkout.TargetMinutes)

	require.Len(t, loaded.MorningStates, 1)
	require.Equal(t, []string{"b1"}, loaded.MorningStates[0].FlaggedBlocks)

	require.Len(t, loaded.Preferences, 1)
	require.Len(t, loaded.SacredTimes, 1)
	require.Len(t, loaded.TimeSlotStats, 1)
	require.Len(t, loaded.WorkoutPatterns, 1)
	require.Equal(t, domain.PhaseScheduler, loaded.TrustPhase)
	require.InDelta(t, 42.5, loaded.TrustScore, 0.001)
	require.Len(t, loaded.Receipts, 1)
}

func TestSQLiteStoreExpiredReceiptsAreNotLoaded(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ghost.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, ports.PhenomeSnapshot{
		Receipts: []domain.DecisionReceipt{{
			ID: "expired", Timestamp: time.Now().Add(-48 * time.Hour), Type: domain.ReceiptWindowProposal,
			Outcome: domain.OutcomePending, ExpiresAt: time.Now().Add(-time.Hour),
		}},
	}))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Empty(t, loaded.Receipts)
}

func TestSQLiteStoreRecordAndRecentProvenance(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "ghost.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.RecordProvenance(ctx, "skip_probability", 1, map[string]any{"x": 1.0}, 0.4))

	rows, err := store.RecentProvenance(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "skip_probability", rows[0].MetricName)
}
