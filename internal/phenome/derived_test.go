package phenome

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
)

func TestDerivedStoreUpsertAndFetchBlock(t *testing.T) {
	s := NewDerivedStore(30)
	b := domain.TrainingBlock{ID: "b1", Status: domain.BlockScheduled, StartTime: time.Now()}
	s.UpsertBlock(b)

	got, ok := s.Block("b1")
	require.True(t, ok)
	require.Equal(t, domain.BlockScheduled, got.Status)
}

func TestDerivedStoreMutateBlockAppliesUnderLock(t *testing.T) {
	s := NewDerivedStore(30)
	s.UpsertBlock(domain.TrainingBlock{ID: "b1", Status: domain.BlockScheduled})

	ok := s.MutateBlock("b1", func(b domain.TrainingBlock) domain.TrainingBlock {
		b.Status = domain.BlockCompleted
		return b
	})
	require.True(t, ok)

	got, _ := s.Block("b1")
	require.Equal(t, domain.BlockCompleted, got.Status)

	require.False(t, s.MutateBlock("missing", func(b domain.TrainingBlock) domain.TrainingBlock { return b }))
}

func TestDerivedStoreUpcomingBlocksFiltersPastAndNonScheduled(t *testing.T) {
	s := NewDerivedStore(30)
	now := time.Now()
	s.UpsertBlock(domain.TrainingBlock{ID: "past", Status: domain.BlockScheduled, StartTime: now.Add(-time.Hour)})
	s.UpsertBlock(domain.TrainingBlock{ID: "future", Status: domain.BlockScheduled, StartTime: now.Add(time.Hour)})
	s.UpsertBlock(domain.TrainingBlock{ID: "completed", Status: domain.BlockCompleted, StartTime: now.Add(time.Hour)})

	upcoming := s.UpcomingBlocks(now)
	require.Len(t, upcoming, 1)
	require.Equal(t, "future", upcoming[0].ID)
}

func TestDerivedStoreConcurrentMutateDifferentBlocksDoesNotRace(t *testing.T) {
	s := NewDerivedStore(30)
	for i := 0; i < 50; i++ {
		s.UpsertBlock(domain.TrainingBlock{ID: string(rune('a' + i%26)), Status: domain.BlockScheduled})
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		id := string(rune('a' + i%26))
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s.MutateBlock(id, func(b domain.TrainingBlock) domain.TrainingBlock {
				b.Status = domain.BlockCompleted
				return b
			})
		}(id)
	}
	wg.Wait()

	for _, b := range s.AllBlocks() {
		require.Equal(t, domain.BlockCompleted, b.Status)
	}
}

func TestDerivedStoreMorningStatePrunesOldEntries(t *testing.T) {
	s := NewDerivedStore(1)
	s.RecordMorningState(domain.MorningState{Date: time.Now().Add(-72 * time.Hour), RecoveryScore: 0.5})
	s.RecordMorningState(domain.MorningState{Date: time.Now(), RecoveryScore: 0.8})

	states := s.AllMorningStates()
	require.Len(t, states, 1)
	require.InDelta(t, 0.8, states[0].RecoveryScore, 0.01)
}

func TestDerivedStoreLatestMorningState(t *testing.T) {
	s := NewDerivedStore(30)
	_, ok := s.LatestMorningState()
	require.False(t, ok)

	s.RecordMorningState(domain.MorningState{Date: time.Now().Add(-time.Hour), RecoveryScore: 0.4})
	s.RecordMorningState(domain.MorningState{Date: time.Now(), RecoveryScore: 0.9})

	latest, ok := s.LatestMorningState()
	require.True(t, ok)
	require.InDelta(t, 0.9, latest.RecoveryScore, 0.01)
}
