package phenome

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
)

func TestRawStorePrunesOldEntries(t *testing.T) {
	s := NewRawStore(1) // 1-day retention

	s.AppendSleep(domain.SleepRecord{Date: time.Now().Add(-48 * time.Hour)})
	s.AppendSleep(domain.SleepRecord{Date: time.Now()})

	recent, _, _, _ := s.AllForPersistence()
	require.Len(t, recent, 1)
}

func TestRawStoreRecentFiltersAndSorts(t *testing.T) {
	s := NewRawStore(90)
	now := time.Now()
	s.AppendHRV(domain.HRVReading{Timestamp: now.Add(-2 * 24 * time.Hour), ValueMS: 40})
	s.AppendHRV(domain.HRVReading{Timestamp: now.Add(-1 * time.Hour), ValueMS: 55})

	recent := s.RecentHRV(7)
	require.Len(t, recent, 2)
	require.True(t, recent[0].Timestamp.Before(recent[1].Timestamp))

	recent = s.RecentHRV(1)
	require.Len(t, recent, 1)
	require.InDelta(t, 55, recent[0].ValueMS, 0.01)
}

func TestRawStoreRestoreReappliesRetention(t *testing.T) {
	s := NewRawStore(1)
	s.Restore(
		[]domain.SleepRecord{{Date: time.Now().Add(-72 * time.Hour)}, {Date: time.Now()}},
		nil, nil, nil,
	)
	sleep, _, _, _ := s.AllForPersistence()
	require.Len(t, sleep, 1)
}
