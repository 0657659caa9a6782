package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeRecordsProvenance(t *testing.T) {
	r := New(4)

	got := r.Compute("skip_probability", 1, map[string]any{"x": 1.0}, func() float64 { return 0.42 })
	require.InDelta(t, 0.42, got, 1e-9)
	require.Equal(t, 1, r.Len())

	entries := r.Snapshot()
	require.Len(t, entries, 1)
	require.Equal(t, "skip_probability", entries[0].Metric.Name)
	require.Equal(t, 1, entries[0].Metric.Version)
}

func TestRingBufferWrapsAtCapacity(t *testing.T) {
	r := New(3)
	for i := 0; i < 5; i++ {
		r.Compute("m", 1, nil, func() float64 { return float64(i) })
	}

	require.Equal(t, 3, r.Len())
	entries := r.Snapshot()
	require.Len(t, entries, 3)
	// Oldest surviving entry should be from i=2 (0 and 1 evicted).
	require.InDelta(t, 2.0, entries[0].Result, 1e-9)
	require.InDelta(t, 4.0, entries[2].Result, 1e-9)
}

func TestVersionMismatchResetsProvenance(t *testing.T) {
	r := New(10)
	r.Compute("trust_delta", 1, nil, func() float64 { return 1.0 })
	r.Compute("trust_delta", 1, nil, func() float64 { return 2.0 })
	require.Equal(t, 2, r.Len())
	require.Equal(t, 0, r.ResetCount())

	// A new version for the same metric name invalidates prior provenance.
	r.Compute("trust_delta", 2, nil, func() float64 { return 3.0 })
	require.Equal(t, 1, r.Len())
	require.Equal(t, 1, r.ResetCount())

	entries := r.Snapshot()
	require.Len(t, entries, 1)
	require.Equal(t, 2, entries[0].Metric.Version)
}

func TestRegisterAloneDoesNotRecordAnEntry(t *testing.T) {
	r := New(10)
	r.Register("recovery_score", 1)
	require.Equal(t, 0, r.Len())
}
