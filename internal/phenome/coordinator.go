package phenome

import (
	"context"
	"fmt"

	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
	"github.com/vedprakash-m/ghost-trust-engine/internal/ghosterrors"
	"github.com/vedprakash-m/ghost-trust-engine/internal/logging"
	"github.com/vedprakash-m/ghost-trust-engine/internal/metrics"
	"github.com/vedprakash-m/ghost-trust-engine/internal/ports"
)

// Coordinator wires the three Phenome stores behind a single API and owns
// their persistence lifecycle (spec.md §1: "All are coordinated through a
// Phenome Coordinator that exposes a three-tier data model"). Every other
// component reaches the stores only through a Coordinator.
type Coordinator struct {
	Raw        *RawStore
	Derived    *DerivedStore
	Behavioral *BehavioralStore

	persistence ports.PhenomePersistence
	metrics     *metrics.Registry

	trustPhase domain.TrustPhase
	trustScore float64
}

// New creates a Coordinator over freshly empty stores. Call Load to
// populate them from persistence.
func New(persistence ports.PhenomePersistence, registry *metrics.Registry, rawRetentionDays, derivedRetentionDays int) *Coordinator {
	return &Coordinator{
		Raw:         NewRawStore(rawRetentionDays),
		Derived:     NewDerivedStore(derivedRetentionDays),
		Behavioral:  NewBehavioralStore(),
		persistence: persistence,
		metrics:     registry,
	}
}

// Load restores all three stores, plus the authoritative trust phase and
// score, from the configured PhenomePersistence.
func (c *Coordinator) Load(ctx context.Context) error {
	snap, err := c.persistence.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading phenome snapshot: %w", err)
	}

	c.Raw.Restore(snap.Sleep, snap.HRV, snap.RestingHR, snap.Workouts)
	c.Derived.Restore(snap.Blocks, snap.MorningStates)
	c.Behavioral.Restore(snap.Preferences, snap.SacredTimes, snap.TimeSlotStats, snap.WorkoutPatterns)
	c.trustPhase = snap.TrustPhase
	c.trustScore = snap.TrustScore

	logging.Get(logging.CategoryPhenome).Info(
		"phenome loaded: %d sleep, %d hrv, %d resting-hr, %d workouts, %d blocks, phase=%s score=%.2f",
		len(snap.Sleep), len(snap.HRV), len(snap.RestingHR), len(snap.Workouts), len(snap.Blocks),
		c.trustPhase, c.trustScore,
	)
	return nil
}

// TrustState returns the last-loaded or last-flushed (phase, score) pair.
// The Trust State Machine is the sole writer of these fields via
// SetTrustState; Coordinator only carries them between cycles for
// persistence.
func (c *Coordinator) TrustState() (domain.TrustPhase, float64) {
	return c.trustPhase, c.trustScore
}

// SetTrustState updates the (phase, score) pair the next Flush will
// persist.
func (c *Coordinator) SetTrustState(phase domain.TrustPhase, score float64) {
	c.trustPhase = phase
	c.trustScore = score
}

// PersistTrustState durably writes (phase, score) immediately, without
// waiting for the next full Flush, and updates SetTrustState's bookkeeping
// to match. This is the method the Trust State Machine calls after every
// applied event (spec.md §4.1): if it fails, the caller must roll back its
// in-memory transition and treat the event as pending.
//
// The immediate write requires persistence to be a *SQLiteStore; other
// ports.PhenomePersistence implementations (e.g. the in-memory fakes in the
// tests) fall back to SetTrustState plus an eventual Flush, at the cost of a
// narrower durability window.
func (c *Coordinator) PersistTrustState(ctx context.Context, phase domain.TrustPhase, score float64) error {
	if sqliteStore, ok := c.persistence.(*SQLiteStore); ok {
		if err := sqliteStore.SaveTrustState(ctx, phase, score); err != nil {
			return err
		}
	}
	c.SetTrustState(phase, score)
	return nil
}

// Flush writes the current contents of all three stores, plus receipts
// and trust state, to persistence as one atomic snapshot. On failure it
// wraps ghosterrors.ErrPersistence so callers can follow the
// retry-advisory / rollback policy in spec.md §4.1 and §7.
func (c *Coordinator) Flush(ctx context.Context, receipts []domain.DecisionReceipt) error {
	sleep, hrv, restingHR, workouts := c.Raw.AllForPersistence()
	prefs, sacred, stats, patterns := c.Behavioral.AllForPersistence()

	snap := ports.PhenomeSnapshot{
		Sleep:           sleep,
		HRV:             hrv,
		RestingHR:       restingHR,
		Workouts:        workouts,
		Blocks:          c.Derived.AllBlocks(),
		MorningStates:   c.Derived.AllMorningStates(),
		Preferences:     prefs,
		SacredTimes:     sacred,
		TimeSlotStats:   stats,
		WorkoutPatterns: patterns,
		TrustPhase:      c.trustPhase,
		TrustScore:      c.trustScore,
		Receipts:        receipts,
	}

	if err := c.persistence.Save(ctx, snap); err != nil {
		return fmt.Errorf("%w: flushing phenome snapshot: %v", ghosterrors.ErrPersistence, err)
	}

	c.flushProvenance(ctx)
	return nil
}

// flushProvenance persists the in-memory provenance ring buffer's unseen
// entries when the underlying persistence is a *SQLiteStore. Provenance
// persistence is best-effort: a failure here never fails the surrounding
// Flush, since the ring buffer itself remains the authoritative in-memory
// audit trail for the running process.
func (c *Coordinator) flushProvenance(ctx context.Context) {
	sqliteStore, ok := c.persistence.(*SQLiteStore)
	if !ok || c.metrics == nil {
		return
	}
	for _, entry := range c.metrics.Snapshot() {
		if err := sqliteStore.RecordProvenance(ctx, entry.Metric.Name, entry.Metric.Version, entry.Inputs, entry.Result); err != nil {
			logging.Get(logging.CategoryMetrics).Warn("provenance flush failed: %v", err)
			return
		}
	}
}

// Close releases the underlying persistence connection.
func (c *Coordinator) Close() error {
	return c.persistence.Close()
}
