package phenome

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
)

// behavioralSnapshot is an immutable view of all long-lived behavioral
// facts. Readers obtain a snapshot via atomic.Pointer.Load and never see a
// torn view; writers build a new snapshot and swap the pointer under
// writeMu, which serializes writers without ever blocking a reader
// (spec.md §5: "A SacredTime can be added concurrently with reads; readers
// must see either the prior set or the new set, never a torn view.").
type behavioralSnapshot struct {
	preferences map[domain.WorkoutType]domain.WorkoutPreference
	sacred      map[domain.TimeSlotKey]domain.SacredTime
	slotStats   map[domain.TimeSlotKey]domain.TimeSlotStats
	patterns    map[domain.WorkoutType]domain.WorkoutPattern
}

func emptySnapshot() *behavioralSnapshot {
	return &behavioralSnapshot{
		preferences: make(map[domain.WorkoutType]domain.WorkoutPreference),
		sacred:      make(map[domain.TimeSlotKey]domain.SacredTime),
		slotStats:   make(map[domain.TimeSlotKey]domain.TimeSlotStats),
		patterns:    make(map[domain.WorkoutType]domain.WorkoutPattern),
	}
}

func (s *behavioralSnapshot) clone() *behavioralSnapshot {
	c := &behavioralSnapshot{
		preferences: make(map[domain.WorkoutType]domain.WorkoutPreference, len(s.preferences)),
		sacred:      make(map[domain.TimeSlotKey]domain.SacredTime, len(s.sacred)),
		slotStats:   make(map[domain.TimeSlotKey]domain.TimeSlotStats, len(s.slotStats)),
		patterns:    make(map[domain.WorkoutType]domain.WorkoutPattern, len(s.patterns)),
	}
	for k, v := range s.preferences {
		c.preferences[k] = v
	}
	for k, v := range s.sacred {
		c.sacred[k] = v
	}
	for k, v := range s.slotStats {
		c.slotStats[k] = v
	}
	for k, v := range s.patterns {
		c.patterns[k] = v
	}
	return c
}

// BehavioralStore holds workout preferences, sacred times, time-slot
// history, and workout patterns — the Engine's longest-lived behavioral
// facts (spec.md §3). It is read-copy-update: reads are lock-free against
// an atomic.Pointer, writes are serialized by a single mutex and replace
// the pointer with a freshly cloned, mutated snapshot.
type BehavioralStore struct {
	ptr     atomic.Pointer[behavioralSnapshot]
	writeMu sync.Mutex
}

// NewBehavioralStore creates an empty BehavioralStore.
func NewBehavioralStore() *BehavioralStore {
	b := &BehavioralStore{}
	b.ptr.Store(emptySnapshot())
	return b
}

func (b *BehavioralStore) snapshot() *behavioralSnapshot {
	return b.ptr.Load()
}

// SacredTimes returns every current SacredTime.
func (b *BehavioralStore) SacredTimes() []domain.SacredTime {
	snap := b.snapshot()
	out := make([]domain.SacredTime, 0, len(snap.sacred))
	for _, st := range snap.sacred {
		out = append(out, st)
	}
	return out
}

// IsSacred reports whether key is currently a SacredTime.
func (b *BehavioralStore) IsSacred(key domain.TimeSlotKey) bool {
	snap := b.snapshot()
	_, ok := snap.sacred[key]
	return ok
}

// SlotStats returns the current TimeSlotStats for key, or zero-value stats
// (CompletionRate defaults to 0.5) if none recorded yet.
func (b *BehavioralStore) SlotStats(key domain.TimeSlotKey) domain.TimeSlotStats {
	snap := b.snapshot()
	if st, ok := snap.slotStats[key]; ok {
		return st
	}
	return domain.TimeSlotStats{Key: key}
}

// Pattern returns the current WorkoutPattern for t, if any.
func (b *BehavioralStore) Pattern(t domain.WorkoutType) (domain.WorkoutPattern, bool) {
	snap := b.snapshot()
	p, ok := snap.patterns[t]
	return p, ok
}

// Preference returns the current WorkoutPreference for t, if any.
func (b *BehavioralStore) Preference(t domain.WorkoutType) (domain.WorkoutPreference, bool) {
	snap := b.snapshot()
	p, ok := snap.preferences[t]
	return p, ok
}

// DesignateSacredTime adds a SacredTime by explicit user instruction,
// bypassing the accumulated-penalty threshold.
func (b *BehavioralStore) DesignateSacredTime(key domain.TimeSlotKey, reason domain.SacredTimeReason) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	next := b.snapshot().clone()
	next.sacred[key] = domain.SacredTime{Key: key, Reason: reason, CreatedAt: time.Now()}
	b.ptr.Store(next)
}

// RecordCompletion records a completed workout in a TimeSlotKey's history.
func (b *BehavioralStore) RecordCompletion(key domain.TimeSlotKey, at time.Time) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	next := b.snapshot().clone()
	st := next.slotStats[key]
	st.Key = key
	st.CompletedCount++
	t := at
	st.LastCompleted = &t
	next.slotStats[key] = st
	b.ptr.Store(next)
}

// RecordMiss records a missed block in a TimeSlotKey's history, without
// counting toward the SacredTime penalty threshold (only deletions do,
// per spec.md §9's resolution that only RecordPenalty drives promotion).
func (b *BehavioralStore) RecordMiss(key domain.TimeSlotKey, at time.Time) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	next := b.snapshot().clone()
	st := next.slotStats[key]
	st.Key = key
	st.MissedCount++
	t := at
	st.LastMissed = &t
	next.slotStats[key] = st
	b.ptr.Store(next)
}

// RecordPenalty is the single place in the Engine that enforces the
// sacred-time promotion rule (spec.md §9 open-question resolution): it
// increments key's accumulated penalty count, and once that count reaches
// domain.SacredPenaltyThreshold, promotes key to a SacredTime with reason
// RepeatedDeletions. No other code path may create a SacredTime from
// accumulated penalties.
func (b *BehavioralStore) RecordPenalty(key domain.TimeSlotKey) (promoted bool) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	next := b.snapshot().clone()
	st := next.slotStats[key]
	st.Key = key
	st.PenaltyCount++
	next.slotStats[key] = st

	if st.PenaltyCount >= domain.SacredPenaltyThreshold {
		if _, already := next.sacred[key]; !already {
			next.sacred[key] = domain.SacredTime{
				Key:       key,
				Reason:    domain.SacredRepeatedDeletions,
				CreatedAt: time.Now(),
			}
			promoted = true
		}
	}

	b.ptr.Store(next)
	return promoted
}

// UpdatePattern replaces the stored WorkoutPattern for its type.
func (b *BehavioralStore) UpdatePattern(p domain.WorkoutPattern) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	next := b.snapshot().clone()
	next.patterns[p.Type] = p
	b.ptr.Store(next)
}

// UpdatePreference replaces the stored WorkoutPreference for its type.
func (b *BehavioralStore) UpdatePreference(p domain.WorkoutPreference) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	next := b.snapshot().clone()
	next.preferences[p.Type] = p
	b.ptr.Store(next)
}

// AllForPersistence returns every behavioral fact currently held, for a
// Coordinator flush.
func (b *BehavioralStore) AllForPersistence() (prefs []domain.WorkoutPreference, sacred []domain.SacredTime, stats []domain.TimeSlotStats, patterns []domain.WorkoutPattern) {
	snap := b.snapshot()
	for _, p := range snap.preferences {
		prefs = append(prefs, p)
	}
	for _, s := range snap.sacred {
		sacred = append(sacred, s)
	}
	for _, s := range snap.slotStats {
		stats = append(stats, s)
	}
	for _, p := range snap.patterns {
		patterns = append(patterns, p)
	}
	return
}

// Restore replaces the store's contents from a persisted snapshot.
func (b *BehavioralStore) Restore(prefs []domain.WorkoutPreference, sacred []domain.SacredTime, stats []domain.TimeSlotStats, patterns []domain.WorkoutPattern) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	next := emptySnapshot()
	for _, p := range prefs {
		next.preferences[p.Type] = p
	}
	for _, s := range sacred {
		next.sacred[s.Key] = s
	}
	for _, s := range stats {
		next.slotStats[s.Key] = s
	}
	for _, p := range patterns {
		next.patterns[p.Type] = p
	}
	b.ptr.Store(next)
}
