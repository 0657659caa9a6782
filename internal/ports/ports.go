// Package ports declares the interfaces the Ghost Trust Engine depends on
// but does not implement: health/calendar data sources, receipt delivery,
// and persistence. Everything in this package is "out of scope" per
// spec.md §1 — the core only ever talks to these interfaces, never to a
// concrete HealthKit client or a concrete SQLite connection.
package ports

import (
	"context"
	"time"

	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
)

// HealthProvider supplies read-only recent health signal windows. Every
// method takes the number of trailing days to return.
type HealthProvider interface {
	RecentSleep(ctx context.Context, days int) ([]domain.SleepRecord, error)
	RecentHRV(ctx context.Context, days int) ([]domain.HRVReading, error)
	RecentRestingHR(ctx context.Context, days int) ([]domain.RestingHRSample, error)
	RecentWorkouts(ctx context.Context, days int) ([]domain.DetectedWorkout, error)
}

// CalendarProvider supplies calendar busy-slot snapshots and accepts block
// proposals. The Engine never mutates a calendar directly (spec.md §1
// Non-goals); propose only emits a request to the external collaborator.
type CalendarProvider interface {
	BusySlots(ctx context.Context, date time.Time) ([]domain.TimeWindow, error)
	Propose(ctx context.Context, block domain.TrainingBlock) error
}

// ReceiptSink accepts every DecisionReceipt the Engine emits, for audit and
// user-facing display by an external collaborator.
type ReceiptSink interface {
	Emit(ctx context.Context, receipt domain.DecisionReceipt) error
}

// PhenomePersistence is the narrow load/save contract the three Phenome
// stores use to survive process restarts. A concrete implementation (e.g.
// SQLite) lives in internal/phenome; the Engine core only ever sees this
// interface.
type PhenomePersistence interface {
	Load(ctx context.Context) (*PhenomeSnapshot, error)
	Save(ctx context.Context, snapshot PhenomeSnapshot) error
	Close() error
}

// PhenomeSnapshot is the full logical persisted state layout named in
// spec.md §6: keyed tables for raw signals, derived state, and behavioral
// memory, loaded/saved as one unit.
type PhenomeSnapshot struct {
	Sleep        []domain.SleepRecord
	HRV          []domain.HRVReading
	RestingHR    []domain.RestingHRSample
	Workouts     []domain.DetectedWorkout

	Blocks        []domain.TrainingBlock
	MorningStates []domain.MorningState

	Preferences    []domain.WorkoutPreference
	SacredTimes    []domain.SacredTime
	TimeSlotStats  []domain.TimeSlotStats
	WorkoutPatterns []domain.WorkoutPattern

	TrustPhase domain.TrustPhase
	TrustScore float64

	Receipts []domain.DecisionReceipt
}
