package domain

import "time"

// SleepRecord is a single night's sleep summary, as delivered by a
// HealthProvider adapter.
type SleepRecord struct {
	Date            time.Time
	TotalDuration   time.Duration
	DeepDuration    time.Duration
	REMDuration     time.Duration
	EfficiencyPct   float64
}

// HRVReading is a single heart-rate-variability sample in milliseconds
// (rMSSD or provider-equivalent unit).
type HRVReading struct {
	Timestamp time.Time
	ValueMS   float64
}

// RestingHRSample is a single resting-heart-rate sample in beats per
// minute.
type RestingHRSample struct {
	Timestamp time.Time
	BPM       float64
}

// MorningState is the derived-state snapshot produced once per day by the
// morning cycle: the recovery score computed that morning plus whatever
// skip-risk flags were raised for the day's remaining blocks.
type MorningState struct {
	Date          time.Time
	RecoveryScore float64
	FlaggedBlocks []string // TrainingBlock IDs flagged for proposal review
}

// WorkoutPreference captures a learned affinity for a workout type, used by
// the Optimal Window Finder's preference-alignment factor.
type WorkoutPreference struct {
	Type   WorkoutType
	Weight float64 // relative preference, not normalized
}

// WorkoutPattern is a persisted, derived behavioral fact about how the user
// relates to a given workout type: historical adherence, preferred days,
// and skip streaks. It is the on-disk counterpart of the Pattern
// Detector's in-memory WorkoutTypePattern.
type WorkoutPattern struct {
	Type            WorkoutType
	AdherenceRate   float64
	PreferredDays   []int // ISO weekday 1..7
	AverageStreak   float64
	LastUpdated     time.Time
}
