package domain

import "time"

// TimeSlotKey identifies an hour-of-week bucket: (dayOfWeek 1..7, hourOfDay
// 0..23). Unique per pair.
type TimeSlotKey struct {
	DayOfWeek int // 1 = Monday .. 7 = Sunday, ISO-8601 ordering
	HourOfDay int // 0..23
}

// TimeSlotKeyFor derives the slot key for a timestamp, using ISO weekday
// numbering so Monday is always 1 regardless of locale.
func TimeSlotKeyFor(t time.Time) TimeSlotKey {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7 // time.Sunday == 0; spec wants 1..7 with Sunday = 7
	}
	return TimeSlotKey{DayOfWeek: wd, HourOfDay: t.Hour()}
}

// TimeSlotStats accumulates completion/miss history for a single
// TimeSlotKey.
type TimeSlotStats struct {
	Key            TimeSlotKey
	CompletedCount int
	MissedCount    int
	PenaltyCount   int
	LastCompleted  *time.Time
	LastMissed     *time.Time
}

// CompletionRate returns completed / (completed + missed), defaulting to
// 0.5 when no data exists for the slot (spec.md §3).
func (s TimeSlotStats) CompletionRate() float64 {
	total := s.CompletedCount + s.MissedCount
	if total == 0 {
		return 0.5
	}
	return float64(s.CompletedCount) / float64(total)
}

// MissRate is the complement of CompletionRate, the quantity the Skip
// Predictor's time-slot-miss-rate feature consumes directly.
func (s TimeSlotStats) MissRate() float64 {
	return 1 - s.CompletionRate()
}

// SacredTimeReason records why a slot was elevated to a SacredTime.
type SacredTimeReason string

const (
	SacredRepeatedDeletions SacredTimeReason = "repeated_deletions"
	SacredUserSpecified     SacredTimeReason = "user_specified"
	SacredWeekendMorning    SacredTimeReason = "weekend_morning"
	SacredLunchHour         SacredTimeReason = "lunch_hour"
	SacredPersonalEvent     SacredTimeReason = "personal_event"
)

// SacredPenaltyThreshold is the accumulated-penalty count that promotes a
// TimeSlotKey to a SacredTime (spec.md §3, normative per §9's open-question
// resolution).
const SacredPenaltyThreshold = 3

// SacredTime is a TimeSlotKey the Engine is forbidden from ever proposing
// into, whether by repeated deletions or explicit user designation.
type SacredTime struct {
	Key       TimeSlotKey
	Reason    SacredTimeReason
	CreatedAt time.Time
}
