package domain

import "time"

// EventKind enumerates the tagged variants of TrustEvent. A TrustEvent
// carries exactly one payload, selected by Kind; unrelated payload fields
// are left zero. Every switch over EventKind in this module has a default
// case for an unrecognized Kind rather than returning
// ghosterrors.ErrUnknownEvent; the State Machine logs such an event and
// ignores it with no state change (spec.md §4.1's "unknown event variant"
// failure mode).
type EventKind string

const (
	EventWorkoutCompleted EventKind = "workout_completed"
	EventBlockAccepted    EventKind = "block_accepted"
	EventBlockDeleted     EventKind = "block_deleted"
	EventBlockMissed      EventKind = "block_missed"
	EventProposalAccepted EventKind = "proposal_accepted"
	EventProposalRejected EventKind = "proposal_rejected"
	EventTriageResponded  EventKind = "triage_responded"
	EventPermissionRevoked EventKind = "permission_revoked"
	EventAppOpened        EventKind = "app_opened"
)

// MissedReason is the excuse a user (or the evening-cycle reconciler)
// attaches to a BlockMissed event. Each reason carries a fixed excuse
// weight in [0, 1] that shrinks the attribution penalty; NoReason applies
// the full penalty.
type MissedReason string

const (
	ReasonLifeHappened     MissedReason = "life_happened"
	ReasonTooTired         MissedReason = "too_tired"
	ReasonCalendarConflict MissedReason = "calendar_conflict"
	ReasonIllness          MissedReason = "illness"
	ReasonTravelMode       MissedReason = "travel_mode"
	ReasonPoorRecovery     MissedReason = "poor_recovery"
	ReasonEmergencyConflict MissedReason = "emergency_conflict"
	ReasonNoReason         MissedReason = "no_reason"
)

// excuseWeights are fixed per spec.md §3: "NoReason = 1.0 (full penalty),
// TravelMode ≈ 0.05, Illness ≈ 0.1." The remaining reasons are ordered by
// how much control the user plausibly had over the miss.
var excuseWeights = map[MissedReason]float64{
	ReasonEmergencyConflict: 0.02,
	ReasonTravelMode:        0.05,
	ReasonIllness:           0.10,
	ReasonCalendarConflict:  0.25,
	ReasonPoorRecovery:      0.30,
	ReasonLifeHappened:      0.45,
	ReasonTooTired:          0.60,
	ReasonNoReason:          1.0,
}

// ExcuseWeight returns r's excuse weight, defaulting to the full (NoReason)
// penalty for any unrecognized reason so an unknown excuse never grants an
// unintended discount.
func (r MissedReason) ExcuseWeight() float64 {
	if w, ok := excuseWeights[r]; ok {
		return w
	}
	return excuseWeights[ReasonNoReason]
}

// TrustEvent is the single ingress type for anything that can move the
// trust score. Events carry the timestamp of occurrence (not ingestion
// time); ingestion ordering is authoritative per spec.md §3.
type TrustEvent struct {
	Kind EventKind

	// SourceID together with (Kind, Timestamp) forms the idempotence key
	// used for de-duplication (spec.md §5).
	SourceID  string
	Timestamp time.Time

	Workout        *DetectedWorkout // EventWorkoutCompleted
	Block          *TrainingBlock   // EventBlockAccepted / BlockDeleted / BlockMissed
	MissedReason   MissedReason     // EventBlockMissed
	RevokedScope   Capability       // EventPermissionRevoked
}

// DedupeKey returns the tuple used to detect a re-submitted event.
func (e TrustEvent) DedupeKey() (kind EventKind, sourceID string, ts time.Time) {
	return e.Kind, e.SourceID, e.Timestamp
}

// WasAutoScheduledDeletion reports whether this is a BlockDeleted event for
// a block the Engine itself scheduled. Attribution weighs these far more
// harshly (spec.md §4.2): deleting work the ghost engine proposed on the
// user's behalf is a stronger trust signal than deleting a manually created
// block.
func (e TrustEvent) WasAutoScheduledDeletion() bool {
	return e.Kind == EventBlockDeleted && e.Block != nil && e.Block.WasAutoScheduled
}
