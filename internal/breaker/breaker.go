// Package breaker implements the Safety Breaker (spec.md §4.3): a
// standalone consecutive-delete counter that forces a single-phase
// regression the moment three BlockDeleted events land without an
// intervening positive-reset event.
package breaker

import "github.com/vedprakash-m/ghost-trust-engine/internal/domain"

// threshold is the consecutive-delete count that triggers a downgrade
// (spec.md §4.3, §9).
const threshold = 3

// Breaker tracks consecutive BlockDeleted events. It holds no reference to
// the Trust State Machine; the caller applies the Triggered() signal to
// whatever phase-regression logic it owns. Not safe for concurrent use —
// callers serialize access the same way they serialize event application
// (spec.md §5: events share a single mailbox).
type Breaker struct {
	consecutiveDeletes int
}

// New creates a Breaker with its counter at zero.
func New() *Breaker {
	return &Breaker{}
}

// ConsecutiveDeletes reports the current counter value, always in
// {0, 1, 2} between events (spec.md §3 invariant) since a count reaching 3
// immediately resets.
func (b *Breaker) ConsecutiveDeletes() int {
	return b.consecutiveDeletes
}

// isPositiveReset reports whether e zeroes the counter without triggering
// a downgrade (spec.md §4.3): WorkoutCompleted, ProposalAccepted, and
// BlockAccepted (so long as it isn't itself reporting the deletion of an
// existing accepted block — BlockAccepted never carries deletion
// semantics in this model, so any BlockAccepted qualifies).
func isPositiveReset(e domain.TrustEvent) bool {
	switch e.Kind {
	case domain.EventWorkoutCompleted, domain.EventProposalAccepted, domain.EventBlockAccepted:
		return true
	default:
		return false
	}
}

// Observe applies e to the counter and reports whether this event should
// trigger an immediate single-phase downgrade. Must be called before
// ordinary delta application for the same event (spec.md §4.3: "The
// breaker runs before ordinary delta application").
func (b *Breaker) Observe(e domain.TrustEvent) (triggered bool) {
	switch {
	case e.Kind == domain.EventBlockDeleted:
		b.consecutiveDeletes++
		if b.consecutiveDeletes >= threshold {
			b.consecutiveDeletes = 0
			return true
		}
		return false
	case isPositiveReset(e):
		b.consecutiveDeletes = 0
		return false
	default:
		return false
	}
}

// Downgrade returns the phase one step below p, floored at Observer
// (spec.md §4.3 downgrade map; §3 invariant: never drops below Observer).
func Downgrade(p domain.TrustPhase) domain.TrustPhase {
	if prev, ok := p.Previous(); ok {
		return prev
	}
	return domain.PhaseObserver
}
