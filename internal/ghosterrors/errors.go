// Package ghosterrors defines the Engine's error taxonomy (spec.md §7).
// Components never panic on bad input; they wrap one of these sentinels
// with fmt.Errorf("...: %w", err) and callers match with errors.Is/As.
package ghosterrors

import "errors"

var (
	// ErrTransientIO marks a failed call to a health/calendar adapter. The
	// orchestrator retries within the current cycle; it is never
	// user-visible as an error.
	ErrTransientIO = errors.New("transient I/O failure")

	// ErrPersistence marks a failed write to PhenomePersistence. The
	// caller must roll back any in-memory transition, mark the event
	// pending, and return a retry advisory.
	ErrPersistence = errors.New("persistence failure")

	// ErrInvariant marks a computed value that would have violated a
	// documented invariant (e.g. trustScore outside [0, 100]). The caller
	// clamps and logs; it never propagates as a crash.
	ErrInvariant = errors.New("invariant violation")

	// ErrUnknownEvent marks an event whose Kind this build does not
	// recognize. The event is logged and ignored; no state change occurs.
	ErrUnknownEvent = errors.New("unknown event variant")

	// ErrUnknownWorkoutType marks a DetectedWorkout or TrainingBlock whose
	// WorkoutType this build does not recognize. Handled the same way as
	// ErrUnknownEvent.
	ErrUnknownWorkoutType = errors.New("unknown workout type")

	// ErrConfiguration marks a structurally invalid Config (weights that
	// don't sum to 1.0, non-monotonic thresholds). This is the one error
	// kind that is fatal, and only at startup.
	ErrConfiguration = errors.New("configuration error")
)

// RetryAdvisory is returned to callers of operations that failed due to
// ErrPersistence, signalling that the in-memory state was rolled back and
// the event should be retried.
type RetryAdvisory struct {
	Event error // wraps ErrPersistence
}

func (r *RetryAdvisory) Error() string {
	return "retry advisory: " + r.Event.Error()
}

func (r *RetryAdvisory) Unwrap() error {
	return r.Event
}
