// Package trust implements the Trust State Machine (spec.md §4.1): the
// single owner of the authoritative (phase, trustScore) pair. Every
// TrustEvent passes through a single-writer mailbox goroutine so
// application is strictly serialized (spec.md §5: "single-threaded
// cooperative from the perspective of the State Machine and Safety
// Breaker"); concurrent readers take a snapshot through an RWMutex without
// ever blocking behind an in-flight event.
package trust

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vedprakash-m/ghost-trust-engine/internal/attribution"
	"github.com/vedprakash-m/ghost-trust-engine/internal/breaker"
	"github.com/vedprakash-m/ghost-trust-engine/internal/config"
	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
	"github.com/vedprakash-m/ghost-trust-engine/internal/ghosterrors"
	"github.com/vedprakash-m/ghost-trust-engine/internal/logging"
	"github.com/vedprakash-m/ghost-trust-engine/internal/metrics"
	"github.com/vedprakash-m/ghost-trust-engine/internal/ports"
)

// StatePersister is the narrow durability contract the State Machine
// depends on: write the (phase, trustScore) singleton immediately, without
// requiring a full Phenome snapshot round trip. *phenome.Coordinator
// satisfies this via its PersistTrustState method.
type StatePersister interface {
	PersistTrustState(ctx context.Context, phase domain.TrustPhase, score float64) error
}

// ErrClosed is returned by Submit once the State Machine has been closed.
var ErrClosed = errors.New("trust: state machine closed")

type dedupeKey struct {
	kind      domain.EventKind
	sourceID  string
	timestamp time.Time
}

func dedupeKeyOf(e domain.TrustEvent) dedupeKey {
	kind, sourceID, ts := e.DedupeKey()
	return dedupeKey{kind: kind, sourceID: sourceID, timestamp: ts}
}

type submitRequest struct {
	ctx   context.Context
	event domain.TrustEvent
	done  chan error
}

// StateMachine owns (phase, trustScore) exclusively. Construct with New;
// callers interact only through Submit, CurrentPhase, TrustScore,
// Capabilities, and CanPerform.
type StateMachine struct {
	mu         sync.RWMutex
	phase         domain.TrustPhase
	trustScore    float64
	failSafe      bool // set when the last persistence attempt failed; cleared on the next success
	workoutStreak int  // consecutive WorkoutCompleted events applied since the last BlockMissed

	attribution *attribution.Engine
	breaker     *breaker.Breaker
	persister   StatePersister
	receipts    ports.ReceiptSink

	receiptTTL time.Duration
	now        func() time.Time

	seenMu sync.Mutex
	seen   map[dedupeKey]struct{}

	mailbox  chan submitRequest
	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option customizes a StateMachine at construction. Only used by tests
// (e.g. to inject a deterministic clock).
type Option func(*StateMachine)

// WithClock overrides the clock used to timestamp emitted receipts.
func WithClock(now func() time.Time) Option {
	return func(s *StateMachine) { s.now = now }
}

// New creates a StateMachine seeded at (initialPhase, initialScore) —
// normally the pair most recently loaded from Phenome persistence — and
// starts its mailbox goroutine. Call Close to stop it.
func New(
	cfg *config.Config,
	registry *metrics.Registry,
	persister StatePersister,
	receipts ports.ReceiptSink,
	initialPhase domain.TrustPhase,
	initialScore float64,
	opts ...Option,
) *StateMachine {
	s := &StateMachine{
		phase:       initialPhase,
		trustScore:  initialScore,
		attribution: attribution.New(cfg, registry),
		breaker:     breaker.New(),
		persister:   persister,
		receipts:    receipts,
		receiptTTL:  time.Duration(cfg.ReceiptTTLHours) * time.Hour,
		now:         time.Now,
		seen:        make(map[dedupeKey]struct{}),
		mailbox:     make(chan submitRequest),
		stopCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Submit enqueues e for serialized application and returns immediately
// with a completion channel (spec.md §6: "fire-and-forget with a
// completion signal"). The channel receives exactly one value: nil on
// success or no-op (duplicate/unknown event), or a *ghosterrors.RetryAdvisory
// if persistence failed and the in-memory transition was rolled back.
func (s *StateMachine) Submit(ctx context.Context, e domain.TrustEvent) <-chan error {
	done := make(chan error, 1)
	req := submitRequest{ctx: ctx, event: e, done: done}

	select {
	case s.mailbox <- req:
	case <-ctx.Done():
		done <- ctx.Err()
	case <-s.stopCh:
		done <- ErrClosed
	}
	return done
}

// Close stops the mailbox goroutine. Safe to call more than once.
func (s *StateMachine) Close() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *StateMachine) run() {
	for {
		select {
		case req := <-s.mailbox:
			req.done <- s.handle(req.ctx, req.event)
		case <-s.stopCh:
			return
		}
	}
}

// CurrentPhase returns the current phase (snapshot read).
func (s *StateMachine) CurrentPhase() domain.TrustPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// TrustScore returns the current trust score (snapshot read).
func (s *StateMachine) TrustScore() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trustScore
}

// Capabilities returns the capability set granted at the current phase
// (testable property 3: monotone in phase).
func (s *StateMachine) Capabilities() map[domain.Capability]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase.Capabilities()
}

// CanPerform gates an external collaborator before it carries out an
// autonomous act. Under a persistent persistence failure (fail-safe mode),
// it refuses anything beyond what Scheduler already grants (spec.md §7),
// regardless of the phase actually reached.
func (s *StateMachine) CanPerform(capability domain.Capability) bool {
	s.mu.RLock()
	phase, failSafe := s.phase, s.failSafe
	s.mu.RUnlock()

	if failSafe && phase > domain.PhaseScheduler {
		phase = domain.PhaseScheduler
	}
	_, ok := phase.Capabilities()[capability]
	return ok
}

// handle applies a single event under the write lock's protection,
// persists the result, and rolls back on persistence failure (spec.md
// §4.1, §7). It must only ever be called from run, never concurrently.
func (s *StateMachine) handle(ctx context.Context, e domain.TrustEvent) error {
	key := dedupeKeyOf(e)

	s.seenMu.Lock()
	if _, dup := s.seen[key]; dup {
		s.seenMu.Unlock()
		return nil
	}
	s.seenMu.Unlock()

	s.mu.Lock()
	prevPhase, prevScore, prevStreak := s.phase, s.trustScore, s.workoutStreak

	delta, ok := s.attribution.Delta(e, s.phase, s.trustScore)
	if !ok {
		s.mu.Unlock()
		logging.Get(logging.CategoryTrust).Warn("unknown event variant %q ignored", e.Kind)
		return nil
	}

	// Streak bonus is a separate call-site on top of Delta (spec.md §4.2):
	// each WorkoutCompleted extends the streak and earns its bonus; a
	// BlockMissed breaks it.
	switch e.Kind {
	case domain.EventWorkoutCompleted:
		s.workoutStreak++
		delta += attribution.StreakBonus(s.workoutStreak)
		if delta > attribution.MaxAbsDelta {
			delta = attribution.MaxAbsDelta
		}
	case domain.EventBlockMissed:
		s.workoutStreak = 0
	}

	// The breaker runs before ordinary delta application (spec.md §4.3):
	// it claims the event's single allowed phase transition whenever it
	// fires, overriding the ordinary threshold re-evaluation below.
	breakerTriggered := s.breaker.Observe(e)

	newScore := clampScore(s.trustScore + delta)
	s.trustScore = newScore

	var receipt *domain.DecisionReceipt
	switch {
	case breakerTriggered:
		from := s.phase
		to := breaker.Downgrade(from)
		r := s.buildReceipt(domain.ReceiptSafetyBreaker, from, to,
			fmt.Sprintf("safety breaker: 3 consecutive deletions, %s -> %s", from, to))
		s.phase = to
		receipt = &r
	case newScore < s.phase.Threshold():
		if prev, has := s.phase.Previous(); has {
			from := s.phase
			r := s.buildReceipt(domain.ReceiptPhaseRegression, from, prev,
				fmt.Sprintf("trustScore %.1f fell below %s threshold", newScore, from))
			s.phase = prev
			receipt = &r
		}
	default:
		if next, has := s.phase.Next(); has && newScore >= next.Threshold() {
			from := s.phase
			r := s.buildReceipt(domain.ReceiptPhasePromotion, from, next,
				fmt.Sprintf("trustScore %.1f reached %s threshold", newScore, next))
			s.phase = next
			receipt = &r
		}
	}

	persistPhase, persistScore := s.phase, s.trustScore
	s.mu.Unlock()

	if err := s.persister.PersistTrustState(ctx, persistPhase, persistScore); err != nil {
		s.mu.Lock()
		s.phase, s.trustScore, s.workoutStreak = prevPhase, prevScore, prevStreak
		s.failSafe = true
		s.mu.Unlock()
		return &ghosterrors.RetryAdvisory{Event: fmt.Errorf("%w: persisting trust state: %w", ghosterrors.ErrPersistence, err)}
	}

	s.mu.Lock()
	s.failSafe = false
	s.mu.Unlock()

	s.seenMu.Lock()
	s.seen[key] = struct{}{}
	s.seenMu.Unlock()

	if receipt != nil && s.receipts != nil {
		if err := s.receipts.Emit(ctx, *receipt); err != nil {
			logging.Get(logging.CategoryTrust).Warn("receipt emit failed: %v", err)
		}
	}
	return nil
}

// buildReceipt must be called with s.mu held for writing; it reads
// s.trustScore, which the caller has already updated for this event.
func (s *StateMachine) buildReceipt(t domain.ReceiptType, from, to domain.TrustPhase, decision string) domain.DecisionReceipt {
	now := s.now()
	return domain.DecisionReceipt{
		ID:         uuid.NewString(),
		Timestamp:  now,
		Type:       t,
		Confidence: 1.0,
		Inputs: map[string]any{
			"from_phase":  from.String(),
			"to_phase":    to.String(),
			"trust_score": s.trustScore,
		},
		Decision: decision,
		ContextSnapshot: map[string]any{
			"phase":       to.String(),
			"trust_score": s.trustScore,
		},
		ExpiresAt: now.Add(s.receiptTTL),
	}
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
