// Package engine implements the Ghost Engine orchestrator (spec.md §4.7):
// the morning and evening cycle pipelines that tie every other component
// together under a bounded per-cycle retry policy, plus the read-only
// GhostSnapshot exposed to external callers.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vedprakash-m/ghost-trust-engine/internal/config"
	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
	"github.com/vedprakash-m/ghost-trust-engine/internal/ghosterrors"
	"github.com/vedprakash-m/ghost-trust-engine/internal/logging"
	"github.com/vedprakash-m/ghost-trust-engine/internal/phenome"
	"github.com/vedprakash-m/ghost-trust-engine/internal/ports"
	"github.com/vedprakash-m/ghost-trust-engine/internal/predictor"
	"github.com/vedprakash-m/ghost-trust-engine/internal/recovery"
	"github.com/vedprakash-m/ghost-trust-engine/internal/trust"
	"github.com/vedprakash-m/ghost-trust-engine/internal/window"
)

// recommendationRank orders predictor.Recommendation so the morning cycle
// can ask "is this at least SuggestAlternative?" without a switch.
var recommendationRank = map[predictor.Recommendation]int{
	predictor.RecommendProceed:              0,
	predictor.RecommendMonitorClosely:       1,
	predictor.RecommendConsiderRescheduling: 2,
	predictor.RecommendSuggestAlternative:   3,
	predictor.RecommendProactiveReschedule:  4,
}

// recoveryWindowDays and baselineWindowDays bound the recent-vs-baseline
// comparison the Recovery Analyzer needs (spec.md §4.5).
const (
	recoveryWindowDays = 7
	baselineWindowDays = 30
)

// Engine wires every other component behind the two cycle entry points a
// caller (cmd/ghostd, a scheduler, a test) actually needs. It holds no
// domain logic of its own beyond sequencing and retrying.
type Engine struct {
	cfg *config.Config

	phenomeCoord *phenome.Coordinator
	stateMachine *trust.StateMachine

	recoveryEngine  *recovery.Engine
	patternDetector *recovery.Detector
	predictorEngine *predictor.Engine
	windowFinder    *window.Finder

	health   ports.HealthProvider
	calendar ports.CalendarProvider
	receipts ports.ReceiptSink

	now func() time.Time

	mu               sync.Mutex
	lastMorningCycle time.Time
	lastEveningCycle time.Time
	pendingProposals []domain.TrainingBlock
	receiptLog       []domain.DecisionReceipt
}

// New wires an Engine from its already-constructed collaborators. Callers
// build the Coordinator, StateMachine, and analytic engines once at boot
// and share them across every cycle.
func New(
	cfg *config.Config,
	phenomeCoord *phenome.Coordinator,
	stateMachine *trust.StateMachine,
	recoveryEngine *recovery.Engine,
	patternDetector *recovery.Detector,
	predictorEngine *predictor.Engine,
	windowFinder *window.Finder,
	health ports.HealthProvider,
	calendar ports.CalendarProvider,
	receipts ports.ReceiptSink,
) *Engine {
	return &Engine{
		cfg:             cfg,
		phenomeCoord:    phenomeCoord,
		stateMachine:    stateMachine,
		recoveryEngine:  recoveryEngine,
		patternDetector: patternDetector,
		predictorEngine: predictorEngine,
		windowFinder:    windowFinder,
		health:          health,
		calendar:        calendar,
		receipts:        receipts,
		now:             time.Now,
	}
}

// WithClock overrides the Engine's clock (tests only).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CycleResult reports how a cycle ran, including how many attempts its
// retry policy used.
type CycleResult struct {
	Name      string
	Attempts  int
	Succeeded bool
	Err       error
}

// RunMorningCycle executes the morning pipeline (spec.md §4.7): refresh raw
// signals, assess recovery, refresh behavior patterns, score today's
// remaining blocks for skip risk, and propose alternative windows for the
// ones at risk. Retries up to cfg.MaxRetriesPerCycle times; exhaustion is
// logged, never fatal to the caller.
func (e *Engine) RunMorningCycle(ctx context.Context) CycleResult {
	result := e.runWithRetry(ctx, "morning", e.runMorningCycleOnce)
	if result.Succeeded {
		e.mu.Lock()
		e.lastMorningCycle = e.now()
		e.mu.Unlock()
	}
	return result
}

// RunEveningCycle executes the evening pipeline (spec.md §4.7): reconcile
// today's scheduled blocks against detected workouts, submit the resulting
// TrustEvents, and flush the Phenome stores.
func (e *Engine) RunEveningCycle(ctx context.Context) CycleResult {
	result := e.runWithRetry(ctx, "evening", e.runEveningCycleOnce)
	if result.Succeeded {
		e.mu.Lock()
		e.lastEveningCycle = e.now()
		e.mu.Unlock()
	}
	return result
}

// runWithRetry runs fn at most cfg.MaxRetriesPerCycle+1 times, each
// attempt bounded by cfg.CycleBudget. An attempt succeeds the moment fn
// returns nil; any other return schedules the next attempt.
func (e *Engine) runWithRetry(ctx context.Context, name string, fn func(context.Context) error) CycleResult {
	maxAttempts := e.cfg.MaxRetriesPerCycle + 1
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		cycleCtx, cancel := context.WithTimeout(ctx, e.cfg.CycleBudget())
		err := fn(cycleCtx)
		cancel()

		if err == nil {
			return CycleResult{Name: name, Attempts: attempt, Succeeded: true}
		}
		lastErr = err
		logging.Get(logging.CategoryCycle).Warn("%s cycle attempt %d/%d failed: %v", name, attempt, maxAttempts, err)

		if ctx.Err() != nil {
			break
		}
	}

	logging.Get(logging.CategoryCycle).Error("%s cycle exhausted after %d attempts: %v", name, attempts, lastErr)
	return CycleResult{Name: name, Attempts: attempts, Succeeded: false, Err: lastErr}
}

// runMorningCycleOnce is one attempt of the morning pipeline.
func (e *Engine) runMorningCycleOnce(ctx context.Context) error {
	if err := e.refreshRawSignals(ctx); err != nil {
		return fmt.Errorf("refreshing raw signals: %w", err)
	}

	recoveryAssessment := e.assessRecovery()

	blocks := e.phenomeCoord.Derived.AllBlocks()
	bundle := e.patternDetector.Patterns(blocks, dailyRecoveryScores(e.phenomeCoord.Derived.AllMorningStates()), false)

	e.phenomeCoord.Derived.RecordMorningState(domain.MorningState{
		Date:          e.now(),
		RecoveryScore: recoveryAssessment.Score,
	})

	upcoming := e.phenomeCoord.Derived.UpcomingBlocks(e.now())
	densityCache := map[string]float64{}

	for _, block := range upcoming {
		dateKey := block.StartTime.Format("2006-01-02")
		density, ok := densityCache[dateKey]
		if !ok {
			density = e.calendarDensity(ctx, block.StartTime)
			densityCache[dateKey] = density
		}

		assessment := e.predictorEngine.Assess(e.featuresFor(block, bundle, recoveryAssessment.Score, density))
		if recommendationRank[assessment.Recommendation] < recommendationRank[predictor.RecommendSuggestAlternative] {
			continue
		}

		if err := e.proposeAlternative(ctx, block, assessment); err != nil {
			logging.Get(logging.CategoryCycle).Warn("proposing alternative for block %s: %v", block.ID, err)
		}
	}

	return nil
}

// refreshRawSignals pulls the four health signal streams concurrently.
// Each source's failure is collected rather than cancelling the others, so
// every source that did answer is still ingested; if any source failed, the
// collected failures are returned as an ErrTransientIO so the retry policy
// runs the attempt again.
func (e *Engine) refreshRawSignals(ctx context.Context) error {
	var mu sync.Mutex
	var errs []error
	addError := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		sleep, err := e.health.RecentSleep(egCtx, recoveryWindowDays)
		if err != nil {
			addError(fmt.Errorf("sleep: %w", err))
			return nil
		}
		for _, r := range sleep {
			e.phenomeCoord.Raw.AppendSleep(r)
		}
		return nil
	})
	eg.Go(func() error {
		hrv, err := e.health.RecentHRV(egCtx, baselineWindowDays)
		if err != nil {
			addError(fmt.Errorf("hrv: %w", err))
			return nil
		}
		for _, r := range hrv {
			e.phenomeCoord.Raw.AppendHRV(r)
		}
		return nil
	})
	eg.Go(func() error {
		restingHR, err := e.health.RecentRestingHR(egCtx, baselineWindowDays)
		if err != nil {
			addError(fmt.Errorf("resting_hr: %w", err))
			return nil
		}
		for _, r := range restingHR {
			e.phenomeCoord.Raw.AppendRestingHR(r)
		}
		return nil
	})
	eg.Go(func() error {
		workouts, err := e.health.RecentWorkouts(egCtx, baselineWindowDays)
		if err != nil {
			addError(fmt.Errorf("workouts: %w", err))
			return nil
		}
		for _, w := range workouts {
			e.phenomeCoord.Raw.AppendWorkout(w)
		}
		return nil
	})

	_ = eg.Wait()

	if len(errs) > 0 {
		return fmt.Errorf("%w: %d source(s) failed: %v", ghosterrors.ErrTransientIO, len(errs), errs)
	}
	return nil
}

// assessRecovery compares the trailing recoveryWindowDays window against a
// baselineWindowDays baseline across the four Recovery Analyzer factors.
func (e *Engine) assessRecovery() recovery.Assessment {
	return e.recoveryEngine.Assess(recovery.Inputs{
		RecentHRV:          hrvValues(e.phenomeCoord.Raw.RecentHRV(recoveryWindowDays)),
		BaselineHRV:        hrvValues(e.phenomeCoord.Raw.RecentHRV(baselineWindowDays)),
		RecentSleepHours:   sleepHours(e.phenomeCoord.Raw.RecentSleep(recoveryWindowDays)),
		BaselineSleepHours: sleepHours(e.phenomeCoord.Raw.RecentSleep(baselineWindowDays)),
		RecentStrain:       workoutStrain(e.phenomeCoord.Raw.RecentWorkouts(recoveryWindowDays)),
		BaselineStrain:     workoutStrain(e.phenomeCoord.Raw.RecentWorkouts(baselineWindowDays)),
		RecentRestingHR:    restingHRValues(e.phenomeCoord.Raw.RecentRestingHR(recoveryWindowDays)),
		BaselineRestingHR:  restingHRValues(e.phenomeCoord.Raw.RecentRestingHR(baselineWindowDays)),
	})
}

// featuresFor assembles Skip Predictor features for one upcoming block from
// the Behavioral store and the already-computed pattern bundle.
func (e *Engine) featuresFor(block domain.TrainingBlock, bundle *recovery.UserBehaviorPatterns, recoveryScore, calendarDensity float64) predictor.Features {
	key := domain.TimeSlotKeyFor(block.StartTime)
	slot := e.phenomeCoord.Behavioral.SlotStats(key)

	adherence := 0.5
	if wp, ok := bundle.WorkoutTypes[block.WorkoutType]; ok {
		adherence = wp.AdherenceRate
	}

	return predictor.Features{
		TimeSlotMissRate:     slot.MissRate(),
		WorkoutTypeAdherence: adherence,
		RecoveryScore:        recoveryScore,
		CalendarDensity:      calendarDensity,
		DayOfWeekMissRate:    dayOfWeekMissRate(e.phenomeCoord.Derived.AllBlocks(), key.DayOfWeek),
		StreakLength:         bundle.Streak.CurrentStreak,
		DataPoints:           bundle.DataPoints,
	}
}

// calendarDensity reports the fraction of the Optimal Window Finder's
// 06:00-22:00 day window already occupied by busy slots on date.
func (e *Engine) calendarDensity(ctx context.Context, date time.Time) float64 {
	busy, err := e.calendar.BusySlots(ctx, date)
	if err != nil {
		logging.Get(logging.CategoryCycle).Warn("busy slots lookup failed for %s: %v", date.Format("2006-01-02"), err)
		return 0
	}

	const dayHours = 16 // 06:00-22:00
	var busyTotal time.Duration
	for _, w := range busy {
		busyTotal += w.Duration()
	}
	density := busyTotal.Hours() / dayHours
	if density > 1 {
		density = 1
	}
	return density
}

// proposeAlternative finds the best replacement window for block, proposes
// it to the calendar, and emits a skip-reschedule DecisionReceipt
// documenting the choice and the alternatives rejected.
func (e *Engine) proposeAlternative(ctx context.Context, block domain.TrainingBlock, assessment predictor.Assessment) error {
	busy, err := e.calendar.BusySlots(ctx, block.StartTime)
	if err != nil {
		return fmt.Errorf("busy slots: %w", err)
	}

	prefs, sacred, stats, _ := e.phenomeCoord.Behavioral.AllForPersistence()
	candidates := e.windowFinder.Find(window.Inputs{
		Date:            block.StartTime,
		WorkoutType:     block.WorkoutType,
		WorkoutDuration: block.Duration(),
		K:               3,
		BusySlots:       busy,
		SacredTimes:     sacred,
		TimeSlotStats:   stats,
		Preferences:     prefs,
	})
	if len(candidates) == 0 {
		return fmt.Errorf("no candidate window found")
	}

	best := candidates[0]
	proposed := domain.TrainingBlock{
		ID:               block.ID,
		CalendarEventID:  block.CalendarEventID,
		WorkoutType:      block.WorkoutType,
		StartTime:        best.SuggestedStartTime,
		EndTime:          best.SuggestedStartTime.Add(block.Duration()),
		WasAutoScheduled: true,
		Status:           domain.BlockScheduled,
		GeneratedWorkout: block.GeneratedWorkout,
	}

	if err := e.calendar.Propose(ctx, proposed); err != nil {
		return fmt.Errorf("calendar propose: %w", err)
	}
	e.phenomeCoord.Derived.UpsertBlock(proposed)

	e.mu.Lock()
	e.pendingProposals = append(e.pendingProposals, proposed)
	e.mu.Unlock()

	var alternatives []domain.Alternative
	for _, c := range candidates[1:] {
		alternatives = append(alternatives, domain.Alternative{
			Option:   c.Window.Start.Format(time.Kitchen),
			Rejected: "lower total score than the chosen window",
		})
	}

	receipt := domain.DecisionReceipt{
		ID:         uuid.NewString(),
		Timestamp:  e.now(),
		Type:       domain.ReceiptSkipReschedule,
		Outcome:    domain.OutcomePending,
		Confidence: assessment.Confidence,
		Inputs: map[string]any{
			"block_id":         block.ID,
			"skip_probability": assessment.SkipProbability,
			"recommendation":   string(assessment.Recommendation),
		},
		Decision:        fmt.Sprintf("proposed %s for block %s (score %.3f)", best.SuggestedStartTime.Format(time.RFC3339), block.ID, best.TotalScore),
		Alternatives:    alternatives,
		ContextSnapshot: map[string]any{"original_start": block.StartTime.Format(time.RFC3339)},
		ExpiresAt:       e.now().Add(e.cfg.ReceiptTTL()),
	}
	e.recordReceipt(ctx, receipt)
	return nil
}

// runEveningCycleOnce is one attempt of the evening pipeline: it reconciles
// every block scheduled to have already happened against detected
// workouts, submits the resulting TrustEvents, and flushes the Phenome
// stores.
func (e *Engine) runEveningCycleOnce(ctx context.Context) error {
	now := e.now()

	workouts, err := e.health.RecentWorkouts(ctx, 1)
	if err != nil {
		return fmt.Errorf("fetching today's workouts: %w", err)
	}

	for _, block := range e.phenomeCoord.Derived.AllBlocks() {
		if block.Status != domain.BlockScheduled || !block.EndTime.Before(now) {
			continue
		}

		if match, ok := matchWorkout(block, workouts); ok {
			e.reconcileCompleted(ctx, block, match)
			continue
		}
		e.reconcileMissed(ctx, block)
	}

	receiptBatch := e.drainReceiptLog()
	if err := e.phenomeCoord.Flush(ctx, receiptBatch); err != nil {
		return fmt.Errorf("flushing phenome: %w", err)
	}
	return nil
}

func (e *Engine) reconcileCompleted(ctx context.Context, block domain.TrainingBlock, workout domain.DetectedWorkout) {
	e.phenomeCoord.Derived.MutateBlock(block.ID, func(b domain.TrainingBlock) domain.TrainingBlock {
		b.Status = domain.BlockCompleted
		return b
	})
	e.phenomeCoord.Behavioral.RecordCompletion(domain.TimeSlotKeyFor(block.StartTime), workout.StartDate)

	event := domain.TrustEvent{
		Kind:      domain.EventWorkoutCompleted,
		SourceID:  block.ID,
		Timestamp: workout.StartDate,
		Workout:   &workout,
	}
	e.submitAndLog(ctx, event)
}

func (e *Engine) reconcileMissed(ctx context.Context, block domain.TrainingBlock) {
	e.phenomeCoord.Derived.MutateBlock(block.ID, func(b domain.TrainingBlock) domain.TrainingBlock {
		b.Status = domain.BlockMissed
		return b
	})
	e.phenomeCoord.Behavioral.RecordMiss(domain.TimeSlotKeyFor(block.StartTime), block.EndTime)

	b := block
	event := domain.TrustEvent{
		Kind:         domain.EventBlockMissed,
		SourceID:     block.ID,
		Timestamp:    block.EndTime,
		Block:        &b,
		MissedReason: domain.ReasonNoReason,
	}
	e.submitAndLog(ctx, event)
}

func (e *Engine) submitAndLog(ctx context.Context, event domain.TrustEvent) {
	done := e.stateMachine.Submit(ctx, event)
	if err := <-done; err != nil {
		logging.Get(logging.CategoryCycle).Warn("submitting %s for %s failed: %v", event.Kind, event.SourceID, err)
	}
}

// SubmitEvent is the Engine's external entry point for hand- or
// adapter-submitted events (§6's "submit event" capability, used by
// cmd/ghostd's submit command). It records a behavioral penalty ahead of
// the ordinary State Machine submission when the event is a deleted block
// the Engine itself had auto-scheduled, so three such deletions at the
// same TimeSlotKey promote it to a SacredTime per §9's resolution, then
// forwards the event to the State Machine exactly as the cycle pipelines do.
func (e *Engine) SubmitEvent(ctx context.Context, event domain.TrustEvent) error {
	if event.Kind == domain.EventBlockDeleted && event.Block != nil && event.Block.WasAutoScheduled {
		key := domain.TimeSlotKeyFor(event.Block.StartTime)
		if promoted := e.phenomeCoord.Behavioral.RecordPenalty(key); promoted {
			logging.Get(logging.CategoryCycle).Info("time slot %v promoted to sacred time after repeated deletions", key)
		}
	}

	done := e.stateMachine.Submit(ctx, event)
	return <-done
}

func (e *Engine) recordReceipt(ctx context.Context, receipt domain.DecisionReceipt) {
	if e.receipts != nil {
		if err := e.receipts.Emit(ctx, receipt); err != nil {
			logging.Get(logging.CategoryCycle).Warn("receipt emit failed: %v", err)
		}
	}
	e.mu.Lock()
	e.receiptLog = append(e.receiptLog, receipt)
	e.mu.Unlock()
}

func (e *Engine) drainReceiptLog() []domain.DecisionReceipt {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.receiptLog
	e.receiptLog = nil
	return out
}

// matchWorkout reports the first detected workout overlapping block's
// scheduled window and matching its workout type.
func matchWorkout(block domain.TrainingBlock, workouts []domain.DetectedWorkout) (domain.DetectedWorkout, bool) {
	blockWindow := domain.TimeWindow{Start: block.StartTime, End: block.EndTime}
	for _, w := range workouts {
		workoutWindow := domain.TimeWindow{Start: w.StartDate, End: w.EndDate}
		if w.Type == block.WorkoutType && blockWindow.Overlaps(workoutWindow) {
			return w, true
		}
	}
	return domain.DetectedWorkout{}, false
}

// dayOfWeekMissRate computes a simple historical miss rate for weekday
// across every completed/missed block, independent of hour-of-day.
func dayOfWeekMissRate(blocks []domain.TrainingBlock, weekday int) float64 {
	var completed, missed int
	for _, b := range blocks {
		if domain.TimeSlotKeyFor(b.StartTime).DayOfWeek != weekday {
			continue
		}
		switch b.Status {
		case domain.BlockCompleted:
			completed++
		case domain.BlockMissed:
			missed++
		}
	}
	total := completed + missed
	if total == 0 {
		return 0
	}
	return float64(missed) / float64(total)
}

func dailyRecoveryScores(states []domain.MorningState) []float64 {
	out := make([]float64, 0, len(states))
	for _, s := range states {
		out = append(out, s.RecoveryScore)
	}
	return out
}

func hrvValues(readings []domain.HRVReading) []float64 {
	out := make([]float64, len(readings))
	for i, r := range readings {
		out[i] = r.ValueMS
	}
	return out
}

func restingHRValues(samples []domain.RestingHRSample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.BPM
	}
	return out
}

func sleepHours(records []domain.SleepRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.TotalDuration.Hours()
	}
	return out
}

func workoutStrain(workouts []domain.DetectedWorkout) []float64 {
	out := make([]float64, len(workouts))
	for i, w := range workouts {
		out[i] = w.ActiveCalories
	}
	return out
}

// GhostSnapshot is the Ghost Engine's current read-only state (spec.md
// §6's snapshot() operation): the authoritative phase/score pair, the
// capabilities that phase grants, and bookkeeping about recent cycles and
// proposals still awaiting a user response.
type GhostSnapshot struct {
	Phase            domain.TrustPhase
	TrustScore       float64
	Capabilities     map[domain.Capability]struct{}
	LastMorningCycle time.Time
	LastEveningCycle time.Time
	PendingProposals []domain.TrainingBlock
}

// Snapshot builds a GhostSnapshot from the current state machine and
// engine bookkeeping.
func (e *Engine) Snapshot() GhostSnapshot {
	e.mu.Lock()
	pending := append([]domain.TrainingBlock(nil), e.pendingProposals...)
	lastMorning, lastEvening := e.lastMorningCycle, e.lastEveningCycle
	e.mu.Unlock()

	return GhostSnapshot{
		Phase:            e.stateMachine.CurrentPhase(),
		TrustScore:       e.stateMachine.TrustScore(),
		Capabilities:     e.stateMachine.Capabilities(),
		LastMorningCycle: lastMorning,
		LastEveningCycle: lastEvening,
		PendingProposals: pending,
	}
}
