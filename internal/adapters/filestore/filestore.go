// Package filestore provides JSON-file-backed HealthProvider and
// CalendarProvider adapters for demos and local scenario testing. These are
// explicitly not production ingestion adapters (spec.md §1 Non-goals
// exclude "vendor-specific ingestion adapters" as out of scope for the
// core); real deployments wire a HealthKit/Google-Fit/etc. client against
// the same ports.HealthProvider/ports.CalendarProvider interfaces instead.
//
// Store additionally supports hot-reloading its backing JSON file via
// fsnotify (Watch), so a long-lived caller sees edits to the scenario file
// on disk on its next cycle without a restart. cmd/ghostd does not call
// Watch: each of its one-shot invocations loads the file afresh.
package filestore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
	"github.com/vedprakash-m/ghost-trust-engine/internal/logging"
)

// dateLayout keys Scenario.BusySlots, one entry per calendar day.
const dateLayout = "2006-01-02"

// reloadDebounce absorbs editors that write a file in several small writes
// (truncate then append) so a single edit doesn't trigger several reloads.
const reloadDebounce = 200 * time.Millisecond

// Scenario is the on-disk JSON shape a Store loads. It is a flat snapshot,
// not an event log: every reload replaces the Store's in-memory state
// wholesale.
type Scenario struct {
	Sleep     []domain.SleepRecord      `json:"sleep"`
	HRV       []domain.HRVReading       `json:"hrv"`
	RestingHR []domain.RestingHRSample  `json:"resting_hr"`
	Workouts  []domain.DetectedWorkout  `json:"workouts"`

	// BusySlots is keyed by "2006-01-02" date string.
	BusySlots map[string][]domain.TimeWindow `json:"busy_slots"`
}

// Store is a JSON-file-backed ports.HealthProvider and
// ports.CalendarProvider, safe for concurrent reads while a watcher
// goroutine reloads it in the background.
type Store struct {
	path string

	mu       sync.RWMutex
	scenario Scenario

	// proposed records every block a caller has Proposed, for test/demo
	// inspection; the CalendarProvider contract doesn't require a real
	// external calendar to accept it.
	proposed []domain.TrainingBlock

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a Store and loads path once. path need not exist yet; an
// absent file loads as an empty Scenario so a fresh demo can be seeded via
// Save before a cycle ever runs.
func New(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads and parses path, replacing the Store's entire in-memory
// scenario. A missing file is treated as an empty scenario, not an error.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.scenario = Scenario{BusySlots: map[string][]domain.TimeWindow{}}
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("filestore: reading %s: %w", s.path, err)
	}

	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return fmt.Errorf("filestore: parsing %s: %w", s.path, err)
	}
	if sc.BusySlots == nil {
		sc.BusySlots = map[string][]domain.TimeWindow{}
	}

	s.mu.Lock()
	s.scenario = sc
	s.mu.Unlock()
	return nil
}

// Save writes the Store's current scenario back to path, pretty-printed so
// it stays hand-editable for the next demo run.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.scenario, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("filestore: marshaling scenario: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("filestore: creating %s: %w", dir, err)
		}
	}
	return os.WriteFile(s.path, data, 0644)
}

// SetScenario replaces the in-memory scenario directly (used by seed
// commands and tests that don't want to round-trip through disk).
func (s *Store) SetScenario(sc Scenario) {
	if sc.BusySlots == nil {
		sc.BusySlots = map[string][]domain.TimeWindow{}
	}
	s.mu.Lock()
	s.scenario = sc
	s.mu.Unlock()
}

// Watch starts an fsnotify watcher on path's directory and reloads the
// Store whenever path itself is written, debounced against rapid
// successive writes. Non-blocking; the watcher goroutine stops when ctx is
// cancelled or Close is called.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filestore: creating watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("filestore: watching %s: %w", dir, err)
	}

	s.watcher = watcher
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.run(ctx)
	return nil
}

func (s *Store) run(ctx context.Context) {
	defer close(s.doneCh)

	var pending *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(reloadDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryBoot).Warn("filestore watcher error: %v", err)
		case <-reload:
			if err := s.Load(); err != nil {
				logging.Get(logging.CategoryBoot).Error("filestore reload failed: %v", err)
			} else {
				logging.Get(logging.CategoryBoot).Info("filestore reloaded %s", s.path)
			}
		}
	}
}

// Close stops the watcher goroutine, if running, and releases its
// fsnotify handle.
func (s *Store) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.stopCh)
	<-s.doneCh
	return s.watcher.Close()
}

// RecentSleep implements ports.HealthProvider.
func (s *Store) RecentSleep(_ context.Context, days int) ([]domain.SleepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := cutoffFor(days)
	var out []domain.SleepRecord
	for _, r := range s.scenario.Sleep {
		if !r.Date.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

// RecentHRV implements ports.HealthProvider.
func (s *Store) RecentHRV(_ context.Context, days int) ([]domain.HRVReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := cutoffFor(days)
	var out []domain.HRVReading
	for _, r := range s.scenario.HRV {
		if !r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

// RecentRestingHR implements ports.HealthProvider.
func (s *Store) RecentRestingHR(_ context.Context, days int) ([]domain.RestingHRSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := cutoffFor(days)
	var out []domain.RestingHRSample
	for _, r := range s.scenario.RestingHR {
		if !r.Timestamp.Before(cutoff) {
			out = append(out, r)
		}
	}
	return out, nil
}

// RecentWorkouts implements ports.HealthProvider.
func (s *Store) RecentWorkouts(_ context.Context, days int) ([]domain.DetectedWorkout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := cutoffFor(days)
	var out []domain.DetectedWorkout
	for _, w := range s.scenario.Workouts {
		if !w.StartDate.Before(cutoff) {
			out = append(out, w)
		}
	}
	return out, nil
}

// BusySlots implements ports.CalendarProvider.
func (s *Store) BusySlots(_ context.Context, date time.Time) ([]domain.TimeWindow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	slots := append([]domain.TimeWindow(nil), s.scenario.BusySlots[date.Format(dateLayout)]...)
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}

// Propose implements ports.CalendarProvider. The demo adapter has no real
// external calendar to write to; it records the proposal for later
// inspection and always succeeds.
func (s *Store) Propose(_ context.Context, block domain.TrainingBlock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposed = append(s.proposed, block)
	return nil
}

// Proposed returns every block Propose has recorded, in call order.
func (s *Store) Proposed() []domain.TrainingBlock {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.TrainingBlock(nil), s.proposed...)
}

func cutoffFor(days int) time.Time {
	return time.Now().AddDate(0, 0, -days)
}
