// Package window implements the Optimal Window Finder (spec.md §4.6): given
// a date, a workout duration, and a desired candidate count k, it walks the
// day's free calendar gaps and returns the top-k scored TimeWindows a
// proposal could be slotted into. It never writes to a calendar or to
// Phenome; callers assemble its inputs from read-only snapshots.
package window

import (
	"sort"
	"time"

	"github.com/vedprakash-m/ghost-trust-engine/internal/config"
	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
	"github.com/vedprakash-m/ghost-trust-engine/internal/metrics"
)

// MetricName is the metrics.Registry name the Finder registers its
// window-scoring formula under.
const MetricName = "window_score"

// MetricVersion is bumped whenever the scoring formula changes.
const MetricVersion = 1

const (
	dayStartHour = 6  // 06:00
	dayEndHour   = 22 // 22:00

	idealBufferExcess = 30 * time.Minute
)

// energyCurve is a fixed per-hour alertness/availability weight (spec.md
// §4.6's "time-of-day energy — per-hour curve"), peaking mid-morning and
// early evening and dipping around midday and late night.
var energyCurve = map[int]float64{
	5: 0.4, 6: 0.6, 7: 0.9, 8: 1.0, 9: 0.9, 10: 0.8, 11: 0.7,
	12: 0.5, 13: 0.5, 14: 0.6, 15: 0.7, 16: 0.8, 17: 0.9, 18: 1.0,
	19: 0.9, 20: 0.7, 21: 0.5,
}

func energyAt(hour int) float64 {
	if v, ok := energyCurve[hour]; ok {
		return v
	}
	return 0.3
}

// Candidate is a scored, proposal-ready TimeWindow.
type Candidate struct {
	Window             domain.TimeWindow
	SuggestedStartTime time.Time
	TotalScore         float64
	Factors            map[string]float64
}

// Inputs bundles everything the Finder needs for one date. Callers read
// BusySlots from a CalendarProvider and SacredTimes/TimeSlotStats/
// Preferences from the Behavioral Phenome store.
type Inputs struct {
	Date            time.Time
	WorkoutType     domain.WorkoutType
	WorkoutDuration time.Duration
	K               int

	BusySlots     []domain.TimeWindow
	SacredTimes   []domain.SacredTime
	TimeSlotStats []domain.TimeSlotStats
	Preferences   []domain.WorkoutPreference
}

// Finder computes scored candidate windows against a fixed configuration.
// Holds no mutable state; safe for concurrent use.
type Finder struct {
	cfg      *config.Config
	registry *metrics.Registry
}

// New creates a Finder bound to cfg's window-finder settings.
func New(cfg *config.Config, registry *metrics.Registry) *Finder {
	if registry != nil {
		registry.Register(MetricName, MetricVersion)
	}
	return &Finder{cfg: cfg, registry: registry}
}

// Find returns up to in.K candidate windows for in.Date, scored and sorted
// by TotalScore descending (earlier StartTime breaks ties), per spec.md
// §4.6's six-step algorithm.
func (f *Finder) Find(in Inputs) []Candidate {
	buffer := time.Duration(f.cfg.BufferBeforeEventMinutes+f.cfg.BufferAfterEventMinutes) * time.Minute
	minWindow := time.Duration(f.cfg.MinWindowDurationMinutes) * time.Minute
	required := in.WorkoutDuration + buffer

	dayStart := time.Date(in.Date.Year(), in.Date.Month(), in.Date.Day(), dayStartHour, 0, 0, 0, in.Date.Location())
	dayEnd := time.Date(in.Date.Year(), in.Date.Month(), in.Date.Day(), dayEndHour, 0, 0, 0, in.Date.Location())

	blocked := mergeBlocked(blockedWindows(in.Date, in.BusySlots, in.SacredTimes))
	gaps := walkGaps(dayStart, dayEnd, blocked, minWindow)

	statsByHour := statsIndex(in.TimeSlotStats)
	preference := preferenceFor(in.Preferences, in.WorkoutType)

	var candidates []Candidate
	for _, gap := range gaps {
		if gap.Duration() < required {
			continue
		}
		candidates = append(candidates, f.score(gap, required, in.WorkoutDuration, preference, statsByHour))
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].TotalScore != candidates[j].TotalScore {
			return candidates[i].TotalScore > candidates[j].TotalScore
		}
		return candidates[i].Window.Start.Before(candidates[j].Window.Start)
	})

	if in.K > 0 && len(candidates) > in.K {
		candidates = candidates[:in.K]
	}
	return candidates
}

// blockedWindows converts busy calendar slots and any SacredTime whose
// weekday matches date into concrete TimeWindows on that date. A sacred
// time occupies its full hour.
func blockedWindows(date time.Time, busy []domain.TimeWindow, sacred []domain.SacredTime) []domain.TimeWindow {
	out := make([]domain.TimeWindow, 0, len(busy)+len(sacred))
	out = append(out, busy...)

	weekday := domain.TimeSlotKeyFor(date).DayOfWeek
	for _, s := range sacred {
		if s.Key.DayOfWeek != weekday {
			continue
		}
		start := time.Date(date.Year(), date.Month(), date.Day(), s.Key.HourOfDay, 0, 0, 0, date.Location())
		out = append(out, domain.TimeWindow{Start: start, End: start.Add(time.Hour)})
	}
	return out
}

// mergeBlocked sorts and merges overlapping/adjacent blocked windows so the
// gap walk below never has to reason about overlaps.
func mergeBlocked(windows []domain.TimeWindow) []domain.TimeWindow {
	if len(windows) == 0 {
		return nil
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].Start.Before(windows[j].Start) })

	merged := []domain.TimeWindow{windows[0]}
	for _, w := range windows[1:] {
		last := &merged[len(merged)-1]
		if !w.Start.After(last.End) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// walkGaps returns every interval in [dayStart, dayEnd] not covered by
// blocked, at least minWindow long.
func walkGaps(dayStart, dayEnd time.Time, blocked []domain.TimeWindow, minWindow time.Duration) []domain.TimeWindow {
	var gaps []domain.TimeWindow
	cursor := dayStart
	for _, b := range blocked {
		if b.Start.After(cursor) {
			if gap := (domain.TimeWindow{Start: cursor, End: b.Start}); gap.Duration() >= minWindow {
				gaps = append(gaps, gap)
			}
		}
		if b.End.After(cursor) {
			cursor = b.End
		}
	}
	if dayEnd.After(cursor) {
		if gap := (domain.TimeWindow{Start: cursor, End: dayEnd}); gap.Duration() >= minWindow {
			gaps = append(gaps, gap)
		}
	}
	return gaps
}

func statsIndex(stats []domain.TimeSlotStats) map[domain.TimeSlotKey]domain.TimeSlotStats {
	idx := make(map[domain.TimeSlotKey]domain.TimeSlotStats, len(stats))
	for _, s := range stats {
		idx[s.Key] = s
	}
	return idx
}

func preferenceFor(prefs []domain.WorkoutPreference, wt domain.WorkoutType) float64 {
	for _, p := range prefs {
		if p.Type == wt {
			// Squash an unbounded relative weight into [0, 1]; 1.0 maps to
			// ~0.5 ("neutral-positive"), growing toward 1 for strong
			// preferences and toward 0 for negative ones.
			if p.Weight <= 0 {
				return 0
			}
			return p.Weight / (1 + p.Weight)
		}
	}
	return 0.5 // no recorded preference: neutral
}

// score computes the five weighted factors for gap as a whole candidate
// window; excess slack beyond the workout's required footprint feeds the
// buffer-quality and flexibility factors.
func (f *Finder) score(gap domain.TimeWindow, required, workoutDuration time.Duration, preference float64, statsByHour map[domain.TimeSlotKey]domain.TimeSlotStats) Candidate {
	excess := gap.Duration() - required

	historical := historicalSuccess(gap, workoutDuration, statsByHour)
	bufferQuality := clamp01(float64(excess) / float64(idealBufferExcess))
	flexibility := flexibilityBucket(excess)
	energy := energyAt(gap.Start.Hour())

	factors := map[string]float64{
		"historical_success":   historical,
		"preference_alignment": preference,
		"buffer_quality":        bufferQuality,
		"time_of_day_energy":    energy,
		"flexibility":           flexibility,
	}

	compute := func() float64 {
		w := f.cfg.WindowScoreWeights
		return w["historical_success"]*historical +
			w["preference_alignment"]*preference +
			w["buffer_quality"]*bufferQuality +
			w["time_of_day_energy"]*energy +
			w["flexibility"]*flexibility
	}

	var total float64
	if f.registry != nil {
		total = f.registry.Compute(MetricName, MetricVersion, toAnyMap(factors), compute)
	} else {
		total = compute()
	}

	lead := 15 * time.Minute
	if half := excess / 2; half < lead {
		lead = half
	}
	if lead < 0 {
		lead = 0
	}

	return Candidate{
		Window:             gap,
		SuggestedStartTime: gap.Start.Add(lead),
		TotalScore:         total,
		Factors:            factors,
	}
}

// historicalSuccess averages the CompletionRate of every (dayOfWeek,
// hourOfDay) slot the workout's actual duration would occupy.
func historicalSuccess(win domain.TimeWindow, workoutDuration time.Duration, statsByHour map[domain.TimeSlotKey]domain.TimeSlotStats) float64 {
	workoutEnd := win.Start.Add(workoutDuration)
	var sum float64
	count := 0
	for h := win.Start; h.Before(workoutEnd); h = h.Add(time.Hour) {
		key := domain.TimeSlotKeyFor(h)
		if s, ok := statsByHour[key]; ok {
			sum += s.CompletionRate()
		} else {
			sum += 0.5
		}
		count++
	}
	if count == 0 {
		return 0.5
	}
	return sum / float64(count)
}

// flexibilityBucket scores excess time in discrete bands rather than
// linearly, so a window that's merely "a bit roomy" isn't treated the same
// as one with nearly an hour of slack.
func flexibilityBucket(excess time.Duration) float64 {
	switch {
	case excess >= time.Hour:
		return 1.0
	case excess >= 30*time.Minute:
		return 0.8
	case excess >= 15*time.Minute:
		return 0.5
	default:
		return 0.2
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func toAnyMap(m map[string]float64) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
