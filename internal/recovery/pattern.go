package recovery

import (
	"sort"
	"sync"
	"time"

	"github.com/vedprakash-m/ghost-trust-engine/internal/config"
	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
)

// minConfidentDataPoints is the data-point floor below which a detected
// pattern is reported but flagged unconfident (spec.md §4.5: "Requires
// ≥10 data points to mark patterns as confident").
const minConfidentDataPoints = 10

// minWeekdaySampleSize is the per-weekday sample floor spec.md §4.5
// requires before a day can be called "best" or "worst".
const minWeekdaySampleSize = 4

// WeekdayPattern names the weekdays where completion rate crosses a
// notable threshold with enough samples to trust it.
type WeekdayPattern struct {
	BestDays  []int // ISO weekday 1..7, completion rate >= 0.7
	WorstDays []int // ISO weekday 1..7, completion rate < 0.4
}

// TimeOfDayBand is one of the three daily bands the Pattern Detector
// buckets hours into.
type TimeOfDayBand string

const (
	BandMorning TimeOfDayBand = "morning" // 05:00-11:59
	BandMidday  TimeOfDayBand = "midday"  // 12:00-16:59
	BandEvening TimeOfDayBand = "evening" // 17:00-21:59
	BandOther   TimeOfDayBand = "other"
)

func bandFor(hour int) TimeOfDayBand {
	switch {
	case hour >= 5 && hour < 12:
		return BandMorning
	case hour >= 12 && hour < 17:
		return BandMidday
	case hour >= 17 && hour < 22:
		return BandEvening
	default:
		return BandOther
	}
}

// TimeOfDayPattern summarizes which part of the day the user completes
// workouts most reliably.
type TimeOfDayPattern struct {
	CompletionRateByBand map[TimeOfDayBand]float64
	PreferredPeriod      TimeOfDayBand
	PeakHours            []int // hours of day with the highest completion rate
}

// SkipPattern summarizes when skips cluster.
type SkipPattern struct {
	CommonSkipDays    []int // ISO weekday, share of all misses > 0.3
	CommonSkipHours   []int // hour of day, share of all misses > 0.3
	AverageSkipStreak float64
}

// StreakPattern summarizes completion-streak behavior.
type StreakPattern struct {
	CurrentStreak       int
	LongestStreak       int
	AverageStreakLength float64
}

// UserBehaviorPatterns is the Pattern Detector's cached output bundle
// (spec.md §4.5).
type UserBehaviorPatterns struct {
	ComputedAt          time.Time
	DataPoints          int
	Confident           bool
	Weekday             WeekdayPattern
	TimeOfDay           TimeOfDayPattern
	WorkoutTypes        map[domain.WorkoutType]domain.WorkoutPattern
	Skip                SkipPattern
	Streak              StreakPattern
	RecoveryVariability float64 // standard deviation of daily recovery scores
}

// Detector caches a UserBehaviorPatterns bundle for PatternCacheHours
// (default 6h) so repeated morning-cycle runs don't recompute it from 30
// days of history every time.
type Detector struct {
	cfg *config.Config
	now func() time.Time

	mu         sync.Mutex
	cached     *UserBehaviorPatterns
	computedAt time.Time
}

// NewDetector creates a Detector bound to cfg's PatternCacheHours.
func NewDetector(cfg *config.Config) *Detector {
	return &Detector{cfg: cfg, now: time.Now}
}

// WithClock overrides the Detector's clock (tests only).
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Patterns returns the cached bundle if still within TTL, else recomputes
// it from blocks (30 days of completed/missed TrainingBlocks) and
// dailyRecoveryScores (one MorningState.RecoveryScore per day in the same
// window, for RecoveryVariability).
func (d *Detector) Patterns(blocks []domain.TrainingBlock, dailyRecoveryScores []float64, forceRefresh bool) *UserBehaviorPatterns {
	d.mu.Lock()
	defer d.mu.Unlock()

	ttl := time.Duration(d.cfg.PatternCacheHours) * time.Hour
	if !forceRefresh && d.cached != nil && d.now().Sub(d.computedAt) < ttl {
		return d.cached
	}

	bundle := detect(blocks, dailyRecoveryScores, d.now())
	d.cached = bundle
	d.computedAt = d.now()
	return bundle
}

func detect(blocks []domain.TrainingBlock, dailyRecoveryScores []float64, now time.Time) *UserBehaviorPatterns {
	dataPoints := 0
	for _, b := range blocks {
		if b.Status == domain.BlockCompleted || b.Status == domain.BlockMissed {
			dataPoints++
		}
	}

	bundle := &UserBehaviorPatterns{
		ComputedAt:          now,
		DataPoints:          dataPoints,
		Confident:           dataPoints >= minConfidentDataPoints,
		WorkoutTypes:        map[domain.WorkoutType]domain.WorkoutPattern{},
		RecoveryVariability: standardDeviation(dailyRecoveryScores),
	}

	bundle.Weekday = detectWeekdayPattern(blocks)
	bundle.TimeOfDay = detectTimeOfDayPattern(blocks)
	bundle.WorkoutTypes = detectWorkoutTypePatterns(blocks, now)
	bundle.Skip = detectSkipPattern(blocks)
	bundle.Streak = detectStreakPattern(blocks)
	return bundle
}

type weekdayCounts struct{ completed, missed int }

func detectWeekdayPattern(blocks []domain.TrainingBlock) WeekdayPattern {
	counts := map[int]*weekdayCounts{}
	for _, b := range blocks {
		if b.Status != domain.BlockCompleted && b.Status != domain.BlockMissed {
			continue
		}
		key := domain.TimeSlotKeyFor(b.StartTime).DayOfWeek
		c, ok := counts[key]
		if !ok {
			c = &weekdayCounts{}
			counts[key] = c
		}
		if b.Status == domain.BlockCompleted {
			c.completed++
		} else {
			c.missed++
		}
	}

	var pattern WeekdayPattern
	for day, c := range counts {
		total := c.completed + c.missed
		if total < minWeekdaySampleSize {
			continue
		}
		rate := float64(c.completed) / float64(total)
		switch {
		case rate >= 0.7:
			pattern.BestDays = append(pattern.BestDays, day)
		case rate < 0.4:
			pattern.WorstDays = append(pattern.WorstDays, day)
		}
	}
	sort.Ints(pattern.BestDays)
	sort.Ints(pattern.WorstDays)
	return pattern
}

func detectTimeOfDayPattern(blocks []domain.TrainingBlock) TimeOfDayPattern {
	type bandCounts struct{ completed, total int }
	byBand := map[TimeOfDayBand]*bandCounts{}
	byHour := map[int]*bandCounts{}

	for _, b := range blocks {
		if b.Status != domain.BlockCompleted && b.Status != domain.BlockMissed {
			continue
		}
		hour := b.StartTime.Hour()
		band := bandFor(hour)

		bc, ok := byBand[band]
		if !ok {
			bc = &bandCounts{}
			byBand[band] = bc
		}
		bc.total++

		hc, ok := byHour[hour]
		if !ok {
			hc = &bandCounts{}
			byHour[hour] = hc
		}
		hc.total++

		if b.Status == domain.BlockCompleted {
			bc.completed++
			hc.completed++
		}
	}

	rates := map[TimeOfDayBand]float64{}
	var preferred TimeOfDayBand
	bestRate := -1.0
	for _, band := range []TimeOfDayBand{BandMorning, BandMidday, BandEvening, BandOther} {
		bc, ok := byBand[band]
		if !ok || bc.total == 0 {
			rates[band] = 0.5
			continue
		}
		rate := float64(bc.completed) / float64(bc.total)
		rates[band] = rate
		if rate > bestRate {
			bestRate = rate
			preferred = band
		}
	}

	var bestHourRate float64 = -1
	var peakHours []int
	for hour, hc := range byHour {
		if hc.total == 0 {
			continue
		}
		rate := float64(hc.completed) / float64(hc.total)
		if rate > bestHourRate {
			bestHourRate = rate
			peakHours = []int{hour}
		} else if rate == bestHourRate {
			peakHours = append(peakHours, hour)
		}
	}
	sort.Ints(peakHours)

	return TimeOfDayPattern{
		CompletionRateByBand: rates,
		PreferredPeriod:      preferred,
		PeakHours:            peakHours,
	}
}

func detectWorkoutTypePatterns(blocks []domain.TrainingBlock, now time.Time) map[domain.WorkoutType]domain.WorkoutPattern {
	type typeAgg struct {
		completed, missed int
		days              map[int]int
		streaks           []int
		currentStreak     int
	}

	byTypeOrdered := map[domain.WorkoutType][]domain.TrainingBlock{}
	for _, b := range blocks {
		if b.Status != domain.BlockCompleted && b.Status != domain.BlockMissed {
			continue
		}
		byTypeOrdered[b.WorkoutType] = append(byTypeOrdered[b.WorkoutType], b)
	}

	out := map[domain.WorkoutType]domain.WorkoutPattern{}
	for wt, typeBlocks := range byTypeOrdered {
		sort.Slice(typeBlocks, func(i, j int) bool { return typeBlocks[i].StartTime.Before(typeBlocks[j].StartTime) })

		agg := &typeAgg{days: map[int]int{}}

		for _, b := range typeBlocks {
			if b.Status == domain.BlockCompleted {
				agg.completed++
				agg.days[domain.TimeSlotKeyFor(b.StartTime).DayOfWeek]++
				agg.currentStreak++
			} else {
				agg.missed++
				if agg.currentStreak > 0 {
					agg.streaks = append(agg.streaks, agg.currentStreak)
				}
				agg.currentStreak = 0
			}
		}
		if agg.currentStreak > 0 {
			agg.streaks = append(agg.streaks, agg.currentStreak)
		}

		total := agg.completed + agg.missed
		adherence := 0.5
		if total > 0 {
			adherence = float64(agg.completed) / float64(total)
		}

		var preferredDays []int
		for day, count := range agg.days {
			if count >= minWeekdaySampleSize/2 {
				preferredDays = append(preferredDays, day)
			}
		}
		sort.Ints(preferredDays)

		out[wt] = domain.WorkoutPattern{
			Type:          wt,
			AdherenceRate: adherence,
			PreferredDays: preferredDays,
			AverageStreak: mean(intsToFloats(agg.streaks)),
			LastUpdated:   now,
		}
	}
	return out
}

func detectSkipPattern(blocks []domain.TrainingBlock) SkipPattern {
	sorted := make([]domain.TrainingBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Status == domain.BlockCompleted || b.Status == domain.BlockMissed {
			sorted = append(sorted, b)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTime.Before(sorted[j].StartTime) })

	totalMissed := 0
	dayShare := map[int]int{}
	hourShare := map[int]int{}
	var streaks []int
	currentSkipStreak := 0

	for _, b := range sorted {
		if b.Status != domain.BlockMissed {
			if currentSkipStreak > 0 {
				streaks = append(streaks, currentSkipStreak)
			}
			currentSkipStreak = 0
			continue
		}
		totalMissed++
		dayShare[domain.TimeSlotKeyFor(b.StartTime).DayOfWeek]++
		hourShare[b.StartTime.Hour()]++
		currentSkipStreak++
	}
	if currentSkipStreak > 0 {
		streaks = append(streaks, currentSkipStreak)
	}

	var pattern SkipPattern
	if totalMissed > 0 {
		for day, count := range dayShare {
			if float64(count)/float64(totalMissed) > 0.3 {
				pattern.CommonSkipDays = append(pattern.CommonSkipDays, day)
			}
		}
		for hour, count := range hourShare {
			if float64(count)/float64(totalMissed) > 0.3 {
				pattern.CommonSkipHours = append(pattern.CommonSkipHours, hour)
			}
		}
	}
	sort.Ints(pattern.CommonSkipDays)
	sort.Ints(pattern.CommonSkipHours)
	pattern.AverageSkipStreak = mean(intsToFloats(streaks))
	return pattern
}

func detectStreakPattern(blocks []domain.TrainingBlock) StreakPattern {
	sorted := make([]domain.TrainingBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Status == domain.BlockCompleted || b.Status == domain.BlockMissed {
			sorted = append(sorted, b)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartTime.Before(sorted[j].StartTime) })

	var streaks []int
	current := 0
	longest := 0
	for _, b := range sorted {
		if b.Status == domain.BlockCompleted {
			current++
			if current > longest {
				longest = current
			}
			continue
		}
		if current > 0 {
			streaks = append(streaks, current)
		}
		current = 0
	}
	if current > 0 {
		streaks = append(streaks, current)
	}

	return StreakPattern{
		CurrentStreak:       current,
		LongestStreak:       longest,
		AverageStreakLength: mean(intsToFloats(streaks)),
	}
}

func intsToFloats(ints []int) []float64 {
	out := make([]float64, len(ints))
	for i, v := range ints {
		out[i] = float64(v)
	}
	return out
}
