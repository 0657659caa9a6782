package phenome

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
	"github.com/vedprakash-m/ghost-trust-engine/internal/ghosterrors"
	"github.com/vedprakash-m/ghost-trust-engine/internal/ports"
)

var (
	_ ports.PhenomePersistence = (*SQLiteStore)(nil)
	_ ports.ReceiptSink        = (*SQLiteStore)(nil)
)

// SQLiteStore is the concrete ports.PhenomePersistence backing the three
// Phenome stores. Schema shape and upsert style follow this repo's
// longstanding single-file SQLite store: one schema.Exec at open, JSON
// columns for nested structures, ON CONFLICT DO UPDATE for singleton rows.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies its
// schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: opening database: %v", ghosterrors.ErrPersistence, err)
	}

	s := &SQLiteStore{db: db, dbPath: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing schema: %v", ghosterrors.ErrPersistence, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sleep_data (
		date DATETIME PRIMARY KEY,
		total_ms INTEGER NOT NULL,
		deep_ms INTEGER NOT NULL,
		rem_ms INTEGER NOT NULL,
		efficiency_pct REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS hrv_data (
		timestamp DATETIME PRIMARY KEY,
		value_ms REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS resting_hr_data (
		timestamp DATETIME PRIMARY KEY,
		bpm REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS workout_record (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		start_date DATETIME NOT NULL,
		end_date DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		active_calories REAL NOT NULL,
		avg_heart_rate REAL,
		avg_heart_rate_valid INTEGER NOT NULL DEFAULT 0,
		source TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_workout_start ON workout_record(start_date);

	CREATE TABLE IF NOT EXISTS training_block (
		id TEXT PRIMARY KEY,
		calendar_event_id TEXT,
		workout_type TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		was_auto_scheduled INTEGER NOT NULL,
		status TEXT NOT NULL,
		generated_workout_json TEXT
	);

	CREATE TABLE IF NOT EXISTS morning_state (
		date TEXT PRIMARY KEY,
		recovery_score REAL NOT NULL,
		flagged_blocks_json TEXT
	);

	CREATE TABLE IF NOT EXISTS decision_receipt (
		id TEXT PRIMARY KEY,
		timestamp DATETIME NOT NULL,
		type TEXT NOT NULL,
		outcome TEXT NOT NULL,
		confidence REAL NOT NULL,
		trust_impact_json TEXT NOT NULL,
		inputs_json TEXT,
		decision TEXT NOT NULL,
		alternatives_json TEXT,
		context_snapshot_json TEXT,
		expires_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_receipt_expires ON decision_receipt(expires_at);

	CREATE TABLE IF NOT EXISTS sacred_time (
		day_of_week INTEGER NOT NULL,
		hour_of_day INTEGER NOT NULL,
		reason TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (day_of_week, hour_of_day)
	);

	CREATE TABLE IF NOT EXISTS time_slot_stats (
		day_of_week INTEGER NOT NULL,
		hour_of_day INTEGER NOT NULL,
		completed_count INTEGER NOT NULL DEFAULT 0,
		missed_count INTEGER NOT NULL DEFAULT 0,
		penalty_count INTEGER NOT NULL DEFAULT 0,
		last_completed DATETIME,
		last_missed DATETIME,
		PRIMARY KEY (day_of_week, hour_of_day)
	);

	CREATE TABLE IF NOT EXISTS workout_preference (
		workout_type TEXT PRIMARY KEY,
		weight REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS workout_pattern (
		workout_type TEXT PRIMARY KEY,
		adherence_rate REAL NOT NULL,
		preferred_days_json TEXT,
		average_streak REAL NOT NULL,
		last_updated DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trust_state (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		phase INTEGER NOT NULL,
		trust_score REAL NOT NULL
	);
	INSERT OR IGNORE INTO trust_state (id, phase, trust_score) VALUES (1, 0, 0.0);

	CREATE TABLE IF NOT EXISTS metric_provenance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		metric_name TEXT NOT NULL,
		metric_version INTEGER NOT NULL,
		inputs_json TEXT,
		result REAL NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Load reads the full PhenomeSnapshot from the database.
func (s *SQLiteStore) Load(ctx context.Context) (*ports.PhenomeSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &ports.PhenomeSnapshot{}

	var err error
	if snap.Sleep, err = s.loadSleep(ctx); err != nil {
		return nil, err
	}
	if snap.HRV, err = s.loadHRV(ctx); err != nil {
		return nil, err
	}
	if snap.RestingHR, err = s.loadRestingHR(ctx); err != nil {
		return nil, err
	}
	if snap.Workouts, err = s.loadWorkouts(ctx); err != nil {
		return nil, err
	}
	if snap.Blocks, err = s.loadBlocks(ctx); err != nil {
		return nil, err
	}
	if snap.MorningStates, err = s.loadMorningStates(ctx); err != nil {
		return nil, err
	}
	if snap.Preferences, err = s.loadPreferences(ctx); err != nil {
		return nil, err
	}
	if snap.SacredTimes, err = s.loadSacredTimes(ctx); err != nil {
		return nil, err
	}
	if snap.TimeSlotStats, err = s.loadTimeSlotStats(ctx); err != nil {
		return nil, err
	}
	if snap.WorkoutPatterns, err = s.loadWorkoutPatterns(ctx); err != nil {
		return nil, err
	}
	if snap.Receipts, err = s.loadReceipts(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT phase, trust_score FROM trust_state WHERE id = 1`)
	var phase int
	if err := row.Scan(&phase, &snap.TrustScore); err != nil {
		return nil, fmt.Errorf("%w: loading trust_state: %v", ghosterrors.ErrPersistence, err)
	}
	snap.TrustPhase = domain.TrustPhase(phase)

	return snap, nil
}

// Save persists the full PhenomeSnapshot, replacing prior contents of
// every table in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, snap ports.PhenomeSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %v", ghosterrors.ErrPersistence, err)
	}
	defer tx.Rollback()

	if err := saveAll(ctx, tx, snap); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing transaction: %v", ghosterrors.ErrPersistence, err)
	}
	return nil
}

func saveAll(ctx context.Context, tx *sql.Tx, snap ports.PhenomeSnapshot) error {
	steps := []func(context.Context, *sql.Tx, ports.PhenomeSnapshot) error{
		saveSleep, saveHRV, saveRestingHR, saveWorkouts,
		saveBlocks, saveMorningStates,
		savePreferences, saveSacredTimes, saveTimeSlotStats, saveWorkoutPatterns,
		saveReceipts, saveTrustState,
	}
	for _, step := range steps {
		if err := step(ctx, tx, snap); err != nil {
			return fmt.Errorf("%w: %v", ghosterrors.ErrPersistence, err)
		}
	}
	return nil
}

func saveSleep(ctx context.Context, tx *sql.Tx, snap ports.PhenomeSnapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM sleep_data`); err != nil {
		return err
	}
	for _, r := range snap.Sleep {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sleep_data (date, total_ms, deep_ms, rem_ms, efficiency_pct)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(date) DO UPDATE SET total_ms=excluded.total_ms, deep_ms=excluded.deep_ms,
				rem_ms=excluded.rem_ms, efficiency_pct=excluded.efficiency_pct
		`, r.Date, r.TotalDuration.Milliseconds(), r.DeepDuration.Milliseconds(), r.REMDuration.Milliseconds(), r.EfficiencyPct)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadSleep(ctx context.Context) ([]domain.SleepRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, total_ms, deep_ms, rem_ms, efficiency_pct FROM sleep_data`)
	if err != nil {
		return nil, fmt.Errorf("%w: loading sleep_data: %v", ghosterrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.SleepRecord
	for rows.Next() {
		var r domain.SleepRecord
		var totalMs, deepMs, remMs int64
		if err := rows.Scan(&r.Date, &totalMs, &deepMs, &remMs, &r.EfficiencyPct); err != nil {
			return nil, fmt.Errorf("%w: scanning sleep_data: %v", ghosterrors.ErrPersistence, err)
		}
		r.TotalDuration = time.Duration(totalMs) * time.Millisecond
		r.DeepDuration = time.Duration(deepMs) * time.Millisecond
		r.REMDuration = time.Duration(remMs) * time.Millisecond
		out = append(out, r)
	}
	return out, nil
}

func saveHRV(ctx context.Context, tx *sql.Tx, snap ports.PhenomeSnapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM hrv_data`); err != nil {
		return err
	}
	for _, r := range snap.HRV {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO hrv_data (timestamp, value_ms) VALUES (?, ?)
			ON CONFLICT(timestamp) DO UPDATE SET value_ms=excluded.value_ms
		`, r.Timestamp, r.ValueMS)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadHRV(ctx context.Context) ([]domain.HRVReading, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, value_ms FROM hrv_data`)
	if err != nil {
		return nil, fmt.Errorf("%w: loading hrv_data: %v", ghosterrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.HRVReading
	for rows.Next() {
		var r domain.HRVReading
		if err := rows.Scan(&r.Timestamp, &r.ValueMS); err != nil {
			return nil, fmt.Errorf("%w: scanning hrv_data: %v", ghosterrors.ErrPersistence, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func saveRestingHR(ctx context.Context, tx *sql.Tx, snap ports.PhenomeSnapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM resting_hr_data`); err != nil {
		return err
	}
	for _, r := range snap.RestingHR {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO resting_hr_data (timestamp, bpm) VALUES (?, ?)
			ON CONFLICT(timestamp) DO UPDATE SET bpm=excluded.bpm
		`, r.Timestamp, r.BPM)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadRestingHR(ctx context.Context) ([]domain.RestingHRSample, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT timestamp, bpm FROM resting_hr_data`)
	if err != nil {
		return nil, fmt.Errorf("%w: loading resting_hr_data: %v", ghosterrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.RestingHRSample
	for rows.Next() {
		var r domain.RestingHRSample
		if err := rows.Scan(&r.Timestamp, &r.BPM); err != nil {
			return nil, fmt.Errorf("%w: scanning resting_hr_data: %v", ghosterrors.ErrPersistence, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func saveWorkouts(ctx context.Context, tx *sql.Tx, snap ports.PhenomeSnapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM workout_record`); err != nil {
		return err
	}
	for _, w := range snap.Workouts {
		var avgHR sql.NullFloat64
		if w.AverageHeartRate != nil {
			avgHR = sql.NullFloat64{Float64: *w.AverageHeartRate, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workout_record (id, type, start_date, end_date, duration_ms,
				active_calories, avg_heart_rate, avg_heart_rate_valid, source)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, w.ID, w.Type, w.StartDate, w.EndDate, w.Duration.Milliseconds(),
			w.ActiveCalories, avgHR, boolToInt(avgHR.Valid), w.Source)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadWorkouts(ctx context.Context) ([]domain.DetectedWorkout, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, start_date, end_date, duration_ms, active_calories, avg_heart_rate, avg_heart_rate_valid, source
		FROM workout_record
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: loading workout_record: %v", ghosterrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.DetectedWorkout
	for rows.Next() {
		var w domain.DetectedWorkout
		var durationMs int64
		var avgHR sql.NullFloat64
		var avgHRValid int
		if err := rows.Scan(&w.ID, &w.Type, &w.StartDate, &w.EndDate, &durationMs,
			&w.ActiveCalories, &avgHR, &avgHRValid, &w.Source); err != nil {
			return nil, fmt.Errorf("%w: scanning workout_record: %v", ghosterrors.ErrPersistence, err)
		}
		w.Duration = time.Duration(durationMs) * time.Millisecond
		if avgHRValid == 1 && avgHR.Valid {
			v := avgHR.Float64
			w.AverageHeartRate = &v
		}
		out = append(out, w)
	}
	return out, nil
}

func saveBlocks(ctx context.Context, tx *sql.Tx, snap ports.PhenomeSnapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM training_block`); err != nil {
		return err
	}
	for _, b := range snap.Blocks {
		var genJSON []byte
		if b.GeneratedWorkout != nil {
			var err error
			genJSON, err = json.Marshal(b.GeneratedWorkout)
			if err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO training_block (id, calendar_event_id, workout_type, start_time,
				end_time, was_auto_scheduled, status, generated_workout_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, b.ID, b.CalendarEventID, b.WorkoutType, b.StartTime, b.EndTime,
			boolToInt(b.WasAutoScheduled), b.Status, string(genJSON))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadBlocks(ctx context.Context) ([]domain.TrainingBlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, calendar_event_id, workout_type, start_time, end_time, was_auto_scheduled,
			status, generated_workout_json
		FROM training_block
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: loading training_block: %v", ghosterrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.TrainingBlock
	for rows.Next() {
		var b domain.TrainingBlock
		var wasAuto int
		var genJSON sql.NullString
		if err := rows.Scan(&b.ID, &b.CalendarEventID, &b.WorkoutType, &b.StartTime, &b.EndTime,
			&wasAuto, &b.Status, &genJSON); err != nil {
			return nil, fmt.Errorf("%w: scanning training_block: %v", ghosterrors.ErrPersistence, err)
		}
		b.WasAutoScheduled = wasAuto == 1
		if genJSON.Valid && genJSON.String != "" {
			var gw domain.GeneratedWorkout
			if err := json.Unmarshal([]byte(genJSON.String), &gw); err == nil {
				b.GeneratedWorkout = &gw
			}
		}
		out = append(out, b)
	}
	return out, nil
}

func saveMorningStates(ctx context.Context, tx *sql.Tx, snap ports.PhenomeSnapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM morning_state`); err != nil {
		return err
	}
	for _, m := range snap.MorningStates {
		flaggedJSON, err := json.Marshal(m.FlaggedBlocks)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO morning_state (date, recovery_score, flagged_blocks_json)
			VALUES (?, ?, ?)
		`, m.Date.Format("2006-01-02"), m.RecoveryScore, string(flaggedJSON))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadMorningStates(ctx context.Context) ([]domain.MorningState, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, recovery_score, flagged_blocks_json FROM morning_state`)
	if err != nil {
		return nil, fmt.Errorf("%w: loading morning_state: %v", ghosterrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.MorningState
	for rows.Next() {
		var m domain.MorningState
		var dateStr string
		var flaggedJSON sql.NullString
		if err := rows.Scan(&dateStr, &m.RecoveryScore, &flaggedJSON); err != nil {
			return nil, fmt.Errorf("%w: scanning morning_state: %v", ghosterrors.ErrPersistence, err)
		}
		m.Date, _ = time.Parse("2006-01-02", dateStr)
		if flaggedJSON.Valid {
			json.Unmarshal([]byte(flaggedJSON.String), &m.FlaggedBlocks)
		}
		out = append(out, m)
	}
	return out, nil
}

func savePreferences(ctx context.Context, tx *sql.Tx, snap ports.PhenomeSnapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM workout_preference`); err != nil {
		return err
	}
	for _, p := range snap.Preferences {
		_, err := tx.ExecContext(ctx, `INSERT INTO workout_preference (workout_type, weight) VALUES (?, ?)`, p.Type, p.Weight)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadPreferences(ctx context.Context) ([]domain.WorkoutPreference, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT workout_type, weight FROM workout_preference`)
	if err != nil {
		return nil, fmt.Errorf("%w: loading workout_preference: %v", ghosterrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.WorkoutPreference
	for rows.Next() {
		var p domain.WorkoutPreference
		if err := rows.Scan(&p.Type, &p.Weight); err != nil {
			return nil, fmt.Errorf("%w: scanning workout_preference: %v", ghosterrors.ErrPersistence, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func saveSacredTimes(ctx context.Context, tx *sql.Tx, snap ports.PhenomeSnapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM sacred_time`); err != nil {
		return err
	}
	for _, st := range snap.SacredTimes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sacred_time (day_of_week, hour_of_day, reason, created_at) VALUES (?, ?, ?, ?)
		`, st.Key.DayOfWeek, st.Key.HourOfDay, st.Reason, st.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadSacredTimes(ctx context.Context) ([]domain.SacredTime, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT day_of_week, hour_of_day, reason, created_at FROM sacred_time`)
	if err != nil {
		return nil, fmt.Errorf("%w: loading sacred_time: %v", ghosterrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.SacredTime
	for rows.Next() {
		var st domain.SacredTime
		if err := rows.Scan(&st.Key.DayOfWeek, &st.Key.HourOfDay, &st.Reason, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning sacred_time: %v", ghosterrors.ErrPersistence, err)
		}
		out = append(out, st)
	}
	return out, nil
}

func saveTimeSlotStats(ctx context.Context, tx *sql.Tx, snap ports.PhenomeSnapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM time_slot_stats`); err != nil {
		return err
	}
	for _, st := range snap.TimeSlotStats {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO time_slot_stats (day_of_week, hour_of_day, completed_count, missed_count,
				penalty_count, last_completed, last_missed)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, st.Key.DayOfWeek, st.Key.HourOfDay, st.CompletedCount, st.MissedCount, st.PenaltyCount,
			nullableTime(st.LastCompleted), nullableTime(st.LastMissed))
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadTimeSlotStats(ctx context.Context) ([]domain.TimeSlotStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day_of_week, hour_of_day, completed_count, missed_count, penalty_count, last_completed, last_missed
		FROM time_slot_stats
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: loading time_slot_stats: %v", ghosterrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.TimeSlotStats
	for rows.Next() {
		var st domain.TimeSlotStats
		var lastCompleted, lastMissed sql.NullTime
		if err := rows.Scan(&st.Key.DayOfWeek, &st.Key.HourOfDay, &st.CompletedCount, &st.MissedCount,
			&st.PenaltyCount, &lastCompleted, &lastMissed); err != nil {
			return nil, fmt.Errorf("%w: scanning time_slot_stats: %v", ghosterrors.ErrPersistence, err)
		}
		if lastCompleted.Valid {
			t := lastCompleted.Time
			st.LastCompleted = &t
		}
		if lastMissed.Valid {
			t := lastMissed.Time
			st.LastMissed = &t
		}
		out = append(out, st)
	}
	return out, nil
}

func saveWorkoutPatterns(ctx context.Context, tx *sql.Tx, snap ports.PhenomeSnapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM workout_pattern`); err != nil {
		return err
	}
	for _, p := range snap.WorkoutPatterns {
		daysJSON, err := json.Marshal(p.PreferredDays)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO workout_pattern (workout_type, adherence_rate, preferred_days_json, average_streak, last_updated)
			VALUES (?, ?, ?, ?, ?)
		`, p.Type, p.AdherenceRate, string(daysJSON), p.AverageStreak, p.LastUpdated)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadWorkoutPatterns(ctx context.Context) ([]domain.WorkoutPattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT workout_type, adherence_rate, preferred_days_json, average_streak, last_updated
		FROM workout_pattern
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: loading workout_pattern: %v", ghosterrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.WorkoutPattern
	for rows.Next() {
		var p domain.WorkoutPattern
		var daysJSON sql.NullString
		if err := rows.Scan(&p.Type, &p.AdherenceRate, &daysJSON, &p.AverageStreak, &p.LastUpdated); err != nil {
			return nil, fmt.Errorf("%w: scanning workout_pattern: %v", ghosterrors.ErrPersistence, err)
		}
		if daysJSON.Valid {
			json.Unmarshal([]byte(daysJSON.String), &p.PreferredDays)
		}
		out = append(out, p)
	}
	return out, nil
}

func saveReceipts(ctx context.Context, tx *sql.Tx, snap ports.PhenomeSnapshot) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM decision_receipt`); err != nil {
		return err
	}
	for _, r := range snap.Receipts {
		impactJSON, _ := json.Marshal(r.TrustImpact)
		inputsJSON, _ := json.Marshal(r.Inputs)
		altsJSON, _ := json.Marshal(r.Alternatives)
		ctxJSON, _ := json.Marshal(r.ContextSnapshot)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO decision_receipt (id, timestamp, type, outcome, confidence,
				trust_impact_json, inputs_json, decision, alternatives_json, context_snapshot_json, expires_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.Timestamp, r.Type, r.Outcome, r.Confidence, string(impactJSON),
			string(inputsJSON), r.Decision, string(altsJSON), string(ctxJSON), r.ExpiresAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) loadReceipts(ctx context.Context) ([]domain.DecisionReceipt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, type, outcome, confidence, trust_impact_json, inputs_json,
			decision, alternatives_json, context_snapshot_json, expires_at
		FROM decision_receipt WHERE expires_at > ?
	`, time.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: loading decision_receipt: %v", ghosterrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []domain.DecisionReceipt
	for rows.Next() {
		var r domain.DecisionReceipt
		var impactJSON, inputsJSON, altsJSON, ctxJSON sql.NullString
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Type, &r.Outcome, &r.Confidence, &impactJSON,
			&inputsJSON, &r.Decision, &altsJSON, &ctxJSON, &r.ExpiresAt); err != nil {
			return nil, fmt.Errorf("%w: scanning decision_receipt: %v", ghosterrors.ErrPersistence, err)
		}
		if impactJSON.Valid {
			json.Unmarshal([]byte(impactJSON.String), &r.TrustImpact)
		}
		if inputsJSON.Valid {
			json.Unmarshal([]byte(inputsJSON.String), &r.Inputs)
		}
		if altsJSON.Valid {
			json.Unmarshal([]byte(altsJSON.String), &r.Alternatives)
		}
		if ctxJSON.Valid {
			json.Unmarshal([]byte(ctxJSON.String), &r.ContextSnapshot)
		}
		out = append(out, r)
	}
	return out, nil
}

func saveTrustState(ctx context.Context, tx *sql.Tx, snap ports.PhenomeSnapshot) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trust_state (id, phase, trust_score) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET phase=excluded.phase, trust_score=excluded.trust_score
	`, int(snap.TrustPhase), snap.TrustScore)
	return err
}

// Emit implements ports.ReceiptSink by durably writing a single
// DecisionReceipt immediately, independent of the next full Flush. The
// Ghost Engine uses this for receipts that must survive a crash before the
// evening cycle's batched Flush runs (e.g. a skip-reschedule proposal the
// user might act on before the day is over).
func (s *SQLiteStore) Emit(ctx context.Context, receipt domain.DecisionReceipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	impactJSON, _ := json.Marshal(receipt.TrustImpact)
	inputsJSON, _ := json.Marshal(receipt.Inputs)
	altsJSON, _ := json.Marshal(receipt.Alternatives)
	ctxJSON, _ := json.Marshal(receipt.ContextSnapshot)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decision_receipt (id, timestamp, type, outcome, confidence,
			trust_impact_json, inputs_json, decision, alternatives_json, context_snapshot_json, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET outcome=excluded.outcome, confidence=excluded.confidence,
			trust_impact_json=excluded.trust_impact_json
	`, receipt.ID, receipt.Timestamp, receipt.Type, receipt.Outcome, receipt.Confidence, string(impactJSON),
		string(inputsJSON), receipt.Decision, string(altsJSON), string(ctxJSON), receipt.ExpiresAt)
	if err != nil {
		return fmt.Errorf("%w: emitting receipt: %v", ghosterrors.ErrPersistence, err)
	}
	return nil
}

// SaveTrustState persists only the (phase, trustScore) singleton row,
// without touching any other table. The Trust State Machine calls this on
// every applied event (spec.md §4.1: a persistence failure here must roll
// back the in-memory transition), which would be far too expensive to do
// via a full Save of every Phenome table per event.
func (s *SQLiteStore) SaveTrustState(ctx context.Context, phase domain.TrustPhase, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trust_state (id, phase, trust_score) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET phase=excluded.phase, trust_score=excluded.trust_score
	`, int(phase), score)
	if err != nil {
		return fmt.Errorf("%w: saving trust_state: %v", ghosterrors.ErrPersistence, err)
	}
	return nil
}

// RecordProvenance appends one metric-provenance entry, letting the
// metric_provenance table grow unbounded on disk; in-memory truncation to
// the configured ring-buffer size happens in metrics.Registry, not here.
func (s *SQLiteStore) RecordProvenance(ctx context.Context, metricName string, metricVersion int, inputs map[string]any, result float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inputsJSON, err := json.Marshal(inputs)
	if err != nil {
		return fmt.Errorf("%w: marshaling provenance inputs: %v", ghosterrors.ErrPersistence, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO metric_provenance (timestamp, metric_name, metric_version, inputs_json, result)
		VALUES (?, ?, ?, ?, ?)
	`, time.Now(), metricName, metricVersion, string(inputsJSON), result)
	if err != nil {
		return fmt.Errorf("%w: recording provenance: %v", ghosterrors.ErrPersistence, err)
	}
	return nil
}

// RecentProvenance returns the most recent limit provenance rows, newest
// first, for audit inspection (e.g. by an operator CLI command).
func (s *SQLiteStore) RecentProvenance(ctx context.Context, limit int) ([]ProvenanceRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, metric_name, metric_version, inputs_json, result
		FROM metric_provenance ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: loading metric_provenance: %v", ghosterrors.ErrPersistence, err)
	}
	defer rows.Close()

	var out []ProvenanceRow
	for rows.Next() {
		var r ProvenanceRow
		var inputsJSON sql.NullString
		if err := rows.Scan(&r.Timestamp, &r.MetricName, &r.MetricVersion, &inputsJSON, &r.Result); err != nil {
			return nil, fmt.Errorf("%w: scanning metric_provenance: %v", ghosterrors.ErrPersistence, err)
		}
		if inputsJSON.Valid {
			json.Unmarshal([]byte(inputsJSON.String), &r.Inputs)
		}
		out = append(out, r)
	}
	return out, nil
}

// ProvenanceRow is one persisted metric-provenance record.
type ProvenanceRow struct {
	Timestamp     time.Time
	MetricName    string
	MetricVersion int
	Inputs        map[string]any
	Result        float64
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
