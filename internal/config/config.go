// Package config holds the Ghost Trust Engine's explicit, enumerated
// configuration structure (spec.md §6), loaded from YAML with environment
// overrides, in the style of this repo's teacher's internal/config.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vedprakash-m/ghost-trust-engine/internal/ghosterrors"
)

// Config is the single configuration structure for the Engine and its CLI.
type Config struct {
	// Cycle orchestration (Ghost Engine, spec.md §4.7)
	MaxRetriesPerCycle int `yaml:"max_retries_per_cycle"`
	CycleBudgetSeconds int `yaml:"cycle_budget_seconds"`

	// Optimal Window Finder (spec.md §4.6)
	MinWindowDurationMinutes int `yaml:"min_window_duration_minutes"`
	BufferBeforeEventMinutes int `yaml:"buffer_before_event_minutes"`
	BufferAfterEventMinutes  int `yaml:"buffer_after_event_minutes"`

	// Phenome retention (spec.md §3, §6)
	RawSignalRetentionDays    int `yaml:"raw_signal_retention_days"`
	DerivedStateRetentionDays int `yaml:"derived_state_retention_days"`
	PatternCacheHours         int `yaml:"pattern_cache_hours"`

	// Safety Breaker (spec.md §4.3)
	SafetyBreakerConsecutiveThreshold int `yaml:"safety_breaker_consecutive_threshold"`

	// Decision receipt retention (spec.md §6)
	ReceiptTTLHours int `yaml:"receipt_ttl_hours"`

	// Metric Provenance ring buffer size (spec.md §6)
	ProvenanceBufferSize int `yaml:"provenance_buffer_size"`

	// Trust Attribution Engine weights (spec.md §4.2)
	BaseWeights map[string]float64 `yaml:"base_weights"`
	// PhaseModifiers keyed by domain.TrustPhase.String()
	PhaseModifiers map[string]float64 `yaml:"phase_modifiers"`

	// Skip Predictor feature weights (spec.md §4.4) — must sum to 1.0
	FeatureWeights map[string]float64 `yaml:"feature_weights"`

	// Recovery Analyzer factor weights (spec.md §4.5) — must sum to 1.0
	RecoveryWeights map[string]float64 `yaml:"recovery_weights"`

	// Optimal Window Finder score weights (spec.md §4.6) — must sum to 1.0
	WindowScoreWeights map[string]float64 `yaml:"window_score_weights"`

	// Persistence
	DatabasePath string `yaml:"database_path"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig mirrors logging.Settings; kept here so YAML/env loading has
// a single home and internal/logging need not depend on internal/config.
type LoggingConfig struct {
	DebugMode  bool            `yaml:"debug_mode"`
	Level      string          `yaml:"level"`
	JSONFormat bool            `yaml:"json_format"`
	Categories map[string]bool `yaml:"categories"`
}

// DefaultConfig returns the spec's documented defaults (spec.md §6, §4.2,
// §4.4, §4.5, §4.6).
func DefaultConfig() *Config {
	return &Config{
		MaxRetriesPerCycle: 2,
		CycleBudgetSeconds: 30,

		MinWindowDurationMinutes: 30,
		BufferBeforeEventMinutes: 15,
		BufferAfterEventMinutes:  15,

		RawSignalRetentionDays:    90,
		DerivedStateRetentionDays: 30,
		PatternCacheHours:         6,

		SafetyBreakerConsecutiveThreshold: 3,

		ReceiptTTLHours:      24 * 30,
		ProvenanceBufferSize: 1000,

		BaseWeights: map[string]float64{
			"workout_completed":  3.0,
			"block_accepted":     1.5,
			"proposal_accepted":  2.0,
			"triage_responded":   0.8,
			"app_opened":         0.1,
			"block_missed":       -2.0,
			"proposal_rejected":  -1.0,
			"block_deleted_manual": -2.5,
			"block_deleted_auto":   -5.0,
			"permission_revoked": -8.0,
		},
		PhaseModifiers: map[string]float64{
			"Observer":      1.5,
			"Scheduler":     1.3,
			"AutoScheduler": 1.1,
			"Transformer":   0.95,
			"FullGhost":     0.8,
		},

		FeatureWeights: map[string]float64{
			"time_slot_miss_rate":    0.30,
			"workout_type_adherence": 0.15,
			"recovery_score":         0.20,
			"calendar_density":       0.15,
			"day_of_week_miss_rate":  0.10,
			"streak_length":          0.10,
		},

		RecoveryWeights: map[string]float64{
			"hrv_trend":      0.30,
			"sleep":          0.30,
			"recent_strain":  0.25,
			"resting_hr_trend": 0.15,
		},

		WindowScoreWeights: map[string]float64{
			"historical_success":     0.30,
			"preference_alignment":   0.25,
			"buffer_quality":         0.20,
			"time_of_day_energy":     0.15,
			"flexibility":            0.10,
		},

		DatabasePath: "data/ghost_trust.db",

		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads YAML configuration from path, falling back to defaults if the
// file does not exist, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes cfg as YAML to path, creating parent directories as needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GHOST_DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("GHOST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("GHOST_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
}

// CycleBudget returns the cycle wall-clock budget as a duration.
func (c *Config) CycleBudget() time.Duration {
	return time.Duration(c.CycleBudgetSeconds) * time.Second
}

// ReceiptTTL returns the decision receipt retention window.
func (c *Config) ReceiptTTL() time.Duration {
	return time.Duration(c.ReceiptTTLHours) * time.Hour
}

const weightSumTolerance = 1e-6

// Validate checks the structural invariants spec.md §7 calls out as fatal
// configuration errors: weight sets that don't sum to 1.0, and any
// non-positive retention/threshold setting. This is the only error kind
// that halts startup (spec.md §7).
func (c *Config) Validate() error {
	checks := []struct {
		name    string
		weights map[string]float64
	}{
		{"feature_weights", c.FeatureWeights},
		{"recovery_weights", c.RecoveryWeights},
		{"window_score_weights", c.WindowScoreWeights},
	}
	for _, chk := range checks {
		sum := 0.0
		for _, w := range chk.weights {
			sum += w
		}
		if math.Abs(sum-1.0) > weightSumTolerance {
			return fmt.Errorf("%s sum to %.6f, want 1.0: %w", chk.name, sum, ghosterrors.ErrConfiguration)
		}
	}

	positiveInts := map[string]int{
		"max_retries_per_cycle":                c.MaxRetriesPerCycle,
		"cycle_budget_seconds":                 c.CycleBudgetSeconds,
		"min_window_duration_minutes":          c.MinWindowDurationMinutes,
		"raw_signal_retention_days":            c.RawSignalRetentionDays,
		"derived_state_retention_days":         c.DerivedStateRetentionDays,
		"pattern_cache_hours":                  c.PatternCacheHours,
		"safety_breaker_consecutive_threshold": c.SafetyBreakerConsecutiveThreshold,
		"provenance_buffer_size":                c.ProvenanceBufferSize,
	}
	for name, v := range positiveInts {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d: %w", name, v, ghosterrors.ErrConfiguration)
		}
	}

	return nil
}
