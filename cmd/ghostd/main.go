// Command ghostd is the Ghost Trust Engine's operator CLI: run a cycle,
// inspect the current snapshot, submit a trust event by hand, or seed a demo
// scenario. This file is the entry point and command registration hub, in
// the style of this repo's teacher — command implementations are split
// across one file per concern.
//
// # File Index
//
//   - main.go      - entry point, rootCmd, global flags
//   - bootstrap.go - bootstrap(): wire the Engine and its collaborators
//   - cmd_cycle.go - cycleCmd: run the morning or evening pipeline once
//   - cmd_snapshot.go - snapshotCmd: print the current GhostSnapshot
//   - cmd_submit.go - submitCmd: submit a single TrustEvent by hand
//   - cmd_seed.go  - seedCmd: write a demo scenario to the filestore adapter
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vedprakash-m/ghost-trust-engine/internal/config"
	"github.com/vedprakash-m/ghost-trust-engine/internal/logging"
)

var (
	verbose    bool
	configPath string
	dataDir    string

	logger *zap.Logger
	cfg    *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "ghostd",
	Short: "Ghost Trust Engine operator CLI",
	Long: `ghostd operates the Ghost Trust Engine: the behavioral-autonomy core
that decides how much a fitness companion app is allowed to do on a user's
behalf, and how that permission is earned or lost.

Run a cycle, inspect the current trust snapshot, submit an event by hand for
testing, or seed a demo scenario.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		ws := dataDir
		if ws == "" {
			ws, _ = os.Getwd()
		}
		if err := logging.Initialize(ws, logging.Settings{
			DebugMode:  cfg.Logging.DebugMode,
			Categories: cfg.Logging.Categories,
			Level:      cfg.Logging.Level,
			JSONFormat: cfg.Logging.JSONFormat,
		}); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize file logging: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "ghostd.yaml", "path to config YAML")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for logs and the demo scenario file (default: current directory)")

	rootCmd.AddCommand(cycleCmd, snapshotCmd, submitCmd, seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
