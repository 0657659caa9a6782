package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vedprakash-m/ghost-trust-engine/internal/adapters/filestore"
	"github.com/vedprakash-m/ghost-trust-engine/internal/config"
	"github.com/vedprakash-m/ghost-trust-engine/internal/engine"
	"github.com/vedprakash-m/ghost-trust-engine/internal/metrics"
	"github.com/vedprakash-m/ghost-trust-engine/internal/phenome"
	"github.com/vedprakash-m/ghost-trust-engine/internal/predictor"
	"github.com/vedprakash-m/ghost-trust-engine/internal/recovery"
	"github.com/vedprakash-m/ghost-trust-engine/internal/trust"
	"github.com/vedprakash-m/ghost-trust-engine/internal/window"
)

// runtime bundles everything a one-shot ghostd invocation needs, torn down
// by Close once the command has done its work.
type runtime struct {
	cfg    *config.Config
	store  *phenome.SQLiteStore
	coord  *phenome.Coordinator
	sm     *trust.StateMachine
	engine *engine.Engine
	scenario *filestore.Store
}

func scenarioPath() string {
	ws := dataDir
	if ws == "" {
		ws = "."
	}
	return filepath.Join(ws, "scenario.json")
}

// bootstrap wires every Ghost Engine collaborator from cfg and loads the
// Phenome stores from disk. Each ghostd invocation is a one-shot process:
// load, act, flush, exit — there is no long-running daemon loop here.
func bootstrap(ctx context.Context) (*runtime, error) {
	store, err := phenome.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	registry := metrics.New(cfg.ProvenanceBufferSize)
	coord := phenome.New(store, registry, cfg.RawSignalRetentionDays, cfg.DerivedStateRetentionDays)
	if err := coord.Load(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("loading phenome: %w", err)
	}

	scenario, err := filestore.New(scenarioPath())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening scenario file: %w", err)
	}

	initialPhase, initialScore := coord.TrustState()
	sm := trust.New(cfg, registry, coord, store, initialPhase, initialScore)

	recoveryEngine := recovery.New(cfg, registry)
	patternDetector := recovery.NewDetector(cfg)
	predictorEngine := predictor.New(cfg, registry)
	windowFinder := window.New(cfg, registry)

	eng := engine.New(cfg, coord, sm, recoveryEngine, patternDetector, predictorEngine, windowFinder, scenario, scenario, store)

	return &runtime{
		cfg:      cfg,
		store:    store,
		coord:    coord,
		sm:       sm,
		engine:   eng,
		scenario: scenario,
	}, nil
}

// Close flushes nothing on its own (callers flush explicitly after the work
// they did); it only releases the underlying connections.
func (r *runtime) Close() {
	r.sm.Close()
	r.coord.Close()
	r.scenario.Close()
}
