package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vedprakash-m/ghost-trust-engine/internal/adapters/filestore"
)

var seedCmd = &cobra.Command{
	Use:   "seed <scenario.json>",
	Short: "Load a demo scenario file into the filestore adapter",
	Long: `Parses scenario.json (sleep, hrv, resting_hr, workouts, busy_slots) and
writes it as the live scenario the filestore HealthProvider/CalendarProvider
adapter serves on the next cycle. Intended for demos and manual scenario
testing (spec.md §8's concrete scenarios), not production ingestion.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}

		var sc filestore.Scenario
		if err := json.Unmarshal(data, &sc); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}

		store, err := filestore.New(scenarioPath())
		if err != nil {
			return fmt.Errorf("opening scenario file: %w", err)
		}
		store.SetScenario(sc)
		if err := store.Save(); err != nil {
			return fmt.Errorf("saving scenario: %w", err)
		}

		fmt.Printf("seeded %s: %d sleep, %d hrv, %d resting-hr, %d workouts, %d busy-slot days\n",
			scenarioPath(), len(sc.Sleep), len(sc.HRV), len(sc.RestingHR), len(sc.Workouts), len(sc.BusySlots))
		return nil
	},
}
