package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Print the current Ghost Engine snapshot",
	Long:  `Displays the authoritative trust phase/score, the capabilities that phase grants, and bookkeeping about recent cycles and pending proposals.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rt, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		snap := rt.engine.Snapshot()

		fmt.Printf("Phase:       %s\n", snap.Phase)
		fmt.Printf("Trust Score: %.2f\n", snap.TrustScore)

		caps := make([]string, 0, len(snap.Capabilities))
		for c := range snap.Capabilities {
			caps = append(caps, string(c))
		}
		sort.Strings(caps)
		fmt.Printf("Capabilities: %s\n", strings.Join(caps, ", "))

		fmt.Printf("Last morning cycle: %s\n", formatCycleTime(snap.LastMorningCycle))
		fmt.Printf("Last evening cycle: %s\n", formatCycleTime(snap.LastEveningCycle))

		if len(snap.PendingProposals) == 0 {
			fmt.Println("Pending proposals: none")
			return nil
		}
		fmt.Printf("Pending proposals (%d):\n", len(snap.PendingProposals))
		for _, b := range snap.PendingProposals {
			fmt.Printf("  - %s %s %s -> %s\n", b.ID, b.WorkoutType, b.StartTime.Format(time.RFC3339), b.EndTime.Format(time.RFC3339))
		}
		return nil
	},
}

func formatCycleTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}
