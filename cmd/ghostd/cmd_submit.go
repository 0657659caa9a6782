package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/vedprakash-m/ghost-trust-engine/internal/domain"
)

var (
	submitSourceID     string
	submitMissedReason string
	submitWorkoutType  string
	submitWorkoutMins  int
	submitAutoSched    bool
)

var submitCmd = &cobra.Command{
	Use:   "submit [event-kind]",
	Short: "Submit a single trust event by hand",
	Long: `Submits one TrustEvent to the Trust State Machine and prints the resulting
phase and trust score. Event kinds: workout_completed, block_accepted,
block_deleted, block_missed, proposal_accepted, proposal_rejected,
triage_responded, permission_revoked, app_opened.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		rt, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		event := domain.TrustEvent{
			Kind:      domain.EventKind(args[0]),
			SourceID:  submitSourceID,
			Timestamp: time.Now(),
		}
		if event.Kind == domain.EventBlockMissed {
			event.MissedReason = domain.MissedReason(submitMissedReason)
		}
		if event.Kind == domain.EventWorkoutCompleted && submitWorkoutType != "" {
			event.Workout = &domain.DetectedWorkout{
				ID:        submitSourceID,
				Type:      domain.WorkoutType(submitWorkoutType),
				StartDate: event.Timestamp.Add(-time.Duration(submitWorkoutMins) * time.Minute),
				EndDate:   event.Timestamp,
				Duration:  time.Duration(submitWorkoutMins) * time.Minute,
			}
		}
		if event.Kind == domain.EventBlockDeleted {
			event.Block = &domain.TrainingBlock{
				ID:               submitSourceID,
				StartTime:        event.Timestamp,
				EndTime:          event.Timestamp.Add(time.Duration(submitWorkoutMins) * time.Minute),
				WasAutoScheduled: submitAutoSched,
				Status:           domain.BlockDeleted,
			}
		}

		if err := rt.engine.SubmitEvent(ctx, event); err != nil {
			return fmt.Errorf("submit failed: %w", err)
		}

		if err := rt.coord.Flush(ctx, nil); err != nil {
			return fmt.Errorf("flushing after submit: %w", err)
		}

		fmt.Printf("phase=%s trust_score=%.2f\n", rt.sm.CurrentPhase(), rt.sm.TrustScore())
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitSourceID, "source-id", "manual", "identifier for the block/workout this event refers to")
	submitCmd.Flags().StringVar(&submitMissedReason, "missed-reason", string(domain.ReasonNoReason), "excuse for block_missed events")
	submitCmd.Flags().StringVar(&submitWorkoutType, "workout-type", "", "workout type for workout_completed events")
	submitCmd.Flags().IntVar(&submitWorkoutMins, "workout-minutes", 30, "workout duration in minutes for workout_completed events")
	submitCmd.Flags().BoolVar(&submitAutoSched, "auto-scheduled", false, "mark the deleted block as one the Engine auto-scheduled, for block_deleted events")
}
