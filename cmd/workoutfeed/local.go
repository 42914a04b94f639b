// ABOUTME: CLI commands for workouts recorded on this device.
// ABOUTME: Supports add, list, show, and delete subcommands.
package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/harperreed/workoutfeed/internal/models"
	"github.com/harperreed/workoutfeed/internal/parser"
	"github.com/spf13/cobra"
)

var (
	localAt       string
	localDuration time.Duration
	localDistance string
	localCalories float64
	localHR       float64
	localTitle    string
	localNotes    string
	localType     string
	localLimit    int
)

var localCmd = &cobra.Command{
	Use:     "local",
	Aliases: []string{"l"},
	Short:   "Manage workouts recorded on this device",
	Long: `Manage the workouts stored on this device.

Local workouts are merged with the ones found on relays. When a relay copy of
the same workout exists, the relay copy is shown and the local one is counted
as a duplicate.

COMMANDS:

  add      Record a workout
  list     List recent workouts
  show     View one workout
  delete   Delete a workout
  export   Export local workouts (json, yaml, markdown)
  import   Import local workouts from a JSON export
  migrate  Import workouts from the old health tracker database

Activity names are normalized: run/jog -> running, bike/ride -> cycling,
lift/weights -> strength, and so on.`,
}

var localAddCmd = &cobra.Command{
	Use:   "add <activity>",
	Short: "Record a workout",
	Long: `Record a workout on this device.

Examples:
  workoutfeed local add run --duration 45m --distance 8km
  workoutfeed local add ride --at "2026-05-01 07:30" --duration 1h10m --distance 21mi
  workoutfeed local add lift --duration 50m --notes "Leg day"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}

		w := models.NewLocalWorkout(args[0])
		if localAt != "" {
			t, err := parseTime(localAt)
			if err != nil {
				return fmt.Errorf("invalid timestamp: %s", localAt)
			}
			w.WithStartTime(t)
		}
		if localDuration > 0 {
			w.WithDuration(localDuration)
		}
		if localDistance != "" {
			meters, ok := parser.ParseDistance(localDistance, "")
			if !ok {
				return fmt.Errorf("invalid distance: %s (use e.g. 5km, 3.1mi, 800m)", localDistance)
			}
			w.WithDistance(meters)
		}
		if localCalories > 0 {
			w.WithCalories(localCalories)
		}
		if localHR > 0 {
			w.WithHeartRate(localHR)
		}
		if localNotes != "" {
			w.WithNotes(localNotes)
		}
		w.Title = localTitle

		if err := r.CreateWorkout(w); err != nil {
			return fmt.Errorf("failed to create workout: %w", err)
		}

		out := cmd.OutOrStdout()
		color.New(color.FgGreen).Fprintf(out, "✓ Added %s workout\n", w.ActivityType)
		fmt.Fprintf(out, "  %s %s %s\n",
			color.New(color.Faint).Sprint(w.ID[:8]),
			formatDuration(w.DurationSeconds),
			formatDistance(w.DistanceMeters))
		return nil
	},
}

var localListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List local workouts",
	Long: `List workouts recorded on this device, newest first.

EXAMPLES:

  workoutfeed local list                  # Last 20 workouts
  workoutfeed local list --type running   # Only runs
  workoutfeed local list -n 50`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}

		var activity *string
		if localType != "" {
			activity = &localType
		}

		workouts, err := r.ListWorkouts(activity, localLimit)
		if err != nil {
			return fmt.Errorf("failed to list workouts: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(workouts) == 0 {
			fmt.Fprintln(out, "No workouts found.")
			return nil
		}
		for _, w := range workouts {
			printRecord(out, *w)
		}
		return nil
	},
}

var localShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a local workout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}

		w, err := r.GetWorkout(args[0])
		if err != nil {
			return fmt.Errorf("workout not found: %s", args[0])
		}

		out := cmd.OutOrStdout()
		faint := color.New(color.Faint)
		bold := color.New(color.Bold)

		bold.Fprintf(out, "%s", w.ActivityType)
		if w.Title != "" {
			fmt.Fprintf(out, " - %s", w.Title)
		}
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  %s %s\n", faint.Sprint("ID:      "), w.ID)
		fmt.Fprintf(out, "  %s %s\n", faint.Sprint("Start:   "), w.StartTime.Local().Format("2006-01-02 15:04"))
		fmt.Fprintf(out, "  %s %s\n", faint.Sprint("End:     "), w.EndTime.Local().Format("2006-01-02 15:04"))
		fmt.Fprintf(out, "  %s %s\n", faint.Sprint("Duration:"), formatDuration(w.DurationSeconds))
		if w.DistanceMeters != nil {
			fmt.Fprintf(out, "  %s %s\n", faint.Sprint("Distance:"), formatDistance(w.DistanceMeters))
		}
		if w.CaloriesKcal != nil {
			fmt.Fprintf(out, "  %s %.0f kcal\n", faint.Sprint("Calories:"), *w.CaloriesKcal)
		}
		if w.HeartRateAvg != nil {
			fmt.Fprintf(out, "  %s %.0f bpm\n", faint.Sprint("Avg HR:  "), *w.HeartRateAvg)
		}
		if w.Notes != "" {
			fmt.Fprintf(out, "  %s %s\n", faint.Sprint("Notes:   "), w.Notes)
		}
		return nil
	},
}

var localDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"del", "rm"},
	Short:   "Delete a local workout",
	Long: `Delete a workout by its ID or ID prefix.

The ID prefix is shown in the first column of 'workoutfeed local list'.
Copies already published to relays are not affected.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}

		w, err := r.GetWorkout(args[0])
		if err != nil {
			return fmt.Errorf("workout not found: %s", args[0])
		}
		if err := r.DeleteWorkout(w.ID); err != nil {
			return fmt.Errorf("failed to delete workout: %w", err)
		}

		out := cmd.OutOrStdout()
		color.New(color.FgYellow).Fprintf(out, "✗ Deleted %s workout\n", w.ActivityType)
		fmt.Fprintf(out, "  %s %s\n",
			color.New(color.Faint).Sprint(w.ID[:8]),
			w.StartTime.Local().Format("2006-01-02 15:04"))
		return nil
	},
}

func init() {
	localAddCmd.Flags().StringVar(&localAt, "at", "", "start time (YYYY-MM-DD HH:MM), default now")
	localAddCmd.Flags().DurationVarP(&localDuration, "duration", "d", 0, "duration (e.g. 45m, 1h10m)")
	localAddCmd.Flags().StringVar(&localDistance, "distance", "", "distance with unit (e.g. 5km, 3.1mi, 800m)")
	localAddCmd.Flags().Float64Var(&localCalories, "calories", 0, "energy burned in kcal")
	localAddCmd.Flags().Float64Var(&localHR, "hr", 0, "average heart rate in bpm")
	localAddCmd.Flags().StringVar(&localTitle, "title", "", "short title")
	localAddCmd.Flags().StringVar(&localNotes, "notes", "", "notes for the workout")

	localListCmd.Flags().StringVarP(&localType, "type", "t", "", "filter by activity type")
	localListCmd.Flags().IntVarP(&localLimit, "limit", "n", 20, "max number of results")

	localCmd.AddCommand(localAddCmd)
	localCmd.AddCommand(localListCmd)
	localCmd.AddCommand(localShowCmd)
	localCmd.AddCommand(localDeleteCmd)
	rootCmd.AddCommand(localCmd)
}
