// ABOUTME: CLI commands for exporting, importing and migrating local workouts.
// ABOUTME: Supports JSON, YAML, and Markdown export plus the legacy health tracker import.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/harperreed/workoutfeed/internal/storage"
	"github.com/spf13/cobra"
)

var (
	exportOutput string
	exportSince  string
)

var exportCmd = &cobra.Command{
	Use:   "export <format>",
	Short: "Export local workouts",
	Long: `Export the workouts recorded on this device.

FORMATS:

  json       Full JSON export (suitable for backup/restore)
  yaml       YAML export grouped by activity (human-readable)
  markdown   Markdown table (for documentation/sharing)

OPTIONS:

  --output, -o   Write to file instead of stdout
  --since        Only include workouts since this date (YYYY-MM-DD, markdown only)

EXAMPLES:

  workoutfeed local export json -o backup.json
  workoutfeed local export yaml
  workoutfeed local export markdown --since 2026-01-01`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"json", "yaml", "markdown"},
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}

		var data []byte
		switch args[0] {
		case "json":
			data, err = r.ExportJSON()
		case "yaml":
			data, err = r.ExportYAML()
		case "markdown":
			var since *time.Time
			if exportSince != "" {
				t, perr := time.ParseInLocation("2006-01-02", exportSince, time.Local)
				if perr != nil {
					return fmt.Errorf("invalid date format: %s (use YYYY-MM-DD)", exportSince)
				}
				since = &t
			}
			var md string
			md, err = r.ExportMarkdown(since)
			data = []byte(md)
		default:
			return fmt.Errorf("unknown format: %s (use json, yaml, or markdown)", args[0])
		}
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if exportOutput != "" {
			if err := os.WriteFile(exportOutput, data, 0600); err != nil {
				return fmt.Errorf("failed to write file: %w", err)
			}
			color.New(color.FgGreen).Fprintf(out, "✓ Exported to %s\n", exportOutput)
			return nil
		}
		fmt.Fprintln(out, string(data))
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import local workouts from JSON",
	Long: `Import workouts from a JSON file written by 'workoutfeed local export json'.

Workouts whose ID already exists are skipped, so importing twice is safe.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRepo()
		if err != nil {
			return err
		}

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}

		n, err := r.ImportJSON(data)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "✓ Imported %d workouts from %s\n", n, args[0])
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate [legacy-db]",
	Short: "Import workouts from the health tracker database",
	Long: `Import workouts from the older 'health' tracker SQLite database.

Per-workout metrics are folded into the workout: distance (with its unit),
calories and average heart rate. Other metrics are counted and skipped.
Workouts already imported are skipped, so the command can be re-run.

The default source is ~/.local/share/health/health.db. A directory argument
is searched for health.db.

USAGE:

  workoutfeed local migrate
  workoutfeed local migrate ~/backups/health.db`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		src := legacyDBPath()
		if len(args) > 0 {
			src = args[0]
		}
		if info, err := os.Stat(src); err == nil && info.IsDir() {
			src = filepath.Join(src, "health.db")
		}

		r, err := openRepo()
		if err != nil {
			return err
		}

		summary, err := storage.MigrateLegacy(src, r)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		out := cmd.OutOrStdout()
		color.New(color.FgGreen).Fprintf(out, "✓ Imported %d workouts from %s\n", summary.Workouts, src)
		faint := color.New(color.Faint)
		faint.Fprintf(out, "  %d metrics folded in, %d metrics skipped, %d workouts already present\n",
			summary.WorkoutMetrics, summary.IgnoredMetrics, summary.Skipped)
		return nil
	},
}

func legacyDBPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "health", "health.db")
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output file (default: stdout)")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "only include workouts since date (YYYY-MM-DD)")

	localCmd.AddCommand(exportCmd)
	localCmd.AddCommand(importCmd)
	localCmd.AddCommand(migrateCmd)
}
