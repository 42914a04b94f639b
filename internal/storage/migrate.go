// ABOUTME: Imports workouts from a legacy health tracker SQLite database.
// ABOUTME: Folds the old per-workout metric rows into distance, calories and heart rate.

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/workoutfeed/internal/models"
	"github.com/harperreed/workoutfeed/internal/parser"
)

// MigrateSummary holds counts of migrated entities.
type MigrateSummary struct {
	Workouts       int
	Skipped        int
	WorkoutMetrics int
	IgnoredMetrics int
}

// MigrateLegacy copies every workout from the legacy database at srcPath
// into dst. Workouts already present in dst are skipped, so the import can
// be re-run safely.
func MigrateLegacy(srcPath string, dst Repository) (*MigrateSummary, error) {
	if _, err := os.Stat(srcPath); err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}

	src, err := sql.Open("sqlite", srcPath)
	if err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	defer src.Close()

	workouts, err := readLegacyWorkouts(src)
	if err != nil {
		return nil, err
	}

	summary := &MigrateSummary{}
	for _, lw := range workouts {
		applied, ignored, err := applyLegacyMetrics(src, lw)
		if err != nil {
			return nil, err
		}

		if _, err := dst.GetWorkout(lw.ID); err == nil {
			summary.Skipped++
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check workout %s: %w", lw.ID, err)
		}

		if err := dst.CreateWorkout(lw); err != nil {
			return nil, fmt.Errorf("create workout %s: %w", lw.ID, err)
		}
		summary.Workouts++
		summary.WorkoutMetrics += applied
		summary.IgnoredMetrics += ignored
	}

	return summary, nil
}

func readLegacyWorkouts(src *sql.DB) ([]*models.WorkoutRecord, error) {
	rows, err := src.Query(`SELECT id, workout_type, started_at, duration_minutes, notes
		FROM workouts ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list legacy workouts: %w", err)
	}
	defer rows.Close()

	var out []*models.WorkoutRecord
	for rows.Next() {
		var id, workoutType, startedAt string
		var minutes sql.NullInt64
		var notes sql.NullString
		if err := rows.Scan(&id, &workoutType, &startedAt, &minutes, &notes); err != nil {
			return nil, fmt.Errorf("scan legacy workout: %w", err)
		}

		started, err := time.Parse(time.RFC3339, startedAt)
		if err != nil {
			return nil, fmt.Errorf("legacy workout %s: bad started_at %q", id, startedAt)
		}

		w := &models.WorkoutRecord{
			ID:           id,
			Origin:       models.OriginLocal,
			ActivityType: models.NormalizeActivityType(workoutType),
			Notes:        notes.String,
		}
		w.WithStartTime(started)
		if minutes.Valid {
			w.WithDuration(time.Duration(minutes.Int64) * time.Minute)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate legacy workouts: %w", err)
	}
	return out, nil
}

func applyLegacyMetrics(src *sql.DB, w *models.WorkoutRecord) (applied, ignored int, err error) {
	rows, err := src.Query(`SELECT metric_name, value, unit FROM workout_metrics WHERE workout_id = ?`, w.ID)
	if err != nil {
		return 0, 0, fmt.Errorf("list legacy workout metrics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var value float64
		var unit sql.NullString
		if err := rows.Scan(&name, &value, &unit); err != nil {
			return 0, 0, fmt.Errorf("scan legacy workout metric: %w", err)
		}

		switch strings.ToLower(name) {
		case "distance":
			meters, ok := parser.ParseDistance(strconv.FormatFloat(value, 'f', -1, 64), unit.String)
			if !ok {
				ignored++
				continue
			}
			w.WithDistance(meters)
		case "calories", "energy", "kcal":
			w.WithCalories(value)
		case "heart_rate", "heart_rate_avg", "avg_heart_rate", "avg_hr":
			w.WithHeartRate(value)
		default:
			ignored++
			continue
		}
		applied++
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate legacy workout metrics: %w", err)
	}
	return applied, ignored, nil
}
