// ABOUTME: Workout CRUD operations for SQLite storage.
// ABOUTME: Also serves the device's workouts to the merge coordinator as local-origin records.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/workoutfeed/internal/models"
)

// ErrNotFound is returned when no workout matches an id or prefix.
var ErrNotFound = errors.New("not found")

const workoutColumns = `id, activity_type, title, start_time, end_time, duration_seconds,
	distance_meters, calories_kcal, heart_rate_avg, notes`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateWorkout stores a new workout in the database.
func (d *DB) CreateWorkout(w *models.WorkoutRecord) error {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	w.Origin = models.OriginLocal
	w.Normalize()

	query := `
		INSERT INTO workouts (id, activity_type, title, start_time, end_time, duration_seconds,
			distance_meters, calories_kcal, heart_rate_avg, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := d.db.Exec(query,
		w.ID,
		w.ActivityType,
		nullString(w.Title),
		w.StartTime.UTC().Format(time.RFC3339),
		w.EndTime.UTC().Format(time.RFC3339),
		w.DurationSeconds,
		w.DistanceMeters,
		w.CaloriesKcal,
		w.HeartRateAvg,
		nullString(w.Notes),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("create workout: %w", err)
	}
	return nil
}

// GetWorkout retrieves a workout by ID or ID prefix.
func (d *DB) GetWorkout(idOrPrefix string) (*models.WorkoutRecord, error) {
	id, err := d.resolveWorkoutID(idOrPrefix)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + workoutColumns + ` FROM workouts WHERE id = ?`
	w, err := scanWorkout(d.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
	}
	return w, err
}

// ListWorkouts retrieves workouts with optional filtering by activity type.
// Results are sorted by start time descending (most recent first).
func (d *DB) ListWorkouts(activityType *string, limit int) ([]*models.WorkoutRecord, error) {
	query := `SELECT ` + workoutColumns + ` FROM workouts`
	var args []any

	if activityType != nil {
		query += ` WHERE activity_type = ?`
		args = append(args, models.NormalizeActivityType(*activityType))
	}
	query += ` ORDER BY start_time DESC, id ASC`

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workouts: %w", err)
	}
	defer rows.Close()

	var workouts []*models.WorkoutRecord
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, err
		}
		workouts = append(workouts, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workouts: %w", err)
	}
	return workouts, nil
}

// DeleteWorkout removes a workout.
func (d *DB) DeleteWorkout(idOrPrefix string) error {
	id, err := d.resolveWorkoutID(idOrPrefix)
	if err != nil {
		return fmt.Errorf("delete workout: %w", err)
	}

	result, err := d.db.Exec("DELETE FROM workouts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete workout: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete workout: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
	}

	return nil
}

// FetchLocalWorkouts returns every workout recorded on this device as
// local-origin records. The store belongs to the device owner, so identity
// does not filter the result.
func (d *DB) FetchLocalWorkouts(ctx context.Context, identity string) ([]models.WorkoutRecord, error) {
	query := `SELECT ` + workoutColumns + ` FROM workouts ORDER BY start_time DESC`
	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch local workouts: %w", err)
	}
	defer rows.Close()

	var out []models.WorkoutRecord
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch local workouts: %w", err)
	}
	return out, nil
}

// resolveWorkoutID finds the full ID from an exact id or a unique prefix.
func (d *DB) resolveWorkoutID(idOrPrefix string) (string, error) {
	if idOrPrefix == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}

	var exact string
	err := d.db.QueryRow(`SELECT id FROM workouts WHERE id = ?`, idOrPrefix).Scan(&exact)
	if err == nil {
		return exact, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("resolve workout ID: %w", err)
	}

	query := `SELECT id FROM workouts WHERE id LIKE ? || '%' ESCAPE '\'`
	rows, err := d.db.Query(query, escapeLike(idOrPrefix))
	if err != nil {
		return "", fmt.Errorf("resolve workout ID: %w", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("scan workout ID: %w", err)
		}
		matches = append(matches, id)
	}

	if len(matches) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNotFound, idOrPrefix)
	}
	if len(matches) > 1 {
		return "", fmt.Errorf("ambiguous prefix %s: matches multiple records", idOrPrefix)
	}

	return matches[0], nil
}

// scanWorkout scans a single row into a WorkoutRecord.
func scanWorkout(row rowScanner) (*models.WorkoutRecord, error) {
	var w models.WorkoutRecord
	var startTime, endTime string
	var title, notes sql.NullString
	var distance, calories, heartRate sql.NullFloat64

	err := row.Scan(&w.ID, &w.ActivityType, &title, &startTime, &endTime, &w.DurationSeconds,
		&distance, &calories, &heartRate, &notes)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan workout: %w", err)
	}

	w.Origin = models.OriginLocal
	if w.StartTime, err = time.Parse(time.RFC3339, startTime); err != nil {
		return nil, fmt.Errorf("workout %s: bad start_time %q: %w", w.ID, startTime, err)
	}
	if w.EndTime, err = time.Parse(time.RFC3339, endTime); err != nil {
		return nil, fmt.Errorf("workout %s: bad end_time %q: %w", w.ID, endTime, err)
	}
	w.Title = title.String
	w.Notes = notes.String
	if distance.Valid {
		w.DistanceMeters = &distance.Float64
	}
	if calories.Valid {
		w.CaloriesKcal = &calories.Float64
	}
	if heartRate.Valid {
		w.HeartRateAvg = &heartRate.Float64
	}

	return &w, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// escapeLike makes s match literally in a LIKE pattern with ESCAPE '\'.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
