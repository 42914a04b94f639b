// ABOUTME: Export and import functionality for locally recorded workouts.
// ABOUTME: Supports JSON, YAML, and Markdown export formats.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/workoutfeed/internal/models"
	"gopkg.in/yaml.v3"
)

// ExportData represents the full export format for local workouts.
type ExportData struct {
	Version    string                  `json:"version" yaml:"version"`
	ExportedAt time.Time               `json:"exported_at" yaml:"exported_at"`
	Tool       string                  `json:"tool" yaml:"tool"`
	Workouts   []*models.WorkoutRecord `json:"workouts" yaml:"workouts"`
}

// GetAllData retrieves all data for export.
func (d *DB) GetAllData() (*ExportData, error) {
	workouts, err := d.ListWorkouts(nil, 0)
	if err != nil {
		return nil, fmt.Errorf("list workouts: %w", err)
	}

	return &ExportData{
		Version:    "1.0",
		ExportedAt: time.Now(),
		Tool:       "workoutfeed",
		Workouts:   workouts,
	}, nil
}

// ImportData imports workouts from an export file. Workouts whose id
// already exists are skipped. It returns the number imported.
func (d *DB) ImportData(data *ExportData) (int, error) {
	imported := 0
	for _, w := range data.Workouts {
		if w == nil {
			continue
		}
		exists, err := d.workoutExists(w.ID)
		if err != nil {
			return imported, err
		}
		if exists {
			continue
		}
		if err := d.CreateWorkout(w); err != nil {
			return imported, fmt.Errorf("import workout: %w", err)
		}
		imported++
	}
	return imported, nil
}

// ExportJSON exports all data as JSON.
func (d *DB) ExportJSON() ([]byte, error) {
	data, err := d.GetAllData()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(data, "", "  ")
}

// ExportYAML exports all data as YAML, with workouts grouped by activity.
func (d *DB) ExportYAML() ([]byte, error) {
	data, err := d.GetAllData()
	if err != nil {
		return nil, err
	}

	yamlData := struct {
		Version    string                   `yaml:"version"`
		ExportedAt string                   `yaml:"exported_at"`
		Tool       string                   `yaml:"tool"`
		Workouts   map[string][]yamlWorkout `yaml:"workouts"`
	}{
		Version:    data.Version,
		ExportedAt: data.ExportedAt.Format(time.RFC3339),
		Tool:       data.Tool,
		Workouts:   make(map[string][]yamlWorkout),
	}

	for _, w := range data.Workouts {
		yw := yamlWorkout{
			ID:              shortID(w.ID),
			Title:           w.Title,
			StartedAt:       w.StartTime.Format(time.RFC3339),
			DurationSeconds: w.DurationSeconds,
			Notes:           w.Notes,
		}
		if w.DistanceMeters != nil {
			yw.DistanceMeters = *w.DistanceMeters
		}
		if w.CaloriesKcal != nil {
			yw.CaloriesKcal = *w.CaloriesKcal
		}
		if w.HeartRateAvg != nil {
			yw.HeartRateAvg = *w.HeartRateAvg
		}
		yamlData.Workouts[w.ActivityType] = append(yamlData.Workouts[w.ActivityType], yw)
	}

	return yaml.Marshal(yamlData)
}

type yamlWorkout struct {
	ID              string  `yaml:"id"`
	Title           string  `yaml:"title,omitempty"`
	StartedAt       string  `yaml:"started_at"`
	DurationSeconds int     `yaml:"duration_seconds,omitempty"`
	DistanceMeters  float64 `yaml:"distance_meters,omitempty"`
	CaloriesKcal    float64 `yaml:"calories_kcal,omitempty"`
	HeartRateAvg    float64 `yaml:"heart_rate_avg,omitempty"`
	Notes           string  `yaml:"notes,omitempty"`
}

// ExportMarkdown exports workouts as a Markdown table, optionally limited
// to those started at or after since.
func (d *DB) ExportMarkdown(since *time.Time) (string, error) {
	workouts, err := d.ListWorkouts(nil, 0)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	now := time.Now()

	sb.WriteString(fmt.Sprintf("# Workout Export - %s\n\n", now.Format("2006-01-02")))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", now.Format(time.RFC3339)))
	sb.WriteString("| Date | Type | Duration | Distance | Notes |\n")
	sb.WriteString("|------|------|----------|----------|-------|\n")

	for _, w := range workouts {
		if since != nil && w.StartTime.Before(*since) {
			continue
		}
		distance := ""
		if w.DistanceMeters != nil {
			distance = fmt.Sprintf("%.2f km", *w.DistanceMeters/1000)
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %s |\n",
			w.StartTime.Local().Format("2006-01-02 15:04"),
			w.ActivityType, w.Duration(), distance, w.Notes))
	}

	return sb.String(), nil
}

// ImportJSON imports data from JSON bytes.
func (d *DB) ImportJSON(data []byte) (int, error) {
	var exportData ExportData
	if err := json.Unmarshal(data, &exportData); err != nil {
		return 0, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return d.ImportData(&exportData)
}

func (d *DB) workoutExists(id string) (bool, error) {
	if id == "" {
		return false, nil
	}
	var found string
	err := d.db.QueryRow(`SELECT id FROM workouts WHERE id = ?`, id).Scan(&found)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check workout %s: %w", id, err)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
