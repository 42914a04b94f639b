// ABOUTME: Repository interface for the local workout store.
// ABOUTME: Defines the CRUD, feed and export contract the CLI and MCP server depend on.
package storage

import (
	"context"
	"time"

	"github.com/harperreed/workoutfeed/internal/models"
)

// Repository defines the storage interface for local workouts.
// This interface allows swapping implementations (e.g., for testing).
type Repository interface {
	CreateWorkout(w *models.WorkoutRecord) error
	GetWorkout(idOrPrefix string) (*models.WorkoutRecord, error)
	ListWorkouts(activityType *string, limit int) ([]*models.WorkoutRecord, error)
	DeleteWorkout(idOrPrefix string) error

	// FetchLocalWorkouts feeds the merge coordinator.
	FetchLocalWorkouts(ctx context.Context, identity string) ([]models.WorkoutRecord, error)

	// Export/Import
	GetAllData() (*ExportData, error)
	ImportData(data *ExportData) (int, error)
	ImportJSON(data []byte) (int, error)
	ExportJSON() ([]byte, error)
	ExportYAML() ([]byte, error)
	ExportMarkdown(since *time.Time) (string, error)

	// Lifecycle
	Close() error
}

var _ Repository = (*DB)(nil)
