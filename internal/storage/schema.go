// ABOUTME: Versioned schema for the workouts recorded on this device.
// ABOUTME: PRAGMA user_version tracks which migrations have been applied.
package storage

import "fmt"

// migrations[i] moves the schema from version i to i+1.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS workouts (
		id TEXT PRIMARY KEY,
		activity_type TEXT NOT NULL,
		title TEXT,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		distance_meters REAL,
		calories_kcal REAL,
		heart_rate_avg REAL,
		notes TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_workouts_start ON workouts(start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_workouts_activity ON workouts(activity_type);`,
}

// schemaVersion is the version a freshly migrated store reports.
var schemaVersion = len(migrations)

func (d *DB) migrate() error {
	var version int
	if err := d.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, schemaVersion)
	}

	for v := version; v < schemaVersion; v++ {
		tx, err := d.db.Begin()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record schema version %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}
