// ABOUTME: WorkoutRecord model shared by the local device source and the relay network.
// ABOUTME: Covers origins, activity normalization, and the local-workout builder methods.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Origin identifies where a WorkoutRecord came from.
type Origin string

const (
	OriginLocal   Origin = "local"
	OriginNetwork Origin = "network"
)

// ActivityUnknown is assigned to records whose activity could not be determined.
const ActivityUnknown = "unknown"

// MaxDurationSeconds bounds a single workout to one week. Longer values are
// treated as malformed.
const MaxDurationSeconds = 7 * 24 * 60 * 60

// activityAliases maps free-form activity names to their normalized form.
var activityAliases = map[string]string{
	"run":                 "running",
	"running":             "running",
	"jog":                 "running",
	"jogging":             "running",
	"treadmill":           "running",
	"cycle":               "cycling",
	"cycling":             "cycling",
	"bike":                "cycling",
	"biking":              "cycling",
	"ride":                "cycling",
	"walk":                "walking",
	"walking":             "walking",
	"hike":                "hiking",
	"hiking":              "hiking",
	"yoga":                "yoga",
	"strength":            "strength",
	"strength_training":   "strength",
	"strengthtraining":    "strength",
	"traditionalstrength": "strength",
	"functionalstrength":  "strength",
	"weights":             "strength",
	"weightlifting":       "strength",
	"lift":                "strength",
	"lifting":             "strength",
	"gym":                 "gym",
	"workout":             "gym",
	"crossfit":            "gym",
	"hiit":                "gym",
}

// NormalizeActivityType maps a raw activity name to one of the normalized
// activity types. Empty input yields ActivityUnknown and unrecognized
// input yields "other".
func NormalizeActivityType(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return ActivityUnknown
	}
	if s == ActivityUnknown || s == "other" {
		return s
	}
	key := strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
	if v, ok := activityAliases[s]; ok {
		return v
	}
	if v, ok := activityAliases[key]; ok {
		return v
	}
	return "other"
}

// WorkoutRecord represents a single workout activity from either origin.
type WorkoutRecord struct {
	ID              string    `json:"id" yaml:"id"`
	Origin          Origin    `json:"origin" yaml:"origin"`
	ActivityType    string    `json:"activity_type" yaml:"activity_type"`
	Title           string    `json:"title,omitempty" yaml:"title,omitempty"`
	StartTime       time.Time `json:"start_time" yaml:"start_time"`
	EndTime         time.Time `json:"end_time" yaml:"end_time"`
	DurationSeconds int       `json:"duration_seconds" yaml:"duration_seconds"`
	DistanceMeters  *float64  `json:"distance_meters,omitempty" yaml:"distance_meters,omitempty"`
	CaloriesKcal    *float64  `json:"calories_kcal,omitempty" yaml:"calories_kcal,omitempty"`
	HeartRateAvg    *float64  `json:"heart_rate_avg,omitempty" yaml:"heart_rate_avg,omitempty"`
	Notes           string    `json:"notes,omitempty" yaml:"notes,omitempty"`

	// Network-origin only.
	SourceRecordID    string `json:"source_record_id,omitempty" yaml:"source_record_id,omitempty"`
	SourceIdentityKey string `json:"source_identity_key,omitempty" yaml:"source_identity_key,omitempty"`

	// LinkedLocalID is the local id a published record was created from, when
	// the publisher embedded it.
	LinkedLocalID string `json:"linked_local_id,omitempty" yaml:"linked_local_id,omitempty"`

	// Assigned once at merge time.
	CanSyncToNetwork bool `json:"can_sync_to_network" yaml:"can_sync_to_network"`
	CanPostSocial    bool `json:"can_post_social" yaml:"can_post_social"`
}

// NewLocalWorkout creates a local-origin record starting now with a generated id.
func NewLocalWorkout(activityType string) *WorkoutRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &WorkoutRecord{
		ID:           uuid.New().String(),
		Origin:       OriginLocal,
		ActivityType: NormalizeActivityType(activityType),
		StartTime:    now,
		EndTime:      now,
	}
}

// WithStartTime sets a custom start time, keeping the duration.
func (w *WorkoutRecord) WithStartTime(t time.Time) *WorkoutRecord {
	w.StartTime = t.UTC()
	w.EndTime = w.StartTime.Add(time.Duration(w.DurationSeconds) * time.Second)
	return w
}

// WithDuration sets the duration and moves EndTime accordingly.
func (w *WorkoutRecord) WithDuration(d time.Duration) *WorkoutRecord {
	if d < 0 {
		d = 0
	}
	if d > MaxDurationSeconds*time.Second {
		d = MaxDurationSeconds * time.Second
	}
	w.DurationSeconds = int(d / time.Second)
	w.EndTime = w.StartTime.Add(time.Duration(w.DurationSeconds) * time.Second)
	return w
}

// WithDistance sets the distance in meters.
func (w *WorkoutRecord) WithDistance(meters float64) *WorkoutRecord {
	w.DistanceMeters = nonNegative(meters)
	return w
}

// WithCalories sets the energy burned in kcal.
func (w *WorkoutRecord) WithCalories(kcal float64) *WorkoutRecord {
	w.CaloriesKcal = nonNegative(kcal)
	return w
}

// WithHeartRate sets the average heart rate in bpm.
func (w *WorkoutRecord) WithHeartRate(bpm float64) *WorkoutRecord {
	w.HeartRateAvg = nonNegative(bpm)
	return w
}

// WithNotes sets notes on the workout.
func (w *WorkoutRecord) WithNotes(notes string) *WorkoutRecord {
	w.Notes = notes
	return w
}

// Duration returns the workout duration, capped at MaxDurationSeconds.
func (w *WorkoutRecord) Duration() time.Duration {
	secs := w.DurationSeconds
	if secs < 0 {
		secs = 0
	}
	if secs > MaxDurationSeconds {
		secs = MaxDurationSeconds
	}
	return time.Duration(secs) * time.Second
}

// Normalize enforces the record invariants: a normalized activity type,
// a duration in [0, MaxDurationSeconds] derived from the time range when
// missing, and StartTime <= EndTime. A time range longer than
// MaxDurationSeconds is collapsed to the start time.
func (w *WorkoutRecord) Normalize() {
	w.ActivityType = NormalizeActivityType(w.ActivityType)
	if w.DurationSeconds < 0 || w.DurationSeconds > MaxDurationSeconds {
		w.DurationSeconds = 0
	}
	if span := w.EndTime.Sub(w.StartTime); span > MaxDurationSeconds*time.Second {
		w.EndTime = w.StartTime.Add(w.Duration())
	} else if w.DurationSeconds == 0 && span > 0 {
		w.DurationSeconds = int(span / time.Second)
	}
	if w.EndTime.Before(w.StartTime) {
		w.EndTime = w.StartTime.Add(w.Duration())
	}
	for _, p := range []**float64{&w.DistanceMeters, &w.CaloriesKcal, &w.HeartRateAvg} {
		if *p != nil && **p < 0 {
			*p = nil
		}
	}
}

func nonNegative(v float64) *float64 {
	if v < 0 {
		return nil
	}
	return &v
}

// Float returns a pointer to v, for optional numeric fields.
func Float(v float64) *float64 {
	return &v
}
