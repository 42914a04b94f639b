// ABOUTME: Converts raw kind-1301 relay events into network-origin WorkoutRecords.
// ABOUTME: Parsing never fails; malformed fields degrade to zero values instead of dropping the event.
package parser

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/workoutfeed/internal/models"
	"github.com/harperreed/workoutfeed/internal/relay"
)

const (
	metersPerKm   = 1000.0
	metersPerMile = 1609.344
)

var (
	activityTags  = []string{"exercise", "type", "activity"}
	heartRateTags = []string{"heart_rate_avg", "avg_heart_rate", "heart_rate"}
	startTags     = []string{"start_time", "start"}
	endTags       = []string{"end_time", "end"}
	linkTags      = []string{"local_id", "source_id"}
)

// Parse converts one raw event. Missing or malformed tags leave the
// corresponding field zeroed; an event without any recognised tag yields an
// "unknown" activity starting at the event creation time.
func Parse(ev relay.Event) models.WorkoutRecord {
	rec := models.WorkoutRecord{
		ID:                ev.ID,
		Origin:            models.OriginNetwork,
		SourceRecordID:    ev.ID,
		SourceIdentityKey: ev.PubKey,
		Notes:             strings.TrimSpace(ev.Content),
	}

	if v, ok := firstTag(ev, activityTags); ok {
		rec.ActivityType = v
	}
	if v, ok := ev.Tag("title"); ok {
		rec.Title = strings.TrimSpace(v)
	}
	if v, ok := ev.Tag("duration"); ok {
		if secs, ok := ParseDuration(v); ok {
			rec.DurationSeconds = secs
		}
	}
	if vals, ok := tagValues(ev, "distance"); ok {
		unit := ""
		if len(vals) > 1 {
			unit = vals[1]
		}
		if m, ok := ParseDistance(vals[0], unit); ok {
			rec.DistanceMeters = &m
		}
	}
	if v, ok := ev.Tag("calories"); ok {
		if kcal, ok := parseNumber(strings.TrimSuffix(strings.ToLower(v), "kcal")); ok {
			kcal = math.Round(kcal)
			rec.CaloriesKcal = &kcal
		}
	}
	if v, ok := firstTag(ev, heartRateTags); ok {
		if bpm, ok := parseNumber(v); ok {
			rec.HeartRateAvg = &bpm
		}
	}
	if v, ok := firstTag(ev, linkTags); ok {
		rec.LinkedLocalID = strings.TrimSpace(v)
	}

	start, hasStart := parseTimeTag(ev, startTags)
	end, hasEnd := parseTimeTag(ev, endTags)
	switch {
	case hasStart:
		rec.StartTime = start
	case hasEnd && rec.DurationSeconds > 0:
		rec.StartTime = end.Add(-time.Duration(rec.DurationSeconds) * time.Second)
	default:
		rec.StartTime = time.Unix(ev.CreatedAt, 0).UTC()
	}
	if hasEnd && !end.Before(rec.StartTime) {
		rec.EndTime = end
	} else {
		rec.EndTime = rec.StartTime.Add(time.Duration(rec.DurationSeconds) * time.Second)
	}

	rec.Normalize()
	return rec
}

// ParseAll parses every event, preserving order.
func ParseAll(events []relay.Event) []models.WorkoutRecord {
	out := make([]models.WorkoutRecord, 0, len(events))
	for _, ev := range events {
		out = append(out, Parse(ev))
	}
	return out
}

// ParseDuration accepts HH:MM:SS, MM:SS or a raw number of seconds.
// Values above models.MaxDurationSeconds are rejected.
func ParseDuration(s string) (int, bool) {
	secs, ok := parseSeconds(s)
	if !ok || secs > models.MaxDurationSeconds {
		return 0, false
	}
	return int(math.Round(secs)), true
}

func parseSeconds(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, false
		}
		total := 0.0
		for _, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil || v < 0 {
				return 0, false
			}
			total = total*60 + v
		}
		return total, true
	}

	s = strings.TrimSuffix(strings.TrimSuffix(s, "seconds"), "s")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// ParseDistance converts a distance to meters. The unit may be given
// separately or as a suffix of value; it defaults to kilometers.
func ParseDistance(value, unit string) (float64, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	unit = strings.ToLower(strings.TrimSpace(unit))

	if unit == "" {
		for _, suffix := range []string{"km", "miles", "mile", "mi", "meters", "m"} {
			if strings.HasSuffix(value, suffix) {
				unit = suffix
				value = strings.TrimSpace(strings.TrimSuffix(value, suffix))
				break
			}
		}
	}

	v, ok := parseNumber(value)
	if !ok {
		return 0, false
	}

	switch unit {
	case "", "km", "kilometers", "kilometres":
		return v * metersPerKm, true
	case "mi", "mile", "miles":
		return v * metersPerMile, true
	case "m", "meters", "metres":
		return v, true
	default:
		return 0, false
	}
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

func parseTimeTag(ev relay.Event, names []string) (time.Time, bool) {
	v, ok := firstTag(ev, names)
	if !ok {
		return time.Time{}, false
	}
	v = strings.TrimSpace(v)
	if secs, err := strconv.ParseInt(v, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

func firstTag(ev relay.Event, names []string) (string, bool) {
	for _, name := range names {
		if v, ok := ev.Tag(name); ok && strings.TrimSpace(v) != "" {
			return v, true
		}
	}
	return "", false
}

func tagValues(ev relay.Event, name string) ([]string, bool) {
	for _, t := range ev.Tags {
		if len(t) >= 2 && t[0] == name {
			return t[1:], true
		}
	}
	return nil, false
}
