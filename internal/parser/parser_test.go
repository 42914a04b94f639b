// ABOUTME: Tests for raw event parsing into WorkoutRecords.
// ABOUTME: Covers duration/distance encodings, time tags and the never-drop fallback.
package parser

import (
	"math"
	"testing"
	"time"

	"github.com/harperreed/workoutfeed/internal/models"
	"github.com/harperreed/workoutfeed/internal/relay"
)

func event(tags ...[]string) relay.Event {
	return relay.Event{
		ID:        "ev1",
		PubKey:    "pk1",
		CreatedAt: 1700000000,
		Kind:      relay.KindWorkout,
		Tags:      tags,
		Content:   "  Morning run  ",
	}
}

func TestParseFullRecord(t *testing.T) {
	rec := Parse(event(
		[]string{"exercise", "Run"},
		[]string{"title", "Lakefront 5k"},
		[]string{"duration", "00:30:05"},
		[]string{"distance", "5.00", "km"},
		[]string{"calories", "312.6"},
		[]string{"heart_rate_avg", "151"},
		[]string{"local_id", "local-42"},
	))

	if rec.ID != "ev1" || rec.SourceRecordID != "ev1" || rec.SourceIdentityKey != "pk1" {
		t.Errorf("unexpected identity fields: %+v", rec)
	}
	if rec.Origin != models.OriginNetwork {
		t.Errorf("Origin = %s, want network", rec.Origin)
	}
	if rec.ActivityType != "running" {
		t.Errorf("ActivityType = %s, want running", rec.ActivityType)
	}
	if rec.Title != "Lakefront 5k" {
		t.Errorf("Title = %q", rec.Title)
	}
	if rec.Notes != "Morning run" {
		t.Errorf("Notes = %q", rec.Notes)
	}
	if rec.DurationSeconds != 1805 {
		t.Errorf("DurationSeconds = %d, want 1805", rec.DurationSeconds)
	}
	if rec.DistanceMeters == nil || *rec.DistanceMeters != 5000 {
		t.Errorf("DistanceMeters = %v, want 5000", rec.DistanceMeters)
	}
	if rec.CaloriesKcal == nil || *rec.CaloriesKcal != 313 {
		t.Errorf("CaloriesKcal = %v, want 313", rec.CaloriesKcal)
	}
	if rec.HeartRateAvg == nil || *rec.HeartRateAvg != 151 {
		t.Errorf("HeartRateAvg = %v, want 151", rec.HeartRateAvg)
	}
	if rec.LinkedLocalID != "local-42" {
		t.Errorf("LinkedLocalID = %q", rec.LinkedLocalID)
	}

	wantStart := time.Unix(1700000000, 0).UTC()
	if !rec.StartTime.Equal(wantStart) {
		t.Errorf("StartTime = %v, want %v", rec.StartTime, wantStart)
	}
	if !rec.EndTime.Equal(wantStart.Add(1805 * time.Second)) {
		t.Errorf("EndTime = %v", rec.EndTime)
	}
}

func TestParseFallbackRecord(t *testing.T) {
	ev := relay.Event{ID: "junk", PubKey: "pk", CreatedAt: 1700000000, Kind: relay.KindWorkout,
		Tags: [][]string{{"duration", "forever"}, {"distance", "far"}, {"calories", "-5"}}}
	rec := Parse(ev)

	if rec.ID != "junk" {
		t.Errorf("ID = %q, want junk", rec.ID)
	}
	if rec.ActivityType != models.ActivityUnknown {
		t.Errorf("ActivityType = %s, want unknown", rec.ActivityType)
	}
	if rec.DurationSeconds != 0 {
		t.Errorf("DurationSeconds = %d, want 0", rec.DurationSeconds)
	}
	if rec.DistanceMeters != nil || rec.CaloriesKcal != nil || rec.HeartRateAvg != nil {
		t.Error("expected optional metrics to be absent")
	}
	if !rec.StartTime.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("StartTime = %v, want created_at", rec.StartTime)
	}
	if rec.EndTime.Before(rec.StartTime) {
		t.Error("EndTime before StartTime")
	}
}

func TestParseOversizedDurationKeepsInvariant(t *testing.T) {
	for _, d := range []string{"9223372037", "1e12", "99999999:00:00"} {
		t.Run(d, func(t *testing.T) {
			rec := Parse(relay.Event{ID: "x", CreatedAt: 1700000000, Kind: relay.KindWorkout,
				Tags: [][]string{{"duration", d}}})
			if rec.EndTime.Before(rec.StartTime) {
				t.Fatalf("EndTime %v before StartTime %v", rec.EndTime, rec.StartTime)
			}
			if rec.DurationSeconds != 0 {
				t.Errorf("DurationSeconds = %d, want 0", rec.DurationSeconds)
			}
			if got := rec.EndTime.Sub(rec.StartTime); got != rec.Duration() {
				t.Errorf("time range %v disagrees with duration %v", got, rec.Duration())
			}
		})
	}

	t.Run("far end tag", func(t *testing.T) {
		rec := Parse(event([]string{"start_time", "1700000000"}, []string{"end_time", "9000000000"}))
		if rec.EndTime.Before(rec.StartTime) || rec.DurationSeconds > models.MaxDurationSeconds {
			t.Errorf("start=%v end=%v duration=%d", rec.StartTime, rec.EndTime, rec.DurationSeconds)
		}
	})
}

func TestParseTimeTags(t *testing.T) {
	t.Run("start tag wins over created_at", func(t *testing.T) {
		rec := Parse(event([]string{"start_time", "1699990000"}, []string{"duration", "600"}))
		if rec.StartTime.Unix() != 1699990000 {
			t.Errorf("StartTime = %d", rec.StartTime.Unix())
		}
		if rec.EndTime.Unix() != 1699990600 {
			t.Errorf("EndTime = %d", rec.EndTime.Unix())
		}
	})

	t.Run("rfc3339 start and end", func(t *testing.T) {
		rec := Parse(event(
			[]string{"start_time", "2025-01-02T07:00:00Z"},
			[]string{"end_time", "2025-01-02T07:45:00Z"},
		))
		if rec.DurationSeconds != 2700 {
			t.Errorf("DurationSeconds = %d, want 2700", rec.DurationSeconds)
		}
	})

	t.Run("end only derives start", func(t *testing.T) {
		rec := Parse(event([]string{"end_time", "1699990600"}, []string{"duration", "10:00"}))
		if rec.StartTime.Unix() != 1699990000 {
			t.Errorf("StartTime = %d, want 1699990000", rec.StartTime.Unix())
		}
	})

	t.Run("end before start is ignored", func(t *testing.T) {
		rec := Parse(event(
			[]string{"start_time", "1699990000"},
			[]string{"end_time", "1699980000"},
			[]string{"duration", "60"},
		))
		if rec.EndTime.Unix() != 1699990060 {
			t.Errorf("EndTime = %d, want 1699990060", rec.EndTime.Unix())
		}
	})
}

func TestParseActivityTagPriority(t *testing.T) {
	rec := Parse(event([]string{"activity", "walk"}, []string{"exercise", "cycling"}))
	if rec.ActivityType != "cycling" {
		t.Errorf("ActivityType = %s, want cycling", rec.ActivityType)
	}

	rec = Parse(event([]string{"type", "hike"}))
	if rec.ActivityType != "hiking" {
		t.Errorf("ActivityType = %s, want hiking", rec.ActivityType)
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"01:02:03", 3723, true},
		{"00:30:00", 1800, true},
		{"45:10", 2710, true},
		{"1800", 1800, true},
		{"1800.4", 1800, true},
		{"90s", 90, true},
		{"", 0, false},
		{"abc", 0, false},
		{"-5", 0, false},
		{"1:2:3:4", 0, false},
		{"aa:10", 0, false},
		{"604800", 604800, true},
		{"604801", 0, false},
		{"9223372037", 0, false},
		{"1e12", 0, false},
		{"200:00:00", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseDuration(tt.in)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ParseDuration(%q) = %d/%v, want %d/%v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseDistance(t *testing.T) {
	tests := []struct {
		value  string
		unit   string
		want   float64
		wantOK bool
	}{
		{"5", "", 5000, true},
		{"5.2", "km", 5200, true},
		{"5.2km", "", 5200, true},
		{"3", "mi", 4828.032, true},
		{"1 mile", "", 1609.344, true},
		{"800m", "", 800, true},
		{"800", "M", 800, true},
		{"10", "furlongs", 0, false},
		{"far", "", 0, false},
		{"-1", "km", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.value+tt.unit, func(t *testing.T) {
			got, ok := ParseDistance(tt.value, tt.unit)
			if ok != tt.wantOK || math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("ParseDistance(%q, %q) = %f/%v, want %f/%v", tt.value, tt.unit, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestParseAllPreservesEveryEvent(t *testing.T) {
	events := []relay.Event{
		{ID: "a", CreatedAt: 1},
		{ID: "b", CreatedAt: 2, Tags: [][]string{{"exercise"}}},
		{ID: "c", CreatedAt: 3, Tags: [][]string{{"exercise", "yoga"}}},
	}
	recs := ParseAll(events)

	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	for i, id := range []string{"a", "b", "c"} {
		if recs[i].ID != id {
			t.Errorf("recs[%d].ID = %s, want %s", i, recs[i].ID, id)
		}
	}
	if recs[2].ActivityType != "yoga" {
		t.Errorf("ActivityType = %s, want yoga", recs[2].ActivityType)
	}
}
