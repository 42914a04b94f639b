// ABOUTME: Output helpers shared by CLI commands.
// ABOUTME: Time parsing, column padding, and one-line workout rendering.
package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/harperreed/workoutfeed/internal/models"
)

func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04",
		"2006-01-02T15:04",
		"2006-01-02",
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, f := range formats {
		if t, err := time.ParseInLocation(f, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func padRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	d := time.Duration(seconds) * time.Second
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func formatDistance(meters *float64) string {
	if meters == nil {
		return ""
	}
	if *meters < 1000 {
		return fmt.Sprintf("%.0f m", *meters)
	}
	return fmt.Sprintf("%.2f km", *meters/1000)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return padRight(id, 8)
}

// printRecord writes one workout as an aligned line:
// ID  DATE  ORIGIN  ACTIVITY  DURATION  DISTANCE  (TITLE)
func printRecord(out io.Writer, r models.WorkoutRecord) {
	faint := color.New(color.Faint)
	origin := color.New(color.FgCyan).Sprint("net  ")
	if r.Origin == models.OriginLocal {
		origin = color.New(color.FgGreen).Sprint("local")
	}

	extra := ""
	if label := r.Title; label != "" {
		extra = faint.Sprintf(" (%s)", truncate(label, 30))
	} else if r.Notes != "" {
		extra = faint.Sprintf(" (%s)", truncate(r.Notes, 30))
	}

	fmt.Fprintf(out, "%s %s %s %s %s %s%s\n",
		faint.Sprint(shortID(r.ID)),
		faint.Sprint(r.StartTime.Local().Format("2006-01-02 15:04")),
		origin,
		padRight(r.ActivityType, 10),
		padRight(formatDuration(r.DurationSeconds), 7),
		padRight(formatDistance(r.DistanceMeters), 9),
		extra)
}
