// ABOUTME: Data-driven strategy ladder for relay discovery.
// ABOUTME: Strategies are relative window descriptors planned into absolute query windows.
package discovery

import (
	"fmt"
	"time"

	"github.com/harperreed/workoutfeed/internal/models"
)

const day = 24 * time.Hour

// Defaults for the canonical ladder.
const (
	DefaultSufficient    = 100
	DefaultWindowTimeout = 6 * time.Second
)

// DefaultBroadTimeouts are the timeouts of the broad-100, broad-200 and
// broad-500 strategies.
var DefaultBroadTimeouts = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second}

var broadLimits = []int{100, 200, 500}

// WindowSpec is a window expressed as ages relative to now. A zero
// NewerAge means "up to now"; a zero OlderAge means "no lower bound".
type WindowSpec struct {
	NewerAge time.Duration
	OlderAge time.Duration
	Limit    int
}

// Strategy is one rung of the ladder. All its windows run concurrently and
// each is finalized by Timeout.
type Strategy struct {
	Name    string
	Windows []WindowSpec
	Timeout time.Duration
}

// DefaultLadder returns the windowed sweep followed by the broad strategies.
func DefaultLadder(windowTimeout time.Duration, broadTimeouts []time.Duration) []Strategy {
	if windowTimeout <= 0 {
		windowTimeout = DefaultWindowTimeout
	}
	windowed := Strategy{
		Name:    "windowed",
		Timeout: windowTimeout,
		Windows: []WindowSpec{
			{NewerAge: 0, OlderAge: 7 * day, Limit: 50},
			{NewerAge: 7 * day, OlderAge: 14 * day, Limit: 50},
			{NewerAge: 14 * day, OlderAge: 30 * day, Limit: 100},
			{NewerAge: 30 * day, OlderAge: 90 * day, Limit: 150},
			{NewerAge: 90 * day, OlderAge: 365 * day, Limit: 200},
			{NewerAge: 365 * day, OlderAge: 0, Limit: 200},
		},
	}
	return append([]Strategy{windowed}, BroadLadder(broadTimeouts)...)
}

// BroadLadder returns the unfiltered strategies with increasing limits.
func BroadLadder(timeouts []time.Duration) []Strategy {
	if len(timeouts) == 0 {
		timeouts = DefaultBroadTimeouts
	}
	ladder := make([]Strategy, 0, len(broadLimits))
	for i, limit := range broadLimits {
		timeout := timeouts[len(timeouts)-1]
		if i < len(timeouts) {
			timeout = timeouts[i]
		}
		ladder = append(ladder, Strategy{
			Name:    fmt.Sprintf("broad-%d", limit),
			Timeout: timeout,
			Windows: []WindowSpec{{Limit: limit}},
		})
	}
	return ladder
}

// Plan converts a strategy's windows into absolute query windows. A
// non-zero until caps every window; windows entirely at or after until are
// dropped.
func Plan(s Strategy, now, until time.Time) []models.QueryWindow {
	windows := make([]models.QueryWindow, 0, len(s.Windows))
	for _, spec := range s.Windows {
		var w models.QueryWindow
		w.Limit = spec.Limit
		if spec.NewerAge > 0 {
			w.Until = now.Add(-spec.NewerAge)
		}
		if spec.OlderAge > 0 {
			w.Since = now.Add(-spec.OlderAge)
		}
		if !until.IsZero() {
			if w.Until.IsZero() || until.Before(w.Until) {
				w.Until = until
			}
			if !w.Since.IsZero() && !w.Since.Before(w.Until) {
				continue
			}
		}
		windows = append(windows, w)
	}
	return windows
}
