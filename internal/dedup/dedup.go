// ABOUTME: Merges local and network workout records, collapsing pairs that describe the same activity.
// ABOUTME: Exact id links are checked first, then a fuzzy time/duration/distance match; network wins.
package dedup

import (
	"math"
	"sort"
	"time"

	"github.com/harperreed/workoutfeed/internal/models"
)

// Fuzzy match tolerances.
const (
	StartTolerance      = 60 * time.Second
	DurationTolerance   = 10 * time.Second
	DistanceRatio       = 0.02
	DistanceFloorMeters = 100.0
)

// Result is the unified record set.
type Result struct {
	Records        []models.WorkoutRecord
	DuplicateCount int
}

// Merge combines local and network records. A local record matching a
// network record is dropped and counted as a duplicate; a network record
// absorbs at most one local record. Flags are assigned
// on the returned copies and the output is ordered by Sort.
func Merge(local, network []models.WorkoutRecord) Result {
	out := make([]models.WorkoutRecord, 0, len(local)+len(network))

	seenNetwork := make(map[string]bool, len(network))
	nets := make([]models.WorkoutRecord, 0, len(network))
	for _, n := range network {
		if n.ID != "" && seenNetwork[n.ID] {
			continue
		}
		seenNetwork[n.ID] = true
		n.Origin = models.OriginNetwork
		n.CanSyncToNetwork = false
		n.CanPostSocial = true
		nets = append(nets, n)
	}
	out = append(out, nets...)

	locals := make([]models.WorkoutRecord, 0, len(local))
	seenLocal := make(map[string]bool, len(local))
	for _, l := range local {
		if l.ID != "" && seenLocal[l.ID] {
			continue
		}
		seenLocal[l.ID] = true
		locals = append(locals, l)
	}

	// Each network record absorbs at most one local record. Exact links
	// claim their partner before any fuzzy match is tried.
	claimed := make([]bool, len(nets))
	matched := make([]bool, len(locals))
	for i, l := range locals {
		for j, n := range nets {
			if !claimed[j] && IsSameRecord(l, n) {
				claimed[j], matched[i] = true, true
				break
			}
		}
	}
	for _, c := range likelyPairs(locals, nets, matched, claimed) {
		if !matched[c.local] && !claimed[c.network] {
			claimed[c.network], matched[c.local] = true, true
		}
	}

	dups := 0
	for i, l := range locals {
		if matched[i] {
			dups++
			continue
		}
		l.Origin = models.OriginLocal
		l.CanSyncToNetwork = true
		l.CanPostSocial = l.DurationSeconds > 0
		out = append(out, l)
	}

	Sort(out)
	return Result{Records: out, DuplicateCount: dups}
}

type pair struct {
	local, network int
	delta          time.Duration
}

// likelyPairs lists every fuzzy match between an unmatched local record and
// an unclaimed network record, nearest start times first.
func likelyPairs(locals, nets []models.WorkoutRecord, matched, claimed []bool) []pair {
	var pairs []pair
	for i, l := range locals {
		if matched[i] {
			continue
		}
		for j, n := range nets {
			if !claimed[j] && IsLikelySameWorkout(l, n) {
				pairs = append(pairs, pair{local: i, network: j, delta: absDuration(l.StartTime.Sub(n.StartTime))})
			}
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].delta < pairs[b].delta })
	return pairs
}

// IsSameRecord reports an exact identity link between a local record and a
// network record that was published from it.
func IsSameRecord(local, network models.WorkoutRecord) bool {
	if local.ID == "" {
		return false
	}
	return local.ID == network.LinkedLocalID || local.ID == network.ID
}

// IsLikelySameWorkout reports whether two records plausibly describe the
// same physical activity: same activity type, starts within
// StartTolerance, durations within DurationTolerance, and distances either
// both absent or within max(DistanceRatio of the larger, DistanceFloorMeters).
func IsLikelySameWorkout(a, b models.WorkoutRecord) bool {
	if models.NormalizeActivityType(a.ActivityType) != models.NormalizeActivityType(b.ActivityType) {
		return false
	}
	if absDuration(a.StartTime.Sub(b.StartTime)) > StartTolerance {
		return false
	}
	if absDuration(a.Duration()-b.Duration()) > DurationTolerance {
		return false
	}

	switch {
	case a.DistanceMeters == nil && b.DistanceMeters == nil:
		return true
	case a.DistanceMeters == nil || b.DistanceMeters == nil:
		return false
	}
	da, db := *a.DistanceMeters, *b.DistanceMeters
	allowed := math.Max(DistanceRatio*math.Max(da, db), DistanceFloorMeters)
	return math.Abs(da-db) <= allowed
}

// Sort orders records newest first. Equal start times put network records
// before local ones, then order by id so the result is deterministic.
func Sort(records []models.WorkoutRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.After(b.StartTime)
		}
		if a.Origin != b.Origin {
			return a.Origin == models.OriginNetwork
		}
		return a.ID < b.ID
	})
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
