// ABOUTME: Tests for merging local and network workout records.
// ABOUTME: Covers the fuzzy-match tolerance boundaries, exact links, flags and ordering.
package dedup

import (
	"math/rand"
	"testing"
	"time"

	"github.com/harperreed/workoutfeed/internal/models"
)

var base = time.Date(2025, 5, 10, 6, 30, 0, 0, time.UTC)

func rec(id string, origin models.Origin, activity string, start time.Time, secs int, dist *float64) models.WorkoutRecord {
	return models.WorkoutRecord{
		ID:              id,
		Origin:          origin,
		ActivityType:    activity,
		StartTime:       start,
		EndTime:         start.Add(time.Duration(secs) * time.Second),
		DurationSeconds: secs,
		DistanceMeters:  dist,
	}
}

func TestMergeDistanceBoundary(t *testing.T) {
	local := rec("l1", models.OriginLocal, "running", base, 1800, models.Float(5000))

	near := rec("n1", models.OriginNetwork, "running", base.Add(30*time.Second), 1805, models.Float(5060))
	res := Merge([]models.WorkoutRecord{local}, []models.WorkoutRecord{near})
	if len(res.Records) != 1 || res.DuplicateCount != 1 {
		t.Fatalf("got %d records / %d dups, want 1/1", len(res.Records), res.DuplicateCount)
	}
	if res.Records[0].Origin != models.OriginNetwork {
		t.Errorf("surviving record origin = %s, want network", res.Records[0].Origin)
	}

	far := rec("n1", models.OriginNetwork, "running", base.Add(30*time.Second), 1805, models.Float(5300))
	res = Merge([]models.WorkoutRecord{local}, []models.WorkoutRecord{far})
	if len(res.Records) != 2 || res.DuplicateCount != 0 {
		t.Fatalf("got %d records / %d dups, want 2/0", len(res.Records), res.DuplicateCount)
	}
}

func TestIsLikelySameWorkout(t *testing.T) {
	a := rec("a", models.OriginLocal, "running", base, 1800, models.Float(5000))

	tests := []struct {
		name string
		b    models.WorkoutRecord
		want bool
	}{
		{"identical", rec("b", models.OriginNetwork, "running", base, 1800, models.Float(5000)), true},
		{"activity alias", rec("b", models.OriginNetwork, "Run", base, 1800, models.Float(5000)), true},
		{"different activity", rec("b", models.OriginNetwork, "cycling", base, 1800, models.Float(5000)), false},
		{"start at tolerance", rec("b", models.OriginNetwork, "running", base.Add(-60*time.Second), 1800, models.Float(5000)), true},
		{"start past tolerance", rec("b", models.OriginNetwork, "running", base.Add(61*time.Second), 1800, models.Float(5000)), false},
		{"duration at tolerance", rec("b", models.OriginNetwork, "running", base, 1810, models.Float(5000)), true},
		{"duration past tolerance", rec("b", models.OriginNetwork, "running", base, 1789, models.Float(5000)), false},
		{"distance floor", rec("b", models.OriginNetwork, "running", base, 1800, models.Float(5100)), true},
		{"distance missing on one side", rec("b", models.OriginNetwork, "running", base, 1800, nil), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsLikelySameWorkout(a, tt.b); got != tt.want {
				t.Errorf("IsLikelySameWorkout = %v, want %v", got, tt.want)
			}
			if got := IsLikelySameWorkout(tt.b, a); got != tt.want {
				t.Errorf("IsLikelySameWorkout (swapped) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsLikelySameWorkoutRatio(t *testing.T) {
	a := rec("a", models.OriginLocal, "cycling", base, 7200, models.Float(40000))

	within := rec("b", models.OriginNetwork, "cycling", base, 7200, models.Float(40790))
	if !IsLikelySameWorkout(a, within) {
		t.Error("expected 790m on 40.79km to be within 2%")
	}
	beyond := rec("b", models.OriginNetwork, "cycling", base, 7200, models.Float(40900))
	if IsLikelySameWorkout(a, beyond) {
		t.Error("expected 900m on 40.9km to exceed 2%")
	}

	noDist := rec("c", models.OriginLocal, "yoga", base, 3600, nil)
	if !IsLikelySameWorkout(noDist, rec("d", models.OriginNetwork, "yoga", base, 3600, nil)) {
		t.Error("expected records without distance to match")
	}
}

func TestMergeExactLink(t *testing.T) {
	local := rec("local-7", models.OriginLocal, "walking", base, 1200, nil)
	linked := rec("evt-1", models.OriginNetwork, "walking", base.Add(3*time.Hour), 1500, nil)
	linked.LinkedLocalID = "local-7"

	res := Merge([]models.WorkoutRecord{local}, []models.WorkoutRecord{linked})

	if res.DuplicateCount != 1 || len(res.Records) != 1 {
		t.Fatalf("got %d records / %d dups, want 1/1", len(res.Records), res.DuplicateCount)
	}
	if !IsSameRecord(local, linked) {
		t.Error("expected IsSameRecord to be true")
	}
	if IsSameRecord(models.WorkoutRecord{}, linked) {
		t.Error("empty local id must not match")
	}
}

func TestMergeNetworkRecordAbsorbsOneLocal(t *testing.T) {
	// Two local sessions both fall within tolerance of one network record;
	// only the closer one is its duplicate.
	first := rec("l1", models.OriginLocal, "running", base, 1800, nil)
	second := rec("l2", models.OriginLocal, "running", base.Add(50*time.Second), 1805, nil)
	net := rec("n1", models.OriginNetwork, "running", base.Add(40*time.Second), 1802, nil)

	res := Merge([]models.WorkoutRecord{first, second}, []models.WorkoutRecord{net})
	if res.DuplicateCount != 1 {
		t.Fatalf("DuplicateCount = %d, want 1", res.DuplicateCount)
	}
	if len(res.Records) != 2 {
		t.Fatalf("got %d records, want network plus one local", len(res.Records))
	}
	var kept string
	for _, r := range res.Records {
		if r.Origin == models.OriginLocal {
			kept = r.ID
		}
	}
	if kept != "l1" {
		t.Errorf("kept local %q, want l1 since l2 starts closer to the network record", kept)
	}

	// Input order does not change which local is absorbed.
	res = Merge([]models.WorkoutRecord{second, first}, []models.WorkoutRecord{net})
	for _, r := range res.Records {
		if r.ID == "l2" {
			t.Error("l2 should be absorbed regardless of input order")
		}
	}
}

func TestMergeExactLinkClaimsBeforeFuzzy(t *testing.T) {
	fuzzy := rec("l1", models.OriginLocal, "running", base, 1800, nil)
	linked := rec("l2", models.OriginLocal, "running", base.Add(10*time.Second), 1800, nil)
	net := rec("n1", models.OriginNetwork, "running", base.Add(5*time.Second), 1800, nil)
	net.LinkedLocalID = "l2"

	res := Merge([]models.WorkoutRecord{fuzzy, linked}, []models.WorkoutRecord{net})
	if res.DuplicateCount != 1 || len(res.Records) != 2 {
		t.Fatalf("got %d records / %d dups, want 2/1", len(res.Records), res.DuplicateCount)
	}
	for _, r := range res.Records {
		if r.ID == "l2" {
			t.Error("linked local record should be absorbed by its network copy")
		}
	}
}

func TestMergeAssignsFlags(t *testing.T) {
	network := rec("n", models.OriginNetwork, "running", base, 1800, nil)
	local := rec("l", models.OriginLocal, "yoga", base.Add(-time.Hour), 0, nil)
	timed := rec("t", models.OriginLocal, "yoga", base.Add(-2*time.Hour), 600, nil)

	res := Merge([]models.WorkoutRecord{local, timed}, []models.WorkoutRecord{network})

	byID := map[string]models.WorkoutRecord{}
	for _, r := range res.Records {
		byID[r.ID] = r
	}
	if n := byID["n"]; n.CanSyncToNetwork || !n.CanPostSocial {
		t.Errorf("network flags = %v/%v, want false/true", n.CanSyncToNetwork, n.CanPostSocial)
	}
	if l := byID["l"]; !l.CanSyncToNetwork || l.CanPostSocial {
		t.Errorf("zero-duration local flags = %v/%v, want true/false", l.CanSyncToNetwork, l.CanPostSocial)
	}
	if l := byID["t"]; !l.CanSyncToNetwork || !l.CanPostSocial {
		t.Errorf("local flags = %v/%v, want true/true", l.CanSyncToNetwork, l.CanPostSocial)
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	network := []models.WorkoutRecord{rec("n", models.OriginNetwork, "running", base, 1800, nil)}
	local := []models.WorkoutRecord{rec("l", models.OriginLocal, "yoga", base, 600, nil)}

	Merge(local, network)

	if network[0].CanPostSocial || local[0].CanSyncToNetwork {
		t.Error("Merge mutated its input slices")
	}
}

func TestMergeCollapsesRepeatedIDs(t *testing.T) {
	n := rec("n", models.OriginNetwork, "running", base, 1800, nil)
	l := rec("l", models.OriginLocal, "yoga", base.Add(-time.Hour), 600, nil)

	res := Merge([]models.WorkoutRecord{l, l}, []models.WorkoutRecord{n, n})

	if len(res.Records) != 2 || res.DuplicateCount != 0 {
		t.Errorf("got %d records / %d dups, want 2/0", len(res.Records), res.DuplicateCount)
	}
}

func TestSortOrderingInvariant(t *testing.T) {
	records := []models.WorkoutRecord{
		rec("a", models.OriginLocal, "running", base, 60, nil),
		rec("b", models.OriginNetwork, "cycling", base, 60, nil),
		rec("c", models.OriginNetwork, "walking", base.Add(time.Hour), 60, nil),
		rec("d", models.OriginLocal, "yoga", base.Add(-time.Hour), 60, nil),
		rec("e", models.OriginNetwork, "hiking", base.Add(-time.Hour), 60, nil),
	}
	want := []string{"c", "b", "a", "e", "d"}

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.WorkoutRecord(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		Sort(shuffled)

		for k, id := range want {
			if shuffled[k].ID != id {
				t.Fatalf("permutation %d: position %d = %s, want %s", i, k, shuffled[k].ID, id)
			}
		}
	}
}

func TestMergeOutputSorted(t *testing.T) {
	local := []models.WorkoutRecord{
		rec("l1", models.OriginLocal, "yoga", base.Add(-2*time.Hour), 600, nil),
		rec("l2", models.OriginLocal, "strength", base, 600, nil),
	}
	network := []models.WorkoutRecord{
		rec("n1", models.OriginNetwork, "running", base, 1800, nil),
		rec("n2", models.OriginNetwork, "cycling", base.Add(-time.Hour), 1800, nil),
	}

	res := Merge(local, network)
	want := []string{"n1", "l2", "n2", "l1"}
	for i, id := range want {
		if res.Records[i].ID != id {
			t.Errorf("Records[%d] = %s, want %s", i, res.Records[i].ID, id)
		}
	}
}
