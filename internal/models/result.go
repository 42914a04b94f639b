// ABOUTME: Query windows and the merged result envelope returned to callers.
// ABOUTME: DiscoveryStats carries per-pass counters reported by the relay query engine.
package models

import "time"

// QueryWindow bounds one relay query. Zero Since or Until means unbounded.
type QueryWindow struct {
	Since time.Time `json:"since,omitempty" yaml:"since,omitempty"`
	Until time.Time `json:"until,omitempty" yaml:"until,omitempty"`
	Limit int       `json:"limit" yaml:"limit"`
}

// DiscoveryStats summarises one discovery pass.
type DiscoveryStats struct {
	Strategies      []string `json:"strategies"`
	WindowsIssued   int      `json:"windows_issued"`
	RecordsReceived int      `json:"records_received"`
	RecordsRejected int      `json:"records_rejected"`
	UniqueRecords   int      `json:"unique_records"`
	Timeouts        int      `json:"timeouts"`
	RelaySuccesses  int      `json:"relay_successes"`
	RelayFailures   int      `json:"relay_failures"`
	Partial         bool     `json:"partial"`
	Aborted         bool     `json:"aborted"`
}

// MergeResult is the envelope returned by every read of the merged feed.
type MergeResult struct {
	Records         []WorkoutRecord `json:"records"`
	NetworkCount    int             `json:"network_count"`
	LocalCount      int             `json:"local_count"`
	DuplicateCount  int             `json:"duplicate_count"`
	FromCache       bool            `json:"from_cache"`
	Stale           bool            `json:"stale"`
	CacheAgeSeconds int64           `json:"cache_age_seconds"`
	FetchDurationMs int64           `json:"fetch_duration_ms"`
	Partial         bool            `json:"partial"`
	NextCursor      int64           `json:"next_cursor"`
	Errors          []string        `json:"errors,omitempty"`
	Discovery       *DiscoveryStats `json:"discovery,omitempty"`
}

// CountOrigins recomputes NetworkCount and LocalCount from Records.
func (r *MergeResult) CountOrigins() {
	r.NetworkCount, r.LocalCount = 0, 0
	for _, rec := range r.Records {
		if rec.Origin == OriginNetwork {
			r.NetworkCount++
		} else {
			r.LocalCount++
		}
	}
}

// Limit returns a copy holding at most n records (n <= 0 keeps all) with
// NextCursor recomputed for the records kept. The counts keep describing
// the whole merged feed.
// Records sharing the start second of the last kept record stay on the
// page, since an older page only returns records strictly before the cursor.
func (r MergeResult) Limit(n int) MergeResult {
	if n <= 0 || len(r.Records) <= n {
		return r
	}

	boundary := r.Records[n-1].StartTime.Unix()
	for n < len(r.Records) && r.Records[n].StartTime.Unix() >= boundary {
		n++
	}
	if n == len(r.Records) {
		return r
	}

	r.Records = append([]WorkoutRecord(nil), r.Records[:n]...)

	oldest := r.Records[0].StartTime
	for _, rec := range r.Records[1:] {
		if rec.StartTime.Before(oldest) {
			oldest = rec.StartTime
		}
	}
	r.NextCursor = oldest.Unix()
	return r
}
