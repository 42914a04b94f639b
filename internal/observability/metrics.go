// ABOUTME: Prometheus metrics for discovery, caching and background refreshes.
// ABOUTME: Collectors register on the default registry; record* helpers are called from the pipeline.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "workoutfeed"

var (
	windowsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "windows_total",
		Help:      "Number of relay query windows issued, by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	relayErrorsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "relay_errors_total",
		Help:      "Number of relay subscriptions that failed, by relay.",
	}, []string{"relay"})

	recordsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "records_received_total",
		Help:      "Number of raw workout records received from relays, duplicates included.",
	})

	rejectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "records_rejected_total",
		Help:      "Records dropped because their id or signature did not verify.",
	})

	discoveryDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "discovery",
		Name:      "duration_seconds",
		Help:      "Wall time of one discovery pass.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
	})

	cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "lookups_total",
		Help:      "Cache lookups by result (fresh, stale, miss).",
	}, []string{"result"})

	cacheWriteErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cache",
		Name:      "write_errors_total",
		Help:      "Cache writes rejected by the storage backend.",
	})

	duplicatesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "merge",
		Name:      "duplicates_total",
		Help:      "Local records collapsed into a matching network record.",
	})

	refreshCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "merge",
		Name:      "background_refreshes_total",
		Help:      "Background refreshes by outcome (started, skipped, failed, completed).",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(
		windowsCounter,
		relayErrorsCounter,
		recordsCounter,
		rejectedCounter,
		discoveryDuration,
		cacheLookups,
		cacheWriteErrors,
		duplicatesCounter,
		refreshCounter,
	)
}

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordWindow counts one finalized query window.
func RecordWindow(strategy string, timedOut bool) {
	outcome := "completed"
	if timedOut {
		outcome = "timeout"
	}
	windowsCounter.WithLabelValues(strategy, outcome).Inc()
}

// RecordRelayError counts a failed relay subscription.
func RecordRelayError(relay string) {
	relayErrorsCounter.WithLabelValues(relay).Inc()
}

// RecordRecordsReceived adds n raw records to the received counter.
func RecordRecordsReceived(n int) {
	if n > 0 {
		recordsCounter.Add(float64(n))
	}
}

// RecordRecordsRejected adds n unverifiable records to the rejected counter.
func RecordRecordsRejected(n int) {
	if n > 0 {
		rejectedCounter.Add(float64(n))
	}
}

// ObserveDiscovery records the duration of a discovery pass in seconds.
func ObserveDiscovery(seconds float64) {
	discoveryDuration.Observe(seconds)
}

// RecordCacheLookup counts a cache lookup; result is fresh, stale or miss.
func RecordCacheLookup(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

// RecordCacheWriteError counts a failed cache write.
func RecordCacheWriteError() {
	cacheWriteErrors.Inc()
}

// RecordDuplicates adds n collapsed duplicates.
func RecordDuplicates(n int) {
	if n > 0 {
		duplicatesCounter.Add(float64(n))
	}
}

// RecordRefresh counts a background refresh transition.
func RecordRefresh(outcome string) {
	refreshCounter.WithLabelValues(outcome).Inc()
}
