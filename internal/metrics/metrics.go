// SPDX-License-Identifier: MIT

// Package metrics exposes the archiver's prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PagesFetched counts successfully fetched pages per website.
	PagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagevault_pages_fetched_total",
		Help: "Total number of pages fetched",
	}, []string{"website"})

	// AssetsFetched counts successfully fetched assets per website.
	AssetsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagevault_assets_fetched_total",
		Help: "Total number of assets fetched",
	}, []string{"website"})

	// FetchRetries counts retried HTTP attempts.
	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagevault_fetch_retries_total",
		Help: "Total number of retried fetch attempts",
	})

	// FetchErrors counts terminal fetch failures by error class.
	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagevault_fetch_errors_total",
		Help: "Total number of failed fetches by error class",
	}, []string{"class"})

	// BytesStored counts content bytes written to the offline copy tree.
	BytesStored = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagevault_bytes_stored_total",
		Help: "Total content bytes written to the offline copy",
	}, []string{"kind"})

	// RunDuration tracks how long archive runs take.
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagevault_run_duration_seconds",
		Help:    "Archive run duration by outcome",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600, 14400},
	}, []string{"result"})

	// Snapshots counts crawl state snapshots by reason.
	Snapshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagevault_state_snapshots_total",
		Help: "Total number of crawl state snapshots by reason",
	}, []string{"reason"})
)

// IncPageFetched records one archived page.
func IncPageFetched(website string) {
	PagesFetched.WithLabelValues(website).Inc()
}

// IncAssetFetched records one archived asset.
func IncAssetFetched(website string) {
	AssetsFetched.WithLabelValues(website).Inc()
}

// IncFetchRetry records one retried fetch attempt.
func IncFetchRetry() {
	FetchRetries.Inc()
}

// IncFetchError records a terminal fetch failure.
func IncFetchError(class string) {
	FetchErrors.WithLabelValues(class).Inc()
}

// AddBytesStored records content bytes written; kind is "page" or "asset".
func AddBytesStored(kind string, n int) {
	BytesStored.WithLabelValues(kind).Add(float64(n))
}

// ObserveRunDuration records a finished run.
func ObserveRunDuration(success bool, d time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	RunDuration.WithLabelValues(result).Observe(d.Seconds())
}

// IncSnapshot records a crawl state snapshot.
func IncSnapshot(reason string) {
	Snapshots.WithLabelValues(reason).Inc()
}
