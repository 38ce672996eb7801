// Package metrics exposes Prometheus collectors for the harvester.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	searchPagesTotal          prometheus.Counter
	searchHitsTotal           prometheus.Counter
	documentFetchesTotal      *prometheus.CounterVec
	noticesTotal              *prometheus.CounterVec
	extractDurationSeconds    prometheus.Histogram
	runsTotal                 *prometheus.CounterVec
	rateLimitDelaySecondsHist prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		searchPagesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_search_pages_total",
				Help: "Total number of search result pages fetched.",
			},
		)

		searchHitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "harvester_search_hits_total",
				Help: "Total number of raw notices returned by the search API.",
			},
		)

		documentFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_document_fetches_total",
				Help: "Total number of document fetch attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		noticesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_notices_total",
				Help: "Total number of notices processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		extractDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_extract_duration_seconds",
				Help:    "Histogram of per-document field extraction latencies.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		)

		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "harvester_runs_total",
				Help: "Total number of harvest runs, labeled by status.",
			},
			[]string{"status"},
		)

		rateLimitDelaySecondsHist = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "harvester_rate_limit_delay_seconds",
				Help:    "Histogram of inter-request pause durations.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSearchPage records one fetched search page and its hit count.
func ObserveSearchPage(hits int) {
	if searchPagesTotal == nil {
		return
	}
	searchPagesTotal.Inc()
	searchHitsTotal.Add(float64(hits))
}

// ObserveDocumentFetch records one document fetch attempt.
func ObserveDocumentFetch(strategy, outcome string) {
	if documentFetchesTotal == nil {
		return
	}
	documentFetchesTotal.WithLabelValues(strategy, outcome).Inc()
}

// ObserveNotice records one processed notice by outcome ("row" or "skipped").
func ObserveNotice(outcome string) {
	if noticesTotal == nil {
		return
	}
	noticesTotal.WithLabelValues(outcome).Inc()
}

// ObserveExtract records the duration of one field extraction.
func ObserveExtract(d time.Duration) {
	if extractDurationSeconds == nil {
		return
	}
	extractDurationSeconds.Observe(d.Seconds())
}

// ObserveRun increments the run counter for the given status.
func ObserveRun(status string) {
	if runsTotal == nil {
		return
	}
	runsTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records the duration of an inter-request pause.
func ObserveRateLimitDelay(d time.Duration) {
	if rateLimitDelaySecondsHist == nil {
		return
	}
	rateLimitDelaySecondsHist.Observe(d.Seconds())
}
