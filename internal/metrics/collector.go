// Package metrics registers the prometheus collectors for the dashboard
// engine: data fetch outcomes, cache effectiveness, and pipeline latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchFailures counts instruments dropped because their price or
	// macro series could not be retrieved.
	FetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "macroscope",
		Subsystem: "fetch",
		Name:      "failures_total",
		Help:      "Instruments dropped due to data fetch failures",
	}, []string{"source"})

	// FetchRequests counts upstream provider calls.
	FetchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "macroscope",
		Subsystem: "fetch",
		Name:      "requests_total",
		Help:      "Upstream market data requests",
	}, []string{"source"})

	// CacheHits and CacheMisses track the five-minute memoization cache.
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "macroscope",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Price series cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "macroscope",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Price series cache misses",
	})

	// ScanDuration observes the full score-classify pipeline per render.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "macroscope",
		Subsystem: "scan",
		Name:      "duration_seconds",
		Help:      "Dashboard scan pipeline duration",
		Buckets:   prometheus.DefBuckets,
	})

	// ScoreFailures counts per-instrument scoring failures surfaced to the
	// caller (never silently swallowed).
	ScoreFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "macroscope",
		Subsystem: "scan",
		Name:      "score_failures_total",
		Help:      "Instruments excluded from a scoring batch",
	})

	// BacktestDays counts simulated trading days across backtest runs.
	BacktestDays = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "macroscope",
		Subsystem: "backtest",
		Name:      "days_simulated_total",
		Help:      "Trading days advanced by the backtest simulator",
	})
)
