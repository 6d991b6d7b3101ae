package fetch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jefflab/macroscope/internal/market"
	"github.com/jefflab/macroscope/internal/market/cache"
	"github.com/jefflab/macroscope/internal/metrics"
)

// Snapshot is the result of one batch fetch: series per ticker plus the
// tickers that failed. A zero-success snapshot is a fatal condition the
// caller must surface, never render as an empty dashboard.
type Snapshot struct {
	Series    map[string]*market.PriceSeries
	Failed    []string
	FetchedAt time.Time
}

// Facade wraps a Fetcher with drop-on-failure batch semantics and a
// read-through memoization cache keyed by the instrument set.
type Facade struct {
	fetcher  Fetcher
	store    cache.SeriesStore
	ttl      time.Duration
	lookback time.Duration
}

// NewFacade creates a batch facade. A nil store disables memoization.
func NewFacade(fetcher Fetcher, store cache.SeriesStore, ttl time.Duration) *Facade {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	return &Facade{
		fetcher:  fetcher,
		store:    store,
		ttl:      ttl,
		lookback: DefaultLookback,
	}
}

// FetchSet retrieves history for every ticker, dropping individual
// failures. The failure list is returned alongside the successes so the
// caller can show a warning count instead of silently shrinking the table.
func (f *Facade) FetchSet(ctx context.Context, tickers []string) (*Snapshot, error) {
	snap := &Snapshot{
		Series:    make(map[string]*market.PriceSeries, len(tickers)),
		FetchedAt: time.Now(),
	}

	for _, ticker := range tickers {
		series, err := f.fetchOne(ctx, ticker)
		if err != nil {
			metrics.FetchFailures.WithLabelValues("prices").Inc()
			log.Warn().Err(err).Str("ticker", ticker).Msg("dropping instrument from batch")
			snap.Failed = append(snap.Failed, ticker)
			continue
		}
		snap.Series[ticker] = series
	}

	if len(snap.Series) == 0 {
		return nil, fmt.Errorf("no instruments could be fetched (%d requested)", len(tickers))
	}

	if len(snap.Failed) > 0 {
		log.Warn().Int("failed", len(snap.Failed)).Int("ok", len(snap.Series)).
			Msg("batch fetch completed with dropped instruments")
	}
	return snap, nil
}

// Fetch retrieves one ticker through the memoization cache, satisfying the
// same interface as the underlying client so the macro loader and backtest
// share the five-minute snapshot.
func (f *Facade) Fetch(ctx context.Context, ticker string, lookback time.Duration) (*market.PriceSeries, error) {
	if lookback <= f.lookback {
		return f.fetchOne(ctx, ticker)
	}
	// Longer-than-default lookbacks bypass the cache; backtests over long
	// horizons should not be served a three-year snapshot.
	return f.fetcher.Fetch(ctx, ticker, lookback)
}

func (f *Facade) fetchOne(ctx context.Context, ticker string) (*market.PriceSeries, error) {
	key := cache.Key("prices", ticker)

	if f.store != nil {
		if series, ok := f.store.GetSeries(ctx, key); ok {
			metrics.CacheHits.Inc()
			return series, nil
		}
		metrics.CacheMisses.Inc()
	}

	series, err := f.fetcher.Fetch(ctx, ticker, f.lookback)
	if err != nil {
		return nil, err
	}

	if f.store != nil {
		f.store.SetSeries(ctx, key, series, f.ttl)
	}
	return series, nil
}

// SetKey builds a deterministic cache key for an instrument set, used by
// callers that memoize whole snapshots.
func SetKey(tickers []string) string {
	sorted := make([]string, len(tickers))
	copy(sorted, tickers)
	sort.Strings(sorted)
	return cache.Key(append([]string{"set"}, sorted...)...)
}
