// Package macro assembles the auxiliary risk series the aggregator reads:
// VIX, OVX, and the 10y minus 3m yield-curve spread.
package macro

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jefflab/macroscope/internal/market"
	"github.com/jefflab/macroscope/internal/metrics"
)

// Neutral defaults fill dates before the OVX and yield series existed
// (~2007). The aggregator is not null-safe, so absence becomes a value
// that neither adds nor removes penalty. A simplification, not a
// correctness guarantee.
const (
	NeutralOVX    = 30.0
	NeutralSpread = 1.0
)

// Tickers for the four macro inputs on the data provider.
const (
	TickerVIX      = "^VIX"
	TickerOVX      = "^OVX"
	TickerYield10y = "^TNX"
	TickerYield3m  = "^IRX"
)

// Snapshot holds the macro inputs for a single date after backfill.
type Snapshot struct {
	Date        time.Time `json:"date"`
	VIX         float64   `json:"vix"`
	OVX         float64   `json:"ovx"`
	YieldSpread float64   `json:"yield_spread"`
	VIXAvg5     float64   `json:"vix_avg_5d"` // trailing 5-session VIX average for the spike override
}

// Series is the date-ordered macro history joined on the VIX calendar.
type Series struct {
	Snapshots []Snapshot
}

// Fetcher is the subset of the market data client the macro loader needs.
type Fetcher interface {
	Fetch(ctx context.Context, ticker string, lookback time.Duration) (*market.PriceSeries, error)
}

// Load fetches the four macro series over the lookback window and joins
// them per date. VIX is mandatory; OVX and yields backfill with neutral
// defaults where absent.
func Load(ctx context.Context, fetcher Fetcher, lookback time.Duration) (*Series, error) {
	vix, err := fetcher.Fetch(ctx, TickerVIX, lookback)
	if err != nil {
		metrics.FetchFailures.WithLabelValues("macro").Inc()
		return nil, fmt.Errorf("fetch VIX: %w", err)
	}

	ovx := fetchOptional(ctx, fetcher, TickerOVX, lookback)
	y10 := fetchOptional(ctx, fetcher, TickerYield10y, lookback)
	y3m := fetchOptional(ctx, fetcher, TickerYield3m, lookback)

	return Join(vix, ovx, y10, y3m), nil
}

func fetchOptional(ctx context.Context, fetcher Fetcher, ticker string, lookback time.Duration) *market.PriceSeries {
	series, err := fetcher.Fetch(ctx, ticker, lookback)
	if err != nil {
		metrics.FetchFailures.WithLabelValues("macro").Inc()
		log.Warn().Err(err).Str("ticker", ticker).Msg("macro series unavailable, using neutral backfill")
		return nil
	}
	return series
}

// Join aligns the macro inputs on the VIX calendar. For each VIX date the
// most recent prior observation of the other series is carried forward;
// dates with none use the neutral defaults.
func Join(vix, ovx, y10, y3m *market.PriceSeries) *Series {
	s := &Series{Snapshots: make([]Snapshot, 0, vix.Len())}

	for i, bar := range vix.Bars {
		snap := Snapshot{
			Date:        bar.Date,
			VIX:         bar.Close,
			OVX:         NeutralOVX,
			YieldSpread: NeutralSpread,
			VIXAvg5:     trailingVIXAvg(vix, i),
		}

		if v, ok := asOf(ovx, bar.Date); ok {
			snap.OVX = v
		}
		if v10, ok10 := asOf(y10, bar.Date); ok10 {
			if v3, ok3 := asOf(y3m, bar.Date); ok3 {
				snap.YieldSpread = v10 - v3
			}
		}

		s.Snapshots = append(s.Snapshots, snap)
	}
	return s
}

// asOf returns the last close at or before date.
func asOf(series *market.PriceSeries, date time.Time) (float64, bool) {
	if series == nil || series.Len() == 0 {
		return 0, false
	}
	i, ok := series.IndexOn(date)
	switch {
	case ok && series.Bars[i].Date.Equal(date):
		return series.Bars[i].Close, true
	case !ok:
		// every bar precedes date, take the last
		return series.Bars[series.Len()-1].Close, true
	case i > 0:
		return series.Bars[i-1].Close, true
	default:
		return 0, false
	}
}

func trailingVIXAvg(vix *market.PriceSeries, i int) float64 {
	start := i - 4
	if start < 0 {
		start = 0
	}
	sum, n := 0.0, 0
	for j := start; j <= i; j++ {
		sum += vix.Bars[j].Close
		n++
	}
	return sum / float64(n)
}

// At returns the snapshot for the given date, or the nearest prior one.
func (s *Series) At(date time.Time) (Snapshot, bool) {
	if len(s.Snapshots) == 0 {
		return Snapshot{}, false
	}
	// Snapshots follow the VIX calendar, ordered ascending.
	lo, hi := 0, len(s.Snapshots)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.Snapshots[mid].Date.After(date) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	if lo == 0 {
		return Snapshot{}, false
	}
	return s.Snapshots[lo-1], true
}
