// Package persistence defines the storage contracts for the price
// archive. Fetched bars are written through so later runs can replay a
// backtest offline or audit what a past scan actually saw.
package persistence

import (
	"context"
	"time"

	"github.com/jefflab/macroscope/internal/market"
)

// TimeRange bounds an archive query, inclusive on both ends.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// PriceRepo stores and retrieves daily bars keyed by (ticker, date).
// Synthetic bars are stored with their flag so replays carry the same
// disclaimer the live path does.
type PriceRepo interface {
	// UpsertBars writes a batch of bars, replacing rows on conflict.
	UpsertBars(ctx context.Context, ticker string, bars []market.Bar) error

	// Series reads the archived bars for one ticker within the range,
	// ordered by date ascending. An empty result is not an error.
	Series(ctx context.Context, ticker string, tr TimeRange) (*market.PriceSeries, error)

	// LastDate returns the most recent archived session for a ticker,
	// and false when nothing is archived.
	LastDate(ctx context.Context, ticker string) (time.Time, bool, error)

	// Coverage reports the archived row count per ticker in the range.
	Coverage(ctx context.Context, tr TimeRange) (map[string]int64, error)
}
