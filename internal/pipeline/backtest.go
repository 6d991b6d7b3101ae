package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jefflab/macroscope/internal/backtest"
	"github.com/jefflab/macroscope/internal/macro"
	"github.com/jefflab/macroscope/internal/market"
	"github.com/jefflab/macroscope/internal/persistence"
	"github.com/jefflab/macroscope/internal/signal"
)

// warmupDays is the extra calendar history fetched ahead of the requested
// start so the 200-day average and 52-week range are defined on day one.
const warmupDays = 600

// BacktestRequest names one simulation run.
type BacktestRequest struct {
	Ticker string
	From   time.Time
}

// BacktestResult bundles the simulated curve with its summary and crisis
// validation, ready for the writer or the API encoder.
type BacktestResult struct {
	Curve   *backtest.EquityCurve   `json:"-"`
	Summary backtest.Summary        `json:"summary"`
	Crises  []backtest.CrisisReport `json:"crises"`
	Policy  string                  `json:"policy"`
}

// Backtest simulates the shifted-signal strategy on one ticker from the
// requested start date. Signals are built over the full fetched history so
// the first simulated day already sees warmed-up averages; the simulation
// itself runs only on the requested window.
func (e *Engine) Backtest(ctx context.Context, req BacktestRequest) (*BacktestResult, error) {
	if req.Ticker == "" {
		return nil, fmt.Errorf("backtest: ticker is required")
	}
	if req.From.IsZero() {
		req.From = e.clock().AddDate(-2, 0, 0)
	}

	lookback := e.clock().Sub(req.From) + warmupDays*24*time.Hour

	offline := false
	prices, err := e.facade.Fetch(ctx, req.Ticker, lookback)
	if err != nil {
		prices, err = e.archivedSeries(ctx, req.Ticker, lookback, err)
		if err != nil {
			return nil, err
		}
		offline = true
	}
	if err := prices.Validate(); err != nil {
		return nil, fmt.Errorf("series %s: %w", req.Ticker, err)
	}

	leveraged := e.isLeveraged(req.Ticker)
	if leveraged && !offline {
		prices = e.spliceUnderlier(ctx, req.Ticker, prices, lookback)
	}

	macros, err := macro.Load(ctx, e.facade, lookback)
	if err != nil {
		if !offline {
			return nil, fmt.Errorf("load macro series: %w", err)
		}
		// An archive replay already lost the provider; classify against
		// a neutral macro backdrop rather than failing the run.
		log.Warn().Err(err).Msg("macro series unavailable, replaying with a neutral backdrop")
		macros = &macro.Series{}
	}

	daily := signal.BuildDaily(e.policy.Classifier, e.policy.Macro, prices, macros, leveraged)

	start, ok := prices.IndexOn(req.From)
	if !ok {
		return nil, fmt.Errorf("no sessions on or after %s for %s", req.From.Format("2006-01-02"), req.Ticker)
	}
	window := &market.PriceSeries{Ticker: prices.Ticker, Bars: prices.Bars[start:]}

	curve, err := backtest.Simulate(e.policy.Backtest, window, daily[start:])
	if err != nil {
		return nil, fmt.Errorf("simulate %s: %w", req.Ticker, err)
	}

	result := &BacktestResult{
		Curve:   curve,
		Summary: backtest.Summarize(curve),
		Crises:  backtest.ValidateCrises(curve, backtest.DefaultCrisisWindows()),
		Policy:  e.policy.Name,
	}

	log.Info().
		Str("ticker", req.Ticker).
		Int("days", result.Summary.TotalDays).
		Float64("strategy_return_pct", result.Summary.StrategyReturnPct).
		Float64("bah_return_pct", result.Summary.BAHReturnPct).
		Msg("backtest complete")

	return result, nil
}

// archivedSeries replays bars from the price archive when the provider is
// unreachable, so an offline machine can still backtest what past scans
// stored. fetchErr is the provider failure being recovered from.
func (e *Engine) archivedSeries(ctx context.Context, ticker string, lookback time.Duration, fetchErr error) (*market.PriceSeries, error) {
	if e.archive == nil {
		return nil, fmt.Errorf("fetch %s: %w", ticker, fetchErr)
	}
	now := e.clock()
	series, err := e.archive.Series(ctx, ticker, persistence.TimeRange{From: now.Add(-lookback), To: now})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w (archive also failed: %v)", ticker, fetchErr, err)
	}
	if series == nil || series.Len() == 0 {
		return nil, fmt.Errorf("fetch %s: %w (nothing archived)", ticker, fetchErr)
	}
	log.Warn().Err(fetchErr).Str("ticker", ticker).Int("bars", series.Len()).
		Msg("provider unavailable, replaying archived bars")
	return series, nil
}

// spliceUnderlier extends a leveraged series with synthetic pre-listing
// history when the universe knows its underlier. Failure degrades to the
// real listed history.
func (e *Engine) spliceUnderlier(ctx context.Context, ticker string, prices *market.PriceSeries, lookback time.Duration) *market.PriceSeries {
	var inst market.Instrument
	found := false
	for _, group := range [][]market.Instrument{e.universe.Individual, e.universe.SectorETFs} {
		for _, cand := range group {
			if cand.Ticker == ticker {
				inst, found = cand, true
				break
			}
		}
	}
	if !found || inst.Underlier == "" {
		return prices
	}

	under, err := e.facade.Fetch(ctx, inst.Underlier, lookback)
	if err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Str("underlier", inst.Underlier).
			Msg("underlier fetch failed, using listed history only")
		return prices
	}
	merged, err := market.BackfillLeveraged(inst, prices, under)
	if err != nil {
		log.Warn().Err(err).Str("ticker", ticker).Msg("synthetic backfill skipped")
		return prices
	}
	return merged
}
