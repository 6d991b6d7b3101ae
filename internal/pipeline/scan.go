// Package pipeline wires the engine stages together, from data fetch
// through scoring, classification, simulation, and validation. One
// dashboard render or backtest run
// executes the stages sequentially; the only shared state is the fetch
// facade's memoization cache.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jefflab/macroscope/internal/config"
	"github.com/jefflab/macroscope/internal/macro"
	"github.com/jefflab/macroscope/internal/market"
	"github.com/jefflab/macroscope/internal/market/fetch"
	"github.com/jefflab/macroscope/internal/metrics"
	"github.com/jefflab/macroscope/internal/persistence"
	"github.com/jefflab/macroscope/internal/report"
	"github.com/jefflab/macroscope/internal/score"
	"github.com/jefflab/macroscope/internal/signal"
)

// Engine runs the scoring pipeline for a universe under one policy. It is
// created per process and safe to reuse; each call builds its results
// fresh.
type Engine struct {
	facade   *fetch.Facade
	universe *market.Universe
	policy   config.Policy
	archive  persistence.PriceRepo
	clock    func() time.Time
}

// NewEngine assembles a pipeline engine.
func NewEngine(facade *fetch.Facade, universe *market.Universe, policy config.Policy) *Engine {
	return &Engine{
		facade:   facade,
		universe: universe,
		policy:   policy,
		clock:    time.Now,
	}
}

// WithArchive enables write-through of fetched bars to the price archive.
func (e *Engine) WithArchive(repo persistence.PriceRepo) *Engine {
	e.archive = repo
	return e
}

// Policy returns the active policy.
func (e *Engine) Policy() config.Policy {
	return e.policy
}

// Scan fetches the universe, scores every group, and assembles the
// dashboard payload. Individual fetch or score failures shrink the tables
// and raise the warning count; only a total fetch failure is fatal.
func (e *Engine) Scan(ctx context.Context) (*report.Dashboard, error) {
	start := e.clock()
	defer func() {
		metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}()

	snap, err := e.facade.FetchSet(ctx, e.universe.AllTickers())
	if err != nil {
		return nil, fmt.Errorf("market data unavailable: %w", err)
	}

	e.backfillLeveraged(snap.Series)
	e.archiveSnapshot(ctx, snap.Series)

	sectors, sectorFails := score.Batch(e.policy.Scoring, e.universe.SectorETFs, snap.Series)
	core, coreFails := score.CoreBatch(e.policy.Scoring, e.universe.CoreSectors, snap.Series)
	individual := report.IndividualMetrics(e.universe.Individual, snap.Series, start)

	if len(sectors) == 0 {
		return nil, fmt.Errorf("no sector could be scored (%d fetch failures, %d score failures)",
			len(snap.Failed), len(sectorFails))
	}

	avgLong, avgShort := report.Averages(sectors)

	dash := &report.Dashboard{
		GeneratedAt:   start,
		Policy:        e.policy.Name,
		Sectors:       sectors,
		CoreSectors:   core,
		Individual:    individual,
		AvgLongScore:  avgLong,
		AvgShortScore: avgShort,
		State:         report.MarketStateOf(avgLong, avgShort),
		SafeAssets:    report.SafeAssetCheck(sectors, e.universe.SectorETFs),
		FailedTickers: snap.Failed,
		WarningCount:  len(snap.Failed) + len(sectorFails) + len(coreFails),
	}

	log.Info().
		Int("sectors", len(sectors)).
		Int("warnings", dash.WarningCount).
		Str("state", string(dash.State)).
		Dur("elapsed", time.Since(start)).
		Msg("dashboard scan complete")

	return dash, nil
}

// SignalSeries builds the per-date (price, signal, composite) series for
// one ticker, for the chart renderer.
func (e *Engine) SignalSeries(ctx context.Context, ticker string) ([]report.SignalPoint, error) {
	prices, err := e.facade.Fetch(ctx, ticker, fetch.DefaultLookback)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ticker, err)
	}

	macros, err := macro.Load(ctx, e.facade, fetch.DefaultLookback)
	if err != nil {
		return nil, fmt.Errorf("load macro series: %w", err)
	}

	daily := signal.BuildDaily(e.policy.Classifier, e.policy.Macro, prices, macros, e.isLeveraged(ticker))
	return report.SignalSeries(prices, daily), nil
}

// backfillLeveraged splices synthetic pre-listing history onto leveraged
// instruments whose underlier was fetched.
func (e *Engine) backfillLeveraged(series map[string]*market.PriceSeries) {
	for _, inst := range e.universe.Individual {
		if !inst.Leveraged {
			continue
		}
		s, ok := series[inst.Ticker]
		if !ok {
			continue
		}
		under := series[inst.Underlier]
		merged, err := market.BackfillLeveraged(inst, s, under)
		if err != nil {
			log.Warn().Err(err).Str("ticker", inst.Ticker).Msg("synthetic backfill skipped")
			continue
		}
		if merged.HasSynthetic() {
			log.Debug().Str("ticker", inst.Ticker).Str("underlier", inst.Underlier).
				Msg("spliced synthetic pre-listing history")
		}
		series[inst.Ticker] = merged
	}
}

// archiveSnapshot writes fetched bars through to the archive. Only bars
// newer than the last archived session are written; the last archived bar
// is rewritten too, since providers revise the most recent close. Archive
// failures never fail a scan.
func (e *Engine) archiveSnapshot(ctx context.Context, series map[string]*market.PriceSeries) {
	if e.archive == nil {
		return
	}
	for ticker, s := range series {
		bars := s.Bars
		if last, ok, err := e.archive.LastDate(ctx, ticker); err == nil && ok {
			if i, found := s.IndexOn(last); found {
				bars = s.Bars[i:]
			}
		}
		if err := e.archive.UpsertBars(ctx, ticker, bars); err != nil {
			log.Warn().Err(err).Str("ticker", ticker).Msg("price archive write failed")
		}
	}
}

// ArchiveCoverage reports archived row counts per ticker over the window.
func (e *Engine) ArchiveCoverage(ctx context.Context, tr persistence.TimeRange) (map[string]int64, error) {
	if e.archive == nil {
		return nil, fmt.Errorf("price archive not configured")
	}
	return e.archive.Coverage(ctx, tr)
}

func (e *Engine) isLeveraged(ticker string) bool {
	for _, group := range [][]market.Instrument{e.universe.SectorETFs, e.universe.Individual, e.universe.CoreSectors} {
		for _, inst := range group {
			if inst.Ticker == ticker {
				return inst.Leveraged
			}
		}
	}
	return false
}
