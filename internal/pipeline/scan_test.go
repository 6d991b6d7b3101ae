package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jefflab/macroscope/internal/config"
	"github.com/jefflab/macroscope/internal/macro"
	"github.com/jefflab/macroscope/internal/market"
	"github.com/jefflab/macroscope/internal/market/fetch"
	"github.com/jefflab/macroscope/internal/persistence"
)

// stubFetcher serves canned series keyed by ticker.
type stubFetcher struct {
	series map[string]*market.PriceSeries
}

func (f *stubFetcher) Fetch(_ context.Context, ticker string, _ time.Duration) (*market.PriceSeries, error) {
	s, ok := f.series[ticker]
	if !ok {
		return nil, fmt.Errorf("no data for %s", ticker)
	}
	return s, nil
}

func trendBars(ticker string, sessions int, start, step float64) *market.PriceSeries {
	day := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]market.Bar, sessions)
	for i := range bars {
		bars[i] = market.Bar{Date: day.AddDate(0, 0, i), Close: start + step*float64(i)}
	}
	return &market.PriceSeries{Ticker: ticker, Bars: bars}
}

func testUniverse() *market.Universe {
	return &market.Universe{
		SectorETFs: []market.Instrument{
			{Name: "Broad Market", Ticker: "SPY"},
			{Name: "Technology", Ticker: "XLK"},
			{Name: "Utilities", Ticker: "XLU", Defensive: true},
		},
		Individual: []market.Instrument{
			{Name: "Broad Market", Ticker: "SPY"},
		},
		CoreSectors: []market.Instrument{
			{Name: "Technology", Ticker: "XLK"},
			{Name: "Utilities", Ticker: "XLU", Defensive: true},
		},
	}
}

func testEngine(t *testing.T, fetcher *stubFetcher) *Engine {
	t.Helper()
	facade := fetch.NewFacade(fetcher, nil, time.Minute)
	return NewEngine(facade, testUniverse(), config.StandardPolicy())
}

func TestScanBuildsDashboard(t *testing.T) {
	fetcher := &stubFetcher{series: map[string]*market.PriceSeries{
		"SPY": trendBars("SPY", 300, 100, 0.2),
		"XLK": trendBars("XLK", 300, 100, 0.5),
		"XLU": trendBars("XLU", 300, 100, -0.05),
	}}
	engine := testEngine(t, fetcher)

	dash, err := engine.Scan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dash.Sectors) != 3 {
		t.Fatalf("expected 3 sector rows, got %d", len(dash.Sectors))
	}
	if dash.Sectors[2].Ticker != "XLU" {
		t.Errorf("expected the demoted faller ranked last, got %s", dash.Sectors[2].Ticker)
	}
	if dash.Sectors[0].Rank != 1 {
		t.Errorf("expected 1-based ranks, got %d", dash.Sectors[0].Rank)
	}
	if len(dash.CoreSectors) != 2 {
		t.Errorf("expected 2 core rows, got %d", len(dash.CoreSectors))
	}
	if len(dash.Individual) != 1 {
		t.Errorf("expected 1 watchlist row, got %d", len(dash.Individual))
	}
	if dash.WarningCount != 0 {
		t.Errorf("expected no warnings, got %d", dash.WarningCount)
	}
	if dash.Policy != "standard" {
		t.Errorf("expected policy name recorded, got %q", dash.Policy)
	}
	if dash.GeneratedAt.IsZero() {
		t.Error("expected a generation timestamp")
	}
}

func TestScanFetchFailureShrinksTables(t *testing.T) {
	fetcher := &stubFetcher{series: map[string]*market.PriceSeries{
		"SPY": trendBars("SPY", 300, 100, 0.2),
		"XLU": trendBars("XLU", 300, 100, -0.05),
	}}
	engine := testEngine(t, fetcher)

	dash, err := engine.Scan(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dash.Sectors) != 2 {
		t.Errorf("expected XLK dropped from sector board, got %d rows", len(dash.Sectors))
	}
	if len(dash.FailedTickers) != 1 || dash.FailedTickers[0] != "XLK" {
		t.Errorf("expected XLK reported failed, got %v", dash.FailedTickers)
	}
	if dash.WarningCount == 0 {
		t.Error("expected the failure counted as a warning")
	}
}

func TestScanAllFetchesFailedIsFatal(t *testing.T) {
	engine := testEngine(t, &stubFetcher{series: map[string]*market.PriceSeries{}})
	if _, err := engine.Scan(context.Background()); err == nil {
		t.Fatal("expected an error when no ticker could be fetched")
	}
}

// recordingRepo captures archive writes, serves canned reads, and can be
// told to fail.
type recordingRepo struct {
	upserts  map[string]int
	series   map[string]*market.PriceSeries
	lastDate map[string]time.Time
	coverage map[string]int64
	fail     bool
}

func (r *recordingRepo) UpsertBars(_ context.Context, ticker string, bars []market.Bar) error {
	if r.fail {
		return errors.New("archive down")
	}
	if r.upserts == nil {
		r.upserts = make(map[string]int)
	}
	r.upserts[ticker] += len(bars)
	return nil
}

func (r *recordingRepo) Series(_ context.Context, ticker string, _ persistence.TimeRange) (*market.PriceSeries, error) {
	if r.fail {
		return nil, errors.New("archive down")
	}
	return r.series[ticker], nil
}

func (r *recordingRepo) LastDate(_ context.Context, ticker string) (time.Time, bool, error) {
	if r.fail {
		return time.Time{}, false, errors.New("archive down")
	}
	last, ok := r.lastDate[ticker]
	return last, ok, nil
}

func (r *recordingRepo) Coverage(context.Context, persistence.TimeRange) (map[string]int64, error) {
	if r.fail {
		return nil, errors.New("archive down")
	}
	return r.coverage, nil
}

func TestScanArchivesFetchedBars(t *testing.T) {
	fetcher := &stubFetcher{series: map[string]*market.PriceSeries{
		"SPY": trendBars("SPY", 300, 100, 0.2),
		"XLK": trendBars("XLK", 300, 100, 0.5),
		"XLU": trendBars("XLU", 300, 100, -0.05),
	}}
	repo := &recordingRepo{}
	engine := testEngine(t, fetcher).WithArchive(repo)

	if _, err := engine.Scan(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.upserts["SPY"] != 300 {
		t.Errorf("expected 300 SPY bars archived, got %d", repo.upserts["SPY"])
	}
	if len(repo.upserts) != 3 {
		t.Errorf("expected all 3 tickers archived, got %v", repo.upserts)
	}
}

func TestScanArchiveWritesAreIncremental(t *testing.T) {
	fetcher := &stubFetcher{series: map[string]*market.PriceSeries{
		"SPY": trendBars("SPY", 300, 100, 0.2),
		"XLK": trendBars("XLK", 300, 100, 0.5),
		"XLU": trendBars("XLU", 300, 100, -0.05),
	}}
	repo := &recordingRepo{lastDate: map[string]time.Time{
		// Session index 289 of the canned series. The bar on that date is
		// rewritten because providers revise the most recent close.
		"SPY": time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 289),
	}}
	engine := testEngine(t, fetcher).WithArchive(repo)

	if _, err := engine.Scan(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.upserts["SPY"] != 11 {
		t.Errorf("expected only the 11 bars from the last archived session on, got %d", repo.upserts["SPY"])
	}
	if repo.upserts["XLK"] != 300 {
		t.Errorf("expected the full history for an unarchived ticker, got %d", repo.upserts["XLK"])
	}
}

func TestArchiveCoverage(t *testing.T) {
	window := persistence.TimeRange{
		From: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	engine := testEngine(t, &stubFetcher{})
	if _, err := engine.ArchiveCoverage(context.Background(), window); err == nil {
		t.Fatal("expected an error when no archive is configured")
	}

	repo := &recordingRepo{coverage: map[string]int64{"SPY": 252, "XLK": 300}}
	engine = engine.WithArchive(repo)
	coverage, err := engine.ArchiveCoverage(context.Background(), window)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if coverage["SPY"] != 252 || coverage["XLK"] != 300 {
		t.Errorf("unexpected coverage: %v", coverage)
	}
}

func TestScanSurvivesArchiveFailure(t *testing.T) {
	fetcher := &stubFetcher{series: map[string]*market.PriceSeries{
		"SPY": trendBars("SPY", 300, 100, 0.2),
		"XLK": trendBars("XLK", 300, 100, 0.5),
		"XLU": trendBars("XLU", 300, 100, -0.05),
	}}
	engine := testEngine(t, fetcher).WithArchive(&recordingRepo{fail: true})

	dash, err := engine.Scan(context.Background())
	if err != nil {
		t.Fatalf("archive failure must not fail the scan: %v", err)
	}
	if len(dash.Sectors) != 3 {
		t.Errorf("expected the full board despite archive failure, got %d rows", len(dash.Sectors))
	}
}

func TestSignalSeriesJoinsPricesAndSignals(t *testing.T) {
	fetcher := &stubFetcher{series: map[string]*market.PriceSeries{
		"SPY":           trendBars("SPY", 300, 100, 0.2),
		"XLK":           trendBars("XLK", 300, 100, 0.5),
		"XLU":           trendBars("XLU", 300, 100, -0.05),
		macro.TickerVIX: trendBars(macro.TickerVIX, 300, 15, 0),
	}}
	engine := testEngine(t, fetcher)

	points, err := engine.SignalSeries(context.Background(), "SPY")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(points) != 300 {
		t.Fatalf("expected one point per session, got %d", len(points))
	}
	last := points[len(points)-1]
	if last.Signal != "buy" {
		t.Errorf("expected a calm uptrend to end on buy, got %s", last.Signal)
	}
}

func TestSignalSeriesRequiresVIX(t *testing.T) {
	fetcher := &stubFetcher{series: map[string]*market.PriceSeries{
		"SPY": trendBars("SPY", 300, 100, 0.2),
	}}
	engine := testEngine(t, fetcher)

	if _, err := engine.SignalSeries(context.Background(), "SPY"); err == nil {
		t.Fatal("expected an error without the volatility index series")
	}
}
