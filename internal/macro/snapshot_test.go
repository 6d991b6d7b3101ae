package macro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jefflab/macroscope/internal/market"
)

func macroDay(n int) time.Time {
	return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func seriesOf(ticker string, closes map[int]float64) *market.PriceSeries {
	bars := make([]market.Bar, 0, len(closes))
	for n, c := range closes {
		bars = append(bars, market.Bar{Date: macroDay(n), Close: c})
	}
	s, err := market.NewPriceSeries(ticker, bars)
	if err != nil {
		panic(err)
	}
	return s
}

func TestJoinNeutralBackfill(t *testing.T) {
	vix := seriesOf(TickerVIX, map[int]float64{0: 18, 1: 19})

	joined := Join(vix, nil, nil, nil)
	require.Len(t, joined.Snapshots, 2)

	for _, snap := range joined.Snapshots {
		assert.Equal(t, NeutralOVX, snap.OVX)
		assert.Equal(t, NeutralSpread, snap.YieldSpread)
	}
}

func TestJoinCarriesForwardPriorObservation(t *testing.T) {
	vix := seriesOf(TickerVIX, map[int]float64{0: 18, 1: 19, 2: 20})
	ovx := seriesOf(TickerOVX, map[int]float64{0: 32}) // stale after day 0

	joined := Join(vix, ovx, nil, nil)
	require.Len(t, joined.Snapshots, 3)
	assert.Equal(t, 32.0, joined.Snapshots[2].OVX, "last OVX observation carries forward")
}

func TestJoinYieldSpreadNeedsBothLegs(t *testing.T) {
	vix := seriesOf(TickerVIX, map[int]float64{0: 18})
	y10 := seriesOf(TickerYield10y, map[int]float64{0: 4.2})

	joined := Join(vix, nil, y10, nil)
	assert.Equal(t, NeutralSpread, joined.Snapshots[0].YieldSpread,
		"a lone 10y leg must not produce a spread")

	y3m := seriesOf(TickerYield3m, map[int]float64{0: 5.3})
	joined = Join(vix, nil, y10, y3m)
	assert.InDelta(t, -1.1, joined.Snapshots[0].YieldSpread, 1e-9)
}

func TestTrailingVIXAverage(t *testing.T) {
	vix := seriesOf(TickerVIX, map[int]float64{0: 10, 1: 20, 2: 30})

	joined := Join(vix, nil, nil, nil)
	assert.InDelta(t, 10.0, joined.Snapshots[0].VIXAvg5, 1e-9)
	assert.InDelta(t, 20.0, joined.Snapshots[2].VIXAvg5, 1e-9, "short history averages what exists")
}

func TestSeriesAt(t *testing.T) {
	vix := seriesOf(TickerVIX, map[int]float64{0: 18, 2: 22})
	joined := Join(vix, nil, nil, nil)

	snap, ok := joined.At(macroDay(1))
	require.True(t, ok, "a date between observations resolves to the prior one")
	assert.Equal(t, 18.0, snap.VIX)

	snap, ok = joined.At(macroDay(5))
	require.True(t, ok)
	assert.Equal(t, 22.0, snap.VIX)

	_, ok = joined.At(macroDay(-1))
	assert.False(t, ok, "no snapshot exists before the first observation")
}
