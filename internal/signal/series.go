package signal

import (
	"github.com/jefflab/macroscope/internal/macro"
	"github.com/jefflab/macroscope/internal/market"
	"github.com/jefflab/macroscope/internal/regime"
)

// Daily pairs the signal computed on one session with the composite macro
// score behind it.
type Daily struct {
	Signal    Signal  `json:"signal"`
	Composite float64 `json:"composite"`
}

// BuildDaily evaluates the classifier for every session of a price series,
// pairing each date with its macro snapshot. Leveraged instruments use the
// 20-session reference MA, standard instruments the 50-session one.
//
// Each day is classified fresh from that day's inputs only; the series is
// safe to feed into the backtest simulator, which applies its own
// one-session point-in-time shift.
func BuildDaily(cfg Config, rcfg regime.Config, prices *market.PriceSeries, macros *macro.Series, leveraged bool) []Daily {
	refWindow := market.MAMediumWindow
	if leveraged {
		refWindow = market.MAShortWindow
	}

	out := make([]Daily, prices.Len())
	for i := 0; i < prices.Len(); i++ {
		bar := prices.Bars[i]
		closePx := bar.Close

		ma200, hasMA200 := prices.MAAt(market.MALongWindow, i)
		refMA, hasRefMA := prices.MAAt(refWindow, i)

		snap, hasSnap := macros.At(bar.Date)
		if !hasSnap {
			// No macro observation yet for this date: treat the macro
			// backdrop as neutral rather than dropping the session.
			snap = macro.Snapshot{Date: bar.Date, VIX: 20, OVX: macro.NeutralOVX, YieldSpread: macro.NeutralSpread, VIXAvg5: 20}
		}

		res := regime.Aggregate(rcfg, snap, regime.PriceContext{
			Close:          closePx,
			ReferenceMA:    refMA,
			HasReferenceMA: hasRefMA,
		})

		out[i] = Daily{
			Signal: Classify(cfg, Inputs{
				Close:     closePx,
				MA200:     ma200,
				HasMA200:  hasMA200,
				RefMA:     refMA,
				HasRefMA:  hasRefMA,
				Composite: res.Composite,
				VolSpike:  res.VolSpike,
			}),
			Composite: res.Composite,
		}
	}
	return out
}
