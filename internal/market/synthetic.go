package market

import (
	"fmt"
)

// BackfillLeveraged extends a leveraged instrument's history before its
// listing date by compounding the underlier's daily returns at the leverage
// factor. Every fabricated bar is tagged Synthetic so downstream reports
// can label it; it must never be presented as realized return.
//
// The splice anchors on the instrument's first real close: synthetic bars
// are generated backward from it over the underlier sessions that precede
// the listing date.
func BackfillLeveraged(inst Instrument, series, underlier *PriceSeries) (*PriceSeries, error) {
	if !inst.Leveraged {
		return series, nil
	}
	if series == nil || series.Len() == 0 {
		return nil, fmt.Errorf("backfill %s: no real history to anchor on", inst.Ticker)
	}
	if underlier == nil || underlier.Len() == 0 {
		return series, nil
	}

	listing := series.Bars[0].Date
	cut, ok := underlier.IndexOn(listing)
	if !ok || cut == 0 {
		return series, nil // underlier history starts at or after the listing, nothing to fabricate
	}

	underRets := underlier.DailyReturns()

	// Walk backward from the anchor close, dividing out the leveraged
	// return for each pre-listing underlier session.
	synth := make([]Bar, cut)
	price := series.Bars[0].Close
	for i := cut - 1; i >= 0; i-- {
		levRet := underRets[i+1] * inst.Leverage
		if levRet <= -1 {
			levRet = -0.99 // a -100% leveraged day would zero the fabricated path
		}
		price = price / (1 + levRet)
		synth[i] = Bar{Date: underlier.Bars[i].Date, Close: price, Synthetic: true}
	}

	merged := make([]Bar, 0, len(synth)+series.Len())
	merged = append(merged, synth...)
	merged = append(merged, series.Bars...)

	out, err := NewPriceSeries(inst.Ticker, merged)
	if err != nil {
		return nil, fmt.Errorf("backfill %s: %w", inst.Ticker, err)
	}
	return out, nil
}
