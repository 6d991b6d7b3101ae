package backtest

import (
	"fmt"

	"github.com/jefflab/macroscope/internal/market"
	"github.com/jefflab/macroscope/internal/metrics"
	"github.com/jefflab/macroscope/internal/signal"
)

// stepResult is the outcome of advancing the accumulator one day.
type stepResult struct {
	state     State
	applied   float64
	throttled bool
}

// advanceOneDay is the single documented step function for the
// order-dependent trailing-stop math: compute tentative equity at the full
// target exposure, update the running peak from that tentative value, test
// drawdown against the peak, then recompute actual equity at throttled
// exposure if triggered.
func advanceOneDay(state State, ret, targetExposure float64, cfg Config) stepResult {
	tentative := state.CumEquity * (1 + ret*targetExposure)

	peak := state.RunningPeak
	if tentative > peak {
		peak = tentative
	}

	drawdown := tentative/peak - 1
	applied := targetExposure
	equity := tentative
	throttled := false

	if drawdown < cfg.TrailingStopDD {
		applied = targetExposure * cfg.TrailingStopMultiplier
		equity = state.CumEquity * (1 + ret*applied)
		throttled = true
	}

	return stepResult{
		state: State{
			CumEquity:       equity,
			RunningPeak:     peak,
			CurrentExposure: applied,
		},
		applied:   applied,
		throttled: throttled,
	}
}

func clamp(ret, min, max float64) float64 {
	if ret < min {
		return min
	}
	if ret > max {
		return max
	}
	return ret
}

// Simulate replays signals against a price series. signals[i] is the
// signal computed from data through session i; the simulator shifts it
// forward by exactly one session, so the exposure applied on day t derives
// only from information available through day t-1. The first day trades at
// zero exposure.
//
// Simulate is a pure function of its inputs: the same (signals, prices,
// config) triple yields identical output on every call.
func Simulate(cfg Config, prices *market.PriceSeries, signals []signal.Daily) (*EquityCurve, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid backtest config: %w", err)
	}
	if prices == nil || prices.Len() == 0 {
		return nil, fmt.Errorf("empty price series")
	}
	if len(signals) != prices.Len() {
		return nil, fmt.Errorf("signal series length %d does not match price series length %d", len(signals), prices.Len())
	}

	rawReturns := prices.DailyReturns()
	curve := &EquityCurve{
		Ticker: prices.Ticker,
		Days:   make([]Day, 0, prices.Len()),
	}

	state := NewState()
	bahEquity, bahPeak := 1.0, 1.0
	prevTarget := 0.0

	for i := 0; i < prices.Len(); i++ {
		ret := clamp(rawReturns[i], cfg.ClampMin, cfg.ClampMax)

		// Point-in-time shift: today's exposure comes from yesterday's
		// signal.
		target := 0.0
		if i > 0 {
			target = cfg.ExposureFor(signals[i-1].Signal)
		}

		step := advanceOneDay(state, ret, target, cfg)
		state = step.state

		// Transaction cost, charged once when the target allocation
		// changes from the prior day.
		if target != prevTarget && cfg.CostBps > 0 {
			state.CumEquity *= 1 - cfg.CostBps/10000
		}
		prevTarget = target

		bahEquity *= 1 + ret
		if bahEquity > bahPeak {
			bahPeak = bahEquity
		}

		bar := prices.Bars[i]
		curve.Days = append(curve.Days, Day{
			Date:            bar.Date,
			Close:           bar.Close,
			Return:          ret,
			Signal:          signals[i].Signal,
			SignalName:      signals[i].Signal.String(),
			Composite:       signals[i].Composite,
			TargetExposure:  target,
			AppliedExposure: step.applied,
			Throttled:       step.throttled,
			Equity:          state.CumEquity,
			BAHEquity:       bahEquity,
			Drawdown:        state.CumEquity/state.RunningPeak - 1,
			BAHDrawdown:     bahEquity/bahPeak - 1,
			Synthetic:       bar.Synthetic,
		})
	}

	metrics.BacktestDays.Add(float64(prices.Len()))
	return curve, nil
}
