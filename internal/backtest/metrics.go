package backtest

import (
	"math"

	"github.com/montanaflynn/stats"
)

// Summarize reduces an equity curve to the headline figures the report
// layer renders: final returns, maximum drawdowns, and CAGR.
func Summarize(curve *EquityCurve) Summary {
	s := Summary{Ticker: curve.Ticker}
	if len(curve.Days) == 0 {
		return s
	}

	s.StartDate = curve.Start()
	s.EndDate = curve.End()
	s.TotalDays = len(curve.Days)

	last := curve.Days[len(curve.Days)-1]
	s.StrategyReturnPct = (last.Equity - 1) * 100
	s.BAHReturnPct = (last.BAHEquity - 1) * 100

	dd := make([]float64, 0, len(curve.Days))
	bahDD := make([]float64, 0, len(curve.Days))
	for _, day := range curve.Days {
		dd = append(dd, day.Drawdown)
		bahDD = append(bahDD, day.BAHDrawdown)
		if day.Throttled {
			s.ThrottledDays++
		}
		if day.Synthetic {
			s.HasSynthetic = true
		}
	}
	s.StrategyMDDPct = maxDrawdownPct(dd)
	s.BAHMDDPct = maxDrawdownPct(bahDD)
	s.CAGRPct = cagrPct(last.Equity, s.TotalDays)

	return s
}

// maxDrawdownPct is the deepest (most negative) drawdown as a percent.
func maxDrawdownPct(drawdowns []float64) float64 {
	if len(drawdowns) == 0 {
		return 0
	}
	min, err := stats.Min(stats.Float64Data(drawdowns))
	if err != nil {
		return 0
	}
	return min * 100
}

// cagrPct annualizes the final equity multiple over 252 sessions a year.
func cagrPct(finalEquity float64, days int) float64 {
	if days <= 0 || finalEquity <= 0 {
		return 0
	}
	years := float64(days) / 252.0
	if years <= 0 {
		return 0
	}
	return (math.Pow(finalEquity, 1/years) - 1) * 100
}
