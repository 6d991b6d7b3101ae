// Package report shapes engine output into the tables and series the
// dashboard layer renders. It holds no state across invocations.
package report

import (
	"time"

	"github.com/jefflab/macroscope/internal/market"
	"github.com/jefflab/macroscope/internal/score"
	"github.com/jefflab/macroscope/internal/signal"
)

// MarketState is the headline banner derived from average sector scores.
type MarketState string

const (
	StateBuy   MarketState = "buy"   // both average scores positive
	StateWatch MarketState = "watch" // mixed
	StateFlee  MarketState = "flee"  // both average scores negative
)

// Dashboard is the full payload for one page render.
type Dashboard struct {
	GeneratedAt   time.Time          `json:"generated_at"`
	Policy        string             `json:"policy"`
	Sectors       []score.Record     `json:"sectors"`
	CoreSectors   []score.CoreRecord `json:"core_sectors"`
	Individual    []IndividualRow    `json:"individual"`
	AvgLongScore  float64            `json:"avg_long_score"`
	AvgShortScore float64            `json:"avg_short_score"`
	State         MarketState        `json:"state"`
	SafeAssets    SafeAssetAlert     `json:"safe_assets"`
	FailedTickers []string           `json:"failed_tickers,omitempty"`
	WarningCount  int                `json:"warning_count"`
}

// IndividualRow is one watchlist entry: price versus its reference levels,
// each as a percent. Nil means the reference is unavailable (insufficient
// history), which renders as a blank, not a zero.
type IndividualRow struct {
	Name       string   `json:"name"`
	Ticker     string   `json:"ticker"`
	Price      float64  `json:"price"`
	VsYTDStart *float64 `json:"vs_ytd_start,omitempty"`
	Vs52wHigh  *float64 `json:"vs_52w_high,omitempty"`
	VsMA200    *float64 `json:"vs_ma200,omitempty"`
	VsPrevDay  *float64 `json:"vs_prev_day,omitempty"`
	Vs52wLow   *float64 `json:"vs_52w_low,omitempty"`
	Synthetic  bool     `json:"synthetic,omitempty"`
}

// SafeAssetAlert flags crowding into defensive assets among the top-ranked
// sectors: smart money fleeing to safety is an early warning in its own
// right.
type SafeAssetAlert struct {
	Count    int      `json:"count"`              // defensive instruments in the top 5 ranks
	Level    string   `json:"level"`              // "none", "caution" (1), "alert" (2+)
	Crowding []string `json:"crowding,omitempty"` // names of the defensive entries
}

// SignalPoint is one entry of the per-date (price, signal, composite)
// series consumed by the chart and crisis-table renderer.
type SignalPoint struct {
	Date      time.Time `json:"date"`
	Price     float64   `json:"price"`
	Signal    string    `json:"signal"`
	Composite float64   `json:"composite"`
	Synthetic bool      `json:"synthetic,omitempty"`
}

// MarketStateOf derives the banner from the sector averages.
func MarketStateOf(avgLong, avgShort float64) MarketState {
	switch {
	case avgLong > 0 && avgShort > 0:
		return StateBuy
	case avgLong < 0 && avgShort < 0:
		return StateFlee
	default:
		return StateWatch
	}
}

// Averages computes the mean long and short score across sector records.
func Averages(records []score.Record) (avgLong, avgShort float64) {
	if len(records) == 0 {
		return 0, 0
	}
	for _, r := range records {
		avgLong += r.LongScore
		avgShort += r.ShortScore
	}
	n := float64(len(records))
	return avgLong / n, avgShort / n
}

// SafeAssetCheck counts defensive instruments among the top five ranked
// sectors. Two or more is an alert, exactly one a caution.
func SafeAssetCheck(records []score.Record, instruments []market.Instrument) SafeAssetAlert {
	defensive := make(map[string]bool, len(instruments))
	for _, inst := range instruments {
		if inst.Defensive {
			defensive[inst.Ticker] = true
		}
	}

	alert := SafeAssetAlert{Level: "none"}
	for _, r := range records {
		if r.Rank > 5 {
			break // records are rank-ordered
		}
		if defensive[r.Ticker] {
			alert.Count++
			alert.Crowding = append(alert.Crowding, r.Name)
		}
	}

	switch {
	case alert.Count >= 2:
		alert.Level = "alert"
	case alert.Count == 1:
		alert.Level = "caution"
	}
	return alert
}

// IndividualMetrics builds the watchlist table: price versus YTD start,
// 52-week extremes, MA200, and the prior close.
func IndividualMetrics(instruments []market.Instrument, series map[string]*market.PriceSeries, now time.Time) []IndividualRow {
	rows := make([]IndividualRow, 0, len(instruments))

	for _, inst := range instruments {
		s, ok := series[inst.Ticker]
		if !ok || s.Len() == 0 {
			continue
		}
		i := s.Len() - 1
		current := s.Close(i)

		row := IndividualRow{
			Name:      inst.Name,
			Ticker:    inst.Ticker,
			Price:     current,
			Synthetic: s.HasSynthetic(),
		}

		if i > 0 {
			row.VsPrevDay = pctVs(current, s.Close(i-1))
		}
		if high, low, ok := s.RangeAt(market.RangeWindow, i); ok {
			row.Vs52wHigh = pctVs(current, high)
			row.Vs52wLow = pctVs(current, low)
		}
		if ma200, ok := s.MAAt(market.MALongWindow, i); ok {
			row.VsMA200 = pctVs(current, ma200)
		}
		if ytd, ok := ytdStart(s, now); ok {
			row.VsYTDStart = pctVs(current, ytd)
		}

		rows = append(rows, row)
	}
	return rows
}

// ytdStart finds the first close of the current calendar year.
func ytdStart(s *market.PriceSeries, now time.Time) (float64, bool) {
	yearStart := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	i, ok := s.IndexOn(yearStart)
	if !ok {
		return 0, false
	}
	return s.Close(i), true
}

func pctVs(current, base float64) *float64 {
	if base <= 0 {
		return nil
	}
	v := (current/base - 1) * 100
	return &v
}

// SignalSeries joins a price series with its daily signals for the chart
// renderer.
func SignalSeries(prices *market.PriceSeries, daily []signal.Daily) []SignalPoint {
	n := prices.Len()
	if len(daily) < n {
		n = len(daily)
	}
	points := make([]SignalPoint, n)
	for i := 0; i < n; i++ {
		points[i] = SignalPoint{
			Date:      prices.Bars[i].Date,
			Price:     prices.Bars[i].Close,
			Signal:    daily[i].Signal.String(),
			Composite: daily[i].Composite,
			Synthetic: prices.Bars[i].Synthetic,
		}
	}
	return points
}
