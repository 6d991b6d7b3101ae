package market

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Common trailing windows used across the scoring and signal pipeline.
const (
	MAShortWindow    = 20
	MAMediumWindow   = 50
	MALongWindow     = 200
	RangeWindow      = 252 // trailing sessions for 52-week extrema
	SixMonthSessions = 126
	OneMonthSessions = 21
)

// Bar is a single daily observation for one instrument.
type Bar struct {
	Date      time.Time `json:"date"`
	Close     float64   `json:"close"`
	Synthetic bool      `json:"synthetic,omitempty"` // fabricated pre-listing history, never realized returns
}

// PriceSeries holds the ordered daily close history for one instrument.
// Dates are strictly increasing with no duplicates; Validate enforces this.
type PriceSeries struct {
	Ticker string `json:"ticker"`
	Bars   []Bar  `json:"bars"`
}

// NewPriceSeries builds a validated series from bars, sorting by date first.
func NewPriceSeries(ticker string, bars []Bar) (*PriceSeries, error) {
	sorted := make([]Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	s := &PriceSeries{Ticker: ticker, Bars: sorted}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks the series invariants: strictly increasing dates, no
// duplicate dates, finite positive closes.
func (s *PriceSeries) Validate() error {
	for i, bar := range s.Bars {
		if math.IsNaN(bar.Close) || math.IsInf(bar.Close, 0) {
			return fmt.Errorf("series %s: non-finite close at %s", s.Ticker, bar.Date.Format("2006-01-02"))
		}
		if bar.Close <= 0 {
			return fmt.Errorf("series %s: non-positive close at %s", s.Ticker, bar.Date.Format("2006-01-02"))
		}
		if i > 0 && !s.Bars[i-1].Date.Before(bar.Date) {
			return fmt.Errorf("series %s: dates not strictly increasing at %s", s.Ticker, bar.Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Len returns the number of sessions in the series.
func (s *PriceSeries) Len() int {
	return len(s.Bars)
}

// Close returns the close at index i.
func (s *PriceSeries) Close(i int) float64 {
	return s.Bars[i].Close
}

// Last returns the most recent bar, or false on an empty series.
func (s *PriceSeries) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// MAAt computes the trailing simple moving average over window sessions
// ending at index i (inclusive). The second return is false when fewer than
// window sessions exist; callers must treat that as insufficient history,
// never as zero.
func (s *PriceSeries) MAAt(window, i int) (float64, bool) {
	if window <= 0 || i >= len(s.Bars) || i+1 < window {
		return 0, false
	}
	sum := 0.0
	for j := i - window + 1; j <= i; j++ {
		sum += s.Bars[j].Close
	}
	return sum / float64(window), true
}

// RangeAt returns the trailing high/low over window sessions ending at
// index i. A short series uses whatever history exists; an empty one
// returns false.
func (s *PriceSeries) RangeAt(window, i int) (high, low float64, ok bool) {
	if i >= len(s.Bars) || i < 0 {
		return 0, 0, false
	}
	start := i - window + 1
	if start < 0 {
		start = 0
	}
	high, low = s.Bars[start].Close, s.Bars[start].Close
	for j := start + 1; j <= i; j++ {
		c := s.Bars[j].Close
		if c > high {
			high = c
		}
		if c < low {
			low = c
		}
	}
	return high, low, true
}

// ReturnAt computes the simple return over lookback sessions ending at
// index i: close[i]/close[i-lookback] - 1. Returns 0 when the prerequisite
// history is missing or the base close is non-positive.
func (s *PriceSeries) ReturnAt(lookback, i int) float64 {
	if i >= len(s.Bars) || i-lookback < 0 {
		return 0
	}
	base := s.Bars[i-lookback].Close
	if base <= 0 {
		return 0
	}
	return s.Bars[i].Close/base - 1
}

// DailyReturns returns the day-over-day percent changes; the first session
// has no prior close and yields 0, mirroring a pct_change().fillna(0).
func (s *PriceSeries) DailyReturns() []float64 {
	rets := make([]float64, len(s.Bars))
	for i := 1; i < len(s.Bars); i++ {
		prev := s.Bars[i-1].Close
		if prev > 0 {
			rets[i] = s.Bars[i].Close/prev - 1
		}
	}
	return rets
}

// PctChangeTail returns up to n trailing daily percent changes ending at
// index i, used for the short-horizon volatility term.
func (s *PriceSeries) PctChangeTail(n, i int) []float64 {
	if i >= len(s.Bars) {
		return nil
	}
	start := i - n + 1
	if start < 1 {
		start = 1
	}
	out := make([]float64, 0, n)
	for j := start; j <= i; j++ {
		prev := s.Bars[j-1].Close
		if prev > 0 {
			out = append(out, s.Bars[j].Close/prev-1)
		}
	}
	return out
}

// IndexOn returns the index of the first bar on or after date, or false when
// every bar precedes it.
func (s *PriceSeries) IndexOn(date time.Time) (int, bool) {
	i := sort.Search(len(s.Bars), func(j int) bool {
		return !s.Bars[j].Date.Before(date)
	})
	if i == len(s.Bars) {
		return 0, false
	}
	return i, true
}

// Slice returns a sub-series from the first bar on or after from. The
// returned series shares backing storage with the receiver.
func (s *PriceSeries) Slice(from time.Time) *PriceSeries {
	i, ok := s.IndexOn(from)
	if !ok {
		return &PriceSeries{Ticker: s.Ticker}
	}
	return &PriceSeries{Ticker: s.Ticker, Bars: s.Bars[i:]}
}

// HasSynthetic reports whether any bar carries fabricated history.
func (s *PriceSeries) HasSynthetic() bool {
	for _, b := range s.Bars {
		if b.Synthetic {
			return true
		}
	}
	return false
}
