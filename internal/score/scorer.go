// Package score implements the multi-factor momentum scorer: a long-horizon
// trend score, a short-horizon momentum score, and the rank ordering the
// dashboard tables are sorted by.
package score

import (
	"fmt"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/jefflab/macroscope/internal/market"
	"github.com/jefflab/macroscope/internal/metrics"
)

// Weights parameterizes the momentum scorer. Exposed as configuration so
// tuning iterations become named presets instead of code edits.
type Weights struct {
	MA200Dist float64 `yaml:"ma200_dist"` // long: distance above the 200-session MA
	Range52w  float64 `yaml:"range_52w"`  // long: position within the trailing 52-week range
	Return6m  float64 `yaml:"return_6m"`  // long: six-month return
	MA20Dist  float64 `yaml:"ma20_dist"`  // short: distance above the 20-session MA
	Return1m  float64 `yaml:"return_1m"`  // short: one-month return
	VolPen    float64 `yaml:"vol_pen"`    // short: trailing volatility penalty

	// DemotionPenalty is subtracted from the rank score of any instrument
	// with negative short-term momentum. It is the absolute trend filter:
	// no demoted instrument may outrank a non-demoted one.
	DemotionPenalty float64 `yaml:"demotion_penalty"`
}

// DefaultWeights returns the standard scoring preset.
func DefaultWeights() Weights {
	return Weights{
		MA200Dist:       0.4,
		Range52w:        0.3,
		Return6m:        0.3,
		MA20Dist:        0.5,
		Return1m:        0.4,
		VolPen:          0.1,
		DemotionPenalty: 10.0,
	}
}

// Record is one instrument's score on one evaluation date.
type Record struct {
	Name          string  `json:"name"`
	Ticker        string  `json:"ticker"`
	LongScore     float64 `json:"long_score"`
	ShortScore    float64 `json:"short_score"`
	MomentumDelta float64 `json:"momentum_delta"` // short minus long
	RankScore     float64 `json:"rank_score"`
	Return20d     float64 `json:"return_20d"` // percent, for display
	Rank          int     `json:"rank"`       // 1-based, assigned by RankRecords
	Synthetic     bool    `json:"synthetic,omitempty"`
}

// Failure is a typed per-instrument scoring failure. Failed instruments
// are excluded from the batch; the batch itself still succeeds.
type Failure struct {
	Ticker string `json:"ticker"`
	Reason string `json:"reason"`
}

// MinSessions is the floor below which an instrument is reported as having
// insufficient data rather than scored on noise.
const MinSessions = 2

// At scores one instrument at index i of its series. Terms whose
// prerequisite history is missing contribute zero, not an error; only a
// series too short to evaluate at all fails.
func At(w Weights, s *market.PriceSeries, i int) (Record, error) {
	if s == nil || s.Len() < MinSessions || i >= s.Len() {
		return Record{}, fmt.Errorf("insufficient history")
	}
	current := s.Close(i)

	// Long horizon: MA200 distance, 52-week range position, 6-month return.
	longScore := 0.0
	if ma200, ok := s.MAAt(market.MALongWindow, i); ok && ma200 > 0 {
		longScore += w.MA200Dist * (current/ma200 - 1)
	}
	if high, low, ok := s.RangeAt(market.RangeWindow, i); ok {
		pos := 0.5 // degenerate range
		if high != low {
			pos = (current - low) / (high - low)
		}
		longScore += w.Range52w * pos
	}
	longScore += w.Return6m * s.ReturnAt(market.SixMonthSessions, i)

	// Short horizon: MA20 distance, 1-month return, volatility penalty.
	shortScore := 0.0
	if ma20, ok := s.MAAt(market.MAShortWindow, i); ok && ma20 > 0 {
		shortScore += w.MA20Dist * (current/ma20 - 1)
	}
	shortScore += w.Return1m * s.ReturnAt(market.OneMonthSessions, i)
	shortScore -= w.VolPen * trailingVol(s, i)

	delta := shortScore - longScore
	rankScore := delta
	if shortScore < 0 {
		rankScore = delta - w.DemotionPenalty
	}

	return Record{
		Ticker:        s.Ticker,
		LongScore:     longScore,
		ShortScore:    shortScore,
		MomentumDelta: delta,
		RankScore:     rankScore,
		Return20d:     s.ReturnAt(20, i) * 100,
		Synthetic:     i < s.Len() && s.Bars[i].Synthetic,
	}, nil
}

// Last scores the most recent session.
func Last(w Weights, s *market.PriceSeries) (Record, error) {
	if s == nil || s.Len() == 0 {
		return Record{}, fmt.Errorf("empty series")
	}
	return At(w, s, s.Len()-1)
}

// trailingVol is the standard deviation of the last 20 daily percent
// changes, zero when fewer than 10 samples exist.
func trailingVol(s *market.PriceSeries, i int) float64 {
	changes := s.PctChangeTail(20, i)
	if len(changes) < 10 {
		return 0
	}
	sd, err := stats.StandardDeviationSample(stats.Float64Data(changes))
	if err != nil {
		return 0
	}
	return sd
}

// Batch scores an instrument group, partitioning successes and failures.
// One bad ticker never sinks the batch; the failure list is surfaced to
// the caller instead of swallowed.
func Batch(w Weights, instruments []market.Instrument, series map[string]*market.PriceSeries) ([]Record, []Failure) {
	records := make([]Record, 0, len(instruments))
	var failures []Failure

	for _, inst := range instruments {
		s, ok := series[inst.Ticker]
		if !ok {
			failures = append(failures, Failure{Ticker: inst.Ticker, Reason: "data unavailable"})
			metrics.ScoreFailures.Inc()
			continue
		}
		rec, err := Last(w, s)
		if err != nil {
			failures = append(failures, Failure{Ticker: inst.Ticker, Reason: err.Error()})
			metrics.ScoreFailures.Inc()
			continue
		}
		rec.Name = inst.Name
		records = append(records, rec)
	}

	RankRecords(records)
	return records, failures
}

// RankRecords orders records by rank score descending (stable, so ties
// keep insertion order) and assigns 1-based ranks.
func RankRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].RankScore > records[j].RankScore
	})
	for i := range records {
		records[i].Rank = i + 1
	}
}
