package score

import (
	"fmt"
	"sort"

	"github.com/jefflab/macroscope/internal/market"
	"github.com/jefflab/macroscope/internal/metrics"
)

// CoreRecord is the simplified short-horizon score used for the 11 core
// S&P sector board: MA20 distance plus one-month return, no volatility
// term.
type CoreRecord struct {
	Name      string  `json:"name"`
	Ticker    string  `json:"ticker"`
	SScore    float64 `json:"s_score"`
	Return20d float64 `json:"return_20d"`
	Rank      int     `json:"rank"`
}

// CoreAt computes the core-sector score at index i.
func CoreAt(w Weights, s *market.PriceSeries, i int) (CoreRecord, error) {
	if s == nil || s.Len() < MinSessions || i >= s.Len() {
		return CoreRecord{}, fmt.Errorf("insufficient history")
	}
	current := s.Close(i)

	sScore := 0.0
	if ma20, ok := s.MAAt(market.MAShortWindow, i); ok && ma20 > 0 {
		sScore += w.MA20Dist * (current/ma20 - 1)
	}
	sScore += w.Return1m * s.ReturnAt(market.OneMonthSessions, i)

	return CoreRecord{
		Ticker:    s.Ticker,
		SScore:    sScore,
		Return20d: s.ReturnAt(20, i) * 100,
	}, nil
}

// CoreBatch scores the core sector group, ranked by S-score descending.
func CoreBatch(w Weights, instruments []market.Instrument, series map[string]*market.PriceSeries) ([]CoreRecord, []Failure) {
	records := make([]CoreRecord, 0, len(instruments))
	var failures []Failure

	for _, inst := range instruments {
		s, ok := series[inst.Ticker]
		if !ok {
			failures = append(failures, Failure{Ticker: inst.Ticker, Reason: "data unavailable"})
			metrics.ScoreFailures.Inc()
			continue
		}
		rec, err := CoreAt(w, s, s.Len()-1)
		if err != nil {
			failures = append(failures, Failure{Ticker: inst.Ticker, Reason: err.Error()})
			metrics.ScoreFailures.Inc()
			continue
		}
		rec.Name = inst.Name
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SScore > records[j].SScore
	})
	for i := range records {
		records[i].Rank = i + 1
	}
	return records, failures
}
