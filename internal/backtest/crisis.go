package backtest

import (
	"time"
)

// CrisisWindow names a historical stress period to validate signals
// against.
type CrisisWindow struct {
	Name  string    `yaml:"name" json:"name"`
	Start time.Time `yaml:"start" json:"start"`
	End   time.Time `yaml:"end" json:"end"`
}

// CrisisReport describes how the strategy behaved across one window.
type CrisisReport struct {
	Name           string    `json:"name"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	EntrySignal    string    `json:"entry_signal"` // signal active at the first simulated day in the window
	EntryComposite float64   `json:"entry_composite"`
	BAHReturnPct   float64   `json:"bah_return_pct"`
	StrategyPct    float64   `json:"strategy_return_pct"`
	Synthetic      bool      `json:"synthetic,omitempty"` // window touches fabricated history
}

func date(y, m, d int) time.Time {
	return time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
}

// DefaultCrisisWindows returns the named stress periods validated by
// default. Windows outside the simulated range are skipped at validation
// time, so listing decades of history here is harmless.
func DefaultCrisisWindows() []CrisisWindow {
	return []CrisisWindow{
		{Name: "Global Financial Crisis", Start: date(2008, 9, 1), End: date(2009, 3, 31)},
		{Name: "Euro Debt Crisis", Start: date(2011, 7, 1), End: date(2011, 10, 4)},
		{Name: "China Devaluation", Start: date(2015, 8, 10), End: date(2016, 2, 11)},
		{Name: "Q4 2018 Selloff", Start: date(2018, 10, 1), End: date(2018, 12, 24)},
		{Name: "COVID Crash", Start: date(2020, 2, 19), End: date(2020, 3, 23)},
		{Name: "2022 Bear Market", Start: date(2022, 1, 3), End: date(2022, 10, 12)},
	}
}

// ValidateCrises reports signal behavior and realized returns across each
// window that intersects the simulated range. Returns are read strictly
// from already-simulated equity values, never re-simulated. Windows
// entirely outside the range produce no row.
func ValidateCrises(curve *EquityCurve, windows []CrisisWindow) []CrisisReport {
	reports := make([]CrisisReport, 0, len(windows))
	if len(curve.Days) == 0 {
		return reports
	}

	simStart, simEnd := curve.Start(), curve.End()

	for _, w := range windows {
		if w.End.Before(simStart) || w.Start.After(simEnd) {
			continue // no intersection, skip rather than zero-fill
		}

		startIdx, ok := curve.DayOn(w.Start)
		if !ok {
			continue
		}
		endIdx := startIdx
		for i := startIdx; i < len(curve.Days) && !curve.Days[i].Date.After(w.End); i++ {
			endIdx = i
		}

		entry := curve.Days[startIdx]
		exit := curve.Days[endIdx]

		report := CrisisReport{
			Name:           w.Name,
			Start:          w.Start,
			End:            w.End,
			EntrySignal:    entry.SignalName,
			EntryComposite: entry.Composite,
		}
		if entry.Close > 0 {
			report.BAHReturnPct = (exit.Close/entry.Close - 1) * 100
		}
		if entry.Equity > 0 {
			report.StrategyPct = (exit.Equity/entry.Equity - 1) * 100
		}
		for i := startIdx; i <= endIdx; i++ {
			if curve.Days[i].Synthetic {
				report.Synthetic = true
				break
			}
		}

		reports = append(reports, report)
	}
	return reports
}
