package backtest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Writer persists backtest artifacts: per-day results as JSONL, a markdown
// report, a compact summary JSON, and an equity-curve chart.
type Writer struct {
	outputDir string
	runID     string
}

// NewWriter creates a writer rooted at outputDir/<date>/<run-id>.
func NewWriter(outputDir string) *Writer {
	runID := uuid.NewString()[:8]
	return &Writer{
		outputDir: filepath.Join(outputDir, time.Now().Format("2006-01-02"), runID),
		runID:     runID,
	}
}

// RunID returns this writer's run identifier.
func (w *Writer) RunID() string {
	return w.runID
}

// OutputDir returns the artifact directory.
func (w *Writer) OutputDir() string {
	return w.outputDir
}

// WriteResults writes the per-day curve as JSON lines.
func (w *Writer) WriteResults(curve *EquityCurve) error {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(w.outputDir, "results.jsonl")
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create results file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	for i := range curve.Days {
		if err := enc.Encode(&curve.Days[i]); err != nil {
			return fmt.Errorf("failed to encode day result: %w", err)
		}
	}
	return nil
}

// WriteSummaryJSON writes the headline figures and crisis reports.
func (w *Writer) WriteSummaryJSON(summary Summary, crises []CrisisReport) error {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	payload := struct {
		RunID   string         `json:"run_id"`
		Summary Summary        `json:"summary"`
		Crises  []CrisisReport `json:"crises"`
	}{RunID: w.runID, Summary: summary, Crises: crises}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	return os.WriteFile(filepath.Join(w.outputDir, "summary.json"), data, 0o644)
}

// WriteReport writes a human-readable markdown report.
func (w *Writer) WriteReport(summary Summary, crises []CrisisReport) error {
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	report := fmt.Sprintf(`# Backtest Report: %s

Run: %s
Period: %s to %s (%d sessions, %d throttled)

| Metric | Strategy | Buy & Hold |
|---|---|---|
| Total Return | %.2f%% | %.2f%% |
| Max Drawdown | %.2f%% | %.2f%% |
| CAGR | %.2f%% | n/a |
`,
		summary.Ticker, w.runID,
		summary.StartDate.Format("2006-01-02"), summary.EndDate.Format("2006-01-02"),
		summary.TotalDays, summary.ThrottledDays,
		summary.StrategyReturnPct, summary.BAHReturnPct,
		summary.StrategyMDDPct, summary.BAHMDDPct,
		summary.CAGRPct)

	if summary.HasSynthetic {
		report += "\n> Includes synthetic pre-listing history; returns over fabricated bars are not realized returns.\n"
	}

	if len(crises) > 0 {
		report += "\n## Crisis Windows\n\n| Window | Entry Signal | Buy & Hold | Strategy |\n|---|---|---|---|\n"
		for _, c := range crises {
			name := c.Name
			if c.Synthetic {
				name += " (synthetic)"
			}
			report += fmt.Sprintf("| %s | %s | %.2f%% | %.2f%% |\n",
				name, c.EntrySignal, c.BAHReturnPct, c.StrategyPct)
		}
	}

	return os.WriteFile(filepath.Join(w.outputDir, "report.md"), []byte(report), 0o644)
}

// WriteEquityChart renders strategy and buy-and-hold equity to a PNG.
func (w *Writer) WriteEquityChart(curve *EquityCurve) error {
	if len(curve.Days) == 0 {
		return fmt.Errorf("empty equity curve")
	}
	if err := os.MkdirAll(w.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	strat := make(plotter.XYs, len(curve.Days))
	bah := make(plotter.XYs, len(curve.Days))
	for i, day := range curve.Days {
		x := float64(day.Date.Unix())
		strat[i] = plotter.XY{X: x, Y: day.Equity}
		bah[i] = plotter.XY{X: x, Y: day.BAHEquity}
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s equity curve", curve.Ticker)
	p.X.Label.Text = "date"
	p.Y.Label.Text = "equity multiple"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}

	if err := plotutil.AddLines(p, "strategy", strat, "buy & hold", bah); err != nil {
		return fmt.Errorf("failed to add equity lines: %w", err)
	}

	path := filepath.Join(w.outputDir, "equity.png")
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("failed to save equity chart: %w", err)
	}
	return nil
}
