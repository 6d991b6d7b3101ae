package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jefflab/macroscope/internal/backtest"
	"github.com/jefflab/macroscope/internal/persistence/postgres"
	"github.com/jefflab/macroscope/internal/pipeline"
)

func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest TICKER",
		Short: "Simulate the signal strategy on one ticker",
		Long: `Simulate the shifted-signal strategy against buy and hold on one ticker,
validate behavior over the named crisis windows, and write the artifacts
(per-day results, summary, markdown report, equity chart) to the output
directory.`,
		Args: cobra.ExactArgs(1),
		RunE: runBacktest,
	}
	cmd.Flags().String("from", "", "Simulation start date (YYYY-MM-DD, default: two years back)")
	cmd.Flags().String("out", "out/backtest", "Artifact output directory")
	cmd.Flags().Bool("no-chart", false, "Skip rendering the equity chart")
	cmd.Flags().Duration("timeout", 3*time.Minute, "Overall backtest deadline")
	cmd.Flags().String("archive-dsn", "", "PostgreSQL DSN for the price archive (enables offline replay when the provider is down)")
	return cmd
}

func runBacktest(cmd *cobra.Command, args []string) error {
	engine, err := buildEngine(cmd)
	if err != nil {
		return err
	}

	var from time.Time
	if fromStr, _ := cmd.Flags().GetString("from"); fromStr != "" {
		from, err = time.Parse("2006-01-02", fromStr)
		if err != nil {
			return fmt.Errorf("invalid --from date %q: %w", fromStr, err)
		}
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	if dsn, _ := cmd.Flags().GetString("archive-dsn"); dsn != "" {
		db, err := postgres.Connect(ctx, dsn)
		if err != nil {
			return err
		}
		defer db.Close()
		engine.WithArchive(postgres.NewPriceRepo(db, 30*time.Second))
	}

	result, err := engine.Backtest(ctx, pipeline.BacktestRequest{
		Ticker: args[0],
		From:   from,
	})
	if err != nil {
		return err
	}

	outDir, _ := cmd.Flags().GetString("out")
	writer := backtest.NewWriter(outDir)
	if err := writer.WriteResults(result.Curve); err != nil {
		return err
	}
	if err := writer.WriteSummaryJSON(result.Summary, result.Crises); err != nil {
		return err
	}
	if err := writer.WriteReport(result.Summary, result.Crises); err != nil {
		return err
	}
	if noChart, _ := cmd.Flags().GetBool("no-chart"); !noChart {
		if err := writer.WriteEquityChart(result.Curve); err != nil {
			log.Warn().Err(err).Msg("equity chart render failed")
		}
	}

	printSummary(result)
	fmt.Printf("\nArtifacts: %s (run %s)\n", writer.OutputDir(), writer.RunID())
	return nil
}

func printSummary(result *pipeline.BacktestResult) {
	s := result.Summary
	fmt.Printf("Backtest %s  %s -> %s  (%d sessions, %d throttled)\n",
		s.Ticker,
		s.StartDate.Format("2006-01-02"), s.EndDate.Format("2006-01-02"),
		s.TotalDays, s.ThrottledDays)
	fmt.Printf("  Strategy:   %+8.2f%%  (MDD %.2f%%, CAGR %.2f%%)\n",
		s.StrategyReturnPct, s.StrategyMDDPct, s.CAGRPct)
	fmt.Printf("  Buy & hold: %+8.2f%%  (MDD %.2f%%)\n",
		s.BAHReturnPct, s.BAHMDDPct)
	if s.HasSynthetic {
		fmt.Println("  Note: includes synthetic pre-listing history")
	}

	if len(result.Crises) > 0 {
		fmt.Println("\nCrisis windows")
		for _, c := range result.Crises {
			name := c.Name
			if c.Synthetic {
				name += " (synthetic)"
			}
			fmt.Printf("  %-28s entry=%-14s strategy %+7.2f%%  buy&hold %+7.2f%%\n",
				name, c.EntrySignal, c.StrategyPct, c.BAHReturnPct)
		}
	}
}
