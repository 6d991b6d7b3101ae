package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jefflab/macroscope/internal/report"
)

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Score the universe and print the dashboard",
		Long:  "Fetch the universe, compute long/short momentum scores, and print the ranked sector table with the market state banner.",
		RunE:  runScan,
	}
	cmd.Flags().Bool("json", false, "Emit the dashboard payload as JSON instead of a table")
	cmd.Flags().Duration("timeout", 2*time.Minute, "Overall scan deadline")
	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	engine, err := buildEngine(cmd)
	if err != nil {
		return err
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	dash, err := engine.Scan(ctx)
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(dash)
	}

	printDashboard(dash)
	return nil
}

func printDashboard(dash *report.Dashboard) {
	fmt.Printf("Market state: %s  (avg L %.2f / avg S %.2f)  policy=%s\n\n",
		strings.ToUpper(string(dash.State)), dash.AvgLongScore, dash.AvgShortScore, dash.Policy)

	fmt.Println("Sector momentum")
	fmt.Printf("%-4s %-28s %-8s %8s %8s %8s %9s\n",
		"Rank", "Name", "Ticker", "Long", "Short", "Delta", "RankScore")
	for _, rec := range dash.Sectors {
		flag := ""
		if rec.Synthetic {
			flag = " *"
		}
		fmt.Printf("%-4d %-28s %-8s %8.2f %8.2f %8.2f %9.2f%s\n",
			rec.Rank, rec.Name, rec.Ticker,
			rec.LongScore, rec.ShortScore, rec.MomentumDelta, rec.RankScore, flag)
	}

	if len(dash.CoreSectors) > 0 {
		fmt.Println("\nCore sectors (short-term)")
		fmt.Printf("%-4s %-28s %-8s %8s %8s\n", "Rank", "Name", "Ticker", "Score", "Ret20d")
		for _, rec := range dash.CoreSectors {
			fmt.Printf("%-4d %-28s %-8s %8.2f %7.2f%%\n",
				rec.Rank, rec.Name, rec.Ticker, rec.SScore, rec.Return20d)
		}
	}

	if len(dash.Individual) > 0 {
		fmt.Println("\nWatchlist")
		fmt.Printf("%-24s %-8s %10s %9s %9s %9s\n",
			"Name", "Ticker", "Price", "vsPrev", "vsMA200", "YTD")
		for _, row := range dash.Individual {
			fmt.Printf("%-24s %-8s %10.2f %9s %9s %9s\n",
				row.Name, row.Ticker, row.Price,
				pct(row.VsPrevDay), pct(row.VsMA200), pct(row.VsYTDStart))
		}
	}

	if dash.SafeAssets.Count > 0 {
		fmt.Printf("\nSafe assets in top 5: %d (%s)\n", dash.SafeAssets.Count, dash.SafeAssets.Level)
	}
	if len(dash.FailedTickers) > 0 {
		fmt.Printf("\nFetch failures: %s\n", strings.Join(dash.FailedTickers, ", "))
	}
	fmt.Printf("\nGenerated %s, %d warnings\n",
		dash.GeneratedAt.Format(time.RFC3339), dash.WarningCount)
}

func pct(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%+.2f%%", *v)
}
