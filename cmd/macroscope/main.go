package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/jefflab/macroscope/internal/config"
	"github.com/jefflab/macroscope/internal/market"
	"github.com/jefflab/macroscope/internal/market/cache"
	"github.com/jefflab/macroscope/internal/market/fetch"
	"github.com/jefflab/macroscope/internal/pipeline"
)

const (
	appName = "macroscope"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		log.Logger = log.Output(os.Stderr)
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Market dashboard: sector momentum scores, macro risk, and backtests",
		Version: version,
		Long: `macroscope scores a fixed ETF universe on long and short horizon momentum,
aggregates macro stress (VIX, OVX, yield curve) into a composite, classifies
each instrument into an action signal, and backtests the shifted-signal
strategy against buy and hold, including the named crisis windows.`,
	}

	// Accept underscores in flag names so --archive_dsn works like --archive-dsn.
	rootCmd.PersistentFlags().SetNormalizeFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().String("policy", "standard", "Policy preset (standard|aggressive|defensive) or path to a YAML policy file")
	rootCmd.PersistentFlags().String("universe", "", "Path to a YAML universe file (default: built-in universe)")
	rootCmd.PersistentFlags().String("redis", "", "Redis address for the shared snapshot cache (empty: in-process cache)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newBacktestCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// buildEngine assembles the pipeline from the persistent flags shared by
// every subcommand.
func buildEngine(cmd *cobra.Command) (*pipeline.Engine, error) {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	policyFlag, _ := cmd.Flags().GetString("policy")
	policy, err := resolvePolicy(policyFlag)
	if err != nil {
		return nil, err
	}

	universePath, _ := cmd.Flags().GetString("universe")
	universe := market.DefaultUniverse()
	if universePath != "" {
		universe, err = market.LoadUniverse(universePath)
		if err != nil {
			return nil, fmt.Errorf("load universe: %w", err)
		}
	}

	redisAddr, _ := cmd.Flags().GetString("redis")
	var store cache.SeriesStore
	if redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: redisAddr})
		store = cache.NewRedisStore(client, "")
		log.Info().Str("addr", redisAddr).Msg("using redis snapshot cache")
	} else {
		store = cache.NewMemoryStore(time.Minute)
	}

	client := fetch.NewClient(fetch.DefaultClientConfig())
	facade := fetch.NewFacade(client, store, cache.DefaultTTL)

	log.Info().Str("policy", policy.Name).Int("tickers", len(universe.AllTickers())).
		Msg("engine ready")
	return pipeline.NewEngine(facade, universe, policy), nil
}

// resolvePolicy accepts either a preset name or a YAML file path.
func resolvePolicy(flag string) (config.Policy, error) {
	if policy, err := config.Preset(flag); err == nil {
		return policy, nil
	}
	if _, err := os.Stat(flag); err == nil {
		return config.LoadPolicy(flag)
	}
	return config.Policy{}, fmt.Errorf("unknown policy %q (presets: %v)", flag, config.PresetNames())
}
