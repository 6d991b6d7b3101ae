package market

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Instrument identifies one tracked ticker within a group.
type Instrument struct {
	Name      string  `yaml:"name" json:"name"`
	Ticker    string  `yaml:"ticker" json:"ticker"`
	Leveraged bool    `yaml:"leveraged,omitempty" json:"leveraged,omitempty"`
	Leverage  float64 `yaml:"leverage,omitempty" json:"leverage,omitempty"` // factor for synthetic backfill
	Underlier string  `yaml:"underlier,omitempty" json:"underlier,omitempty"`
	Defensive bool    `yaml:"defensive,omitempty" json:"defensive,omitempty"` // counts toward the safe-asset warning
}

// Universe groups the tracked instruments the way the dashboard renders
// them: the broad sector ETF board, the individual watchlist, and the 11
// core S&P sectors.
type Universe struct {
	SectorETFs  []Instrument `yaml:"sector_etfs"`
	Individual  []Instrument `yaml:"individual"`
	CoreSectors []Instrument `yaml:"core_sectors"`
}

// LoadUniverse reads a universe definition from a YAML file.
func LoadUniverse(path string) (*Universe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read universe file %s: %w", path, err)
	}

	var u Universe
	if err := yaml.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("failed to parse universe YAML: %w", err)
	}

	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("invalid universe: %w", err)
	}
	return &u, nil
}

// DefaultUniverse returns the built-in instrument set (testing/fallback).
func DefaultUniverse() *Universe {
	return &Universe{
		SectorETFs: []Instrument{
			{Name: "Metals & Mining", Ticker: "XME"},
			{Name: "Semiconductors", Ticker: "SOXX"},
			{Name: "Materials", Ticker: "XLB"},
			{Name: "Energy", Ticker: "XLE"},
			{Name: "Biotech", Ticker: "XBI"},
			{Name: "Consumer Staples", Ticker: "XLP", Defensive: true},
			{Name: "Semiconductors 2", Ticker: "SMH"},
			{Name: "Oil & Gas E&P", Ticker: "XOP"},
			{Name: "Industrials", Ticker: "XLI"},
			{Name: "Homebuilders", Ticker: "XHB"},
			{Name: "Russell 2000", Ticker: "IWM"},
			{Name: "Retail", Ticker: "XRT"},
			{Name: "Healthcare", Ticker: "XLV"},
			{Name: "Communications", Ticker: "XLC"},
			{Name: "Consumer Discretionary", Ticker: "XLY"},
			{Name: "S&P 500", Ticker: "SPY"},
			{Name: "NASDAQ 100", Ticker: "QQQ"},
			{Name: "Utilities", Ticker: "XLU", Defensive: true},
			{Name: "Cash", Ticker: "BIL", Defensive: true},
			{Name: "TIPS", Ticker: "TIP", Defensive: true},
			{Name: "Real Estate", Ticker: "XLRE"},
			{Name: "Technology", Ticker: "XLK"},
			{Name: "Long Treasuries", Ticker: "TLT", Defensive: true},
			{Name: "Financials", Ticker: "XLF"},
			{Name: "China Large Cap", Ticker: "FXI"},
			{Name: "FANG+", Ticker: "FNGS"},
			{Name: "China Internet", Ticker: "KWEB"},
			{Name: "Bitcoin", Ticker: "IBIT"},
		},
		Individual: []Instrument{
			{Name: "VOO", Ticker: "VOO"},
			{Name: "SSO", Ticker: "SSO", Leveraged: true, Leverage: 2.0, Underlier: "SPY"},
			{Name: "UPRO", Ticker: "UPRO", Leveraged: true, Leverage: 3.0, Underlier: "SPY"},
			{Name: "QQQ", Ticker: "QQQ"},
			{Name: "TQQQ", Ticker: "TQQQ", Leveraged: true, Leverage: 3.0, Underlier: "QQQ"},
			{Name: "SMH", Ticker: "SMH"},
			{Name: "SOXX", Ticker: "SOXX"},
			{Name: "SOXL", Ticker: "SOXL", Leveraged: true, Leverage: 3.0, Underlier: "SOXX"},
			{Name: "AAPL", Ticker: "AAPL"},
			{Name: "MSFT", Ticker: "MSFT"},
			{Name: "NVDA", Ticker: "NVDA"},
			{Name: "GOOG", Ticker: "GOOG"},
			{Name: "AMZN", Ticker: "AMZN"},
			{Name: "META", Ticker: "META"},
			{Name: "TSLA", Ticker: "TSLA"},
			{Name: "TSM", Ticker: "TSM"},
			{Name: "AVGO", Ticker: "AVGO"},
			{Name: "BRK.B", Ticker: "BRK-B"},
		},
		CoreSectors: []Instrument{
			{Name: "Communications", Ticker: "XLC"},
			{Name: "Consumer Discretionary", Ticker: "XLY"},
			{Name: "Consumer Staples", Ticker: "XLP", Defensive: true},
			{Name: "Energy", Ticker: "XLE"},
			{Name: "Financials", Ticker: "XLF"},
			{Name: "Healthcare", Ticker: "XLV"},
			{Name: "Industrials", Ticker: "XLI"},
			{Name: "Materials", Ticker: "XLB"},
			{Name: "Real Estate", Ticker: "XLRE"},
			{Name: "Technology", Ticker: "XLK"},
			{Name: "Utilities", Ticker: "XLU", Defensive: true},
		},
	}
}

// Validate ensures every instrument has a name and ticker, and that
// leveraged instruments declare a usable backfill definition.
func (u *Universe) Validate() error {
	groups := map[string][]Instrument{
		"sector_etfs":  u.SectorETFs,
		"individual":   u.Individual,
		"core_sectors": u.CoreSectors,
	}

	for group, instruments := range groups {
		for _, inst := range instruments {
			if inst.Name == "" || inst.Ticker == "" {
				return fmt.Errorf("%s: instrument missing name or ticker", group)
			}
			if inst.Leveraged {
				if inst.Leverage <= 0 {
					return fmt.Errorf("%s/%s: leveraged instrument needs positive leverage factor", group, inst.Ticker)
				}
				if inst.Underlier == "" {
					return fmt.Errorf("%s/%s: leveraged instrument needs an underlier for synthetic backfill", group, inst.Ticker)
				}
			}
		}
	}
	return nil
}

// AllTickers returns the deduplicated ticker list across all groups,
// preserving first-seen order. Used as the memoization cache key and the
// batch fetch set.
func (u *Universe) AllTickers() []string {
	seen := make(map[string]bool)
	var tickers []string
	for _, group := range [][]Instrument{u.SectorETFs, u.Individual, u.CoreSectors} {
		for _, inst := range group {
			if !seen[inst.Ticker] {
				seen[inst.Ticker] = true
				tickers = append(tickers, inst.Ticker)
			}
		}
	}
	return tickers
}
