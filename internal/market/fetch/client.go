// Package fetch implements the market data access layer: a blocking HTTP
// client for daily price history plus a batch facade with five-minute
// memoization. Failed tickers are dropped from the batch, not retried.
package fetch

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/jefflab/macroscope/internal/market"
	"github.com/jefflab/macroscope/internal/metrics"
)

// DefaultLookback covers three years of history so the 200-session moving
// average is always fully formed on the evaluation date.
const DefaultLookback = 3 * 365 * 24 * time.Hour

// Fetcher retrieves daily close history for a single ticker. Missing
// tickers surface as errors; the batch facade decides what to drop.
type Fetcher interface {
	Fetch(ctx context.Context, ticker string, lookback time.Duration) (*market.PriceSeries, error)
}

// ClientConfig holds HTTP client tuning for the data provider.
type ClientConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Timeout        time.Duration `yaml:"timeout"`
	RPS            float64       `yaml:"rps"`
	Burst          int           `yaml:"burst"`
	BreakerTimeout time.Duration `yaml:"breaker_timeout"`
	MaxFailures    uint32        `yaml:"max_failures"`
}

// DefaultClientConfig returns conservative provider settings.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:        "https://stooq.com/q/d/l",
		Timeout:        15 * time.Second,
		RPS:            4.0,
		Burst:          8,
		BreakerTimeout: 60 * time.Second,
		MaxFailures:    5,
	}
}

// Client fetches daily OHLC history as CSV from the configured provider.
// Calls are blocking with no retries; a tripped breaker fails fast until
// the provider recovers.
type Client struct {
	config  ClientConfig
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	clock   func() time.Time
}

// NewClient creates a provider client with rate limiting and a circuit
// breaker around the upstream endpoint.
func NewClient(config ClientConfig) *Client {
	settings := gobreaker.Settings{
		Name:    "market-data",
		Timeout: config.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("market data circuit breaker state change")
		},
	}

	return &Client{
		config:  config,
		http:    &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RPS), config.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
		clock:   time.Now,
	}
}

// Fetch downloads the daily history for one ticker covering at least the
// lookback window.
func (c *Client) Fetch(ctx context.Context, ticker string, lookback time.Duration) (*market.PriceSeries, error) {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait for %s: %w", ticker, err)
	}

	metrics.FetchRequests.WithLabelValues("prices").Inc()

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.download(ctx, ticker, lookback)
	})
	if err != nil {
		return nil, err
	}
	return result.(*market.PriceSeries), nil
}

func (c *Client) download(ctx context.Context, ticker string, lookback time.Duration) (*market.PriceSeries, error) {
	now := c.clock()
	url := fmt.Sprintf("%s/?s=%s&d1=%s&d2=%s&i=d",
		c.config.BaseURL,
		strings.ToLower(ticker),
		now.Add(-lookback).Format("20060102"),
		now.Format("20060102"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", ticker, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", ticker, resp.StatusCode)
	}

	series, err := ParseDailyCSV(ticker, resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", ticker, err)
	}
	return series, nil
}

// ParseDailyCSV decodes the provider's Date,Open,High,Low,Close,Volume
// daily format. Rows with unparseable dates or closes are skipped; an
// empty result is an error so callers can drop the ticker.
func ParseDailyCSV(ticker string, r io.Reader) (*market.PriceSeries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}

	var bars []market.Bar
	for i, record := range records {
		if i == 0 || len(record) < 5 {
			continue // header or short row
		}
		date, err := time.Parse("2006-01-02", record[0])
		if err != nil {
			continue
		}
		closePx, err := strconv.ParseFloat(record[4], 64)
		if err != nil || closePx <= 0 {
			continue
		}
		bars = append(bars, market.Bar{Date: date, Close: closePx})
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("no usable rows for %s", ticker)
	}
	return market.NewPriceSeries(ticker, bars)
}
