// Package postgres implements the price archive on PostgreSQL via sqlx.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jefflab/macroscope/internal/market"
	"github.com/jefflab/macroscope/internal/persistence"
)

// Schema creates the archive table. Applied with CREATE IF NOT EXISTS so
// startup is idempotent; migrations beyond this are out of scope.
const Schema = `
CREATE TABLE IF NOT EXISTS price_bars (
    ticker     TEXT        NOT NULL,
    session    DATE        NOT NULL,
    close      DOUBLE PRECISION NOT NULL CHECK (close > 0),
    synthetic  BOOLEAN     NOT NULL DEFAULT FALSE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (ticker, session)
);
CREATE INDEX IF NOT EXISTS idx_price_bars_session ON price_bars (session);
`

type priceRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPriceRepo creates a PostgreSQL price repository.
func NewPriceRepo(db *sqlx.DB, timeout time.Duration) persistence.PriceRepo {
	return &priceRepo{db: db, timeout: timeout}
}

// Connect opens and pings a PostgreSQL pool, then ensures the schema.
func Connect(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return db, nil
}

// UpsertBars writes a batch inside one transaction. Conflicting rows are
// replaced so a corrected provider feed wins over a stale archive.
func (r *priceRepo) UpsertBars(ctx context.Context, ticker string, bars []market.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO price_bars (ticker, session, close, synthetic)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (ticker, session) DO UPDATE SET
			close     = EXCLUDED.close,
			synthetic = EXCLUDED.synthetic`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, bar := range bars {
		if bar.Close <= 0 {
			return fmt.Errorf("non-positive close for %s on %s", ticker, bar.Date.Format("2006-01-02"))
		}
		if _, err := stmt.ExecContext(ctx, ticker, bar.Date, bar.Close, bar.Synthetic); err != nil {
			return fmt.Errorf("upsert %s %s: %w", ticker, bar.Date.Format("2006-01-02"), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// Series reads archived bars for one ticker, oldest first.
func (r *priceRepo) Series(ctx context.Context, ticker string, tr persistence.TimeRange) (*market.PriceSeries, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT session, close, synthetic
		FROM price_bars
		WHERE ticker = $1 AND session >= $2 AND session <= $3
		ORDER BY session ASC`, ticker, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("query archive for %s: %w", ticker, err)
	}
	defer rows.Close()

	series := &market.PriceSeries{Ticker: ticker}
	for rows.Next() {
		var bar market.Bar
		if err := rows.Scan(&bar.Date, &bar.Close, &bar.Synthetic); err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}
		series.Bars = append(series.Bars, bar)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive rows: %w", err)
	}
	return series, nil
}

// LastDate returns the newest archived session for a ticker.
func (r *priceRepo) LastDate(ctx context.Context, ticker string) (time.Time, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var last time.Time
	err := r.db.QueryRowxContext(ctx, `
		SELECT session FROM price_bars
		WHERE ticker = $1
		ORDER BY session DESC
		LIMIT 1`, ticker).Scan(&last)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last session for %s: %w", ticker, err)
	}
	return last, true, nil
}

// Coverage reports archived row counts per ticker within the range.
func (r *priceRepo) Coverage(ctx context.Context, tr persistence.TimeRange) (map[string]int64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.db.QueryxContext(ctx, `
		SELECT ticker, COUNT(*)
		FROM price_bars
		WHERE session >= $1 AND session <= $2
		GROUP BY ticker
		ORDER BY ticker`, tr.From, tr.To)
	if err != nil {
		return nil, fmt.Errorf("query archive coverage: %w", err)
	}
	defer rows.Close()

	coverage := make(map[string]int64)
	for rows.Next() {
		var ticker string
		var count int64
		if err := rows.Scan(&ticker, &count); err != nil {
			return nil, fmt.Errorf("scan coverage row: %w", err)
		}
		coverage[ticker] = count
	}
	return coverage, nil
}
