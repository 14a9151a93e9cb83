// Package storage - postgres.go is the pgx-backed Completed Trades
// mirror. Grounded on the teacher's own storage layer (same package
// shape, same pgx/v5 dependency) but narrowed to the one table the new
// domain actually needs.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kestrel-labs/daytrader-engine/internal/calendar"
	"github.com/kestrel-labs/daytrader-engine/internal/position"
)

const createTradesTable = `
CREATE TABLE IF NOT EXISTS completed_trades (
	id           BIGSERIAL PRIMARY KEY,
	ticker       TEXT NOT NULL,
	indicator    TEXT NOT NULL,
	direction    TEXT NOT NULL,
	entry_price  DOUBLE PRECISION NOT NULL,
	exit_price   DOUBLE PRECISION NOT NULL,
	entry_time   TIMESTAMPTZ NOT NULL,
	exit_time    TIMESTAMPTZ NOT NULL,
	pnl_dollars  DOUBLE PRECISION NOT NULL,
	pnl_percent  DOUBLE PRECISION NOT NULL,
	entry_reason TEXT NOT NULL,
	exit_reason  TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresStore is the local audit mirror for Completed Trades.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to Postgres and ensures the mirror table
// exists. It is not the system of record: callers should treat a
// connection failure as non-fatal and keep running without it.
func NewPostgresStore(ctx context.Context, connStr string) (*PostgresStore, error) {
	if connStr == "" {
		return nil, fmt.Errorf("storage: connection string is required")
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("storage: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, createTradesTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: create table: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// RecordTrade inserts one Completed Trade into the mirror table.
// Implements position.AuditSink.
func (s *PostgresStore) RecordTrade(ctx context.Context, trade position.CompletedTrade) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO completed_trades
			(ticker, indicator, direction, entry_price, exit_price, entry_time, exit_time, pnl_dollars, pnl_percent, entry_reason, exit_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		trade.Ticker, trade.Indicator, trade.Direction.String(), trade.EntryPrice, trade.ExitPrice,
		trade.EntryTime, trade.ExitTime, trade.PnLDollars, trade.PnLPercent, trade.EntryReason, trade.ExitReason,
	)
	if err != nil {
		return fmt.Errorf("storage: record trade %s: %w", trade.Ticker, err)
	}
	return nil
}

// TradesForDate returns every mirrored Completed Trade whose exit fell on
// the given market-local date (YYYY-MM-DD), for the daily-stats CLI and
// internal/analytics.
func (s *PostgresStore) TradesForDate(ctx context.Context, date string) ([]TradeRecord, error) {
	day, err := time.ParseInLocation("2006-01-02", date, calendar.NY)
	if err != nil {
		return nil, fmt.Errorf("storage: parse date %s: %w", date, err)
	}
	from := day
	to := day.AddDate(0, 0, 1)

	rows, err := s.pool.Query(ctx, `
		SELECT ticker, indicator, direction, entry_price, exit_price, entry_time, exit_time, pnl_dollars, pnl_percent, entry_reason, exit_reason
		FROM completed_trades
		WHERE exit_time >= $1 AND exit_time < $2
		ORDER BY exit_time`, from, to)
	if err != nil {
		return nil, fmt.Errorf("storage: query trades for %s: %w", date, err)
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		var t TradeRecord
		if err := rows.Scan(&t.Ticker, &t.Indicator, &t.Direction, &t.EntryPrice, &t.ExitPrice, &t.EntryTime, &t.ExitTime, &t.PnLDollars, &t.PnLPercent, &t.EntryReason, &t.ExitReason); err != nil {
			return nil, fmt.Errorf("storage: scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ClearDate deletes every mirrored trade that exited on the given
// market-local date, for the clear-trades CLI.
func (s *PostgresStore) ClearDate(ctx context.Context, date string) (int64, error) {
	day, err := time.ParseInLocation("2006-01-02", date, calendar.NY)
	if err != nil {
		return 0, fmt.Errorf("storage: parse date %s: %w", date, err)
	}
	from := day
	to := day.AddDate(0, 0, 1)

	tag, err := s.pool.Exec(ctx, `DELETE FROM completed_trades WHERE exit_time >= $1 AND exit_time < $2`, from, to)
	if err != nil {
		return 0, fmt.Errorf("storage: clear %s: %w", date, err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}
