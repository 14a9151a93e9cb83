// Package storage provides a local Postgres mirror of Completed Trades
// for operator queries (daily P&L, win rate, equity curve). It is not the
// system of record — internal/store's DynamoDB gateway is — and a write
// failure here never blocks or rolls back a position close.
package storage

import "time"

// TradeRecord mirrors one position.CompletedTrade for the audit store and
// for internal/analytics, which works over slices of this type rather
// than importing internal/position directly.
type TradeRecord struct {
	Ticker     string
	Indicator  string
	Direction  string
	EntryPrice float64
	ExitPrice  float64
	EntryTime  time.Time
	ExitTime   time.Time
	PnLDollars float64
	PnLPercent float64
	EntryReason string
	ExitReason string
}
