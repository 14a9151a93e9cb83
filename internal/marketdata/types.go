// Package marketdata is the Market-Data Adapter: quotes, historical
// bars, the market-open check, the ticker screener, and the
// memory-governed batch snapshot fetcher, grounded on the teacher's
// internal/market/dhan_data.go HTTP-client idiom (manual rate-limiting,
// chunked requests, per-ticker error isolation) layered with resty for
// retry/backoff.
package marketdata

import "github.com/kestrel-labs/daytrader-engine/internal/indicators"

// Quote is a top-of-book bid/ask snapshot for one ticker.
type Quote struct {
	Ticker string
	Bid    float64
	Ask    float64
}

// Mid is the midpoint price.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// SpreadPct is the bid-ask spread as a percentage of the midpoint.
func (q Quote) SpreadPct() float64 {
	mid := q.Mid()
	if mid == 0 {
		return 0
	}
	return (q.Ask - q.Bid) / mid * 100
}

// Valid reports whether both sides of the quote are positive; a quote
// with either side at or below zero is never usable.
func (q Quote) Valid() bool {
	return q.Bid > 0 && q.Ask > 0
}

// Screener is the universe of candidate tickers for one cycle.
type Screener struct {
	MostActive []string
	Gainers    []string
	Losers     []string
}

// Bar re-exports indicators.Bar so callers of this package don't need to
// import internal/indicators directly for the basic OHLCV type.
type Bar = indicators.Bar
