package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kestrel-labs/daytrader-engine/internal/indicators"
)

// TechSnapshot pairs a ticker with its indicator snapshot and the error (if
// any) that occurred while building it, so a single bad ticker never drops
// the rest of the batch.
type TechSnapshot struct {
	Ticker   string
	Snapshot indicators.Snapshot
	Trend    indicators.TrendMetrics
	Err      error
}

// subBatchSize is the sub-batch width within one cycle fetch.
const subBatchSize = 8

// barsLookback is how many bars are pulled to build one snapshot. It must
// cover the longest indicator window (MACD's 26+9) with room to spare.
const barsLookback = 60

// FetchTechSnapshots builds an indicator snapshot for every ticker in
// `tickers`, deduplicated and capped at MaxTickersPerCycle. It
// consults the Memory Governor before starting and between sub-batches:
// ShouldAbortFetch stops the whole fetch and returns what has been
// gathered so far; ShouldPauseFetch triggers a forced reclamation pass
// before the next sub-batch proceeds. Sub-batches run with bounded
// concurrency and a short pause between them, mirroring the teacher's
// dhan_data.go chunked-fetch idiom.
func (c *Client) FetchTechSnapshots(ctx context.Context, tickers []string) []TechSnapshot {
	deduped := dedupeTickers(tickers)
	if len(deduped) > MaxTickersPerCycle {
		if c.logger != nil {
			c.logger.Printf("[marketdata] capping cycle universe from %d to %d tickers", len(deduped), MaxTickersPerCycle)
		}
		deduped = deduped[:MaxTickersPerCycle]
	}

	var results []TechSnapshot
	if c.governor != nil && c.governor.ShouldAbortFetch() {
		if c.logger != nil {
			c.logger.Printf("[marketdata] aborting fetch before start: memory above abort threshold")
		}
		return results
	}

	limits := Limits{MaxConcurrentFetch: subBatchSize}
	if c.governor != nil {
		limits = c.governor.ConfiguredLimits()
	}
	batchSize := limits.MarketDataBatchSize
	if batchSize <= 0 {
		batchSize = subBatchSize
	}

	for start := 0; start < len(deduped); start += batchSize {
		end := start + batchSize
		if end > len(deduped) {
			end = len(deduped)
		}
		sub := deduped[start:end]

		if c.governor != nil && c.governor.ShouldAbortFetch() {
			if c.logger != nil {
				c.logger.Printf("[marketdata] aborting fetch mid-cycle at %d/%d tickers: memory above abort threshold", len(results), len(deduped))
			}
			return results
		}
		if c.governor != nil && c.governor.ShouldPauseFetch() {
			c.governor.ForceReclamation("marketdata-subbatch-pause")
		}

		results = append(results, c.fetchSubBatch(ctx, sub)...)

		if end < len(deduped) {
			time.Sleep(subBatchSleep)
		}
	}

	return results
}

func (c *Client) fetchSubBatch(ctx context.Context, tickers []string) []TechSnapshot {
	out := make([]TechSnapshot, len(tickers))
	var wg sync.WaitGroup
	for i, ticker := range tickers {
		wg.Add(1)
		go func(i int, ticker string) {
			defer wg.Done()
			out[i] = c.fetchOne(ctx, ticker)
		}(i, ticker)
	}
	wg.Wait()
	return out
}

func (c *Client) fetchOne(ctx context.Context, ticker string) TechSnapshot {
	bars, err := c.Bars(ctx, ticker, barsLookback)
	if err != nil {
		return TechSnapshot{Ticker: ticker, Err: fmt.Errorf("marketdata: snapshot %s: %w", ticker, err)}
	}
	if len(bars) == 0 {
		return TechSnapshot{Ticker: ticker, Err: fmt.Errorf("marketdata: snapshot %s: no bars", ticker)}
	}
	return TechSnapshot{
		Ticker:   ticker,
		Snapshot: indicators.BuildSnapshot(bars),
		Trend:    indicators.BuildTrendMetrics(bars, 0),
	}
}

func dedupeTickers(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, t := range tickers {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
