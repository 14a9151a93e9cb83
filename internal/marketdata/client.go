package marketdata

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// MemoryGovernor is the subset of memgov.Governor the batch fetcher
// consults before starting a fetch cycle and again between sub-batches.
type MemoryGovernor interface {
	ShouldPauseFetch() bool
	ShouldAbortFetch() bool
	ForceReclamation(context string)
	ConfiguredLimits() Limits
}

// Limits mirrors memgov.Limits without importing that package directly,
// keeping marketdata's dependency surface to just the interface it needs.
type Limits struct {
	MaxConcurrentFetch  int
	MaxConcurrentBatch  int
	DynamoDBBatchSize   int
	MarketDataBatchSize int
}

// MaxTickersPerCycle is the hard cap on deduplicated input tickers per
// fetch cycle.
const MaxTickersPerCycle = 25

// subBatchSleep is the short pause between sub-batches.
const subBatchSleep = 150 * time.Millisecond

// Client is the Market-Data Adapter. It wraps a resty client (retry count,
// retry wait, retry-on-5xx condition — grounded on
// 0xtitan6-polymarket-mm/internal/exchange/client.go) over the provider's
// REST surface, plus a per-ticker last-bar cache and bounded concurrency,
// following the teacher's dhan_data.go rate-limited-batch idiom.
type Client struct {
	http    *resty.Client
	baseURL string
	logger  *log.Logger
	governor MemoryGovernor

	mu    sync.Mutex
	cache map[string]Bar // last bar per ticker, written by Bars and cleared between ticks; no fetch path reads it, so snapshots are always rebuilt from fresh bars
}

// NewClient creates a Market-Data Adapter against the given provider base
// URL (e.g. Alpaca-shaped `/v2/stocks/...`).
func NewClient(baseURL, apiKeyHeader, apiKey string, governor MemoryGovernor, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "", log.LstdFlags)
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= 500
		})
	if apiKeyHeader != "" {
		httpClient.SetHeader(apiKeyHeader, apiKey)
	}

	return &Client{
		http:     httpClient,
		baseURL:  baseURL,
		logger:   logger,
		governor: governor,
		cache:    make(map[string]Bar),
	}
}

// ClearCycleCache clears the per-ticker last-bar cache; called by the
// Strategy Runner between ticks.
func (c *Client) ClearCycleCache() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[string]Bar)
}

type marketClockResponse struct {
	IsOpen bool `json:"is_open"`
}

// IsMarketOpen queries the provider's market-clock endpoint.
func (c *Client) IsMarketOpen(ctx context.Context) (bool, error) {
	var out marketClockResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/v2/clock")
	if err != nil {
		return false, fmt.Errorf("marketdata: market clock: %w", err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("marketdata: market clock returned %d", resp.StatusCode())
	}
	return out.IsOpen, nil
}

type quoteEnvelope struct {
	Quote struct {
		Quotes map[string]struct {
			BP float64 `json:"bp"`
			AP float64 `json:"ap"`
		} `json:"quotes"`
	} `json:"quote"`
}

// Quote fetches the latest quote for one ticker. Returns (nil, nil) if the
// provider has no quote for this symbol right now — absence is not an
// error.
func (c *Client) Quote(ctx context.Context, ticker string) (*Quote, error) {
	var out quoteEnvelope
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbols", ticker).
		SetResult(&out).
		Get("/v2/stocks/quotes/latest")
	if err != nil {
		return nil, fmt.Errorf("marketdata: quote %s: %w", ticker, err)
	}
	if resp.StatusCode() == http.StatusUnprocessableEntity || resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("marketdata: quote %s returned %d", ticker, resp.StatusCode())
	}

	q, ok := out.Quote.Quotes[ticker]
	if !ok {
		return nil, nil
	}
	quote := &Quote{Ticker: ticker, Bid: q.BP, Ask: q.AP}
	if !quote.Valid() {
		return nil, nil
	}
	return quote, nil
}

type barsEnvelope struct {
	Bars map[string][]struct {
		T string  `json:"t"`
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V int64   `json:"v"`
	} `json:"bars"`
	NextPageToken *string `json:"next_page_token"`
}

// Bars fetches up to `limit` 1-minute bars for one ticker, paginating via
// next_page_token until satisfied or the provider runs out of pages.
func (c *Client) Bars(ctx context.Context, ticker string, limit int) ([]Bar, error) {
	var bars []Bar
	pageToken := ""

	for len(bars) < limit {
		var out barsEnvelope
		req := c.http.R().
			SetContext(ctx).
			SetQueryParam("symbols", ticker).
			SetQueryParam("timeframe", "1Min").
			SetQueryParam("limit", fmt.Sprintf("%d", limit)).
			SetQueryParam("adjustment", "raw").
			SetQueryParam("feed", "sip").
			SetQueryParam("sort", "asc").
			SetResult(&out)
		if pageToken != "" {
			req.SetQueryParam("page_token", pageToken)
		}

		resp, err := req.Get("/v2/stocks/bars")
		if err != nil {
			return nil, fmt.Errorf("marketdata: bars %s: %w", ticker, err)
		}
		if resp.StatusCode() == http.StatusUnprocessableEntity {
			return bars, nil
		}
		if resp.IsError() {
			return nil, fmt.Errorf("marketdata: bars %s returned %d", ticker, resp.StatusCode())
		}

		for _, b := range out.Bars[ticker] {
			ts, perr := time.Parse(time.RFC3339, b.T)
			if perr != nil {
				continue
			}
			bars = append(bars, Bar{Timestamp: ts, Open: b.O, High: b.H, Low: b.L, Close: b.C, Volume: b.V})
		}

		if out.NextPageToken == nil || *out.NextPageToken == "" {
			break
		}
		pageToken = *out.NextPageToken
	}

	if len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	if len(bars) > 0 {
		c.mu.Lock()
		c.cache[ticker] = bars[len(bars)-1]
		c.mu.Unlock()
	}
	return bars, nil
}

type screenerResponse struct {
	MostActives []string `json:"most_actives"`
	Gainers     []string `json:"gainers"`
	Losers      []string `json:"losers"`
}

// ScreenerUniverse fetches the current most-active/gainers/losers sets.
func (c *Client) ScreenerUniverse(ctx context.Context) (Screener, error) {
	var out screenerResponse
	resp, err := c.http.R().SetContext(ctx).SetResult(&out).Get("/v1beta1/screener/stocks/movers")
	if err != nil {
		return Screener{}, fmt.Errorf("marketdata: screener: %w", err)
	}
	if resp.IsError() {
		return Screener{}, fmt.Errorf("marketdata: screener returned %d", resp.StatusCode())
	}
	return Screener{MostActive: out.MostActives, Gainers: out.Gainers, Losers: out.Losers}, nil
}
