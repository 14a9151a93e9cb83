package marketdata

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/kestrel-labs/daytrader-engine/internal/indicators"
)

func TestQuote_MidAndSpread(t *testing.T) {
	q := Quote{Ticker: "AAPL", Bid: 99.0, Ask: 101.0}
	if q.Mid() != 100.0 {
		t.Errorf("expected mid 100.0, got %v", q.Mid())
	}
	if got := q.SpreadPct(); got < 1.99 || got > 2.01 {
		t.Errorf("expected spread ~2%%, got %v", got)
	}
}

func TestQuote_ValidRejectsNonPositiveSides(t *testing.T) {
	cases := []Quote{
		{Bid: 0, Ask: 10},
		{Bid: 10, Ask: 0},
		{Bid: -1, Ask: 10},
	}
	for _, q := range cases {
		if q.Valid() {
			t.Errorf("expected %+v to be invalid", q)
		}
	}
	if !(Quote{Bid: 10, Ask: 10.5}).Valid() {
		t.Error("expected positive two-sided quote to be valid")
	}
}

func TestDedupeTickers(t *testing.T) {
	in := []string{"AAPL", "MSFT", "AAPL", "TSLA", "MSFT"}
	out := dedupeTickers(in)
	if len(out) != 3 {
		t.Fatalf("expected 3 unique tickers, got %d: %v", len(out), out)
	}
}

// stubGovernor lets tests force pause/abort behavior deterministically
// without sampling real process memory.
type stubGovernor struct {
	pause, abort bool
	reclaimed    int
	limits       Limits
}

func (s *stubGovernor) ShouldPauseFetch() bool          { return s.pause }
func (s *stubGovernor) ShouldAbortFetch() bool          { return s.abort }
func (s *stubGovernor) ForceReclamation(context string) { s.reclaimed++ }
func (s *stubGovernor) ConfiguredLimits() Limits        { return s.limits }

func TestFetchTechSnapshots_AbortsBeforeStart(t *testing.T) {
	gov := &stubGovernor{abort: true}
	c := NewClient("http://example.invalid", "", "", gov, nil)

	results := c.FetchTechSnapshots(context.Background(), []string{"AAPL", "MSFT"})
	if len(results) != 0 {
		t.Errorf("expected no snapshots when aborting before start, got %d", len(results))
	}
}

func TestFetchTechSnapshots_CapsAtMaxTickersPerCycle(t *testing.T) {
	tickers := make([]string, 0, MaxTickersPerCycle+10)
	for i := 0; i < MaxTickersPerCycle+10; i++ {
		tickers = append(tickers, indicatorsBar(i))
	}

	var logBuf bytes.Buffer
	gov := &stubGovernor{abort: true} // abort immediately so no network call is attempted
	c := NewClient("http://example.invalid", "", "", gov, log.New(&logBuf, "", 0))
	results := c.FetchTechSnapshots(context.Background(), tickers)
	if len(results) != 0 {
		t.Fatalf("expected abort to short-circuit before any fetch, got %d", len(results))
	}
	if !strings.Contains(logBuf.String(), fmt.Sprintf("to %d tickers", MaxTickersPerCycle)) {
		t.Errorf("expected cycle universe capped at %d tickers, log was %q", MaxTickersPerCycle, logBuf.String())
	}
}

func indicatorsBar(i int) string {
	return "T" + string(rune('A'+i%26))
}

func TestClient_ClearCycleCache(t *testing.T) {
	c := NewClient("http://example.invalid", "", "", nil, nil)
	c.cache["AAPL"] = indicators.Bar{Timestamp: time.Now(), Close: 100}
	c.ClearCycleCache()
	if len(c.cache) != 0 {
		t.Error("expected cache cleared")
	}
}
