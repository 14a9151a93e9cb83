package runner

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/kestrel-labs/daytrader-engine/internal/calendar"
	"github.com/kestrel-labs/daytrader-engine/internal/exitengine"
	"github.com/kestrel-labs/daytrader-engine/internal/indicators"
	"github.com/kestrel-labs/daytrader-engine/internal/mab"
	"github.com/kestrel-labs/daytrader-engine/internal/marketdata"
	"github.com/kestrel-labs/daytrader-engine/internal/position"
	"github.com/kestrel-labs/daytrader-engine/internal/store"
	"github.com/kestrel-labs/daytrader-engine/internal/strategy"
	"github.com/kestrel-labs/daytrader-engine/internal/validate"
)

type fakeMarket struct {
	open      bool
	screener  marketdata.Screener
	snapshots map[string]marketdata.TechSnapshot
	quotes    map[string]marketdata.Quote
}

func (f *fakeMarket) IsMarketOpen(ctx context.Context) (bool, error) { return f.open, nil }
func (f *fakeMarket) ScreenerUniverse(ctx context.Context) (marketdata.Screener, error) {
	return f.screener, nil
}
func (f *fakeMarket) FetchTechSnapshots(ctx context.Context, tickers []string) []marketdata.TechSnapshot {
	var out []marketdata.TechSnapshot
	for _, t := range tickers {
		if s, ok := f.snapshots[t]; ok {
			out = append(out, s)
		}
	}
	return out
}
func (f *fakeMarket) Quote(ctx context.Context, ticker string) (*marketdata.Quote, error) {
	q, ok := f.quotes[ticker]
	if !ok {
		return nil, nil
	}
	return &q, nil
}
func (f *fakeMarket) ClearCycleCache() {}

type fakeSelector struct {
	resetCalls   []string
	excludeCalls []string
}

func (f *fakeSelector) Select(ctx context.Context, indicator string, candidates []mab.Candidate, topK int) (mab.SelectionResult, error) {
	result := mab.SelectionResult{Rejected: make(map[string][2]string)}
	for i, c := range candidates {
		if i < topK {
			result.Selected = append(result.Selected, c.Ticker)
		} else {
			result.Rejected[c.Ticker] = [2]string{"not in top-k", ""}
		}
	}
	return result, nil
}
func (f *fakeSelector) ResetDaily(ctx context.Context, indicator string) error {
	f.resetCalls = append(f.resetCalls, indicator)
	return nil
}
func (f *fakeSelector) Exclude(ctx context.Context, indicator, ticker string, duration time.Duration) error {
	f.excludeCalls = append(f.excludeCalls, ticker)
	return nil
}

type fakeLifecycle struct {
	active         []position.ActivePosition
	opened         []position.ActivePosition
	exited         []position.CompletedTrade
	dailyCount     int
	failOpen       bool
	persistedPeaks []position.ActivePosition
}

func (f *fakeLifecycle) Open(ctx context.Context, pos position.ActivePosition, reason string) error {
	if f.failOpen {
		return errors.New("open failed")
	}
	pos.EntryReason = reason
	f.opened = append(f.opened, pos)
	f.active = append(f.active, pos)
	return nil
}

func (f *fakeLifecycle) Exit(ctx context.Context, pos position.ActivePosition, exitPrice float64, exitTime time.Time, exitReason string, exitSnapshot indicators.Snapshot) (position.CompletedTrade, error) {
	trade := pos.Close(exitPrice, exitTime, exitReason, exitSnapshot)
	f.exited = append(f.exited, trade)
	var remaining []position.ActivePosition
	for _, p := range f.active {
		if p.Ticker != pos.Ticker {
			remaining = append(remaining, p)
		}
	}
	f.active = remaining
	return trade, nil
}

func (f *fakeLifecycle) ActivePositionsFor(ctx context.Context, indicator string) ([]position.ActivePosition, error) {
	var out []position.ActivePosition
	for _, p := range f.active {
		if p.Indicator == indicator {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeLifecycle) CompletedTradeCountFor(ctx context.Context, indicator, date string) (int, error) {
	return f.dailyCount, nil
}

func (f *fakeLifecycle) PersistPeak(ctx context.Context, pos position.ActivePosition) error {
	f.persistedPeaks = append(f.persistedPeaks, pos)
	for i, p := range f.active {
		if p.Ticker == pos.Ticker {
			f.active[i].PeakPrice = pos.PeakPrice
			f.active[i].PeakProfitPct = pos.PeakProfitPct
		}
	}
	return nil
}

type fakeAudit struct {
	written []map[string]interface{}
}

func (f *fakeAudit) BatchPut(ctx context.Context, table string, items []map[string]interface{}) store.Outcome {
	f.written = append(f.written, items...)
	return store.Outcome{}
}

func testCalendar() *calendar.Calendar {
	return calendar.NewCalendarFromHolidays(nil)
}

func testLogger() *log.Logger {
	return log.New(log.Writer(), "", 0)
}

// passingSnapshot builds a TechSnapshot whose indicator values clear every
// validation rule for a strong long candidate.
func passingSnapshot(ticker string, momentum float64) marketdata.TechSnapshot {
	return marketdata.TechSnapshot{
		Ticker: ticker,
		Snapshot: indicators.Snapshot{
			Close:           20,
			Volume:          1_000_000,
			VolumeSMA:       500_000,
			ADX:             35,
			RSI:             55,
			ATR:             1,
			BollingerUpper:  25,
			BollingerLower:  15,
			RecentCloses:    make([]indicators.ClosePoint, 20),
		},
		Trend: indicators.TrendMetrics{
			MomentumScore:     momentum,
			ContinuationScore: 0.9,
			PeakPrice:         100,
			BottomPrice:       1,
		},
	}
}

func testValidationConfig() validate.Config {
	return validate.Config{
		MinBars:              5,
		MinPrice:              1,
		MaxSpreadPct:          2,
		MinAbsoluteVolume:    1000,
		MinRelativeVolume:    0,
		MaxATRPct:            50,
		LowPriceThreshold:    1,
		MaxATRPctLowPriced:   50,
		MinADXForLong:        10,
		OverboughtMomentum:   50,
		MeanReversionBandPct: 5,
		MinContinuationScore: 0.1,
		ProximityThreshold:   2,
	}
}

func newTestRunner(s strategy.Strategy, market *fakeMarket, sel *fakeSelector, lc *fakeLifecycle, audit *fakeAudit) *Runner {
	return New(s, market, validate.NewPipeline(testValidationConfig()), sel, exitengine.New(s.ExitConfig()), lc, testCalendar(), audit, testLogger())
}

func TestEntryTick_OpensPositionForPassingCandidate(t *testing.T) {
	s := strategy.NewMomentum()
	market := &fakeMarket{
		open:     true,
		screener: marketdata.Screener{MostActive: []string{"AAPL"}},
		snapshots: map[string]marketdata.TechSnapshot{
			"AAPL": passingSnapshot("AAPL", 15),
		},
		quotes: map[string]marketdata.Quote{
			"AAPL": {Ticker: "AAPL", Bid: 19.98, Ask: 20.02},
		},
	}
	sel := &fakeSelector{}
	lc := &fakeLifecycle{}
	audit := &fakeAudit{}
	r := newTestRunner(s, market, sel, lc, audit)

	r.entryTick(context.Background())

	if len(lc.opened) != 1 || lc.opened[0].Ticker != "AAPL" {
		t.Fatalf("expected AAPL opened, got %+v", lc.opened)
	}
	if lc.opened[0].Direction != position.Long {
		t.Errorf("expected long direction for positive momentum, got %v", lc.opened[0].Direction)
	}
}

func TestEntryTick_MarketClosedSkipsEverything(t *testing.T) {
	s := strategy.NewMomentum()
	market := &fakeMarket{open: false}
	sel := &fakeSelector{}
	lc := &fakeLifecycle{}
	audit := &fakeAudit{}
	r := newTestRunner(s, market, sel, lc, audit)

	r.entryTick(context.Background())

	if len(lc.opened) != 0 {
		t.Errorf("expected no positions opened while market closed, got %+v", lc.opened)
	}
}

func TestEntryTick_DailyCapBlocksNonGoldenButAllowsGolden(t *testing.T) {
	s := strategy.NewMomentum()
	market := &fakeMarket{
		open:     true,
		screener: marketdata.Screener{MostActive: []string{"AAPL"}},
		snapshots: map[string]marketdata.TechSnapshot{
			// Exceptional momentum (12.0) plus strong ADX/RSI clears
			// Momentum.IsGolden's stricter bar.
			"AAPL": passingSnapshot("AAPL", 20),
		},
		quotes: map[string]marketdata.Quote{
			"AAPL": {Ticker: "AAPL", Bid: 19.98, Ask: 20.02},
		},
	}
	sel := &fakeSelector{}
	lc := &fakeLifecycle{dailyCount: 999}
	audit := &fakeAudit{}
	r := newTestRunner(s, market, sel, lc, audit)

	r.entryTick(context.Background())

	if len(lc.opened) != 1 {
		t.Fatalf("expected golden ticker to bypass daily cap, got %+v", lc.opened)
	}
}

func TestEntryTick_RejectedCandidateAuditedNotOpened(t *testing.T) {
	s := strategy.NewMomentum()
	market := &fakeMarket{
		open:     true,
		screener: marketdata.Screener{MostActive: []string{"THIN"}},
		snapshots: map[string]marketdata.TechSnapshot{
			"THIN": {
				Ticker:   "THIN",
				Snapshot: indicators.Snapshot{Close: 20, Volume: 10, VolumeSMA: 500_000, ADX: 35, RecentCloses: make([]indicators.ClosePoint, 20)},
				Trend:    indicators.TrendMetrics{MomentumScore: 5, ContinuationScore: 0.9},
			},
		},
		quotes: map[string]marketdata.Quote{
			"THIN": {Ticker: "THIN", Bid: 19.98, Ask: 20.02},
		},
	}
	sel := &fakeSelector{}
	lc := &fakeLifecycle{}
	audit := &fakeAudit{}
	r := newTestRunner(s, market, sel, lc, audit)

	r.entryTick(context.Background())

	if len(lc.opened) != 0 {
		t.Errorf("expected low-volume candidate rejected, got %+v", lc.opened)
	}
	if len(audit.written) == 0 {
		t.Error("expected a rejection audit entry")
	}
}

func TestExitTick_ExitsOnDecision(t *testing.T) {
	s := strategy.NewMomentum()
	pos := position.NewActivePosition("AAPL", "momentum", position.Long, 100, 0.1, -1.5, 1000, indicators.Snapshot{}, time.Now().Add(-time.Hour))
	market := &fakeMarket{
		open:   true,
		quotes: map[string]marketdata.Quote{"AAPL": {Ticker: "AAPL", Bid: 89, Ask: 89.2}},
	}
	sel := &fakeSelector{}
	lc := &fakeLifecycle{active: []position.ActivePosition{pos}}
	audit := &fakeAudit{}
	r := newTestRunner(s, market, sel, lc, audit)

	r.exitTick(context.Background())

	if len(lc.exited) != 1 {
		t.Fatalf("expected one exit on emergency-stop breach, got %+v", lc.exited)
	}
	if len(lc.active) != 0 {
		t.Error("expected position removed from active set after exit")
	}
}

func TestExitTick_PersistsPeakAcrossTicksWithoutExiting(t *testing.T) {
	s := strategy.NewMomentum()
	pos := position.NewActivePosition("AAPL", "momentum", position.Long, 100, 0.1, -5, 1000, indicators.Snapshot{}, time.Now().Add(-30*time.Second))
	market := &fakeMarket{
		open:   true,
		quotes: map[string]marketdata.Quote{"AAPL": {Ticker: "AAPL", Bid: 100.9, Ask: 101.1}},
	}
	sel := &fakeSelector{}
	lc := &fakeLifecycle{active: []position.ActivePosition{pos}}
	audit := &fakeAudit{}
	r := newTestRunner(s, market, sel, lc, audit)

	r.exitTick(context.Background())
	if len(lc.exited) != 0 {
		t.Fatalf("expected no exit on first tick, got %+v", lc.exited)
	}
	if len(lc.persistedPeaks) != 1 {
		t.Fatalf("expected peak persisted after first tick, got %d calls", len(lc.persistedPeaks))
	}
	firstPeak := lc.persistedPeaks[0].PeakPrice

	market.quotes["AAPL"] = marketdata.Quote{Ticker: "AAPL", Bid: 101.9, Ask: 102.1}
	r.exitTick(context.Background())
	if len(lc.exited) != 0 {
		t.Fatalf("expected no exit on second tick, got %+v", lc.exited)
	}
	if len(lc.persistedPeaks) != 2 {
		t.Fatalf("expected peak persisted again after second tick, got %d calls", len(lc.persistedPeaks))
	}
	secondPeak := lc.persistedPeaks[1].PeakPrice

	if secondPeak <= firstPeak {
		t.Errorf("expected persisted peak to advance across ticks, first=%.2f second=%.2f", firstPeak, secondPeak)
	}
	if lc.active[0].PeakPrice != secondPeak {
		t.Errorf("expected the stored active position to reflect the advanced peak, got %.2f want %.2f", lc.active[0].PeakPrice, secondPeak)
	}
}

func TestAfterClose_PennyStocksBenchesLoser(t *testing.T) {
	s := strategy.NewPennyStocks()
	sel := &fakeSelector{}
	lc := &fakeLifecycle{}
	r := newTestRunner(s, &fakeMarket{}, sel, lc, &fakeAudit{})

	trade := position.CompletedTrade{Ticker: "TINY", PnLDollars: -5}
	r.afterClose(context.Background(), trade)

	if !r.isBenched("TINY") {
		t.Error("expected penny-stock loser benched")
	}
	if len(sel.excludeCalls) != 1 || sel.excludeCalls[0] != "TINY" {
		t.Errorf("expected mab exclude called for TINY, got %v", sel.excludeCalls)
	}
}

func TestAfterClose_MomentumDoesNotBenchLoser(t *testing.T) {
	s := strategy.NewMomentum()
	sel := &fakeSelector{}
	lc := &fakeLifecycle{}
	r := newTestRunner(s, &fakeMarket{}, sel, lc, &fakeAudit{})

	trade := position.CompletedTrade{Ticker: "AAPL", PnLDollars: -5}
	r.afterClose(context.Background(), trade)

	if r.isBenched("AAPL") {
		t.Error("expected momentum strategy not to bench losers")
	}
	if len(sel.excludeCalls) != 0 {
		t.Errorf("expected no exclude call, got %v", sel.excludeCalls)
	}
}

func TestMaybeResetDaily_OncePerDay(t *testing.T) {
	s := strategy.NewMomentum()
	sel := &fakeSelector{}
	r := newTestRunner(s, &fakeMarket{}, sel, &fakeLifecycle{}, &fakeAudit{})

	r.maybeResetDaily(context.Background(), "2026-07-31")
	r.maybeResetDaily(context.Background(), "2026-07-31")
	r.maybeResetDaily(context.Background(), "2026-08-01")

	if len(sel.resetCalls) != 2 {
		t.Errorf("expected one reset per distinct day, got %d calls", len(sel.resetCalls))
	}
}
