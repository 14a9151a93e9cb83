package position

import (
	"testing"
	"time"

	"github.com/kestrel-labs/daytrader-engine/internal/indicators"
)

func indicatorsSnapshot() indicators.Snapshot {
	return indicators.Snapshot{}
}

func TestNewActivePosition_BreakevenAccountsForSpread(t *testing.T) {
	now := time.Now()
	longPos := NewActivePosition("AAPL", "momentum", Long, 100, 1.0, -1.5, 1000, indicatorsSnapshot(), now)
	if got, want := longPos.BreakevenPrice, 101.0; !almostEqual(got, want) {
		t.Errorf("expected long breakeven %v, got %v", want, got)
	}

	shortPos := NewActivePosition("AAPL", "momentum", Short, 100, 1.0, -1.5, 1000, indicatorsSnapshot(), now)
	if got, want := shortPos.BreakevenPrice, 99.0; !almostEqual(got, want) {
		t.Errorf("expected short breakeven %v, got %v", want, got)
	}
}

func TestUpdatePeak_LongMonotonicallyImproves(t *testing.T) {
	p := NewActivePosition("AAPL", "momentum", Long, 100, 0, -1.5, 1000, indicatorsSnapshot(), time.Now())
	p.UpdatePeak(105)
	if p.PeakPrice != 105 {
		t.Fatalf("expected peak 105, got %v", p.PeakPrice)
	}
	firstPeakProfit := p.PeakProfitPct
	p.UpdatePeak(102) // a pullback must not move the peak backwards
	if p.PeakPrice != 105 {
		t.Errorf("expected peak to remain 105 after pullback, got %v", p.PeakPrice)
	}
	if p.PeakProfitPct != firstPeakProfit {
		t.Errorf("expected peak profit pct unchanged on pullback")
	}
}

func TestUpdatePeak_ShortMonotonicallyImproves(t *testing.T) {
	p := NewActivePosition("AAPL", "momentum", Short, 100, 0, -1.5, 1000, indicatorsSnapshot(), time.Now())
	p.UpdatePeak(95)
	if p.PeakPrice != 95 {
		t.Fatalf("expected peak 95, got %v", p.PeakPrice)
	}
	p.UpdatePeak(98) // adverse move for a short must not move the peak
	if p.PeakPrice != 95 {
		t.Errorf("expected peak to remain 95, got %v", p.PeakPrice)
	}
}

func TestClose_PnLForLongAndShort(t *testing.T) {
	now := time.Now()
	longPos := NewActivePosition("AAPL", "momentum", Long, 100, 0, -1.5, 1000, indicatorsSnapshot(), now)
	trade := longPos.Close(110, now.Add(time.Hour), "trailing_stop", indicatorsSnapshot())
	if !almostEqual(trade.PnLDollars, 100) { // 10 shares * $10 gain
		t.Errorf("expected long pnl 100, got %v", trade.PnLDollars)
	}
	if !trade.Success() {
		t.Error("expected profitable trade to report success")
	}

	shortPos := NewActivePosition("AAPL", "momentum", Short, 100, 0, -1.5, 1000, indicatorsSnapshot(), now)
	shortTrade := shortPos.Close(90, now.Add(time.Hour), "trailing_stop", indicatorsSnapshot())
	if !almostEqual(shortTrade.PnLDollars, 100) {
		t.Errorf("expected short pnl 100, got %v", shortTrade.PnLDollars)
	}
}

func TestClose_ExitTimestampNeverBeforeEntry(t *testing.T) {
	now := time.Now()
	p := NewActivePosition("AAPL", "momentum", Long, 100, 0, -1.5, 1000, indicatorsSnapshot(), now)
	trade := p.Close(101, now.Add(time.Minute), "eod", indicatorsSnapshot())
	if trade.ExitTime.Before(trade.EntryTime) {
		t.Error("expected exit timestamp >= entry timestamp")
	}
}

func almostEqual(a, b float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	return diff < 1e-9
}
