package validate

import (
	"testing"

	"github.com/kestrel-labs/daytrader-engine/internal/indicators"
	"github.com/kestrel-labs/daytrader-engine/internal/marketdata"
)

func baseConfig() Config {
	return Config{
		MinBars:              5,
		MinPrice:             1.0,
		MaxSpreadPct:         2.0,
		MinAbsoluteVolume:    1000,
		MinRelativeVolume:    0,
		MaxATRPct:            10,
		LowPriceThreshold:    5,
		MaxATRPctLowPriced:   5,
		MinADXForLong:        15,
		OverboughtMomentum:   5,
		MeanReversionBandPct: 10,
		MinContinuationScore: 0.2,
		ProximityThreshold:   1.5,
	}
}

func baseSnapshot() indicators.Snapshot {
	return indicators.Snapshot{
		Close:           10,
		Volume:          5000,
		VolumeSMA:       4000,
		ATR:             0.2,
		ADX:             20,
		BollingerUpper:  11,
		BollingerMiddle: 10,
		BollingerLower:  9,
	}
}

func bars(n int) []marketdata.Bar {
	out := make([]marketdata.Bar, n)
	return out
}

func TestEvaluate_PositiveMomentumPassesLongOnly(t *testing.T) {
	cfg := baseConfig()
	snap := baseSnapshot()
	quote := marketdata.Quote{Ticker: "AAPL", Bid: 9.99, Ask: 10.01}
	trend := indicators.TrendMetrics{MomentumScore: 1, ContinuationScore: 0.5, PeakPrice: 10.5, BottomPrice: 9.5}

	p := NewPipeline(cfg)
	out := p.Evaluate(snap, quote, bars(10), trend)
	if !out.ValidLong() {
		t.Errorf("expected long valid, got %+v", out)
	}
	if out.ValidShort() {
		t.Errorf("expected short rejected by the trend rule on positive momentum, got %+v", out)
	}
}

func TestEvaluate_SecurityTypeRejectionIsSymmetric(t *testing.T) {
	cfg := baseConfig()
	snap := baseSnapshot()
	quote := marketdata.Quote{Ticker: "ABCW", Bid: 9.99, Ask: 10.01}
	trend := indicators.TrendMetrics{MomentumScore: 1, ContinuationScore: 0.5, PeakPrice: 10.5, BottomPrice: 9.5}

	p := NewPipeline(cfg)
	out := p.Evaluate(snap, quote, bars(10), trend)
	if out.ValidLong() || out.ValidShort() {
		t.Fatalf("expected warrant-suffix ticker rejected both directions, got %+v", out)
	}
	if !out.Symmetric() {
		t.Errorf("expected symmetric rejection, got %+v", out)
	}
}

func TestEvaluate_PriceFloorRejectionIsSymmetric(t *testing.T) {
	cfg := baseConfig()
	snap := baseSnapshot()
	snap.Close = 0.5
	quote := marketdata.Quote{Ticker: "PENY", Bid: 0.49, Ask: 0.51}
	trend := indicators.TrendMetrics{}

	p := NewPipeline(cfg)
	out := p.Evaluate(snap, quote, bars(10), trend)
	if !out.Symmetric() || out.ValidLong() {
		t.Errorf("expected symmetric price-floor rejection, got %+v", out)
	}
}

func TestEvaluate_DataQualityShortCircuitsBeforeLaterRules(t *testing.T) {
	cfg := baseConfig()
	snap := baseSnapshot()
	quote := marketdata.Quote{Ticker: "AAPL", Bid: 9.99, Ask: 10.01}
	trend := indicators.TrendMetrics{}

	p := NewPipeline(cfg)
	out := p.Evaluate(snap, quote, bars(2), trend) // below MinBars
	if !out.Symmetric() {
		t.Errorf("expected data-quality rejection (symmetric), got %+v", out)
	}
}

func TestEvaluate_TrendMomentumRejectionIsAsymmetric(t *testing.T) {
	cfg := baseConfig()
	snap := baseSnapshot()
	quote := marketdata.Quote{Ticker: "AAPL", Bid: 9.99, Ask: 10.01}
	// Negative momentum: long should be rejected, short should pass this rule.
	trend := indicators.TrendMetrics{MomentumScore: -1, ContinuationScore: 0.5, PeakPrice: 10.5, BottomPrice: 9.5}

	p := NewPipeline(cfg)
	out := p.Evaluate(snap, quote, bars(10), trend)
	if out.ValidLong() {
		t.Fatal("expected long rejected on negative momentum")
	}
	if out.ReasonNotToEnterShort != "" {
		t.Errorf("expected short direction untouched by this asymmetric rule, got %q", out.ReasonNotToEnterShort)
	}
}

func TestEvaluate_MeanReversionGuardAsymmetric(t *testing.T) {
	cfg := baseConfig()
	snap := baseSnapshot()
	snap.Close = 10.95 // near the upper band (top 10% of width)
	quote := marketdata.Quote{Ticker: "AAPL", Bid: 10.94, Ask: 10.96}
	trend := indicators.TrendMetrics{MomentumScore: 1, ContinuationScore: 0.5, PeakPrice: 20, BottomPrice: 1}

	p := NewPipeline(cfg)
	out := p.Evaluate(snap, quote, bars(10), trend)
	if out.ValidLong() {
		t.Fatal("expected long rejected near upper Bollinger band")
	}
	if out.ReasonNotToEnterShort != "" {
		t.Errorf("expected short untouched, got %q", out.ReasonNotToEnterShort)
	}
}
