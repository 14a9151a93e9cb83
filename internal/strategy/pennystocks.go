// Package strategy - pennystocks.go implements the Penny Stocks
// day-trading profile: low-priced, high-relative-volume names held for a
// short window with a stricter spread ceiling, grounded on
// original_source/app/src/config/simplified_validation_config.py's
// MAX_BID_ASK_SPREAD/RECENT_BARS_COUNT defaults and
// penny_stocks_indicator.py's losing-ticker benching behavior.
package strategy

import (
	"time"

	"github.com/kestrel-labs/daytrader-engine/internal/exitengine"
	"github.com/kestrel-labs/daytrader-engine/internal/indicators"
	"github.com/kestrel-labs/daytrader-engine/internal/validate"
)

// PennyStocks is the simplified penny-stock day-trading strategy.
type PennyStocks struct {
	MaxBidAskSpreadPct  float64
	RecentBarsCount     int
	GoldenMomentum      float64
	ExceptionalMomentum float64
}

// NewPennyStocks creates the PennyStocks strategy with its default
// thresholds, matching SimplifiedValidationConfig's defaults
// (MAX_BID_ASK_SPREAD=2.0, RECENT_BARS_COUNT=5).
func NewPennyStocks() *PennyStocks {
	return &PennyStocks{
		MaxBidAskSpreadPct:  2.0,
		RecentBarsCount:     5,
		GoldenMomentum:      6.0,
		ExceptionalMomentum: 10.0,
	}
}

func (p *PennyStocks) Name() string { return "penny_stocks" }

func (p *PennyStocks) Thresholds() Thresholds {
	return Thresholds{
		EntryTickInterval:            20 * time.Second,
		ExitTickInterval:             10 * time.Second,
		MaxActivePositions:           8,
		MaxDailyTrades:               40,
		TopK:                         5,
		CooldownDuration:             5 * time.Minute,
		GoldenMomentumThreshold:      p.GoldenMomentum,
		ExceptionalMomentumThreshold: p.ExceptionalMomentum,
		PreemptionProfitThreshold:    0.5,
		PositionDollars:              300,
	}
}

func (p *PennyStocks) ValidationConfig() validate.Config {
	return validate.Config{
		MinBars:              p.RecentBarsCount,
		MinPrice:              0.5,
		MaxSpreadPct:          p.MaxBidAskSpreadPct,
		MinAbsoluteVolume:    200000,
		MinRelativeVolume:    1.5,
		MaxATRPct:            15,
		LowPriceThreshold:    2,
		MaxATRPctLowPriced:   10,
		MinADXForLong:        15,
		OverboughtMomentum:   p.ExceptionalMomentum,
		MeanReversionBandPct: 10,
		MinContinuationScore: 0.2,
		ProximityThreshold:   1.12,
	}
}

func (p *PennyStocks) ExitConfig() exitengine.Config {
	return exitengine.Config{
		EmergencyStopPct:            -5.0,
		MinHoldingSeconds:           30,
		EODMinutes:                  10,
		HoldLosersOverClose:         false,
		TrailingActivationThreshold: 1.0,
		TrailingCooldownSeconds:     120,
		ATRStopPct:                  -2.0,
		ConsecutiveChecksRequired:   2,
		MaxHoldingSeconds:           30 * 60,
	}
}

// IsGolden mirrors Momentum's bar but at the Penny strategy's looser
// thresholds, reflecting its higher trade cadence.
func (p *PennyStocks) IsGolden(snap indicators.Snapshot, trend indicators.TrendMetrics) bool {
	abs := trend.MomentumScore
	if abs < 0 {
		abs = -abs
	}
	return abs >= p.ExceptionalMomentum && trend.ContinuationScore >= 0.6
}

// BenchesLosersOnClose is true for the Penny strategy: closing a trade
// at a loss adds the ticker to an in-memory bench set and requests its
// exclusion from the MAB selector for the rest of the day.
func (p *PennyStocks) BenchesLosersOnClose() bool { return true }

// ApplyThresholdOverride updates the golden/exceptional momentum bars in
// place, letting the config hot-reload watcher retune entry strictness
// without restarting the strategy's runner.
func (p *PennyStocks) ApplyThresholdOverride(golden, exceptional float64) {
	p.GoldenMomentum = golden
	p.ExceptionalMomentum = exceptional
}
