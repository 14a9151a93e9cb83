// Package strategy - momentum.go implements the Momentum day-trading
// profile: top-of-book momentum names confirmed by trend strength (ADX)
// and RSI band, held for a tighter window than the Penny profile.
// Thresholds are grounded on
// original_source/app/src/services/trading/momentum_indicator.py's entry
// gating and the tiered trailing-stop table it shares with the other
// strategy profile.
package strategy

import (
	"time"

	"github.com/kestrel-labs/daytrader-engine/internal/exitengine"
	"github.com/kestrel-labs/daytrader-engine/internal/indicators"
	"github.com/kestrel-labs/daytrader-engine/internal/validate"
)

// Momentum is the momentum day-trading strategy.
type Momentum struct {
	MinADX               float64
	RSILow, RSIHigh      float64
	GoldenMomentum       float64
	ExceptionalMomentum  float64
}

// NewMomentum creates the Momentum strategy with its default thresholds.
func NewMomentum() *Momentum {
	return &Momentum{
		MinADX:              20,
		RSILow:              40,
		RSIHigh:             70,
		GoldenMomentum:       8.0,
		ExceptionalMomentum: 12.0,
	}
}

func (m *Momentum) Name() string { return "momentum" }

func (m *Momentum) Thresholds() Thresholds {
	return Thresholds{
		EntryTickInterval:            30 * time.Second,
		ExitTickInterval:             15 * time.Second,
		MaxActivePositions:           5,
		MaxDailyTrades:               20,
		TopK:                         3,
		CooldownDuration:             10 * time.Minute,
		GoldenMomentumThreshold:      m.GoldenMomentum,
		ExceptionalMomentumThreshold: m.ExceptionalMomentum,
		PreemptionProfitThreshold:    1.0,
		PositionDollars:              1000,
	}
}

func (m *Momentum) ValidationConfig() validate.Config {
	return validate.Config{
		MinBars:              20,
		MinPrice:             5.0,
		MaxSpreadPct:         1.0,
		MinAbsoluteVolume:    50000,
		MinRelativeVolume:    1.2,
		MaxATRPct:            8,
		LowPriceThreshold:    10,
		MaxATRPctLowPriced:   5,
		MinADXForLong:        m.MinADX,
		OverboughtMomentum:   m.ExceptionalMomentum,
		MeanReversionBandPct: 10,
		MinContinuationScore: 0.3,
		ProximityThreshold:   1.08,
	}
}

func (m *Momentum) ExitConfig() exitengine.Config {
	return exitengine.Config{
		EmergencyStopPct:            -3.0,
		MinHoldingSeconds:           60,
		EODMinutes:                  15,
		HoldLosersOverClose:         false,
		TrailingActivationThreshold: 1.0,
		TrailingCooldownSeconds:     180,
		ATRStopPct:                  -1.5,
		ConsecutiveChecksRequired:   2,
		MaxHoldingSeconds:           60 * 60,
	}
}

// IsGolden requires exceptional momentum plus strong trend and an RSI
// still inside its working band — the stricter bar for bypassing the
// daily-trade cap.
func (m *Momentum) IsGolden(snap indicators.Snapshot, trend indicators.TrendMetrics) bool {
	abs := trend.MomentumScore
	if abs < 0 {
		abs = -abs
	}
	if abs < m.ExceptionalMomentum {
		return false
	}
	if snap.ADX < m.MinADX+10 {
		return false
	}
	return snap.RSI >= m.RSILow && snap.RSI <= m.RSIHigh
}

func (m *Momentum) BenchesLosersOnClose() bool { return false }

// ApplyThresholdOverride updates the golden/exceptional momentum bars in
// place, letting the config hot-reload watcher retune entry strictness
// without restarting the strategy's runner.
func (m *Momentum) ApplyThresholdOverride(golden, exceptional float64) {
	m.GoldenMomentum = golden
	m.ExceptionalMomentum = exceptional
}
