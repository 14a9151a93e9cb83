// Package strategy defines the Strategy abstraction consumed by the
// Strategy Runner: per-strategy thresholds, validation configuration,
// exit configuration, and the golden-ticker test. The shape — a small
// interface plus concrete per-strategy structs carrying tunable
// thresholds — is grounded on this package's original Strategy
// interface (ID/Name/Evaluate over a pure decision engine), generalized
// from a daily swing-trading signal generator to two intraday
// day-trading profiles.
package strategy

import (
	"time"

	"github.com/kestrel-labs/daytrader-engine/internal/exitengine"
	"github.com/kestrel-labs/daytrader-engine/internal/indicators"
	"github.com/kestrel-labs/daytrader-engine/internal/validate"
)

// Thresholds are the per-strategy tunables consumed by the Strategy
// Runner's entry and exit loops.
type Thresholds struct {
	EntryTickInterval time.Duration
	ExitTickInterval  time.Duration

	MaxActivePositions int
	MaxDailyTrades     int
	TopK               int

	CooldownDuration time.Duration

	GoldenMomentumThreshold      float64
	ExceptionalMomentumThreshold float64
	PreemptionProfitThreshold    float64

	PositionDollars float64
}

// Strategy is one named intraday trading profile: its thresholds,
// validation rule-chain configuration, and exit-engine configuration.
type Strategy interface {
	// Name identifies this strategy — used as the MAB "indicator" key
	// and as the log tag prefix.
	Name() string
	Thresholds() Thresholds
	ValidationConfig() validate.Config
	ExitConfig() exitengine.Config
	// IsGolden reports whether a candidate's momentum and supporting
	// indicators clear the strategy's stricter golden-ticker bar —
	// golden tickers bypass the daily-trade cap but not the
	// active-position cap.
	IsGolden(snap indicators.Snapshot, trend indicators.TrendMetrics) bool
	// BenchesLosersOnClose reports whether this strategy benches a
	// ticker in MAB for the rest of the day after a losing close (the
	// Penny strategy's behavior).
	BenchesLosersOnClose() bool
}

// ThresholdTunable is implemented by strategies that accept a live
// retune of their golden/exceptional momentum bars from the config
// hot-reload watcher. Both Momentum and PennyStocks implement it.
type ThresholdTunable interface {
	ApplyThresholdOverride(golden, exceptional float64)
}
