// Package validate is an ordered rule chain that decides whether a
// ticker is entry-eligible for long or short, short-circuiting on the
// first failing rule. The shape — a chain of small rule functions each
// returning a pass/fail plus a human-readable reason — is grounded on
// the teacher's internal/risk/risk.go RejectionReason/ValidationResult
// pattern.
package validate

import (
	"strings"

	"github.com/kestrel-labs/daytrader-engine/internal/indicators"
	"github.com/kestrel-labs/daytrader-engine/internal/marketdata"
)

// Config holds the tunable thresholds the rule chain is evaluated
// against. A Pipeline keeps the copy it was built with; later changes to
// a strategy's thresholds do not reach an existing Pipeline.
type Config struct {
	MinBars int

	MinPrice float64

	MaxSpreadPct float64

	MinAbsoluteVolume  int64
	MinRelativeVolume  float64 // volume / volume SMA

	MaxATRPct          float64 // ATR as % of price
	LowPriceThreshold  float64 // below this, use the stricter ceiling
	MaxATRPctLowPriced float64

	MinADXForLong float64
	OverboughtMomentum float64 // short is rejected if momentum <= -this

	MeanReversionBandPct float64 // top/bottom % of Bollinger width to reject

	MinContinuationScore float64
	ProximityThreshold   float64 // close/peak ratio ceiling for longs
}

// Outcome is the result of running the pipeline against a candidate:
// an empty string in a direction means that direction is entry-eligible.
type Outcome struct {
	ReasonNotToEnterLong  string
	ReasonNotToEnterShort string
}

// ValidLong reports whether the long direction is entry-eligible.
func (o Outcome) ValidLong() bool { return o.ReasonNotToEnterLong == "" }

// ValidShort reports whether the short direction is entry-eligible.
func (o Outcome) ValidShort() bool { return o.ReasonNotToEnterShort == "" }

// Symmetric reports whether both directions carry the same rejection —
// some rules reject both sides identically rather than favoring one.
func (o Outcome) Symmetric() bool {
	return o.ReasonNotToEnterLong == o.ReasonNotToEnterShort
}

// ruleResult is the internal per-rule verdict. A rule with Passed=false
// must set at least one of ReasonLong/ReasonShort.
type ruleResult struct {
	Passed      bool
	ReasonLong  string
	ReasonShort string
}

func pass() ruleResult { return ruleResult{Passed: true} }

func symmetricFail(reason string) ruleResult {
	return ruleResult{Passed: false, ReasonLong: reason, ReasonShort: reason}
}

// rule evaluates one pipeline stage against the candidate's snapshot,
// quote, and recent bars.
type rule func(cfg Config, snap indicators.Snapshot, quote marketdata.Quote, bars []marketdata.Bar, trend indicators.TrendMetrics) ruleResult

// Pipeline is the ordered rule chain.
type Pipeline struct {
	cfg   Config
	rules []rule
}

// NewPipeline builds the fixed nine-rule pipeline in evaluation order.
func NewPipeline(cfg Config) *Pipeline {
	return &Pipeline{
		cfg: cfg,
		rules: []rule{
			ruleDataQuality,
			ruleSecurityType,
			rulePriceFloor,
			ruleLiquidity,
			ruleVolume,
			ruleVolatility,
			ruleTrendMomentum,
			ruleMeanReversionGuard,
			ruleContinuationPeakProximity,
		},
	}
}

// Evaluate runs the chain in order, short-circuiting on the first rule
// that fails in either direction.
func (p *Pipeline) Evaluate(snap indicators.Snapshot, quote marketdata.Quote, bars []marketdata.Bar, trend indicators.TrendMetrics) Outcome {
	for _, r := range p.rules {
		res := r(p.cfg, snap, quote, bars, trend)
		if !res.Passed {
			return Outcome{ReasonNotToEnterLong: res.ReasonLong, ReasonNotToEnterShort: res.ReasonShort}
		}
	}
	return Outcome{}
}

// warrantSuffixes are the security-type suffixes the teacher's own
// ticker-normalization code already treats as non-common-stock.
var warrantSuffixes = []string{"W", "WS", "WT", "R", "RT", ".U"}

func ruleDataQuality(cfg Config, snap indicators.Snapshot, quote marketdata.Quote, bars []marketdata.Bar, trend indicators.TrendMetrics) ruleResult {
	if len(bars) < cfg.MinBars {
		return symmetricFail("insufficient bar history")
	}
	if !quote.Valid() {
		return symmetricFail("invalid quote: non-positive bid/ask")
	}
	if snap.Close <= 0 {
		return symmetricFail("invalid close price")
	}
	return pass()
}

func ruleSecurityType(cfg Config, snap indicators.Snapshot, quote marketdata.Quote, bars []marketdata.Bar, trend indicators.TrendMetrics) ruleResult {
	// Ticker isn't passed into the rule signature directly; callers that
	// need security-type rejection route the ticker through the quote.
	ticker := strings.ToUpper(quote.Ticker)
	for _, suffix := range warrantSuffixes {
		if strings.HasSuffix(ticker, suffix) {
			return symmetricFail("non-common security type (warrant/right/unit suffix)")
		}
	}
	return pass()
}

func rulePriceFloor(cfg Config, snap indicators.Snapshot, quote marketdata.Quote, bars []marketdata.Bar, trend indicators.TrendMetrics) ruleResult {
	if quote.Mid() < cfg.MinPrice {
		return symmetricFail("price below minimum floor")
	}
	return pass()
}

func ruleLiquidity(cfg Config, snap indicators.Snapshot, quote marketdata.Quote, bars []marketdata.Bar, trend indicators.TrendMetrics) ruleResult {
	if quote.SpreadPct() > cfg.MaxSpreadPct {
		return symmetricFail("spread exceeds maximum")
	}
	return pass()
}

func ruleVolume(cfg Config, snap indicators.Snapshot, quote marketdata.Quote, bars []marketdata.Bar, trend indicators.TrendMetrics) ruleResult {
	if snap.Volume < cfg.MinAbsoluteVolume {
		return symmetricFail("volume below absolute minimum")
	}
	if cfg.MinRelativeVolume > 0 && snap.VolumeSMA > 0 {
		relative := float64(snap.Volume) / snap.VolumeSMA
		if relative < cfg.MinRelativeVolume {
			return symmetricFail("volume below relative minimum")
		}
	}
	return pass()
}

func ruleVolatility(cfg Config, snap indicators.Snapshot, quote marketdata.Quote, bars []marketdata.Bar, trend indicators.TrendMetrics) ruleResult {
	if snap.Close <= 0 {
		return symmetricFail("invalid close for volatility check")
	}
	atrPct := snap.ATR / snap.Close * 100
	ceiling := cfg.MaxATRPct
	if snap.Close < cfg.LowPriceThreshold {
		ceiling = cfg.MaxATRPctLowPriced
	}
	if atrPct > ceiling {
		return symmetricFail("volatility exceeds maximum")
	}
	return pass()
}

func ruleTrendMomentum(cfg Config, snap indicators.Snapshot, quote marketdata.Quote, bars []marketdata.Bar, trend indicators.TrendMetrics) ruleResult {
	res := ruleResult{Passed: true}
	if trend.MomentumScore <= 0 || snap.ADX < cfg.MinADXForLong {
		res.Passed = false
		res.ReasonLong = "momentum non-positive or trend strength below minimum"
	}
	if trend.MomentumScore >= 0 || trend.MomentumScore <= -cfg.OverboughtMomentum {
		res.Passed = false
		res.ReasonShort = "momentum non-negative or beyond overbought band"
	}
	return res
}

func ruleMeanReversionGuard(cfg Config, snap indicators.Snapshot, quote marketdata.Quote, bars []marketdata.Bar, trend indicators.TrendMetrics) ruleResult {
	width := snap.BollingerUpper - snap.BollingerLower
	if width <= 0 {
		return pass()
	}
	position := (snap.Close - snap.BollingerLower) / width // 0 = lower band, 1 = upper band
	band := cfg.MeanReversionBandPct / 100

	res := ruleResult{Passed: true}
	if position >= 1-band {
		res.Passed = false
		res.ReasonLong = "close within top band of Bollinger width"
	}
	if position <= band {
		res.Passed = false
		res.ReasonShort = "close within bottom band of Bollinger width"
	}
	return res
}

func ruleContinuationPeakProximity(cfg Config, snap indicators.Snapshot, quote marketdata.Quote, bars []marketdata.Bar, trend indicators.TrendMetrics) ruleResult {
	res := ruleResult{Passed: true}
	if trend.ContinuationScore < cfg.MinContinuationScore {
		res.Passed = false
		res.ReasonLong = "continuation score below threshold"
		res.ReasonShort = "continuation score below threshold"
		return res
	}
	if trend.PeakPrice > 0 && snap.Close/trend.PeakPrice > cfg.ProximityThreshold {
		res.Passed = false
		res.ReasonLong = "close too near recent peak"
	}
	if trend.BottomPrice > 0 && trend.BottomPrice/snap.Close > cfg.ProximityThreshold {
		res.Passed = false
		res.ReasonShort = "close too near recent bottom"
	}
	return res
}
