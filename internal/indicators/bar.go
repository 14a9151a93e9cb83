// Package indicators provides stateless technical-indicator computations over
// price/volume bar windows. Every function here is pure: given the same bar
// slice it returns the same result, and no function performs I/O.
package indicators

import "time"

// Bar is an immutable OHLCV sample for one period.
type Bar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// ClosePoint is one entry of the Snapshot's recent-closes series.
type ClosePoint struct {
	Timestamp time.Time
	Close     float64
}

// Snapshot is the dense technical-indicator record computed for one ticker at
// one point in time. Every field has a defined default under insufficient
// data; no field is ever conditionally absent.
type Snapshot struct {
	RSI float64

	MACDLine      float64
	MACDSignal    float64
	MACDHistogram float64

	BollingerUpper  float64
	BollingerMiddle float64
	BollingerLower  float64

	ADX float64

	EMAFast float64
	EMASlow float64

	VolumeSMA float64
	OBV       float64
	MFI       float64
	AD        float64

	StochK float64
	StochD float64

	CCI float64
	ATR float64

	WilliamsR float64
	ROC       float64

	VWAP float64
	VWMA float64
	WMA  float64

	Close  float64
	Volume int64

	// RecentCloses holds at most the last 20 (timestamp, close) points.
	RecentCloses []ClosePoint
}

// TrendMetrics is the simplified path used by the penny-stock pipeline.
type TrendMetrics struct {
	MomentumScore     float64
	ContinuationScore float64
	PeakPrice         float64
	BottomPrice       float64
	Reason            string
}

const recentClosesCap = 20

func recentCloses(bars []Bar) []ClosePoint {
	n := len(bars)
	start := n - recentClosesCap
	if start < 0 {
		start = 0
	}
	out := make([]ClosePoint, 0, n-start)
	for i := start; i < n; i++ {
		out = append(out, ClosePoint{Timestamp: bars[i].Timestamp, Close: bars[i].Close})
	}
	return out
}
