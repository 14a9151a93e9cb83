package indicators

import "math"

// CalculateATR computes the Average True Range over the given period: the
// mean of True Range across the last `period` bars, where
// True Range = max(high-low, |high-prevClose|, |low-prevClose|).
// Falls back to 1% of the last close if insufficient data.
func CalculateATR(bars []Bar, period int) float64 {
	if len(bars) == 0 {
		return 0
	}
	if len(bars) < period+1 || period <= 0 {
		last := bars[len(bars)-1]
		if last.Close > 0 {
			return last.Close * 0.01
		}
		return last.High - last.Low
	}

	var totalTR float64
	for i := len(bars) - period; i < len(bars); i++ {
		curr := bars[i]
		prev := bars[i-1]
		tr1 := curr.High - curr.Low
		tr2 := math.Abs(curr.High - prev.Close)
		tr3 := math.Abs(curr.Low - prev.Close)
		totalTR += math.Max(tr1, math.Max(tr2, tr3))
	}
	return totalTR / float64(period)
}

// CalculateRSI computes the Relative Strength Index using simple averaging
// of gains/losses over the last `period` deltas, not Wilder smoothing.
// Returns 50 (neutral) under insufficient data and 100 when the average
// loss is zero.
func CalculateRSI(bars []Bar, period int) float64 {
	if len(bars) < period+1 || period <= 0 {
		return 50
	}

	start := len(bars) - period
	var gainSum, lossSum float64
	for i := start; i < len(bars); i++ {
		change := bars[i].Close - bars[i-1].Close
		if change > 0 {
			gainSum += change
		} else {
			lossSum += math.Abs(change)
		}
	}

	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)

	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// CalculateSMA computes the Simple Moving Average of closes over `period`.
// Returns 0 if insufficient data.
func CalculateSMA(bars []Bar, period int) float64 {
	if len(bars) < period || period <= 0 {
		return 0
	}
	var sum float64
	for i := len(bars) - period; i < len(bars); i++ {
		sum += bars[i].Close
	}
	return sum / float64(period)
}

// CalculateEMA computes the Exponential Moving Average of closes over
// `period`, seeded with the SMA of the first `period` closes. Returns the
// last close if there isn't enough history to seed an EMA.
func CalculateEMA(bars []Bar, period int) float64 {
	if period <= 0 || len(bars) == 0 {
		return 0
	}
	if len(bars) < period {
		return bars[len(bars)-1].Close
	}

	multiplier := 2.0 / float64(period+1)
	ema := CalculateSMA(bars[:period], period)
	for i := period; i < len(bars); i++ {
		ema = (bars[i].Close-ema)*multiplier + ema
	}
	return ema
}

// emaSeries returns the EMA value after folding in each of `values` in
// order, seeded with the simple mean of the first `period` values (or all
// values if fewer than `period` are given, approximating the signal line
// under short history).
func emaSeries(values []float64, period int) float64 {
	if len(values) == 0 {
		return 0
	}
	if period <= 0 {
		period = len(values)
	}
	seed := period
	if seed > len(values) {
		seed = len(values)
	}
	var sum float64
	for i := 0; i < seed; i++ {
		sum += values[i]
	}
	ema := sum / float64(seed)
	multiplier := 2.0 / float64(period+1)
	for i := seed; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
	}
	return ema
}

// CalculateMACD computes the MACD line (fast EMA - slow EMA), its signal
// line, and the histogram (line - signal). The signal line is approximated
// from whatever trailing MACD-line history is available when there isn't
// enough history for a full `signalPeriod`-length EMA.
func CalculateMACD(bars []Bar, fast, slow, signalPeriod int) (line, signal, histogram float64) {
	if len(bars) < slow || slow <= 0 || fast <= 0 {
		return 0, 0, 0
	}

	lineSeries := make([]float64, 0, len(bars)-slow+1)
	for end := slow; end <= len(bars); end++ {
		window := bars[:end]
		lineSeries = append(lineSeries, CalculateEMA(window, fast)-CalculateEMA(window, slow))
	}

	line = lineSeries[len(lineSeries)-1]
	signal = emaSeries(lineSeries, signalPeriod)
	histogram = line - signal
	return
}

// CalculateBollingerBands computes the middle (SMA), upper and lower bands
// (middle ± 2 standard deviations over `period` closes), and the bandwidth
// ((upper-lower)/middle). Returns all zeros under insufficient data.
func CalculateBollingerBands(bars []Bar, period int) (middle, upper, lower, bandwidth float64) {
	if len(bars) < period || period <= 0 {
		return 0, 0, 0, 0
	}

	middle = CalculateSMA(bars, period)

	start := len(bars) - period
	var variance float64
	for i := start; i < len(bars); i++ {
		diff := bars[i].Close - middle
		variance += diff * diff
	}
	variance /= float64(period)
	stdDev := math.Sqrt(variance)

	upper = middle + 2*stdDev
	lower = middle - 2*stdDev
	if middle != 0 {
		bandwidth = (upper - lower) / middle
	}
	return
}

// CalculateADX computes the Average Directional Index over `period`,
// following Wilder's smoothing of +DI/-DI and DX. Returns 0 under
// insufficient data.
func CalculateADX(bars []Bar, period int) float64 {
	if len(bars) < period*2 || period <= 0 {
		return 0
	}

	plusDM := make([]float64, len(bars))
	minusDM := make([]float64, len(bars))
	tr := make([]float64, len(bars))

	for i := 1; i < len(bars); i++ {
		upMove := bars[i].High - bars[i-1].High
		downMove := bars[i-1].Low - bars[i].Low

		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}

		tr1 := bars[i].High - bars[i].Low
		tr2 := math.Abs(bars[i].High - bars[i-1].Close)
		tr3 := math.Abs(bars[i].Low - bars[i-1].Close)
		tr[i] = math.Max(tr1, math.Max(tr2, tr3))
	}

	smooth := func(series []float64) float64 {
		var sum float64
		for i := 1; i <= period; i++ {
			sum += series[i]
		}
		smoothed := sum
		for i := period + 1; i < len(series); i++ {
			smoothed = smoothed - (smoothed / float64(period)) + series[i]
		}
		return smoothed
	}

	smoothTR := smooth(tr)
	if smoothTR == 0 {
		return 0
	}
	smoothPlusDM := smooth(plusDM)
	smoothMinusDM := smooth(minusDM)

	plusDI := 100 * smoothPlusDM / smoothTR
	minusDI := 100 * smoothMinusDM / smoothTR

	diSum := plusDI + minusDI
	if diSum == 0 {
		return 0
	}
	dx := 100 * math.Abs(plusDI-minusDI) / diSum
	return dx
}

// CalculateROC computes the Rate of Change (fraction, not percent) over
// `period`. Returns 0 under insufficient data or division by zero.
func CalculateROC(bars []Bar, period int) float64 {
	if len(bars) < period+1 || period <= 0 {
		return 0
	}
	current := bars[len(bars)-1].Close
	past := bars[len(bars)-1-period].Close
	if past == 0 {
		return 0
	}
	return (current - past) / past
}

// HighestHigh returns the highest high over the last `period` bars.
func HighestHigh(bars []Bar, period int) float64 {
	if len(bars) == 0 || period <= 0 {
		return 0
	}
	start := len(bars) - period
	if start < 0 {
		start = 0
	}
	highest := bars[start].High
	for i := start + 1; i < len(bars); i++ {
		if bars[i].High > highest {
			highest = bars[i].High
		}
	}
	return highest
}

// LowestLow returns the lowest low over the last `period` bars.
func LowestLow(bars []Bar, period int) float64 {
	if len(bars) == 0 || period <= 0 {
		return 0
	}
	start := len(bars) - period
	if start < 0 {
		start = 0
	}
	lowest := bars[start].Low
	for i := start + 1; i < len(bars); i++ {
		if bars[i].Low < lowest {
			lowest = bars[i].Low
		}
	}
	return lowest
}

// CalculateStochastic returns %K and %D over `period` (with a 3-bar SMA
// for %D). Returns (50, 50) on zero range to avoid a divide-by-zero.
func CalculateStochastic(bars []Bar, period int) (k, d float64) {
	if len(bars) < period || period <= 0 {
		return 50, 50
	}

	kValues := make([]float64, 0, 3)
	for offset := 2; offset >= 0; offset-- {
		end := len(bars) - offset
		if end < period {
			continue
		}
		window := bars[:end]
		hh := HighestHigh(window, period)
		ll := LowestLow(window, period)
		rng := hh - ll
		if rng == 0 {
			kValues = append(kValues, 50)
			continue
		}
		close := window[len(window)-1].Close
		kValues = append(kValues, (close-ll)/rng*100)
	}

	if len(kValues) == 0 {
		return 50, 50
	}
	k = kValues[len(kValues)-1]

	var sum float64
	for _, v := range kValues {
		sum += v
	}
	d = sum / float64(len(kValues))
	return
}

// CalculateCCI computes the Commodity Channel Index over `period` using the
// typical price (H+L+C)/3. Returns 0 under insufficient data or a zero mean
// deviation.
func CalculateCCI(bars []Bar, period int) float64 {
	if len(bars) < period || period <= 0 {
		return 0
	}

	start := len(bars) - period
	typical := func(b Bar) float64 { return (b.High + b.Low + b.Close) / 3 }

	var sum float64
	for i := start; i < len(bars); i++ {
		sum += typical(bars[i])
	}
	smaTP := sum / float64(period)

	var meanDev float64
	for i := start; i < len(bars); i++ {
		meanDev += math.Abs(typical(bars[i]) - smaTP)
	}
	meanDev /= float64(period)

	if meanDev == 0 {
		return 0
	}
	return (typical(bars[len(bars)-1]) - smaTP) / (0.015 * meanDev)
}

// CalculateWilliamsR computes Williams %R over `period`. Returns -50 on
// zero range.
func CalculateWilliamsR(bars []Bar, period int) float64 {
	if len(bars) == 0 || period <= 0 {
		return -50
	}
	hh := HighestHigh(bars, period)
	ll := LowestLow(bars, period)
	rng := hh - ll
	if rng == 0 {
		return -50
	}
	close := bars[len(bars)-1].Close
	return (hh - close) / rng * -100
}

// CalculateVWAP computes the Volume-Weighted Average Price across all given
// bars (the caller is expected to pass the current session's bars). Returns
// the last close if total volume is zero.
func CalculateVWAP(bars []Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	var pvSum float64
	var volSum float64
	for _, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3
		pvSum += typical * float64(b.Volume)
		volSum += float64(b.Volume)
	}
	if volSum == 0 {
		return bars[len(bars)-1].Close
	}
	return pvSum / volSum
}

// CalculateVWMA computes the Volume-Weighted Moving Average over the last
// `period` bars. Returns the SMA if total volume in the window is zero.
func CalculateVWMA(bars []Bar, period int) float64 {
	if len(bars) < period || period <= 0 {
		return 0
	}
	start := len(bars) - period
	var pvSum, volSum float64
	for i := start; i < len(bars); i++ {
		pvSum += bars[i].Close * float64(bars[i].Volume)
		volSum += float64(bars[i].Volume)
	}
	if volSum == 0 {
		return CalculateSMA(bars, period)
	}
	return pvSum / volSum
}

// CalculateWMA computes the linearly-Weighted Moving Average over `period`
// closes, weighting more recent closes higher (weights 1..period).
func CalculateWMA(bars []Bar, period int) float64 {
	if len(bars) < period || period <= 0 {
		return 0
	}
	start := len(bars) - period
	var weightedSum, weightTotal float64
	weight := 1.0
	for i := start; i < len(bars); i++ {
		weightedSum += bars[i].Close * weight
		weightTotal += weight
		weight++
	}
	if weightTotal == 0 {
		return 0
	}
	return weightedSum / weightTotal
}

// CalculateOBV computes the On-Balance Volume across all given bars,
// cumulative from the first bar.
func CalculateOBV(bars []Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	var obv float64
	for i := 1; i < len(bars); i++ {
		switch {
		case bars[i].Close > bars[i-1].Close:
			obv += float64(bars[i].Volume)
		case bars[i].Close < bars[i-1].Close:
			obv -= float64(bars[i].Volume)
		}
	}
	return obv
}

// CalculateMFI computes the Money Flow Index over `period`. Returns 50
// (neutral) under insufficient data and 100 when there is no negative flow.
func CalculateMFI(bars []Bar, period int) float64 {
	if len(bars) < period+1 || period <= 0 {
		return 50
	}

	typical := func(b Bar) float64 { return (b.High + b.Low + b.Close) / 3 }

	start := len(bars) - period
	var posFlow, negFlow float64
	for i := start; i < len(bars); i++ {
		tp := typical(bars[i])
		prevTP := typical(bars[i-1])
		rawFlow := tp * float64(bars[i].Volume)
		if tp > prevTP {
			posFlow += rawFlow
		} else if tp < prevTP {
			negFlow += rawFlow
		}
	}

	if negFlow == 0 {
		return 100
	}
	moneyRatio := posFlow / negFlow
	return 100 - (100 / (1 + moneyRatio))
}

// CalculateAD computes the Accumulation/Distribution line, cumulative across
// all given bars.
func CalculateAD(bars []Bar) float64 {
	if len(bars) == 0 {
		return 0
	}
	var ad float64
	for _, b := range bars {
		rng := b.High - b.Low
		if rng == 0 {
			continue
		}
		clv := ((b.Close - b.Low) - (b.High - b.Close)) / rng
		ad += clv * float64(b.Volume)
	}
	return ad
}

// AverageVolume computes the mean volume over the last `period` bars.
func AverageVolume(bars []Bar, period int) float64 {
	if len(bars) == 0 || period <= 0 {
		return 0
	}
	start := len(bars) - period
	if start < 0 {
		start = 0
	}
	var total float64
	count := 0
	for i := start; i < len(bars); i++ {
		total += float64(bars[i].Volume)
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

// BuildSnapshot computes the full dense Technical Snapshot for a bar window,
// applying every indicator's documented default under insufficient data. No
// field is ever conditionally absent.
func BuildSnapshot(bars []Bar) Snapshot {
	if len(bars) == 0 {
		return Snapshot{RSI: 50}
	}

	macdLine, macdSignal, macdHist := CalculateMACD(bars, 12, 26, 9)
	bbMiddle, bbUpper, bbLower, _ := CalculateBollingerBands(bars, 20)
	stochK, stochD := CalculateStochastic(bars, 14)
	last := bars[len(bars)-1]

	return Snapshot{
		RSI:             CalculateRSI(bars, 14),
		MACDLine:        macdLine,
		MACDSignal:      macdSignal,
		MACDHistogram:   macdHist,
		BollingerUpper:  bbUpper,
		BollingerMiddle: bbMiddle,
		BollingerLower:  bbLower,
		ADX:             CalculateADX(bars, 14),
		EMAFast:         CalculateEMA(bars, 12),
		EMASlow:         CalculateEMA(bars, 26),
		VolumeSMA:       AverageVolume(bars, 20),
		OBV:             CalculateOBV(bars),
		MFI:             CalculateMFI(bars, 14),
		AD:              CalculateAD(bars),
		StochK:          stochK,
		StochD:          stochD,
		CCI:             CalculateCCI(bars, 20),
		ATR:             CalculateATR(bars, 14),
		WilliamsR:       CalculateWilliamsR(bars, 14),
		ROC:             CalculateROC(bars, 10),
		VWAP:            CalculateVWAP(bars),
		VWMA:            CalculateVWMA(bars, 20),
		WMA:             CalculateWMA(bars, 20),
		Close:           last.Close,
		Volume:          last.Volume,
		RecentCloses:    recentCloses(bars),
	}
}

// BuildTrendMetrics computes the simplified trend-metrics path used by the
// penny-stock pipeline over the last `n` (default 5) closes.
func BuildTrendMetrics(bars []Bar, n int) TrendMetrics {
	if n <= 0 {
		n = 5
	}

	filtered := make([]Bar, 0, len(bars))
	for _, b := range bars {
		if b.Close > 0 {
			filtered = append(filtered, b)
		}
	}

	if len(filtered) < 2 {
		return TrendMetrics{Reason: "insufficient positive-close history"}
	}
	if len(filtered) > n {
		filtered = filtered[len(filtered)-n:]
	}

	first := filtered[0].Close
	last := filtered[len(filtered)-1].Close

	priceChangePct := 0.0
	if first != 0 {
		priceChangePct = (last - first) / first * 100
	}

	var up, down int
	peak := filtered[0].Close
	bottom := filtered[0].Close
	for i := 1; i < len(filtered); i++ {
		if filtered[i].Close > filtered[i-1].Close {
			up++
		} else if filtered[i].Close < filtered[i-1].Close {
			down++
		}
		if filtered[i].Close > peak {
			peak = filtered[i].Close
		}
		if filtered[i].Close < bottom {
			bottom = filtered[i].Close
		}
	}

	totalMoves := up + down
	var continuationScore float64
	if totalMoves > 0 {
		switch {
		case priceChangePct > 0:
			// Uptrend: continuation is the proportion of moves that agree
			// with it.
			continuationScore = float64(up) / float64(totalMoves)
		case priceChangePct < 0:
			continuationScore = float64(down) / float64(totalMoves)
		case up > down:
			continuationScore = float64(up) / float64(totalMoves)
		case down > up:
			continuationScore = float64(down) / float64(totalMoves)
		default:
			continuationScore = 0.5
		}
	}

	amplification := 1 + continuationScore*2
	momentumScore := priceChangePct * amplification

	reason := "flat"
	switch {
	case momentumScore > 0:
		reason = "upward momentum"
	case momentumScore < 0:
		reason = "downward momentum"
	}

	return TrendMetrics{
		MomentumScore:     momentumScore,
		ContinuationScore: continuationScore,
		PeakPrice:         peak,
		BottomPrice:       bottom,
		Reason:            reason,
	}
}
