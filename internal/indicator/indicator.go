// Package indicator computes technical indicator series from candle data.
//
// Every function returns a slice aligned 1:1 with its input: index i of the
// output depends only on inputs [0..i], and indices before the indicator's
// warm-up length hold NaN ("undefined"). Insufficient input yields an
// all-NaN series, never an error — callers treat missing data as a state,
// not an exception.
package indicator

import (
	"math"

	"argus-terminal/internal/market"
)

// Undefined is the value held by warm-up indices.
var Undefined = math.NaN()

// Defined reports whether a series value has been computed.
func Defined(v float64) bool {
	return !math.IsNaN(v)
}

func undefinedSeries(n int) []float64 {
	s := make([]float64, n)
	for i := range s {
		s[i] = Undefined
	}
	return s
}

// SMA computes the simple moving average of values over the trailing period.
func SMA(values []float64, period int) []float64 {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA computes the exponential moving average, seeded with the SMA of the
// first period values and smoothed with k = 2/(period+1).
func EMA(values []float64, period int) []float64 {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	seed := 0.0
	for i := 0; i < period; i++ {
		seed += values[i]
	}
	seed /= float64(period)
	out[period-1] = seed

	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI computes Wilder's relative strength index. The first value is emitted
// at index period; RSI is exactly 100 when the average loss is zero.
func RSI(values []float64, period int) []float64 {
	out := undefinedSeries(len(values))
	if period <= 0 || len(values) < period+1 {
		return out
	}

	avgGain, avgLoss := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss += -change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACDResult holds the MACD line, signal line, and histogram series.
type MACDResult struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes EMA(fast) - EMA(slow), the signal EMA of the MACD line, and
// their difference. The signal EMA runs only over the contiguous range where
// the MACD line is defined.
func MACD(values []float64, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	n := len(values)
	result := MACDResult{
		Line:      undefinedSeries(n),
		Signal:    undefinedSeries(n),
		Histogram: undefinedSeries(n),
	}
	if n < slowPeriod {
		return result
	}

	fast := EMA(values, fastPeriod)
	slow := EMA(values, slowPeriod)
	for i := slowPeriod - 1; i < n; i++ {
		result.Line[i] = fast[i] - slow[i]
	}

	macdStart := slowPeriod - 1
	defined := result.Line[macdStart:]
	signal := EMA(defined, signalPeriod)
	for i, v := range signal {
		if Defined(v) {
			result.Signal[macdStart+i] = v
			result.Histogram[macdStart+i] = result.Line[macdStart+i] - v
		}
	}
	return result
}

// BollingerResult holds the three Bollinger band series.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes SMA-centered bands offset by multiplier times the
// population standard deviation of the trailing window.
func Bollinger(values []float64, period int, multiplier float64) BollingerResult {
	n := len(values)
	result := BollingerResult{
		Upper:  undefinedSeries(n),
		Middle: SMA(values, period),
		Lower:  undefinedSeries(n),
	}
	if period <= 0 || n < period {
		return result
	}

	for i := period - 1; i < n; i++ {
		mean := result.Middle[i]
		variance := 0.0
		for j := i - period + 1; j <= i; j++ {
			diff := values[j] - mean
			variance += diff * diff
		}
		stdDev := math.Sqrt(variance / float64(period))
		result.Upper[i] = mean + multiplier*stdDev
		result.Lower[i] = mean - multiplier*stdDev
	}
	return result
}

// trueRanges returns the TR series; index 0 is undefined (no previous close).
func trueRanges(candles []market.Candle) []float64 {
	tr := undefinedSeries(len(candles))
	for i := 1; i < len(candles); i++ {
		high, low := candles[i].High, candles[i].Low
		prevClose := candles[i-1].Close
		tr[i] = math.Max(high-low, math.Max(math.Abs(high-prevClose), math.Abs(low-prevClose)))
	}
	return tr
}

// ATR computes Wilder's average true range: the first value at index period
// is the simple mean of the first period true ranges, then Wilder smoothing.
func ATR(candles []market.Candle, period int) []float64 {
	out := undefinedSeries(len(candles))
	if period <= 0 || len(candles) < period+1 {
		return out
	}

	tr := trueRanges(candles)
	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += tr[i]
	}
	out[period] = sum / float64(period)

	for i := period + 1; i < len(candles); i++ {
		out[i] = (out[i-1]*float64(period-1) + tr[i]) / float64(period)
	}
	return out
}

// StochasticResult holds the %K and %D series.
type StochasticResult struct {
	K []float64
	D []float64
}

// Stochastic computes %K over the trailing kPeriod range and %D as the
// SMA(dPeriod) of %K. A zero high-low range yields a neutral 50.
func Stochastic(candles []market.Candle, kPeriod, dPeriod int) StochasticResult {
	n := len(candles)
	result := StochasticResult{K: undefinedSeries(n), D: undefinedSeries(n)}
	if kPeriod <= 0 || n < kPeriod {
		return result
	}

	for i := kPeriod - 1; i < n; i++ {
		highest, lowest := windowRange(candles, i-kPeriod+1, i)
		if highest == lowest {
			result.K[i] = 50.0
			continue
		}
		result.K[i] = (candles[i].Close - lowest) / (highest - lowest) * 100
	}

	// %D smooths only the defined run of %K.
	kStart := kPeriod - 1
	d := SMA(result.K[kStart:], dPeriod)
	for i, v := range d {
		result.D[kStart+i] = v
	}
	return result
}

// WilliamsR computes Williams %R, the stochastic %K mirrored into [-100, 0].
// A zero high-low range yields the neutral midpoint -50.
func WilliamsR(candles []market.Candle, period int) []float64 {
	out := undefinedSeries(len(candles))
	if period <= 0 || len(candles) < period {
		return out
	}

	for i := period - 1; i < len(candles); i++ {
		highest, lowest := windowRange(candles, i-period+1, i)
		if highest == lowest {
			out[i] = -50.0
			continue
		}
		out[i] = (highest - candles[i].Close) / (highest - lowest) * -100
	}
	return out
}

// CCI computes the commodity channel index over typical prices. A zero mean
// absolute deviation leaves the value undefined.
func CCI(candles []market.Candle, period int) []float64 {
	out := undefinedSeries(len(candles))
	if period <= 0 || len(candles) < period {
		return out
	}

	typical := make([]float64, len(candles))
	for i, c := range candles {
		typical[i] = (c.High + c.Low + c.Close) / 3
	}
	sma := SMA(typical, period)

	for i := period - 1; i < len(candles); i++ {
		meanDev := 0.0
		for j := i - period + 1; j <= i; j++ {
			meanDev += math.Abs(typical[j] - sma[i])
		}
		meanDev /= float64(period)
		if meanDev == 0 {
			continue
		}
		out[i] = (typical[i] - sma[i]) / (0.015 * meanDev)
	}
	return out
}

// ADX computes the average directional index from Wilder-smoothed directional
// movement. DX is defined from index period; ADX, the mean of the prior
// period DX values, from index 2*period.
func ADX(candles []market.Candle, period int) []float64 {
	n := len(candles)
	out := undefinedSeries(n)
	if period <= 0 || n < 2*period+1 {
		return out
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := trueRanges(candles)
	for i := 1; i < n; i++ {
		upMove := candles[i].High - candles[i-1].High
		downMove := candles[i-1].Low - candles[i].Low
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
	}

	// Wilder-smooth +DM, -DM and TR, then derive DX.
	dx := undefinedSeries(n)
	var smPlus, smMinus, smTR float64
	for i := 1; i <= period; i++ {
		smPlus += plusDM[i]
		smMinus += minusDM[i]
		smTR += tr[i]
	}
	for i := period; i < n; i++ {
		if i > period {
			smPlus = smPlus - smPlus/float64(period) + plusDM[i]
			smMinus = smMinus - smMinus/float64(period) + minusDM[i]
			smTR = smTR - smTR/float64(period) + tr[i]
		}
		if smTR == 0 {
			dx[i] = 0
			continue
		}
		plusDI := smPlus / smTR * 100
		minusDI := smMinus / smTR * 100
		sum := plusDI + minusDI
		if sum == 0 {
			dx[i] = 0
			continue
		}
		dx[i] = math.Abs(plusDI-minusDI) / sum * 100
	}

	for i := 2 * period; i < n; i++ {
		mean := 0.0
		for j := i - period; j < i; j++ {
			mean += dx[j]
		}
		out[i] = mean / float64(period)
	}
	return out
}

func windowRange(candles []market.Candle, from, to int) (highest, lowest float64) {
	highest = candles[from].High
	lowest = candles[from].Low
	for i := from + 1; i <= to; i++ {
		if candles[i].High > highest {
			highest = candles[i].High
		}
		if candles[i].Low < lowest {
			lowest = candles[i].Low
		}
	}
	return highest, lowest
}
