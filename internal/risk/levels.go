// Package risk derives stop-loss and take-profit levels from candle history,
// blending ATR-scaled distances with swing-based support/resistance.
package risk

import (
	"math"
	"sort"

	"argus-terminal/internal/indicator"
	"argus-terminal/internal/market"
)

// Direction is the side of the trade the levels protect.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

// Volatility classifies recent ATR relative to price.
type Volatility string

const (
	VolatilityLow    Volatility = "low"
	VolatilityMedium Volatility = "medium"
	VolatilityHigh   Volatility = "high"
)

// Method names which algorithm produced the final stop level.
type Method string

const (
	MethodATR        Method = "atr"
	MethodStructural Method = "structural"
	MethodDefault    Method = "default"
)

// Levels is a snapshot of recommended price levels for one entry. Once
// attached to a position it is never recomputed.
type Levels struct {
	Entry             float64    `json:"entry"`
	StopLoss          float64    `json:"stopLoss"`
	TakeProfit1       float64    `json:"takeProfit1"`
	TakeProfit2       float64    `json:"takeProfit2"`
	TakeProfit3       float64    `json:"takeProfit3"`
	StopLossPercent   float64    `json:"stopLossPercent"`
	TakeProfitPercent float64    `json:"takeProfitPercent"`
	RiskReward        float64    `json:"riskReward"`
	ATR               float64    `json:"atr"`
	Volatility        Volatility `json:"volatility"`
	Method            Method     `json:"method"`
}

// Config holds the base ATR multipliers before volatility scaling.
type Config struct {
	ATRPeriod      int
	StopMultiplier float64
	TPMultiplier   float64
}

// DefaultConfig returns the standard multipliers.
func DefaultConfig() Config {
	return Config{
		ATRPeriod:      14,
		StopMultiplier: 2.0,
		TPMultiplier:   3.0,
	}
}

const (
	minBars = 30
	// structuralOffset backs a structural stop off the exact level so a
	// wick touching support does not stop the position out.
	structuralOffset = 0.005

	defaultStopPercent = 0.05
	defaultTPPercent   = 0.03
)

// Calculate derives levels for an entry at entryPrice in the given direction.
// With fewer than 30 bars it returns conservative fixed-percentage defaults.
func Calculate(candles []market.Candle, entryPrice float64, direction Direction, cfg Config) Levels {
	if len(candles) < minBars {
		return defaultLevels(entryPrice, direction)
	}

	atrSeries := indicator.ATR(candles, cfg.ATRPeriod)
	atr := atrSeries[len(atrSeries)-1]
	if !indicator.Defined(atr) || atr <= 0 {
		return defaultLevels(entryPrice, direction)
	}

	vol := classifyVolatility(candles, atr, cfg.ATRPeriod)
	stopMult, tpMult := cfg.StopMultiplier, cfg.TPMultiplier
	switch vol {
	case VolatilityHigh:
		stopMult *= 0.8
		tpMult *= 1.2
	case VolatilityLow:
		stopMult *= 1.2
		tpMult *= 0.8
	}

	levels := Levels{
		Entry:      entryPrice,
		ATR:        atr,
		Volatility: vol,
		Method:     MethodATR,
	}

	stopDist := atr * stopMult
	tpDist := atr * tpMult
	if direction == Long {
		levels.StopLoss = entryPrice - stopDist
		levels.TakeProfit1 = entryPrice + tpDist*0.5
		levels.TakeProfit2 = entryPrice + tpDist
		levels.TakeProfit3 = entryPrice + tpDist*1.5
	} else {
		levels.StopLoss = entryPrice + stopDist
		levels.TakeProfit1 = entryPrice - tpDist*0.5
		levels.TakeProfit2 = entryPrice - tpDist
		levels.TakeProfit3 = entryPrice - tpDist*1.5
	}

	applyStructural(&levels, candles, direction)
	finalize(&levels)
	return levels
}

// classifyVolatility buckets ATR as a percentage of the trailing average
// close: under 2% low, 2-5% medium, over 5% high.
func classifyVolatility(candles []market.Candle, atr float64, period int) Volatility {
	start := len(candles) - period
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, c := range candles[start:] {
		sum += c.Close
	}
	avgClose := sum / float64(len(candles)-start)
	if avgClose <= 0 {
		return VolatilityMedium
	}

	pct := atr / avgClose * 100
	switch {
	case pct < 2:
		return VolatilityLow
	case pct > 5:
		return VolatilityHigh
	default:
		return VolatilityMedium
	}
}

// applyStructural replaces the ATR stop (and first target) with a swing
// support/resistance level when the structural level is strictly closer to
// entry and on the correct side of price. A structural level farther from
// entry than the ATR level keeps the ATR level.
func applyStructural(levels *Levels, candles []market.Candle, direction Direction) {
	supports, resistances := SwingLevels(candles)

	if direction == Long {
		if s, ok := nearestBetween(supports, levels.StopLoss, levels.Entry); ok {
			levels.StopLoss = s * (1 - structuralOffset)
			levels.Method = MethodStructural
		}
		if r, ok := nearestBetween(resistances, levels.Entry, levels.TakeProfit1); ok {
			levels.TakeProfit1 = r
		}
		return
	}

	if r, ok := nearestBetween(resistances, levels.Entry, levels.StopLoss); ok {
		levels.StopLoss = r * (1 + structuralOffset)
		levels.Method = MethodStructural
	}
	if s, ok := nearestBetween(supports, levels.TakeProfit1, levels.Entry); ok {
		levels.TakeProfit1 = s
	}
}

// nearestBetween returns the level strictly inside (lower, upper) closest to
// upper's side midpoint ordering; levels are pre-sorted by distance from the
// current price, so the first match wins.
func nearestBetween(levels []float64, lower, upper float64) (float64, bool) {
	for _, l := range levels {
		if l > lower && l < upper {
			return l, true
		}
	}
	return 0, false
}

// SwingLevels scans for swing lows (supports) and swing highs (resistances):
// a bar whose low/high is the most extreme within a symmetric 2-bar window.
// Levels are deduplicated and sorted by distance from the last close.
func SwingLevels(candles []market.Candle) (supports, resistances []float64) {
	const wing = 2
	if len(candles) < 2*wing+1 {
		return nil, nil
	}

	currentPrice := candles[len(candles)-1].Close
	seenSupport := make(map[float64]bool)
	seenResistance := make(map[float64]bool)

	for i := wing; i < len(candles)-wing; i++ {
		isLow, isHigh := true, true
		for j := i - wing; j <= i+wing; j++ {
			if j == i {
				continue
			}
			if candles[j].Low < candles[i].Low {
				isLow = false
			}
			if candles[j].High > candles[i].High {
				isHigh = false
			}
		}
		if isLow && !seenSupport[candles[i].Low] {
			seenSupport[candles[i].Low] = true
			supports = append(supports, candles[i].Low)
		}
		if isHigh && !seenResistance[candles[i].High] {
			seenResistance[candles[i].High] = true
			resistances = append(resistances, candles[i].High)
		}
	}

	byDistance := func(levels []float64) {
		sort.Slice(levels, func(a, b int) bool {
			return math.Abs(levels[a]-currentPrice) < math.Abs(levels[b]-currentPrice)
		})
	}
	byDistance(supports)
	byDistance(resistances)
	return supports, resistances
}

// finalize recomputes the derived percentage and ratio fields from the final
// chosen levels.
func finalize(levels *Levels) {
	if levels.Entry <= 0 {
		return
	}
	levels.StopLossPercent = math.Abs(levels.Entry-levels.StopLoss) / levels.Entry * 100
	levels.TakeProfitPercent = math.Abs(levels.TakeProfit2-levels.Entry) / levels.Entry * 100

	riskDist := math.Abs(levels.Entry - levels.StopLoss)
	rewardDist := math.Abs(levels.TakeProfit2 - levels.Entry)
	if riskDist > 0 {
		levels.RiskReward = rewardDist / riskDist
	}
}

func defaultLevels(entryPrice float64, direction Direction) Levels {
	levels := Levels{
		Entry:      entryPrice,
		Volatility: VolatilityMedium,
		Method:     MethodDefault,
	}
	if direction == Long {
		levels.StopLoss = entryPrice * (1 - defaultStopPercent)
		levels.TakeProfit1 = entryPrice * (1 + defaultTPPercent)
		levels.TakeProfit2 = entryPrice * (1 + 2*defaultTPPercent)
		levels.TakeProfit3 = entryPrice * (1 + 3*defaultTPPercent)
	} else {
		levels.StopLoss = entryPrice * (1 + defaultStopPercent)
		levels.TakeProfit1 = entryPrice * (1 - defaultTPPercent)
		levels.TakeProfit2 = entryPrice * (1 - 2*defaultTPPercent)
		levels.TakeProfit3 = entryPrice * (1 - 3*defaultTPPercent)
	}
	finalize(&levels)
	return levels
}
