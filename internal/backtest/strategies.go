package backtest

import (
	"argus-terminal/internal/indicator"
	"argus-terminal/internal/market"
)

// Strategy identifiers. All but argusComposite are single-indicator
// crossover or threshold rules; argusComposite is a simplified point-scoring
// system inspired by, but intentionally distinct from, the live council
// synthesizer.
const (
	StrategyRSIReversion      = "rsiReversion"
	StrategyMACDCross         = "macdCross"
	StrategyBollingerBreakout = "bollingerBreakout"
	StrategySMACross          = "smaCross"
	StrategyTrendFollow       = "trendFollow"
	StrategyArgusComposite    = "argusComposite"
)

type signal int

const (
	signalHold signal = iota
	signalBuy
	signalSell
)

// signalFunc evaluates the strategy at bar i using precomputed series.
type signalFunc func(s *seriesSet, i int) signal

// seriesSet holds every indicator series a strategy may consult, computed
// once per run.
type seriesSet struct {
	closes []float64
	rsi    []float64
	macd   indicator.MACDResult
	bb     indicator.BollingerResult
	sma20  []float64
	sma50  []float64
	sma200 []float64
}

func precompute(candles []market.Candle) *seriesSet {
	closes := market.Closes(candles)
	return &seriesSet{
		closes: closes,
		rsi:    indicator.RSI(closes, 14),
		macd:   indicator.MACD(closes, 12, 26, 9),
		bb:     indicator.Bollinger(closes, 20, 2.0),
		sma20:  indicator.SMA(closes, 20),
		sma50:  indicator.SMA(closes, 50),
		sma200: indicator.SMA(closes, 200),
	}
}

func defined(vs ...float64) bool {
	for _, v := range vs {
		if !indicator.Defined(v) {
			return false
		}
	}
	return true
}

// rsiReversionSignal buys oversold and sells overbought.
func rsiReversionSignal(s *seriesSet, i int) signal {
	if !defined(s.rsi[i]) {
		return signalHold
	}
	switch {
	case s.rsi[i] < 30:
		return signalBuy
	case s.rsi[i] > 70:
		return signalSell
	default:
		return signalHold
	}
}

// macdCrossSignal triggers on the MACD line crossing its signal line.
func macdCrossSignal(s *seriesSet, i int) signal {
	if i == 0 || !defined(s.macd.Line[i], s.macd.Signal[i], s.macd.Line[i-1], s.macd.Signal[i-1]) {
		return signalHold
	}
	crossedUp := s.macd.Line[i-1] <= s.macd.Signal[i-1] && s.macd.Line[i] > s.macd.Signal[i]
	crossedDown := s.macd.Line[i-1] >= s.macd.Signal[i-1] && s.macd.Line[i] < s.macd.Signal[i]
	switch {
	case crossedUp:
		return signalBuy
	case crossedDown:
		return signalSell
	default:
		return signalHold
	}
}

// bollingerBreakoutSignal buys a close beyond the upper band and sells one
// beyond the lower band.
func bollingerBreakoutSignal(s *seriesSet, i int) signal {
	if !defined(s.bb.Upper[i], s.bb.Lower[i]) {
		return signalHold
	}
	switch {
	case s.closes[i] > s.bb.Upper[i]:
		return signalBuy
	case s.closes[i] < s.bb.Lower[i]:
		return signalSell
	default:
		return signalHold
	}
}

// smaCrossSignal triggers on the SMA50/SMA200 golden and death crosses.
func smaCrossSignal(s *seriesSet, i int) signal {
	if i == 0 || !defined(s.sma50[i], s.sma200[i], s.sma50[i-1], s.sma200[i-1]) {
		return signalHold
	}
	golden := s.sma50[i-1] <= s.sma200[i-1] && s.sma50[i] > s.sma200[i]
	death := s.sma50[i-1] >= s.sma200[i-1] && s.sma50[i] < s.sma200[i]
	switch {
	case golden:
		return signalBuy
	case death:
		return signalSell
	default:
		return signalHold
	}
}

// trendFollowSignal buys price crossing above SMA50 with RSI confirmation
// and sells price crossing back below.
func trendFollowSignal(s *seriesSet, i int) signal {
	if i == 0 || !defined(s.sma50[i], s.sma50[i-1], s.rsi[i]) {
		return signalHold
	}
	crossedUp := s.closes[i-1] <= s.sma50[i-1] && s.closes[i] > s.sma50[i]
	crossedDown := s.closes[i-1] >= s.sma50[i-1] && s.closes[i] < s.sma50[i]
	switch {
	case crossedUp && s.rsi[i] > 50:
		return signalBuy
	case crossedDown:
		return signalSell
	default:
		return signalHold
	}
}

// argusCompositeSignal is the simplified point system: RSI, MACD histogram,
// SMA20 position and Bollinger position each contribute points; a total of
// +3 buys, -3 sells.
func argusCompositeSignal(s *seriesSet, i int) signal {
	score := 0

	if defined(s.rsi[i]) {
		switch {
		case s.rsi[i] < 30:
			score += 2
		case s.rsi[i] < 40:
			score++
		case s.rsi[i] > 70:
			score -= 2
		case s.rsi[i] > 60:
			score--
		}
	}

	if i > 0 && defined(s.macd.Histogram[i], s.macd.Histogram[i-1]) {
		if s.macd.Histogram[i] > 0 {
			score++
		} else if s.macd.Histogram[i] < 0 {
			score--
		}
		if s.macd.Histogram[i] > s.macd.Histogram[i-1] {
			score++
		} else if s.macd.Histogram[i] < s.macd.Histogram[i-1] {
			score--
		}
	}

	if defined(s.sma20[i]) {
		if s.closes[i] > s.sma20[i] {
			score++
		} else if s.closes[i] < s.sma20[i] {
			score--
		}
	}

	if defined(s.bb.Upper[i], s.bb.Lower[i]) && s.bb.Upper[i] != s.bb.Lower[i] {
		if s.closes[i] < s.bb.Lower[i] {
			score += 2
		} else if s.closes[i] > s.bb.Upper[i] {
			score -= 2
		}
	}

	switch {
	case score >= 3:
		return signalBuy
	case score <= -3:
		return signalSell
	default:
		return signalHold
	}
}
