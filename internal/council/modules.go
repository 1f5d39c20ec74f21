package council

import (
	"fmt"

	"argus-terminal/internal/indicator"
	"argus-terminal/internal/market"
)

// snapshot holds the latest defined value of each indicator the modules
// consume, computed once per analysis.
type snapshot struct {
	price     float64
	rsi       float64
	sma20     float64
	sma50     float64
	sma200    float64
	macd      float64
	signal    float64
	histogram float64
	prevHist  float64
	bbUpper   float64
	bbMiddle  float64
	bbLower   float64
	stochK    float64
	stochD    float64
	williams  float64
	cci       float64
	adx       float64
}

func last(series []float64) float64 {
	if len(series) == 0 {
		return indicator.Undefined
	}
	return series[len(series)-1]
}

func buildSnapshot(candles []market.Candle) snapshot {
	closes := market.Closes(candles)
	macd := indicator.MACD(closes, 12, 26, 9)
	bb := indicator.Bollinger(closes, 20, 2.0)
	stoch := indicator.Stochastic(candles, 14, 3)

	snap := snapshot{
		price:     closes[len(closes)-1],
		rsi:       last(indicator.RSI(closes, 14)),
		sma20:     last(indicator.SMA(closes, 20)),
		sma50:     last(indicator.SMA(closes, 50)),
		sma200:    last(indicator.SMA(closes, 200)),
		macd:      last(macd.Line),
		signal:    last(macd.Signal),
		histogram: last(macd.Histogram),
		bbUpper:   last(bb.Upper),
		bbMiddle:  last(bb.Middle),
		bbLower:   last(bb.Lower),
		stochK:    last(stoch.K),
		stochD:    last(stoch.D),
		williams:  last(indicator.WilliamsR(candles, 14)),
		cci:       last(indicator.CCI(candles, 20)),
		adx:       last(indicator.ADX(candles, 14)),
	}
	if len(macd.Histogram) >= 2 {
		snap.prevHist = macd.Histogram[len(macd.Histogram)-2]
	} else {
		snap.prevHist = indicator.Undefined
	}
	return snap
}

// scoreTrend votes on moving-average alignment. Price above a rising stack
// of SMAs is bullish; below, bearish. SMA200 is optional — with 50..199
// candles the module scores on the 20/50 pair alone.
func scoreTrend(s snapshot) Vote {
	vote := Vote{Module: ModuleTrend}

	if !indicator.Defined(s.sma20) || !indicator.Defined(s.sma50) {
		vote.Direction = ActionHold
		vote.Reason = "moving averages not yet formed"
		return vote
	}

	score := 0.0
	if s.price > s.sma20 {
		score += 30
	} else {
		score -= 30
	}
	if s.sma20 > s.sma50 {
		score += 30
	} else {
		score -= 30
	}
	if indicator.Defined(s.sma200) {
		if s.sma50 > s.sma200 {
			score += 40
		} else {
			score -= 40
		}
	}

	vote.Score = clampScore(score)
	vote.Direction = directionFor(vote.Score)
	vote.Confidence = clampConfidence(abs(vote.Score))
	vote.Reason = fmt.Sprintf("price %.4f vs SMA20 %.4f, SMA50 %.4f", s.price, s.sma20, s.sma50)
	return vote
}

// scoreMomentum votes on RSI distance from the 30/70 bands.
func scoreMomentum(s snapshot) Vote {
	vote := Vote{Module: ModuleMomentum}

	if !indicator.Defined(s.rsi) {
		vote.Direction = ActionHold
		vote.Reason = "RSI not yet formed"
		return vote
	}

	switch {
	case s.rsi < 30:
		vote.Score = clampScore((30 - s.rsi) * 3.3)
	case s.rsi > 70:
		vote.Score = clampScore(-(s.rsi - 70) * 3.3)
	default:
		// Gentle lean away from the midline inside the neutral band.
		vote.Score = (50 - s.rsi) * 0.5
	}

	vote.Direction = directionFor(vote.Score)
	vote.Confidence = clampConfidence(abs(vote.Score))
	vote.Reason = fmt.Sprintf("RSI(14) at %.1f", s.rsi)
	return vote
}

// scoreMACD votes on the MACD line/signal relationship and histogram slope.
func scoreMACD(s snapshot) Vote {
	vote := Vote{Module: ModuleMACD}

	if !indicator.Defined(s.macd) || !indicator.Defined(s.signal) {
		vote.Direction = ActionHold
		vote.Reason = "MACD not yet formed"
		return vote
	}

	score := 0.0
	if s.macd > s.signal {
		score += 40
	} else {
		score -= 40
	}
	if indicator.Defined(s.histogram) {
		if s.histogram > 0 {
			score += 20
		} else if s.histogram < 0 {
			score -= 20
		}
		if indicator.Defined(s.prevHist) {
			if s.histogram > s.prevHist {
				score += 20
			} else if s.histogram < s.prevHist {
				score -= 20
			}
		}
	}

	vote.Score = clampScore(score)
	vote.Direction = directionFor(vote.Score)
	vote.Confidence = clampConfidence(abs(vote.Score))
	vote.Reason = fmt.Sprintf("MACD %.4f vs signal %.4f, histogram %.4f", s.macd, s.signal, s.histogram)
	return vote
}

// scoreVolatility votes mean-reversion on the Bollinger band position.
func scoreVolatility(s snapshot) Vote {
	vote := Vote{Module: ModuleVolatility}

	if !indicator.Defined(s.bbUpper) || !indicator.Defined(s.bbLower) || s.bbUpper == s.bbLower {
		vote.Direction = ActionHold
		vote.Reason = "Bollinger bands not yet formed"
		return vote
	}

	// %B: 0 at the lower band, 1 at the upper.
	percentB := (s.price - s.bbLower) / (s.bbUpper - s.bbLower)
	switch {
	case percentB <= 0:
		vote.Score = 80
	case percentB >= 1:
		vote.Score = -80
	default:
		vote.Score = (0.5 - percentB) * 120
	}

	vote.Score = clampScore(vote.Score)
	vote.Direction = directionFor(vote.Score)
	vote.Confidence = clampConfidence(abs(vote.Score))
	vote.Reason = fmt.Sprintf("price at %.0f%% of Bollinger range", percentB*100)
	return vote
}

// scoreOscillator votes on Stochastic %K/%D plus Williams %R agreement.
func scoreOscillator(s snapshot) Vote {
	vote := Vote{Module: ModuleOscillator}

	if !indicator.Defined(s.stochK) || !indicator.Defined(s.williams) {
		vote.Direction = ActionHold
		vote.Reason = "oscillators not yet formed"
		return vote
	}

	score := 0.0
	switch {
	case s.stochK < 20:
		score += 40
	case s.stochK > 80:
		score -= 40
	}
	if indicator.Defined(s.stochD) {
		if s.stochK > s.stochD {
			score += 20
		} else if s.stochK < s.stochD {
			score -= 20
		}
	}
	switch {
	case s.williams < -80:
		score += 40
	case s.williams > -20:
		score -= 40
	}

	vote.Score = clampScore(score)
	vote.Direction = directionFor(vote.Score)
	vote.Confidence = clampConfidence(abs(vote.Score))
	vote.Reason = fmt.Sprintf("stochastic %%K %.1f, Williams %%R %.1f", s.stochK, s.williams)
	return vote
}

// scoreStrength votes on CCI extremes, weighted by ADX trend strength.
func scoreStrength(s snapshot) Vote {
	vote := Vote{Module: ModuleStrength}

	if !indicator.Defined(s.cci) {
		vote.Direction = ActionHold
		vote.Reason = "CCI not yet formed"
		return vote
	}

	score := 0.0
	switch {
	case s.cci < -100:
		score = clampScore((-100 - s.cci) * 0.6)
	case s.cci > 100:
		score = clampScore(-(s.cci - 100) * 0.6)
	default:
		score = -s.cci * 0.15
	}

	confidence := abs(score)
	if indicator.Defined(s.adx) && s.adx > 25 {
		// A strong trend makes the reading more trustworthy.
		confidence += (s.adx - 25) * 0.5
	}

	vote.Score = clampScore(score)
	vote.Direction = directionFor(vote.Score)
	vote.Confidence = clampConfidence(confidence)
	vote.Reason = fmt.Sprintf("CCI(20) at %.1f, ADX %.1f", s.cci, s.adx)
	return vote
}

// scoreGuardian consumes the other six votes rather than raw data: its score
// is their mean and its confidence grows with how many of the six agree with
// its implied direction.
func scoreGuardian(others []Vote) Vote {
	vote := Vote{Module: ModuleGuardian}

	sum := 0.0
	for _, v := range others {
		sum += v.Score
	}
	mean := sum / float64(len(others))
	vote.Score = clampScore(mean)
	vote.Direction = directionFor(vote.Score)

	agreeing := 0
	for _, v := range others {
		if v.Direction == vote.Direction {
			agreeing++
		}
	}
	vote.Confidence = clampConfidence(90 + float64(agreeing))
	vote.Reason = fmt.Sprintf("mean of six modules %.1f, %d agree", mean, agreeing)
	return vote
}
