// Package council synthesizes one trade decision from seven independent
// scoring modules. The same synthesis is used by the analysis API, the
// composite backtest strategy's live counterpart, and the autopilot scan
// loop — there is exactly one implementation of this logic.
package council

import (
	"fmt"
	"time"

	"argus-terminal/internal/indicator"
	"argus-terminal/internal/market"
)

// Action is the direction of a vote or final decision.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// The seven fixed module names.
const (
	ModuleTrend      = "trend"
	ModuleMomentum   = "momentum"
	ModuleMACD       = "macd"
	ModuleVolatility = "volatility"
	ModuleOscillator = "oscillator"
	ModuleStrength   = "strength"
	ModuleGuardian   = "guardian"
)

// Vote is one module's opinion. Votes are created fresh per decision and
// never mutated afterwards.
type Vote struct {
	Module     string  `json:"module"`
	Score      float64 `json:"score"`      // [-100, 100]
	Direction  Action  `json:"direction"`  // buy, sell, hold
	Confidence float64 `json:"confidence"` // [0, 100]
	Reason     string  `json:"reason"`
}

// Decision is the synthesized result for one symbol.
type Decision struct {
	Symbol       string    `json:"symbol"`
	Timestamp    time.Time `json:"timestamp"`
	FinalAction  Action    `json:"finalAction"`
	OverallScore float64   `json:"overallScore"`
	Confidence   float64   `json:"confidence"`
	Votes        []Vote    `json:"votes"`
	Reason       string    `json:"reason"`
}

const (
	// MinCandles is the minimum history for a full analysis: SMA200 and the
	// ADX double smoothing are undefined below it.
	MinCandles = 50

	// consensusVotes is the module agreement needed to act without an
	// override.
	consensusVotes = 4

	rsiOversold   = 24.0
	rsiOverbought = 78.0
)

// Analyze runs all seven modules over the candle history and merges their
// votes. With fewer than MinCandles candles it returns the canonical
// insufficient-data decision: hold, zero confidence, no votes.
func Analyze(candles []market.Candle, symbol string) Decision {
	ts := time.Now()
	if len(candles) > 0 {
		ts = time.UnixMilli(candles[len(candles)-1].CloseTime)
	}

	if len(candles) < MinCandles {
		return Decision{
			Symbol:      symbol,
			Timestamp:   ts,
			FinalAction: ActionHold,
			Confidence:  0,
			Votes:       []Vote{},
			Reason:      fmt.Sprintf("insufficient data: %d candles, need %d", len(candles), MinCandles),
		}
	}

	snap := buildSnapshot(candles)

	votes := make([]Vote, 0, 7)
	votes = append(votes,
		scoreTrend(snap),
		scoreMomentum(snap),
		scoreMACD(snap),
		scoreVolatility(snap),
		scoreOscillator(snap),
		scoreStrength(snap),
	)
	votes = append(votes, scoreGuardian(votes))

	return aggregate(symbol, ts, votes, snap)
}

// aggregate merges the seven votes into a final action.
func aggregate(symbol string, ts time.Time, votes []Vote, snap snapshot) Decision {
	var sum float64
	buyVotes, sellVotes := 0, 0
	for _, v := range votes {
		sum += v.Score
		switch v.Direction {
		case ActionBuy:
			buyVotes++
		case ActionSell:
			sellVotes++
		}
	}
	avgScore := sum / float64(len(votes))

	decision := Decision{
		Symbol:       symbol,
		Timestamp:    ts,
		FinalAction:  ActionHold,
		OverallScore: avgScore,
		Votes:        votes,
	}

	// Override triggers fire in priority order: extreme RSI first, then the
	// 4-of-7 consensus.
	switch {
	case indicator.Defined(snap.rsi) && snap.rsi < rsiOversold:
		decision.FinalAction = ActionBuy
		decision.Reason = fmt.Sprintf("RSI %.1f below %.0f: extreme oversold override", snap.rsi, rsiOversold)
	case indicator.Defined(snap.rsi) && snap.rsi > rsiOverbought:
		decision.FinalAction = ActionSell
		decision.Reason = fmt.Sprintf("RSI %.1f above %.0f: extreme overbought override", snap.rsi, rsiOverbought)
	case buyVotes >= consensusVotes:
		decision.FinalAction = ActionBuy
	case sellVotes >= consensusVotes:
		decision.FinalAction = ActionSell
	}

	maxVotes := buyVotes
	if sellVotes > maxVotes {
		maxVotes = sellVotes
	}

	confidence := abs(avgScore)*0.5 + float64(maxVotes)*10
	if maxVotes >= consensusVotes && confidence < 65 {
		confidence = 65
	}
	if maxVotes >= 6 && confidence < 85 {
		confidence = 85
	}
	if confidence > 100 {
		confidence = 100
	}
	decision.Confidence = confidence

	if decision.Reason == "" {
		decision.Reason = fmt.Sprintf("%d buy / %d sell / %d hold votes, average score %.1f",
			buyVotes, sellVotes, len(votes)-buyVotes-sellVotes, avgScore)
	}
	return decision
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func clampScore(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < -100 {
		return -100
	}
	return v
}

func clampConfidence(v float64) float64 {
	if v > 100 {
		return 100
	}
	if v < 0 {
		return 0
	}
	return v
}

// directionFor maps a score to its implied vote direction.
func directionFor(score float64) Action {
	if score >= 20 {
		return ActionBuy
	}
	if score <= -20 {
		return ActionSell
	}
	return ActionHold
}
