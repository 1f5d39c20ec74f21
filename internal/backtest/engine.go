// Package backtest replays a trading strategy bar-by-bar over historical
// candles, simulating entries and exits with stop-loss, take-profit and
// commission, and computes performance statistics.
package backtest

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"argus-terminal/internal/market"
)

// warmupBars guarantees every strategy's indicators are defined before the
// first signal is evaluated.
const warmupBars = 50

// Config controls one backtest run.
type Config struct {
	Strategy          string  `json:"strategy"`
	InitialCapital    float64 `json:"initialCapital"`
	PositionSize      float64 `json:"positionSize"`      // fraction of current capital per entry
	StopLossPercent   float64 `json:"stopLossPercent"`   // fraction, e.g. 0.05
	TakeProfitPercent float64 `json:"takeProfitPercent"` // fraction
	Commission        float64 `json:"commission"`        // fraction per fill
}

// DefaultConfig returns the standard run parameters.
func DefaultConfig(strategy string) Config {
	return Config{
		Strategy:          strategy,
		InitialCapital:    10000,
		PositionSize:      0.95,
		StopLossPercent:   0.05,
		TakeProfitPercent: 0.10,
		Commission:        0.001,
	}
}

// Trade is one completed round trip.
type Trade struct {
	EntryTime  time.Time `json:"entryTime"`
	ExitTime   time.Time `json:"exitTime"`
	EntryPrice float64   `json:"entryPrice"`
	ExitPrice  float64   `json:"exitPrice"`
	Quantity   float64   `json:"quantity"`
	PnL        float64   `json:"pnl"`
	PnLPercent float64   `json:"pnlPercent"`
	ExitReason string    `json:"exitReason"`
}

// EquityPoint is the account value at one bar.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
}

// Result contains the statistics of one run. A run over fewer than 50
// candles yields the empty result: zero trades, final capital unchanged.
type Result struct {
	Symbol             string        `json:"symbol"`
	Strategy           string        `json:"strategy"`
	InitialCapital     float64       `json:"initialCapital"`
	FinalCapital       float64       `json:"finalCapital"`
	TotalTrades        int           `json:"totalTrades"`
	WinningTrades      int           `json:"winningTrades"`
	LosingTrades       int           `json:"losingTrades"`
	WinRate            float64       `json:"winRate"`
	AverageWin         float64       `json:"averageWin"`
	AverageLoss        float64       `json:"averageLoss"`
	ProfitFactor       float64       `json:"profitFactor"`
	SharpeRatio        float64       `json:"sharpeRatio"`
	MaxDrawdown        float64       `json:"maxDrawdown"`
	MaxDrawdownPercent float64       `json:"maxDrawdownPercent"`
	TotalPnL           float64       `json:"totalPnl"`
	Trades             []Trade       `json:"trades"`
	EquityCurve        []EquityPoint `json:"equityCurve"`
}

// MarshalJSON encodes an infinite profit factor (wins and no losses) as
// null, since JSON has no representation for +Inf.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	out := struct {
		plain
		ProfitFactor *float64 `json:"profitFactor"`
	}{plain: plain(r)}
	if !math.IsInf(r.ProfitFactor, 0) {
		out.ProfitFactor = &r.ProfitFactor
	}
	return json.Marshal(out)
}

// position tracks the single open position of a run.
type position struct {
	entryTime  time.Time
	entryPrice float64
	quantity   float64
}

// Run executes the configured strategy over the candle history. At most one
// position is open at a time.
func Run(symbol string, candles []market.Candle, cfg Config) (*Result, error) {
	signalFn, err := strategyFunc(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Symbol:         symbol,
		Strategy:       cfg.Strategy,
		InitialCapital: cfg.InitialCapital,
		FinalCapital:   cfg.InitialCapital,
		Trades:         []Trade{},
		EquityCurve:    []EquityPoint{},
	}
	if len(candles) < warmupBars {
		return result, nil
	}

	series := precompute(candles)

	cash := cfg.InitialCapital
	peak := cfg.InitialCapital
	var open *position

	for i := warmupBars; i < len(candles); i++ {
		price := candles[i].Close
		barTime := time.UnixMilli(candles[i].CloseTime)

		equity := cash
		if open != nil {
			equity += open.quantity * price
		}
		result.EquityCurve = append(result.EquityCurve, EquityPoint{Timestamp: barTime, Equity: equity})

		if equity > peak {
			peak = equity
		}
		if dd := peak - equity; dd > result.MaxDrawdown {
			result.MaxDrawdown = dd
			if peak > 0 {
				result.MaxDrawdownPercent = dd / peak * 100
			}
		}

		signal := signalFn(series, i)

		if open != nil {
			change := (price - open.entryPrice) / open.entryPrice
			var reason string
			switch {
			case signal == signalSell:
				reason = "Signal"
			case change <= -cfg.StopLossPercent:
				reason = "Stop Loss"
			case change >= cfg.TakeProfitPercent:
				reason = "Take Profit"
			}
			if reason != "" {
				cash += closeTrade(result, open, price, barTime, reason, cfg.Commission)
				open = nil
			}
			continue
		}

		if signal == signalBuy {
			notional := cash * cfg.PositionSize
			if notional <= 0 || price <= 0 {
				continue
			}
			quantity := notional / price
			cash -= notional
			cash -= notional * cfg.Commission
			open = &position{entryTime: barTime, entryPrice: price, quantity: quantity}
		}
	}

	if open != nil {
		last := candles[len(candles)-1]
		cash += closeTrade(result, open, last.Close, time.UnixMilli(last.CloseTime), "End of Backtest", cfg.Commission)
	}

	result.FinalCapital = cash
	result.TotalPnL = cash - cfg.InitialCapital
	computeStats(result)
	return result, nil
}

// closeTrade records the round trip and returns the net proceeds.
func closeTrade(result *Result, open *position, price float64, ts time.Time, reason string, commission float64) float64 {
	proceeds := open.quantity * price
	fee := proceeds * commission
	cost := open.quantity * open.entryPrice

	trade := Trade{
		EntryTime:  open.entryTime,
		ExitTime:   ts,
		EntryPrice: open.entryPrice,
		ExitPrice:  price,
		Quantity:   open.quantity,
		PnL:        proceeds - fee - cost,
		ExitReason: reason,
	}
	if open.entryPrice > 0 {
		trade.PnLPercent = (price - open.entryPrice) / open.entryPrice * 100
	}
	result.Trades = append(result.Trades, trade)
	return proceeds - fee
}

func computeStats(result *Result) {
	result.TotalTrades = len(result.Trades)

	var grossProfit, grossLoss float64
	for _, t := range result.Trades {
		if t.PnL > 0 {
			result.WinningTrades++
			grossProfit += t.PnL
		} else {
			result.LosingTrades++
			grossLoss += -t.PnL
		}
	}

	if result.TotalTrades > 0 {
		result.WinRate = float64(result.WinningTrades) / float64(result.TotalTrades) * 100
	}
	if result.WinningTrades > 0 {
		result.AverageWin = grossProfit / float64(result.WinningTrades)
	}
	if result.LosingTrades > 0 {
		result.AverageLoss = -grossLoss / float64(result.LosingTrades)
	}

	switch {
	case result.TotalTrades == 0:
		result.ProfitFactor = 0
	case grossLoss == 0 && grossProfit > 0:
		result.ProfitFactor = math.Inf(1)
	case grossLoss > 0:
		result.ProfitFactor = grossProfit / grossLoss
	}

	result.SharpeRatio = sharpe(result.EquityCurve)
}

// sharpe annualizes the per-bar equity return series; zero when the returns
// have no variance.
func sharpe(curve []EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		if curve[i-1].Equity == 0 {
			continue
		}
		returns = append(returns, (curve[i].Equity-curve[i-1].Equity)/curve[i-1].Equity)
	}
	if len(returns) == 0 {
		return 0
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns))
	stdev := math.Sqrt(variance)
	if stdev == 0 {
		return 0
	}
	return mean / stdev * math.Sqrt(252)
}

// Strategies returns the valid strategy identifiers.
func Strategies() []string {
	return []string{
		StrategyRSIReversion,
		StrategyMACDCross,
		StrategyBollingerBreakout,
		StrategySMACross,
		StrategyTrendFollow,
		StrategyArgusComposite,
	}
}

func strategyFunc(id string) (signalFunc, error) {
	switch id {
	case StrategyRSIReversion:
		return rsiReversionSignal, nil
	case StrategyMACDCross:
		return macdCrossSignal, nil
	case StrategyBollingerBreakout:
		return bollingerBreakoutSignal, nil
	case StrategySMACross:
		return smaCrossSignal, nil
	case StrategyTrendFollow:
		return trendFollowSignal, nil
	case StrategyArgusComposite:
		return argusCompositeSignal, nil
	default:
		return nil, fmt.Errorf("unknown strategy: %s", id)
	}
}
