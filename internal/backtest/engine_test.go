package backtest

import (
	"encoding/json"
	"math"
	"testing"

	"argus-terminal/internal/market"
)

func candlesFromCloses(closes []float64) []market.Candle {
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		candles[i] = market.Candle{
			OpenTime:  int64(i) * 3600000,
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
			CloseTime: int64(i)*3600000 + 3599999,
		}
	}
	return candles
}

func flatCloses(n int, price float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return closes
}

func TestRun_UnknownStrategy(t *testing.T) {
	_, err := Run("BTCUSDT", candlesFromCloses(flatCloses(100, 50)), DefaultConfig("martingale"))
	if err == nil {
		t.Fatal("expected error for unknown strategy")
	}
}

func TestRun_InsufficientData(t *testing.T) {
	result, err := Run("BTCUSDT", candlesFromCloses(flatCloses(30, 50)), DefaultConfig(StrategyArgusComposite))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalTrades != 0 {
		t.Errorf("trades = %d, want 0", result.TotalTrades)
	}
	if result.FinalCapital != result.InitialCapital {
		t.Errorf("final capital changed with no data: %f", result.FinalCapital)
	}
}

// A zero-variance price series must never fire the composite strategy.
func TestRun_CompositeFlatSeriesNoTrades(t *testing.T) {
	candles := candlesFromCloses(flatCloses(200, 100))

	result, err := Run("BTCUSDT", candles, DefaultConfig(StrategyArgusComposite))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.TotalTrades != 0 {
		t.Errorf("trades = %d, want 0 on a flat series", result.TotalTrades)
	}
	if result.FinalCapital != result.InitialCapital {
		t.Errorf("finalCapital = %f, want %f", result.FinalCapital, result.InitialCapital)
	}
	if result.ProfitFactor != 0 {
		t.Errorf("profit factor = %f, want 0 with no trades", result.ProfitFactor)
	}
	if result.SharpeRatio != 0 {
		t.Errorf("sharpe = %f, want 0 with zero-variance returns", result.SharpeRatio)
	}
	if len(result.EquityCurve) != len(candles)-warmupBars {
		t.Errorf("equity curve length = %d, want %d", len(result.EquityCurve), len(candles)-warmupBars)
	}
}

func TestRun_StopLossExit(t *testing.T) {
	// Flat warm-up, then a steady decline: RSI collapses, rsiReversion buys,
	// and the continued decline trips the 5% stop.
	closes := flatCloses(60, 100)
	for i := 1; i <= 20; i++ {
		closes = append(closes, 100-float64(i))
	}
	candles := candlesFromCloses(closes)

	cfg := DefaultConfig(StrategyRSIReversion)
	cfg.StopLossPercent = 0.05
	cfg.TakeProfitPercent = 0.50

	result, err := Run("ETHUSDT", candles, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalTrades == 0 {
		t.Fatal("expected at least one trade")
	}

	first := result.Trades[0]
	if first.ExitReason != "Stop Loss" {
		t.Errorf("exit reason = %q, want Stop Loss", first.ExitReason)
	}
	if first.PnL >= 0 {
		t.Errorf("stop-loss trade PnL = %f, want negative", first.PnL)
	}
	if first.PnLPercent > -5.0 {
		t.Errorf("pnlPercent = %f, want <= -5", first.PnLPercent)
	}
}

func TestRun_TakeProfitExit(t *testing.T) {
	// Flat warm-up then a steady rise: trendFollow buys the SMA50 cross and
	// the rise reaches the 4% target without a sell signal.
	closes := flatCloses(60, 100)
	for i := 1; i <= 20; i++ {
		closes = append(closes, 100+float64(i))
	}
	candles := candlesFromCloses(closes)

	cfg := DefaultConfig(StrategyTrendFollow)
	cfg.StopLossPercent = 0.10
	cfg.TakeProfitPercent = 0.04

	result, err := Run("BTCUSDT", candles, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalTrades == 0 {
		t.Fatal("expected at least one trade")
	}

	first := result.Trades[0]
	if first.ExitReason != "Take Profit" {
		t.Errorf("exit reason = %q, want Take Profit", first.ExitReason)
	}
	if first.PnL <= 0 {
		t.Errorf("take-profit trade PnL = %f, want positive", first.PnL)
	}
}

func TestRun_ForcedCloseAtEnd(t *testing.T) {
	// Entry fires but neither stop nor target is reached before data ends.
	closes := flatCloses(60, 100)
	for i := 1; i <= 5; i++ {
		closes = append(closes, 100+float64(i)*0.2)
	}
	candles := candlesFromCloses(closes)

	cfg := DefaultConfig(StrategyTrendFollow)
	cfg.StopLossPercent = 0.50
	cfg.TakeProfitPercent = 0.50

	result, err := Run("BTCUSDT", candles, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.TotalTrades == 0 {
		t.Fatal("expected the open position to be force-closed")
	}

	last := result.Trades[len(result.Trades)-1]
	if last.ExitReason != "End of Backtest" {
		t.Errorf("exit reason = %q, want End of Backtest", last.ExitReason)
	}
}

func TestRun_CommissionReducesProceeds(t *testing.T) {
	closes := flatCloses(60, 100)
	for i := 1; i <= 20; i++ {
		closes = append(closes, 100+float64(i))
	}
	candles := candlesFromCloses(closes)

	free := DefaultConfig(StrategyTrendFollow)
	free.Commission = 0
	free.TakeProfitPercent = 0.04

	taxed := free
	taxed.Commission = 0.01

	a, err := Run("BTCUSDT", candles, free)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Run("BTCUSDT", candles, taxed)
	if err != nil {
		t.Fatal(err)
	}
	if a.TotalTrades == 0 || b.TotalTrades == 0 {
		t.Fatal("expected trades in both runs")
	}
	if b.FinalCapital >= a.FinalCapital {
		t.Errorf("commissioned run should finish below the free run: %f vs %f",
			b.FinalCapital, a.FinalCapital)
	}
}

func TestRun_ProfitFactorInfiniteWhenNoLosses(t *testing.T) {
	closes := flatCloses(60, 100)
	for i := 1; i <= 20; i++ {
		closes = append(closes, 100+float64(i))
	}
	cfg := DefaultConfig(StrategyTrendFollow)
	cfg.TakeProfitPercent = 0.04
	cfg.StopLossPercent = 0.10

	result, err := Run("BTCUSDT", candlesFromCloses(closes), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if result.LosingTrades != 0 {
		t.Skip("scenario produced a losing trade; profit factor branch not reachable")
	}
	if result.TotalTrades > 0 && !math.IsInf(result.ProfitFactor, 1) {
		t.Errorf("profit factor = %f, want +Inf with wins and no losses", result.ProfitFactor)
	}
}

func TestResult_MarshalJSON_InfiniteProfitFactor(t *testing.T) {
	result := Result{
		Symbol:       "BTCUSDT",
		Strategy:     StrategyTrendFollow,
		TotalTrades:  2,
		ProfitFactor: math.Inf(1),
		Trades:       []Trade{},
		EquityCurve:  []EquityPoint{},
	}

	data, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal with infinite profit factor: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if v, ok := decoded["profitFactor"]; !ok || v != nil {
		t.Errorf("profitFactor = %v, want null", v)
	}
	if decoded["symbol"] != "BTCUSDT" {
		t.Errorf("symbol = %v, want BTCUSDT", decoded["symbol"])
	}

	result.ProfitFactor = 1.5
	data, err = json.Marshal(result)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["profitFactor"] != 1.5 {
		t.Errorf("profitFactor = %v, want 1.5", decoded["profitFactor"])
	}
}

func TestStrategies_ListsAllSix(t *testing.T) {
	ids := Strategies()
	if len(ids) != 6 {
		t.Fatalf("strategies = %d, want 6", len(ids))
	}
	for _, id := range ids {
		if _, err := strategyFunc(id); err != nil {
			t.Errorf("strategy %s not resolvable: %v", id, err)
		}
	}
}
