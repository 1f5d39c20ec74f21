package risk

import (
	"testing"

	"argus-terminal/internal/market"
)

func trendingCandles(n int, start, step float64) []market.Candle {
	candles := make([]market.Candle, n)
	price := start
	for i := 0; i < n; i++ {
		candles[i] = market.Candle{
			OpenTime:  int64(i) * 3600000,
			Open:      price,
			High:      price * 1.015,
			Low:       price * 0.985,
			Close:     price + step,
			Volume:    1000,
			CloseTime: int64(i)*3600000 + 3599999,
		}
		price += step
	}
	return candles
}

func TestCalculate_LongOrdering(t *testing.T) {
	candles := trendingCandles(100, 100, 0.5)
	entry := candles[len(candles)-1].Close

	levels := Calculate(candles, entry, Long, DefaultConfig())

	if !(levels.StopLoss < entry && entry < levels.TakeProfit1 &&
		levels.TakeProfit1 < levels.TakeProfit2 && levels.TakeProfit2 < levels.TakeProfit3) {
		t.Errorf("long level ordering violated: sl=%.2f entry=%.2f tp=%.2f/%.2f/%.2f",
			levels.StopLoss, entry, levels.TakeProfit1, levels.TakeProfit2, levels.TakeProfit3)
	}
	if levels.ATR <= 0 {
		t.Error("ATR should be positive with sufficient history")
	}
	if levels.RiskReward <= 0 {
		t.Error("risk:reward should be positive")
	}
}

func TestCalculate_ShortOrdering(t *testing.T) {
	candles := trendingCandles(100, 200, -0.5)
	entry := candles[len(candles)-1].Close

	levels := Calculate(candles, entry, Short, DefaultConfig())

	if !(levels.StopLoss > entry && entry > levels.TakeProfit1 &&
		levels.TakeProfit1 > levels.TakeProfit2 && levels.TakeProfit2 > levels.TakeProfit3) {
		t.Errorf("short level ordering violated: sl=%.2f entry=%.2f tp=%.2f/%.2f/%.2f",
			levels.StopLoss, entry, levels.TakeProfit1, levels.TakeProfit2, levels.TakeProfit3)
	}
}

func TestCalculate_InsufficientBarsUsesDefaults(t *testing.T) {
	candles := trendingCandles(20, 100, 0.5)

	levels := Calculate(candles, 110, Long, DefaultConfig())

	if levels.Method != MethodDefault {
		t.Errorf("method = %s, want %s below 30 bars", levels.Method, MethodDefault)
	}
	if levels.StopLoss != 110*0.95 {
		t.Errorf("default stop = %f, want %f", levels.StopLoss, 110*0.95)
	}
	if levels.TakeProfit1 != 110*1.03 {
		t.Errorf("default tp1 = %f, want %f", levels.TakeProfit1, 110*1.03)
	}
}

func TestSwingLevels_DetectsExtremes(t *testing.T) {
	// Flat series with one pronounced dip and one spike in the middle.
	candles := make([]market.Candle, 21)
	for i := range candles {
		candles[i] = market.Candle{Open: 100, High: 101, Low: 99, Close: 100}
	}
	candles[8].Low = 92    // swing low
	candles[14].High = 109 // swing high

	supports, resistances := SwingLevels(candles)

	foundSupport, foundResistance := false, false
	for _, s := range supports {
		if s == 92 {
			foundSupport = true
		}
	}
	for _, r := range resistances {
		if r == 109 {
			foundResistance = true
		}
	}
	if !foundSupport {
		t.Errorf("swing low 92 not detected, supports=%v", supports)
	}
	if !foundResistance {
		t.Errorf("swing high 109 not detected, resistances=%v", resistances)
	}
}

func TestCalculate_StructuralStopPreferred(t *testing.T) {
	// Build a history whose swing support sits between the ATR stop and the
	// entry price, so the structural level should win.
	candles := trendingCandles(100, 100, 0.1)
	entry := candles[len(candles)-1].Close

	atrOnly := Calculate(candles, entry, Long, DefaultConfig())

	// Insert a prominent swing low just above the ATR stop.
	structural := atrOnly.StopLoss + (entry-atrOnly.StopLoss)*0.5
	candles[95].Low = structural
	candles[95].High = candles[95].Low + 0.1

	blended := Calculate(candles, entry, Long, DefaultConfig())

	if blended.Method != MethodStructural {
		t.Fatalf("method = %s, want structural", blended.Method)
	}
	want := structural * (1 - structuralOffset)
	if diff := blended.StopLoss - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("structural stop = %f, want %f", blended.StopLoss, want)
	}
	if blended.StopLoss >= entry {
		t.Error("structural stop must stay below entry")
	}
}

func TestCalculate_FartherStructuralFallsBackToATR(t *testing.T) {
	candles := trendingCandles(100, 100, 0.1)
	entry := candles[len(candles)-1].Close

	atrOnly := Calculate(candles, entry, Long, DefaultConfig())

	// A swing low below the ATR stop is farther from entry on the stop side;
	// the ATR level must be kept.
	candles[95].Low = atrOnly.StopLoss * 0.9
	candles[95].High = candles[95].Low + 0.1

	blended := Calculate(candles, entry, Long, DefaultConfig())
	if blended.Method == MethodStructural && blended.StopLoss < atrOnly.StopLoss {
		t.Errorf("farther structural level should not replace the ATR stop")
	}
}
