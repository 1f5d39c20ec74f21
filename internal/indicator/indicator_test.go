package indicator

import (
	"math"
	"testing"

	"argus-terminal/internal/market"
)

func candlesFromCloses(closes []float64) []market.Candle {
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		candles[i] = market.Candle{
			OpenTime:  int64(i) * 60000,
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000,
			CloseTime: int64(i)*60000 + 59999,
		}
	}
	return candles
}

func almost(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestSMA_KnownValues(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	sma := SMA(values, 3)

	if len(sma) != len(values) {
		t.Fatalf("length mismatch: got %d, want %d", len(sma), len(values))
	}
	if Defined(sma[0]) || Defined(sma[1]) {
		t.Error("warm-up indices should be undefined")
	}
	if !almost(sma[2], 2.0) || !almost(sma[3], 3.0) || !almost(sma[4], 4.0) {
		t.Errorf("unexpected SMA values: %v", sma[2:])
	}
}

func TestEMA_SeededWithSMA(t *testing.T) {
	values := []float64{10, 11, 12, 13, 14}
	ema := EMA(values, 3)

	// Seed at index 2 is the SMA of the first 3 values.
	if !almost(ema[2], 11.0) {
		t.Errorf("EMA seed = %f, want 11.0", ema[2])
	}
	// k = 2/(3+1) = 0.5
	if !almost(ema[3], 13*0.5+11*0.5) {
		t.Errorf("EMA[3] = %f, want 12.0", ema[3])
	}
	if !almost(ema[4], 14*0.5+ema[3]*0.5) {
		t.Errorf("EMA[4] = %f", ema[4])
	}
}

func TestRSI_BoundsAndMonotonicRise(t *testing.T) {
	values := make([]float64, 40)
	for i := range values {
		values[i] = 100 + float64(i)
	}
	rsi := RSI(values, 14)

	for i := 0; i < 14; i++ {
		if Defined(rsi[i]) {
			t.Fatalf("rsi[%d] should be undefined during warm-up", i)
		}
	}
	for i := 14; i < len(rsi); i++ {
		if rsi[i] < 0 || rsi[i] > 100 {
			t.Fatalf("rsi[%d] = %f out of [0,100]", i, rsi[i])
		}
		// Average loss is zero on a strictly rising series.
		if rsi[i] != 100.0 {
			t.Fatalf("rsi[%d] = %f, want exactly 100 with zero losses", i, rsi[i])
		}
	}
}

func TestRSI_MixedSeriesWithinBounds(t *testing.T) {
	values := []float64{
		44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
		45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00,
		46.03, 46.41, 46.22, 45.64, 46.21, 46.25, 45.71, 46.45,
	}
	rsi := RSI(values, 14)
	for i := 14; i < len(rsi); i++ {
		if rsi[i] <= 0 || rsi[i] >= 100 {
			t.Errorf("rsi[%d] = %f, want strictly inside (0,100)", i, rsi[i])
		}
	}
}

func TestIndicators_Deterministic(t *testing.T) {
	values := []float64{5, 7, 6, 8, 9, 7, 6, 8, 10, 11, 9, 8, 10, 12, 13, 11, 12, 14, 13, 15}
	a := RSI(values, 14)
	b := RSI(values, 14)
	for i := range a {
		if Defined(a[i]) != Defined(b[i]) {
			t.Fatalf("definedness differs at %d", i)
		}
		if Defined(a[i]) && a[i] != b[i] {
			t.Fatalf("non-deterministic RSI at %d: %v != %v", i, a[i], b[i])
		}
	}
}

func TestMACD_WarmupAndAlignment(t *testing.T) {
	values := make([]float64, 60)
	for i := range values {
		values[i] = 100 + math.Sin(float64(i)/5)*10
	}
	macd := MACD(values, 12, 26, 9)

	if len(macd.Line) != 60 || len(macd.Signal) != 60 || len(macd.Histogram) != 60 {
		t.Fatal("MACD series length mismatch")
	}
	if Defined(macd.Line[24]) {
		t.Error("MACD line should be undefined before slow period warm-up")
	}
	if !Defined(macd.Line[25]) {
		t.Error("MACD line should be defined at index slowPeriod-1")
	}
	// Signal needs signalPeriod defined MACD values: 25 + 9 - 1 = 33.
	if Defined(macd.Signal[32]) {
		t.Error("signal should be undefined at index 32")
	}
	if !Defined(macd.Signal[33]) {
		t.Error("signal should be defined at index 33")
	}
	if !almost(macd.Histogram[40], macd.Line[40]-macd.Signal[40]) {
		t.Error("histogram should equal line - signal")
	}
}

func TestBollinger_FlatSeriesCollapses(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 50.0
	}
	bb := Bollinger(values, 20, 2.0)

	if !almost(bb.Upper[25], 50.0) || !almost(bb.Lower[25], 50.0) || !almost(bb.Middle[25], 50.0) {
		t.Errorf("flat series should collapse bands to the mean: %f %f %f",
			bb.Upper[25], bb.Middle[25], bb.Lower[25])
	}
}

func TestATR_WilderSmoothing(t *testing.T) {
	candles := candlesFromCloses([]float64{
		100, 101, 102, 101, 103, 104, 103, 105, 106, 105,
		107, 108, 107, 109, 110, 109, 111,
	})
	atr := ATR(candles, 14)

	if len(atr) != len(candles) {
		t.Fatal("ATR length mismatch")
	}
	for i := 0; i < 14; i++ {
		if Defined(atr[i]) {
			t.Fatalf("atr[%d] should be undefined", i)
		}
	}
	if !Defined(atr[14]) {
		t.Fatal("atr[14] should be the first defined value")
	}
	if atr[14] <= 0 {
		t.Errorf("atr[14] = %f, want positive", atr[14])
	}
	// Wilder recurrence for the next value.
	tr := trueRanges(candles)
	want := (atr[14]*13 + tr[15]) / 14
	if !almost(atr[15], want) {
		t.Errorf("atr[15] = %f, want %f", atr[15], want)
	}
}

func TestStochastic_ZeroRangeDefaults(t *testing.T) {
	closes := make([]float64, 20)
	for i := range closes {
		closes[i] = 42.0
	}
	candles := make([]market.Candle, len(closes))
	for i, c := range closes {
		candles[i] = market.Candle{Open: c, High: c, Low: c, Close: c}
	}
	stoch := Stochastic(candles, 14, 3)

	if !almost(stoch.K[15], 50.0) {
		t.Errorf("zero-range %%K = %f, want 50", stoch.K[15])
	}

	wr := WilliamsR(candles, 14)
	if !almost(wr[15], -50.0) {
		t.Errorf("zero-range Williams %%R = %f, want -50", wr[15])
	}
}

func TestWilliamsR_Bounds(t *testing.T) {
	candles := candlesFromCloses([]float64{
		10, 11, 12, 11, 13, 14, 13, 15, 16, 15, 17, 18, 17, 19, 20, 19, 21,
	})
	wr := WilliamsR(candles, 14)
	for i := 13; i < len(wr); i++ {
		if wr[i] > 0 || wr[i] < -100 {
			t.Errorf("williams[%d] = %f out of [-100, 0]", i, wr[i])
		}
	}
}

func TestCCI_UndefinedOnZeroDeviation(t *testing.T) {
	candles := make([]market.Candle, 25)
	for i := range candles {
		candles[i] = market.Candle{Open: 10, High: 10, Low: 10, Close: 10}
	}
	cci := CCI(candles, 20)
	for i := range cci {
		if Defined(cci[i]) {
			t.Fatalf("cci[%d] should be undefined when mean deviation is zero", i)
		}
	}
}

func TestADX_WarmupLength(t *testing.T) {
	closes := make([]float64, 80)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i)/4)*8 + float64(i)*0.3
	}
	candles := candlesFromCloses(closes)
	adx := ADX(candles, 14)

	for i := 0; i < 28; i++ {
		if Defined(adx[i]) {
			t.Fatalf("adx[%d] should be undefined before index 2*period", i)
		}
	}
	if !Defined(adx[28]) {
		t.Fatal("adx[28] should be defined")
	}
	for i := 28; i < len(adx); i++ {
		if adx[i] < 0 || adx[i] > 100 {
			t.Errorf("adx[%d] = %f out of [0,100]", i, adx[i])
		}
	}
}

func TestInsufficientData_AllUndefined(t *testing.T) {
	short := []float64{1, 2, 3}
	for name, series := range map[string][]float64{
		"sma": SMA(short, 10),
		"ema": EMA(short, 10),
		"rsi": RSI(short, 14),
	} {
		if len(series) != len(short) {
			t.Errorf("%s: length mismatch", name)
		}
		for i, v := range series {
			if Defined(v) {
				t.Errorf("%s[%d] should be undefined on insufficient data", name, i)
			}
		}
	}

	atr := ATR(candlesFromCloses(short), 14)
	for i, v := range atr {
		if Defined(v) {
			t.Errorf("atr[%d] should be undefined on insufficient data", i)
		}
	}
}
