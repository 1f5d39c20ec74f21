package market

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MockClient provides simulated market data for development and tests.
// Candles and prices can be pinned per symbol; anything not pinned is
// synthesized from a deterministic random walk so runs are reproducible.
type MockClient struct {
	mu      sync.RWMutex
	prices  map[string]float64
	candles map[string][]Candle
	rng     *rand.Rand
}

// NewMockClient creates a mock client with a fixed set of base prices.
func NewMockClient() *MockClient {
	return &MockClient{
		prices: map[string]float64{
			"BTCUSDT":  104500.00,
			"ETHUSDT":  3900.00,
			"BNBUSDT":  710.00,
			"SOLUSDT":  220.00,
			"XRPUSDT":  2.35,
			"ADAUSDT":  1.05,
			"DOGEUSDT": 0.40,
			"LINKUSDT": 28.00,
			"DOTUSDT":  9.50,
			"LTCUSDT":  115.00,
		},
		candles: make(map[string][]Candle),
		rng:     rand.New(rand.NewSource(42)),
	}
}

// SetPrice pins the current price for a symbol.
func (mc *MockClient) SetPrice(symbol string, price float64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.prices[symbol] = price
}

// SetCandles pins the candle history returned for a symbol.
func (mc *MockClient) SetCandles(symbol string, candles []Candle) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.candles[symbol] = candles
	if len(candles) > 0 {
		mc.prices[symbol] = candles[len(candles)-1].Close
	}
}

// GetCandles returns pinned candles if set, otherwise a deterministic
// random-walk history anchored at the symbol's base price.
func (mc *MockClient) GetCandles(_ context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if !ValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if pinned, ok := mc.candles[symbol]; ok {
		if limit > 0 && limit < len(pinned) {
			return pinned[len(pinned)-limit:], nil
		}
		return pinned, nil
	}

	base, ok := mc.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol: %s", symbol)
	}

	step := intervalDuration(interval)
	now := time.Now().Truncate(step)
	candles := make([]Candle, limit)
	price := base
	for i := 0; i < limit; i++ {
		drift := (mc.rng.Float64() - 0.5) * 0.01 // +-0.5% per bar
		open := price
		close := open * (1 + drift)
		high := math.Max(open, close) * (1 + mc.rng.Float64()*0.003)
		low := math.Min(open, close) * (1 - mc.rng.Float64()*0.003)
		openTime := now.Add(-step * time.Duration(limit-i)).UnixMilli()
		candles[i] = Candle{
			OpenTime:  openTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000 + mc.rng.Float64()*5000,
			CloseTime: openTime + step.Milliseconds() - 1,
		}
		price = close
	}
	return candles, nil
}

// GetTicker returns the pinned price for a symbol.
func (mc *MockClient) GetTicker(_ context.Context, symbol string) (*Ticker, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	price, ok := mc.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown symbol: %s", symbol)
	}
	return &Ticker{
		Symbol:        symbol,
		Price:         price,
		Change:        0,
		ChangePercent: 0,
		High:          price * 1.02,
		Low:           price * 0.98,
		Volume:        100000,
		QuoteVolume:   price * 100000,
	}, nil
}

// GetTickers returns tickers for the given symbols, skipping unknown ones.
func (mc *MockClient) GetTickers(ctx context.Context, symbols []string) ([]Ticker, error) {
	tickers := make([]Ticker, 0, len(symbols))
	for _, symbol := range symbols {
		t, err := mc.GetTicker(ctx, symbol)
		if err != nil {
			continue
		}
		tickers = append(tickers, *t)
	}
	return tickers, nil
}

// GetTradableSymbols returns the known mock universe, sorted.
func (mc *MockClient) GetTradableSymbols(_ context.Context) ([]string, error) {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	symbols := make([]string, 0, len(mc.prices))
	for s := range mc.prices {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols, nil
}

// GetOrderBookDepth synthesizes a tight book around the current price.
func (mc *MockClient) GetOrderBookDepth(ctx context.Context, symbol string, limit int) (*OrderBookDepth, error) {
	ticker, err := mc.GetTicker(ctx, symbol)
	if err != nil {
		return nil, err
	}

	depth := &OrderBookDepth{Symbol: symbol}
	price := decimal.NewFromFloat(ticker.Price)
	tick := price.Mul(decimal.NewFromFloat(0.0001))
	qty := decimal.NewFromFloat(1.5)
	for i := 1; i <= limit; i++ {
		offset := tick.Mul(decimal.NewFromInt(int64(i)))
		depth.Bids = append(depth.Bids, DepthLevel{Price: price.Sub(offset), Quantity: qty})
		depth.Asks = append(depth.Asks, DepthLevel{Price: price.Add(offset), Quantity: qty})
	}
	return depth, nil
}

func intervalDuration(interval string) time.Duration {
	switch interval {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval4h:
		return 4 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	case Interval1w:
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}
