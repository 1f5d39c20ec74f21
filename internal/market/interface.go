package market

import "context"

// DataSource defines the market data operations the engine consumes. The
// engine accepts whatever the data source returns; it does not verify
// exchange consistency.
type DataSource interface {
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	GetTicker(ctx context.Context, symbol string) (*Ticker, error)
	GetTickers(ctx context.Context, symbols []string) ([]Ticker, error)
	GetTradableSymbols(ctx context.Context) ([]string, error)
	GetOrderBookDepth(ctx context.Context, symbol string, limit int) (*OrderBookDepth, error)
}

// Ensure both implementations satisfy DataSource.
var _ DataSource = (*Client)(nil)
var _ DataSource = (*MockClient)(nil)
