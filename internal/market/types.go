package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle represents one OHLCV bar. Candle sequences returned by a DataSource
// are ordered ascending by open time and are never mutated after creation.
type Candle struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"closeTime"`
}

// Time returns the bar's open time as a time.Time.
func (c Candle) Time() time.Time {
	return time.Unix(0, c.OpenTime*int64(time.Millisecond))
}

// Ticker represents a 24hr rolling price summary for one symbol.
type Ticker struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Volume        float64 `json:"volume"`
	QuoteVolume   float64 `json:"quoteVolume"`
}

// DepthLevel is one price level in an order book. Exchange depth endpoints
// return prices and quantities as decimal strings; they are kept exact here
// rather than forced through float64.
type DepthLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
}

// OrderBookDepth holds bid/ask levels for one symbol.
type OrderBookDepth struct {
	Symbol string       `json:"symbol"`
	Bids   []DepthLevel `json:"bids"`
	Asks   []DepthLevel `json:"asks"`
}

// SymbolInfo represents basic symbol metadata from the exchange.
type SymbolInfo struct {
	Symbol               string `json:"symbol"`
	Status               string `json:"status"`
	BaseAsset            string `json:"baseAsset"`
	QuoteAsset           string `json:"quoteAsset"`
	IsSpotTradingAllowed bool   `json:"isSpotTradingAllowed"`
}

// Supported candle intervals.
const (
	Interval1m  = "1m"
	Interval5m  = "5m"
	Interval15m = "15m"
	Interval1h  = "1h"
	Interval4h  = "4h"
	Interval1d  = "1d"
	Interval1w  = "1w"
)

var validIntervals = map[string]bool{
	Interval1m: true, Interval5m: true, Interval15m: true,
	Interval1h: true, Interval4h: true, Interval1d: true, Interval1w: true,
}

// ValidInterval reports whether the interval string is one the data source
// accepts.
func ValidInterval(interval string) bool {
	return validIntervals[interval]
}

// Closes extracts the close price series from a candle sequence.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
