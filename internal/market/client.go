package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Client is a REST client for a Binance-compatible public market data API.
// Only unauthenticated market endpoints are used.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new market data client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetCandles fetches candlestick data ordered ascending by open time.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	if !ValidInterval(interval) {
		return nil, fmt.Errorf("invalid interval: %s", interval)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "/api/v3/klines", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching candles: %w", err)
	}

	var raw [][]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing candles: %w", err)
	}

	candles := make([]Candle, len(raw))
	for i, row := range raw {
		if len(row) < 7 {
			return nil, fmt.Errorf("malformed kline row at index %d", i)
		}
		candles[i] = Candle{
			OpenTime:  asInt64(row[0]),
			Open:      parseFloat(row[1]),
			High:      parseFloat(row[2]),
			Low:       parseFloat(row[3]),
			Close:     parseFloat(row[4]),
			Volume:    parseFloat(row[5]),
			CloseTime: asInt64(row[6]),
		}
	}

	return candles, nil
}

// ticker24hr mirrors the exchange 24hr ticker payload.
type ticker24hr struct {
	Symbol             string  `json:"symbol"`
	PriceChange        float64 `json:"priceChange,string"`
	PriceChangePercent float64 `json:"priceChangePercent,string"`
	LastPrice          float64 `json:"lastPrice,string"`
	HighPrice          float64 `json:"highPrice,string"`
	LowPrice           float64 `json:"lowPrice,string"`
	Volume             float64 `json:"volume,string"`
	QuoteVolume        float64 `json:"quoteVolume,string"`
}

func (t ticker24hr) toTicker() Ticker {
	return Ticker{
		Symbol:        t.Symbol,
		Price:         t.LastPrice,
		Change:        t.PriceChange,
		ChangePercent: t.PriceChangePercent,
		High:          t.HighPrice,
		Low:           t.LowPrice,
		Volume:        t.Volume,
		QuoteVolume:   t.QuoteVolume,
	}
}

// GetTicker fetches the 24hr ticker for one symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.get(ctx, "/api/v3/ticker/24hr", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching ticker: %w", err)
	}

	var raw ticker24hr
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing ticker: %w", err)
	}

	ticker := raw.toTicker()
	return &ticker, nil
}

// GetTickers fetches 24hr tickers for the given symbols in one request.
func (c *Client) GetTickers(ctx context.Context, symbols []string) ([]Ticker, error) {
	if len(symbols) == 0 {
		return nil, nil
	}

	quoted := make([]string, len(symbols))
	for i, s := range symbols {
		quoted[i] = `"` + s + `"`
	}
	params := url.Values{}
	params.Set("symbols", "["+strings.Join(quoted, ",")+"]")

	body, err := c.get(ctx, "/api/v3/ticker/24hr", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching tickers: %w", err)
	}

	var raw []ticker24hr
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing tickers: %w", err)
	}

	tickers := make([]Ticker, len(raw))
	for i, t := range raw {
		tickers[i] = t.toTicker()
	}
	return tickers, nil
}

// stableBases are base assets excluded from the tradable universe: a
// stable-vs-stable pair carries no directional signal.
var stableBases = map[string]bool{
	"USDC": true, "TUSD": true, "BUSD": true, "DAI": true,
	"FDUSD": true, "USDP": true, "EUR": true, "PAX": true,
}

// leveragedSuffixes mark leveraged-token products (3x long/short wrappers).
var leveragedSuffixes = []string{"UP", "DOWN", "BULL", "BEAR", "3L", "3S"}

// GetTradableSymbols returns the deduplicated USDT-quoted spot pairs,
// excluding stable-coin bases and leveraged-token products.
func (c *Client) GetTradableSymbols(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, fmt.Errorf("error fetching exchange info: %w", err)
	}

	var info struct {
		Symbols []SymbolInfo `json:"symbols"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("error parsing exchange info: %w", err)
	}

	seen := make(map[string]bool, len(info.Symbols))
	var symbols []string
	for _, s := range info.Symbols {
		if s.Status != "TRADING" || !s.IsSpotTradingAllowed {
			continue
		}
		if s.QuoteAsset != "USDT" {
			continue
		}
		if stableBases[s.BaseAsset] || isLeveragedToken(s.BaseAsset) {
			continue
		}
		if seen[s.Symbol] {
			continue
		}
		seen[s.Symbol] = true
		symbols = append(symbols, s.Symbol)
	}

	sort.Strings(symbols)
	return symbols, nil
}

func isLeveragedToken(baseAsset string) bool {
	for _, suffix := range leveragedSuffixes {
		if strings.HasSuffix(baseAsset, suffix) && len(baseAsset) > len(suffix) {
			return true
		}
	}
	return false
}

// GetOrderBookDepth fetches bid/ask levels. Prices and quantities stay as
// exact decimals.
func (c *Client) GetOrderBookDepth(ctx context.Context, symbol string, limit int) (*OrderBookDepth, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, "/api/v3/depth", params)
	if err != nil {
		return nil, fmt.Errorf("error fetching depth: %w", err)
	}

	var raw struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("error parsing depth: %w", err)
	}

	depth := &OrderBookDepth{Symbol: symbol}
	depth.Bids, err = parseDepthLevels(raw.Bids)
	if err != nil {
		return nil, fmt.Errorf("error parsing bids: %w", err)
	}
	depth.Asks, err = parseDepthLevels(raw.Asks)
	if err != nil {
		return nil, fmt.Errorf("error parsing asks: %w", err)
	}
	return depth, nil
}

func parseDepthLevels(rows [][]string) ([]DepthLevel, error) {
	levels := make([]DepthLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, err := decimal.NewFromString(row[0])
		if err != nil {
			return nil, err
		}
		qty, err := decimal.NewFromString(row[1])
		if err != nil {
			return nil, err
		}
		levels = append(levels, DepthLevel{Price: price, Quantity: qty})
	}
	return levels, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error: %s", string(body))
	}

	return body, nil
}

func asInt64(val interface{}) int64 {
	f, ok := val.(float64)
	if !ok {
		return 0
	}
	return int64(f)
}

func parseFloat(val interface{}) float64 {
	switch v := val.(type) {
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	case float64:
		return v
	default:
		return 0
	}
}
