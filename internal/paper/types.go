// Package paper implements the simulated portfolio and the autopilot
// scan loop that trades it.
package paper

import "time"

// TradeType is the side of a fill.
type TradeType string

const (
	TradeBuy  TradeType = "buy"
	TradeSell TradeType = "sell"
)

// TradeStatus tracks whether a fill opened or closed exposure.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "open"
	StatusClosed TradeStatus = "closed"
)

// Position is one open holding. At most one position exists per symbol.
type Position struct {
	Symbol   string    `json:"symbol"`
	Quantity float64   `json:"quantity"`
	AvgCost  float64   `json:"avgCost"`
	OpenedAt time.Time `json:"openedAt"`

	// StopLoss and TakeProfit are price levels attached at entry when
	// dynamic risk levels are enabled. Zero means unset.
	StopLoss   float64 `json:"stopLoss,omitempty"`
	TakeProfit float64 `json:"takeProfit,omitempty"`
}

// CostBasis is the capital committed to the position.
func (p Position) CostBasis() float64 {
	return p.Quantity * p.AvgCost
}

// Trade is an immutable record of one fill. Closing a position appends a
// sell trade; it never mutates the original buy record.
type Trade struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Type       TradeType   `json:"type"`
	Quantity   float64     `json:"quantity"`
	Price      float64     `json:"price"`
	Time       time.Time   `json:"time"`
	PnL        float64     `json:"pnl"`
	PnLPercent float64     `json:"pnlPercent"`
	Status     TradeStatus `json:"status"`
	Reason     string      `json:"reason"`
	Confidence float64     `json:"confidence"`
	StopLoss   float64     `json:"stopLoss,omitempty"`
	TakeProfit float64     `json:"takeProfit,omitempty"`
}

// Snapshot is the externally visible portfolio state. It is a deep copy;
// mutating it does not affect the engine.
type Snapshot struct {
	Balance        float64             `json:"balance"`
	InitialBalance float64             `json:"initialBalance"`
	Positions      map[string]Position `json:"positions"`
	Trades         []Trade             `json:"trades"`
	CreatedAt      time.Time           `json:"createdAt"`
	UpdatedAt      time.Time           `json:"updatedAt"`
}

// PerformanceStats summarizes realized and unrealized results.
type PerformanceStats struct {
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	WinRate       float64 `json:"winRate"`
	RealizedPnL   float64 `json:"realizedPnl"`
	UnrealizedPnL float64 `json:"unrealizedPnl"`
	TotalEquity   float64 `json:"totalEquity"`
	ReturnPercent float64 `json:"returnPercent"`
	OpenPositions int     `json:"openPositions"`
}

// BuyOrder describes a requested entry.
type BuyOrder struct {
	Symbol     string
	Notional   float64
	Reason     string
	Confidence float64
	StopLoss   float64
	TakeProfit float64
}
