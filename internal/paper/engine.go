package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"argus-terminal/internal/events"
	"argus-terminal/internal/market"
	"argus-terminal/internal/store"
)

// Trade precondition failures. Callers surface these as user-visible
// messages, not crashes.
var (
	ErrInsufficientFunds      = errors.New("paper: insufficient funds")
	ErrNoPosition             = errors.New("paper: no position in symbol")
	ErrDuplicatePosition      = errors.New("paper: position already exists")
	ErrQuantityExceedsHolding = errors.New("paper: quantity exceeds held amount")
	ErrInvalidAmount          = errors.New("paper: amount must be positive")
)

// driftTolerance is the absolute balance discrepancy, in quote currency,
// above which reconciliation rewrites the stored balance.
const driftTolerance = 0.01

// Engine owns the simulated portfolio. All mutations are serialized behind
// a single mutex so the autopilot loop and manual operations never race.
type Engine struct {
	source market.DataSource
	st     store.Store
	bus    *events.Bus
	logger zerolog.Logger

	mu             sync.Mutex
	balance        float64
	initialBalance float64
	positions      map[string]Position
	trades         []Trade
	createdAt      time.Time
	updatedAt      time.Time

	subMu       sync.Mutex
	subscribers []chan Snapshot
}

func NewEngine(source market.DataSource, st store.Store, bus *events.Bus, logger zerolog.Logger, initialBalance float64) *Engine {
	now := time.Now()
	return &Engine{
		source:         source,
		st:             st,
		bus:            bus,
		logger:         logger.With().Str("component", "paper").Logger(),
		balance:        initialBalance,
		initialBalance: initialBalance,
		positions:      make(map[string]Position),
		createdAt:      now,
		updatedAt:      now,
	}
}

// Load restores the portfolio from the store, reconciling the balance
// against the trade history. A missing record leaves the fresh portfolio
// in place.
func (e *Engine) Load(ctx context.Context) error {
	var snap Snapshot
	err := e.st.GetJSON(ctx, store.KeyPortfolio, &snap)
	if errors.Is(err, store.ErrNotFound) {
		return e.persist(ctx)
	}
	if err != nil {
		return fmt.Errorf("load portfolio: %w", err)
	}

	e.mu.Lock()
	e.balance = snap.Balance
	e.initialBalance = snap.InitialBalance
	e.positions = snap.Positions
	if e.positions == nil {
		e.positions = make(map[string]Position)
	}
	e.trades = snap.Trades
	e.createdAt = snap.CreatedAt
	e.updatedAt = snap.UpdatedAt
	e.reconcileLocked()
	e.mu.Unlock()

	return e.persist(ctx)
}

// reconcileLocked enforces the balance invariant:
//
//	balance == initialBalance + sum(closed pnl) - sum(open cost basis)
//
// Drift beyond the tolerance is corrected and logged so partial-write
// corruption in the store is visible, not silently absorbed.
func (e *Engine) reconcileLocked() {
	expected := e.initialBalance
	for _, t := range e.trades {
		if t.Status == StatusClosed {
			expected += t.PnL
		}
	}
	for _, p := range e.positions {
		expected -= p.CostBasis()
	}

	if drift := math.Abs(e.balance - expected); drift > driftTolerance {
		e.logger.Warn().
			Float64("storedBalance", e.balance).
			Float64("expectedBalance", expected).
			Float64("drift", drift).
			Msg("portfolio balance drift corrected on load")
		e.balance = expected
	}
}

// Reset discards all state and starts a new portfolio with the given cash.
func (e *Engine) Reset(ctx context.Context, initialBalance float64) error {
	e.mu.Lock()
	now := time.Now()
	e.balance = initialBalance
	e.initialBalance = initialBalance
	e.positions = make(map[string]Position)
	e.trades = nil
	e.createdAt = now
	e.updatedAt = now
	e.mu.Unlock()

	e.logger.Info().Float64("initialBalance", initialBalance).Msg("portfolio reset")
	return e.persist(ctx)
}

// Buy opens a new position. It refuses symbols already held; use
// AddToPosition to accumulate into an existing holding.
func (e *Engine) Buy(ctx context.Context, order BuyOrder) (*Trade, error) {
	if order.Notional <= 0 {
		return nil, ErrInvalidAmount
	}

	ticker, err := e.source.GetTicker(ctx, order.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch price for %s: %w", order.Symbol, err)
	}

	e.mu.Lock()
	if _, held := e.positions[order.Symbol]; held {
		e.mu.Unlock()
		return nil, ErrDuplicatePosition
	}
	if order.Notional > e.balance {
		e.mu.Unlock()
		return nil, ErrInsufficientFunds
	}

	quantity := order.Notional / ticker.Price
	now := time.Now()

	e.positions[order.Symbol] = Position{
		Symbol:     order.Symbol,
		Quantity:   quantity,
		AvgCost:    ticker.Price,
		OpenedAt:   now,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
	}
	e.balance -= order.Notional

	trade := Trade{
		ID:         uuid.NewString(),
		Symbol:     order.Symbol,
		Type:       TradeBuy,
		Quantity:   quantity,
		Price:      ticker.Price,
		Time:       now,
		Status:     StatusOpen,
		Reason:     order.Reason,
		Confidence: order.Confidence,
		StopLoss:   order.StopLoss,
		TakeProfit: order.TakeProfit,
	}
	e.trades = append(e.trades, trade)
	e.updatedAt = now
	e.mu.Unlock()

	e.logger.Info().
		Str("symbol", order.Symbol).
		Float64("price", ticker.Price).
		Float64("quantity", quantity).
		Str("reason", order.Reason).
		Msg("position opened")

	e.bus.PublishTradeOpened(order.Symbol, ticker.Price, quantity)
	e.afterMutation(ctx)
	return &trade, nil
}

// AddToPosition accumulates into an existing holding at weighted-average
// cost: newAvgCost = (oldQty*oldAvgCost + addedNotional) / newQty.
func (e *Engine) AddToPosition(ctx context.Context, order BuyOrder) (*Trade, error) {
	if order.Notional <= 0 {
		return nil, ErrInvalidAmount
	}

	ticker, err := e.source.GetTicker(ctx, order.Symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch price for %s: %w", order.Symbol, err)
	}

	e.mu.Lock()
	pos, held := e.positions[order.Symbol]
	if !held {
		e.mu.Unlock()
		return nil, ErrNoPosition
	}
	if order.Notional > e.balance {
		e.mu.Unlock()
		return nil, ErrInsufficientFunds
	}

	addedQty := order.Notional / ticker.Price
	newQty := pos.Quantity + addedQty
	pos.AvgCost = (pos.Quantity*pos.AvgCost + order.Notional) / newQty
	pos.Quantity = newQty
	e.positions[order.Symbol] = pos
	e.balance -= order.Notional

	now := time.Now()
	trade := Trade{
		ID:         uuid.NewString(),
		Symbol:     order.Symbol,
		Type:       TradeBuy,
		Quantity:   addedQty,
		Price:      ticker.Price,
		Time:       now,
		Status:     StatusOpen,
		Reason:     order.Reason,
		Confidence: order.Confidence,
	}
	e.trades = append(e.trades, trade)
	e.updatedAt = now
	e.mu.Unlock()

	e.logger.Info().
		Str("symbol", order.Symbol).
		Float64("price", ticker.Price).
		Float64("addedQuantity", addedQty).
		Float64("avgCost", pos.AvgCost).
		Msg("position increased")

	e.bus.PublishTradeOpened(order.Symbol, ticker.Price, addedQty)
	e.afterMutation(ctx)
	return &trade, nil
}

// Sell closes some or all of a position at the current price. A quantity
// of zero (or the full held amount) closes the position entirely.
func (e *Engine) Sell(ctx context.Context, symbol string, quantity float64, reason string) (*Trade, error) {
	ticker, err := e.source.GetTicker(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch price for %s: %w", symbol, err)
	}
	return e.sellAt(ctx, symbol, quantity, ticker.Price, reason)
}

// sellAt executes a sell at a known price. The autopilot uses this when it
// already holds a fresh quote for the symbol.
func (e *Engine) sellAt(ctx context.Context, symbol string, quantity, price float64, reason string) (*Trade, error) {
	e.mu.Lock()
	pos, held := e.positions[symbol]
	if !held {
		e.mu.Unlock()
		return nil, ErrNoPosition
	}

	if quantity <= 0 {
		quantity = pos.Quantity
	}
	if quantity > pos.Quantity*(1+1e-9) {
		e.mu.Unlock()
		return nil, ErrQuantityExceedsHolding
	}
	if quantity > pos.Quantity {
		quantity = pos.Quantity
	}

	proceeds := quantity * price
	pnl := (price - pos.AvgCost) * quantity
	pnlPercent := (price - pos.AvgCost) / pos.AvgCost * 100

	remaining := pos.Quantity - quantity
	if remaining*price < 1e-9 {
		delete(e.positions, symbol)
	} else {
		pos.Quantity = remaining
		e.positions[symbol] = pos
	}
	e.balance += proceeds

	now := time.Now()
	trade := Trade{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Type:       TradeSell,
		Quantity:   quantity,
		Price:      price,
		Time:       now,
		PnL:        pnl,
		PnLPercent: pnlPercent,
		Status:     StatusClosed,
		Reason:     reason,
	}
	e.trades = append(e.trades, trade)
	e.updatedAt = now
	e.mu.Unlock()

	e.logger.Info().
		Str("symbol", symbol).
		Float64("price", price).
		Float64("quantity", quantity).
		Float64("pnl", pnl).
		Float64("pnlPercent", pnlPercent).
		Str("reason", reason).
		Msg("position closed")

	e.bus.PublishTradeClosed(symbol, price, pnl, pnlPercent, reason)
	e.afterMutation(ctx)
	return &trade, nil
}

// Snapshot returns a deep copy of the current portfolio state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	positions := make(map[string]Position, len(e.positions))
	for k, v := range e.positions {
		positions[k] = v
	}
	trades := make([]Trade, len(e.trades))
	copy(trades, e.trades)

	return Snapshot{
		Balance:        e.balance,
		InitialBalance: e.initialBalance,
		Positions:      positions,
		Trades:         trades,
		CreatedAt:      e.createdAt,
		UpdatedAt:      e.updatedAt,
	}
}

// PerformanceStats computes realized results from the trade log and marks
// open positions to market for unrealized PnL.
func (e *Engine) PerformanceStats(ctx context.Context) (PerformanceStats, error) {
	snap := e.Snapshot()

	stats := PerformanceStats{OpenPositions: len(snap.Positions)}
	for _, t := range snap.Trades {
		if t.Status != StatusClosed {
			continue
		}
		stats.TotalTrades++
		stats.RealizedPnL += t.PnL
		if t.PnL > 0 {
			stats.WinningTrades++
		} else if t.PnL < 0 {
			stats.LosingTrades++
		}
	}
	if stats.TotalTrades > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(stats.TotalTrades) * 100
	}

	equity := snap.Balance
	for symbol, pos := range snap.Positions {
		ticker, err := e.source.GetTicker(ctx, symbol)
		if err != nil {
			return stats, fmt.Errorf("mark %s to market: %w", symbol, err)
		}
		equity += pos.Quantity * ticker.Price
		stats.UnrealizedPnL += (ticker.Price - pos.AvgCost) * pos.Quantity
	}
	stats.TotalEquity = equity
	if snap.InitialBalance > 0 {
		stats.ReturnPercent = (equity - snap.InitialBalance) / snap.InitialBalance * 100
	}
	return stats, nil
}

// TotalEquity is cash plus all open positions marked at current prices.
func (e *Engine) TotalEquity(ctx context.Context) (float64, error) {
	snap := e.Snapshot()
	equity := snap.Balance
	for symbol, pos := range snap.Positions {
		ticker, err := e.source.GetTicker(ctx, symbol)
		if err != nil {
			return 0, fmt.Errorf("mark %s to market: %w", symbol, err)
		}
		equity += pos.Quantity * ticker.Price
	}
	return equity, nil
}

// Subscribe returns a channel that receives a snapshot after every
// portfolio mutation. Slow consumers miss intermediate snapshots rather
// than blocking the engine.
func (e *Engine) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 8)
	e.subMu.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.subMu.Unlock()
	return ch
}

func (e *Engine) afterMutation(ctx context.Context) {
	snap := e.Snapshot()

	e.subMu.Lock()
	for _, ch := range e.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
	e.subMu.Unlock()

	e.bus.Publish(events.Event{
		Type: events.EventPortfolioUpdate,
		Data: map[string]interface{}{
			"balance":   snap.Balance,
			"positions": len(snap.Positions),
			"trades":    len(snap.Trades),
		},
	})

	if err := e.persist(ctx); err != nil {
		e.logger.Error().Err(err).Msg("portfolio persist failed")
	}
}

func (e *Engine) persist(ctx context.Context) error {
	return e.st.SetJSON(ctx, store.KeyPortfolio, e.Snapshot())
}
