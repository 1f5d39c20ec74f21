package paper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"argus-terminal/internal/council"
	"argus-terminal/internal/events"
	"argus-terminal/internal/market"
	"argus-terminal/internal/notify"
	"argus-terminal/internal/risk"
	"argus-terminal/internal/scheduler"
	"argus-terminal/internal/store"
)

// Close reasons written to sell trades by the scan loop.
const (
	reasonStopLoss   = "Stop Loss"
	reasonTakeProfit = "Take Profit"
	reasonSignal     = "AutoPilot Signal"
)

const candleLimit = 200

// AutoPilotConfig controls the scan loop. It is persisted on every change.
type AutoPilotConfig struct {
	Enabled             bool          `json:"enabled"`
	MaxPositions        int           `json:"maxPositions"`
	PositionSizePercent float64       `json:"positionSizePercent"`
	MinConfidence       float64       `json:"minConfidence"`
	ScanInterval        time.Duration `json:"scanInterval"`
	Interval            string        `json:"interval"`

	// Symbols restricts the scan universe. Empty means the full
	// exchange-provided tradable set.
	Symbols []string `json:"symbols,omitempty"`

	// UseDynamicLevels attaches ATR-derived stops and targets at entry.
	// When false the fixed percentages below apply.
	UseDynamicLevels    bool    `json:"useDynamicLevels"`
	StopLossPercent     float64 `json:"stopLossPercent"`
	TakeProfitPercent   float64 `json:"takeProfitPercent"`
	ATRStopMultiplier   float64 `json:"atrStopMultiplier"`
	ATRTargetMultiplier float64 `json:"atrTargetMultiplier"`

	// ThrottleDelay spaces per-symbol analyses to bound request rate.
	ThrottleDelay time.Duration `json:"throttleDelay"`
}

// DefaultAutoPilotConfig returns conservative scan settings.
func DefaultAutoPilotConfig() AutoPilotConfig {
	return AutoPilotConfig{
		MaxPositions:        5,
		PositionSizePercent: 10,
		MinConfidence:       70,
		ScanInterval:        5 * time.Minute,
		Interval:            market.Interval1h,
		UseDynamicLevels:    true,
		StopLossPercent:     5,
		TakeProfitPercent:   10,
		ATRStopMultiplier:   2.0,
		ATRTargetMultiplier: 3.0,
		ThrottleDelay:       200 * time.Millisecond,
	}
}

// Validate checks field ranges before a config is applied.
func (c AutoPilotConfig) Validate() error {
	if c.MaxPositions < 1 {
		return errors.New("maxPositions must be at least 1")
	}
	if c.PositionSizePercent <= 0 || c.PositionSizePercent > 100 {
		return errors.New("positionSizePercent must be in (0, 100]")
	}
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		return errors.New("minConfidence must be in [0, 100]")
	}
	if c.ScanInterval < time.Second {
		return errors.New("scanInterval must be at least 1s")
	}
	if !market.ValidInterval(c.Interval) {
		return fmt.Errorf("invalid candle interval %q", c.Interval)
	}
	if !c.UseDynamicLevels {
		if c.StopLossPercent <= 0 || c.StopLossPercent >= 100 {
			return errors.New("stopLossPercent must be in (0, 100)")
		}
		if c.TakeProfitPercent <= 0 {
			return errors.New("takeProfitPercent must be positive")
		}
	}
	return nil
}

// AutoPilot drives the periodic scan-and-trade loop over the paper engine.
// Exits are always evaluated before new entries, and symbols are processed
// sequentially so a partially-completed entry decision can never race a
// second look at the same symbol.
type AutoPilot struct {
	engine   *Engine
	source   market.DataSource
	st       store.Store
	bus      *events.Bus
	notifier *notify.Manager
	logger   zerolog.Logger

	mu   sync.Mutex // guards cfg and task
	cfg  AutoPilotConfig
	task *scheduler.Task
}

func NewAutoPilot(engine *Engine, source market.DataSource, st store.Store, bus *events.Bus, notifier *notify.Manager, logger zerolog.Logger) *AutoPilot {
	return &AutoPilot{
		engine:   engine,
		source:   source,
		st:       st,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With().Str("component", "autopilot").Logger(),
		cfg:      DefaultAutoPilotConfig(),
	}
}

// LoadConfig restores the persisted autopilot configuration, keeping
// defaults when none is stored.
func (a *AutoPilot) LoadConfig(ctx context.Context) error {
	var cfg AutoPilotConfig
	err := a.st.GetJSON(ctx, store.KeyAutoPilotConfig, &cfg)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load autopilot config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		a.logger.Warn().Err(err).Msg("stored autopilot config invalid, keeping defaults")
		return nil
	}
	a.mu.Lock()
	a.cfg = cfg
	a.mu.Unlock()
	return nil
}

// Config returns a copy of the current configuration.
func (a *AutoPilot) Config() AutoPilotConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// UpdateConfig validates, applies, and persists a new configuration. The
// new scan interval takes effect on the next Start.
func (a *AutoPilot) UpdateConfig(ctx context.Context, cfg AutoPilotConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	cfg.Enabled = a.cfg.Enabled
	a.cfg = cfg
	a.mu.Unlock()
	return a.st.SetJSON(ctx, store.KeyAutoPilotConfig, cfg)
}

// Start launches the scan loop. The first scan runs immediately.
func (a *AutoPilot) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.task != nil && a.task.IsRunning() {
		a.mu.Unlock()
		return nil
	}
	if err := a.cfg.Validate(); err != nil {
		a.mu.Unlock()
		return err
	}

	a.cfg.Enabled = true
	cfg := a.cfg
	a.task = scheduler.New("autopilot-scan", cfg.ScanInterval, a.scan, a.logger)
	a.task.Start(ctx)
	a.mu.Unlock()

	if err := a.st.SetJSON(ctx, store.KeyAutoPilotConfig, cfg); err != nil {
		a.logger.Error().Err(err).Msg("persist autopilot config failed")
	}

	a.bus.Publish(events.Event{
		Type: events.EventAutoPilotToggled,
		Data: map[string]interface{}{"enabled": true},
	})
	return nil
}

// Stop halts the loop. An in-flight scan finishes so the portfolio is
// never left mid-mutation.
func (a *AutoPilot) Stop(ctx context.Context) {
	a.mu.Lock()
	task := a.task
	if task == nil || !task.IsRunning() {
		a.mu.Unlock()
		return
	}
	a.cfg.Enabled = false
	cfg := a.cfg
	a.mu.Unlock()

	task.Stop()

	if err := a.st.SetJSON(ctx, store.KeyAutoPilotConfig, cfg); err != nil {
		a.logger.Error().Err(err).Msg("persist autopilot config failed")
	}
	a.bus.Publish(events.Event{
		Type: events.EventAutoPilotToggled,
		Data: map[string]interface{}{"enabled": false},
	})
}

// IsRunning reports whether the scan loop is active.
func (a *AutoPilot) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.task != nil && a.task.IsRunning()
}

// scan is one full cycle: manage exits on held positions first, then look
// for new entries while below the position ceiling. It works on a copy of
// the configuration taken at the start of the cycle.
func (a *AutoPilot) scan(ctx context.Context) error {
	a.mu.Lock()
	cfg := a.cfg
	a.mu.Unlock()

	a.manageExits(ctx, cfg)
	a.findEntries(ctx, cfg)

	a.bus.Publish(events.Event{
		Type: events.EventScanCompleted,
		Data: map[string]interface{}{
			"positions": len(a.engine.Snapshot().Positions),
		},
	})
	return nil
}

// manageExits checks every open position for a stop, target, or qualifying
// sell decision. A failure on one symbol never aborts the rest.
func (a *AutoPilot) manageExits(ctx context.Context, cfg AutoPilotConfig) {
	snap := a.engine.Snapshot()

	for symbol, pos := range snap.Positions {
		if err := a.checkExit(ctx, cfg, symbol, pos); err != nil {
			a.logger.Error().Err(err).Str("symbol", symbol).Msg("exit check failed")
			a.bus.PublishError("autopilot", err)
		}
		a.throttle(ctx, cfg)
	}
}

func (a *AutoPilot) checkExit(ctx context.Context, cfg AutoPilotConfig, symbol string, pos Position) error {
	ticker, err := a.source.GetTicker(ctx, symbol)
	if err != nil {
		return fmt.Errorf("fetch ticker: %w", err)
	}
	price := ticker.Price

	if cfg.UseDynamicLevels && pos.StopLoss > 0 && pos.TakeProfit > 0 {
		switch {
		case price <= pos.StopLoss:
			return a.closePosition(ctx, symbol, pos, price, reasonStopLoss)
		case price >= pos.TakeProfit:
			return a.closePosition(ctx, symbol, pos, price, reasonTakeProfit)
		}
	} else {
		change := (price - pos.AvgCost) / pos.AvgCost * 100
		switch {
		case change <= -cfg.StopLossPercent:
			return a.closePosition(ctx, symbol, pos, price, reasonStopLoss)
		case change >= cfg.TakeProfitPercent:
			return a.closePosition(ctx, symbol, pos, price, reasonTakeProfit)
		}
	}

	// No threshold tripped; ask the council whether to exit early.
	candles, err := a.source.GetCandles(ctx, symbol, cfg.Interval, candleLimit)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}
	decision := council.Analyze(candles, symbol)
	if decision.FinalAction == council.ActionSell && decision.Confidence >= cfg.MinConfidence {
		return a.closePosition(ctx, symbol, pos, price, reasonSignal)
	}
	return nil
}

func (a *AutoPilot) closePosition(ctx context.Context, symbol string, pos Position, price float64, reason string) error {
	trade, err := a.engine.sellAt(ctx, symbol, 0, price, reason)
	if err != nil {
		return fmt.Errorf("close %s: %w", symbol, err)
	}
	if err := a.notifier.SendTradeClose(symbol, pos.AvgCost, price, trade.PnL, trade.PnLPercent, reason); err != nil {
		a.logger.Warn().Err(err).Str("symbol", symbol).Msg("close notification failed")
	}
	return nil
}

// findEntries scans the candidate universe for qualifying buy decisions,
// stopping as soon as the position ceiling is reached.
func (a *AutoPilot) findEntries(ctx context.Context, cfg AutoPilotConfig) {
	snap := a.engine.Snapshot()
	if len(snap.Positions) >= cfg.MaxPositions {
		return
	}

	universe, err := a.candidateSymbols(ctx, cfg, snap)
	if err != nil {
		a.logger.Error().Err(err).Msg("candidate universe fetch failed")
		a.bus.PublishError("autopilot", err)
		return
	}

	for _, symbol := range universe {
		if len(a.engine.Snapshot().Positions) >= cfg.MaxPositions {
			return
		}
		if err := a.tryEntry(ctx, cfg, symbol); err != nil {
			a.logger.Error().Err(err).Str("symbol", symbol).Msg("entry scan failed")
			a.bus.PublishError("autopilot", err)
		}
		a.throttle(ctx, cfg)
	}
}

// candidateSymbols returns the configured watch universe or the full
// tradable set, minus symbols already held.
func (a *AutoPilot) candidateSymbols(ctx context.Context, cfg AutoPilotConfig, snap Snapshot) ([]string, error) {
	symbols := cfg.Symbols
	if len(symbols) == 0 {
		all, err := a.source.GetTradableSymbols(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch tradable symbols: %w", err)
		}
		symbols = all
	}

	candidates := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, held := snap.Positions[s]; held {
			continue
		}
		candidates = append(candidates, s)
	}
	return candidates, nil
}

func (a *AutoPilot) tryEntry(ctx context.Context, cfg AutoPilotConfig, symbol string) error {
	candles, err := a.source.GetCandles(ctx, symbol, cfg.Interval, candleLimit)
	if err != nil {
		return fmt.Errorf("fetch candles: %w", err)
	}

	decision := council.Analyze(candles, symbol)
	if decision.FinalAction != council.ActionBuy || decision.Confidence < cfg.MinConfidence {
		return nil
	}

	equity, err := a.engine.TotalEquity(ctx)
	if err != nil {
		return fmt.Errorf("compute equity: %w", err)
	}
	notional := equity * cfg.PositionSizePercent / 100

	order := BuyOrder{
		Symbol:     symbol,
		Notional:   notional,
		Reason:     decision.Reason,
		Confidence: decision.Confidence,
	}

	if cfg.UseDynamicLevels {
		entry := candles[len(candles)-1].Close
		riskCfg := risk.DefaultConfig()
		riskCfg.StopMultiplier = cfg.ATRStopMultiplier
		riskCfg.TPMultiplier = cfg.ATRTargetMultiplier
		levels := risk.Calculate(candles, entry, risk.Long, riskCfg)
		order.StopLoss = levels.StopLoss
		order.TakeProfit = levels.TakeProfit2
	}

	trade, err := a.engine.Buy(ctx, order)
	if errors.Is(err, ErrDuplicatePosition) {
		return nil
	}
	if errors.Is(err, ErrInsufficientFunds) {
		a.logger.Warn().Str("symbol", symbol).Float64("notional", notional).
			Msg("entry skipped, insufficient funds")
		return nil
	}
	if err != nil {
		return fmt.Errorf("buy %s: %w", symbol, err)
	}

	if err := a.notifier.SendTradeOpen(symbol, trade.Price, trade.Quantity); err != nil {
		a.logger.Warn().Err(err).Str("symbol", symbol).Msg("open notification failed")
	}
	return nil
}

// throttle spaces per-symbol work without ignoring cancellation.
func (a *AutoPilot) throttle(ctx context.Context, cfg AutoPilotConfig) {
	if cfg.ThrottleDelay <= 0 {
		return
	}
	select {
	case <-time.After(cfg.ThrottleDelay):
	case <-ctx.Done():
	}
}
