package paper

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"argus-terminal/internal/events"
	"argus-terminal/internal/market"
	"argus-terminal/internal/store"
)

func newTestEngine(t *testing.T, initialBalance float64) (*Engine, *market.MockClient, *store.MemoryStore) {
	t.Helper()
	mock := market.NewMockClient()
	st := store.NewMemoryStore()
	engine := NewEngine(mock, st, events.NewBus(), zerolog.Nop(), initialBalance)
	return engine, mock, st
}

// checkInvariant verifies balance == initialBalance + closed pnl - open cost basis.
func checkInvariant(t *testing.T, snap Snapshot) {
	t.Helper()
	expected := snap.InitialBalance
	for _, tr := range snap.Trades {
		if tr.Status == StatusClosed {
			expected += tr.PnL
		}
	}
	for _, p := range snap.Positions {
		expected -= p.CostBasis()
	}
	if math.Abs(snap.Balance-expected) > driftTolerance {
		t.Errorf("invariant violated: balance = %.6f, expected %.6f", snap.Balance, expected)
	}
}

func TestBuy_OpensPosition(t *testing.T) {
	engine, mock, _ := newTestEngine(t, 10000)
	mock.SetPrice("BTCUSDT", 50000)

	trade, err := engine.Buy(context.Background(), BuyOrder{
		Symbol: "BTCUSDT", Notional: 1000, Reason: "manual", Confidence: 80,
	})
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if trade.Type != TradeBuy || trade.Status != StatusOpen {
		t.Errorf("trade = %+v", trade)
	}
	if math.Abs(trade.Quantity-0.02) > 1e-12 {
		t.Errorf("quantity = %f, want 0.02", trade.Quantity)
	}

	snap := engine.Snapshot()
	if snap.Balance != 9000 {
		t.Errorf("balance = %f, want 9000", snap.Balance)
	}
	pos, ok := snap.Positions["BTCUSDT"]
	if !ok {
		t.Fatal("position missing")
	}
	if pos.AvgCost != 50000 {
		t.Errorf("avgCost = %f", pos.AvgCost)
	}
	checkInvariant(t, snap)
}

func TestBuy_RejectsDuplicatePosition(t *testing.T) {
	engine, mock, _ := newTestEngine(t, 10000)
	mock.SetPrice("BTCUSDT", 50000)

	ctx := context.Background()
	if _, err := engine.Buy(ctx, BuyOrder{Symbol: "BTCUSDT", Notional: 1000}); err != nil {
		t.Fatal(err)
	}
	before := engine.Snapshot().Positions["BTCUSDT"]

	mock.SetPrice("BTCUSDT", 40000)
	_, err := engine.Buy(ctx, BuyOrder{Symbol: "BTCUSDT", Notional: 1000})
	if !errors.Is(err, ErrDuplicatePosition) {
		t.Fatalf("err = %v, want ErrDuplicatePosition", err)
	}

	after := engine.Snapshot().Positions["BTCUSDT"]
	if after.Quantity != before.Quantity || after.AvgCost != before.AvgCost {
		t.Errorf("position mutated by rejected buy: %+v -> %+v", before, after)
	}
}

func TestBuy_RejectsInsufficientFunds(t *testing.T) {
	engine, mock, _ := newTestEngine(t, 500)
	mock.SetPrice("BTCUSDT", 50000)

	_, err := engine.Buy(context.Background(), BuyOrder{Symbol: "BTCUSDT", Notional: 1000})
	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	if got := engine.Snapshot().Balance; got != 500 {
		t.Errorf("balance = %f, want untouched 500", got)
	}
}

func TestAddToPosition_WeightedAverageCost(t *testing.T) {
	engine, mock, _ := newTestEngine(t, 10000)
	ctx := context.Background()

	mock.SetPrice("BTCUSDT", 50000)
	if _, err := engine.Buy(ctx, BuyOrder{Symbol: "BTCUSDT", Notional: 1000}); err != nil {
		t.Fatal(err)
	}

	mock.SetPrice("BTCUSDT", 25000)
	if _, err := engine.AddToPosition(ctx, BuyOrder{Symbol: "BTCUSDT", Notional: 1000}); err != nil {
		t.Fatal(err)
	}

	pos := engine.Snapshot().Positions["BTCUSDT"]
	if math.Abs(pos.Quantity-0.06) > 1e-12 {
		t.Errorf("quantity = %f, want 0.06", pos.Quantity)
	}
	wantAvg := (0.02*50000 + 0.04*25000) / 0.06
	if math.Abs(pos.AvgCost-wantAvg) > 0.01 {
		t.Errorf("avgCost = %.2f, want %.2f", pos.AvgCost, wantAvg)
	}
	checkInvariant(t, engine.Snapshot())
}

func TestAddToPosition_RequiresExistingPosition(t *testing.T) {
	engine, mock, _ := newTestEngine(t, 10000)
	mock.SetPrice("BTCUSDT", 50000)

	_, err := engine.AddToPosition(context.Background(), BuyOrder{Symbol: "BTCUSDT", Notional: 1000})
	if !errors.Is(err, ErrNoPosition) {
		t.Fatalf("err = %v, want ErrNoPosition", err)
	}
}

func TestSell_FullCloseRealizesPnL(t *testing.T) {
	engine, mock, _ := newTestEngine(t, 10000)
	ctx := context.Background()

	mock.SetPrice("ETHUSDT", 2000)
	if _, err := engine.Buy(ctx, BuyOrder{Symbol: "ETHUSDT", Notional: 1000}); err != nil {
		t.Fatal(err)
	}

	mock.SetPrice("ETHUSDT", 2200)
	trade, err := engine.Sell(ctx, "ETHUSDT", 0, "manual")
	if err != nil {
		t.Fatalf("sell: %v", err)
	}

	if trade.Status != StatusClosed {
		t.Errorf("status = %s", trade.Status)
	}
	if math.Abs(trade.PnL-100) > 1e-9 {
		t.Errorf("pnl = %f, want 100", trade.PnL)
	}
	if math.Abs(trade.PnLPercent-10) > 1e-9 {
		t.Errorf("pnlPercent = %f, want 10", trade.PnLPercent)
	}

	snap := engine.Snapshot()
	if _, held := snap.Positions["ETHUSDT"]; held {
		t.Error("position not removed on full close")
	}
	if math.Abs(snap.Balance-10100) > 1e-9 {
		t.Errorf("balance = %f, want 10100", snap.Balance)
	}
	checkInvariant(t, snap)
}

func TestSell_PartialShrinksPosition(t *testing.T) {
	engine, mock, _ := newTestEngine(t, 10000)
	ctx := context.Background()

	mock.SetPrice("ETHUSDT", 2000)
	if _, err := engine.Buy(ctx, BuyOrder{Symbol: "ETHUSDT", Notional: 1000}); err != nil {
		t.Fatal(err)
	}

	if _, err := engine.Sell(ctx, "ETHUSDT", 0.25, "trim"); err != nil {
		t.Fatal(err)
	}

	pos := engine.Snapshot().Positions["ETHUSDT"]
	if math.Abs(pos.Quantity-0.25) > 1e-12 {
		t.Errorf("remaining quantity = %f, want 0.25", pos.Quantity)
	}
	if pos.AvgCost != 2000 {
		t.Errorf("avgCost changed on partial sell: %f", pos.AvgCost)
	}
	checkInvariant(t, engine.Snapshot())
}

func TestSell_Preconditions(t *testing.T) {
	engine, mock, _ := newTestEngine(t, 10000)
	ctx := context.Background()
	mock.SetPrice("ETHUSDT", 2000)

	if _, err := engine.Sell(ctx, "ETHUSDT", 0, "x"); !errors.Is(err, ErrNoPosition) {
		t.Errorf("err = %v, want ErrNoPosition", err)
	}

	if _, err := engine.Buy(ctx, BuyOrder{Symbol: "ETHUSDT", Notional: 1000}); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Sell(ctx, "ETHUSDT", 5, "x"); !errors.Is(err, ErrQuantityExceedsHolding) {
		t.Errorf("err = %v, want ErrQuantityExceedsHolding", err)
	}
}

func TestInvariant_AcrossTradeSequence(t *testing.T) {
	engine, mock, _ := newTestEngine(t, 10000)
	ctx := context.Background()

	mock.SetPrice("BTCUSDT", 50000)
	mock.SetPrice("ETHUSDT", 2000)

	engine.Buy(ctx, BuyOrder{Symbol: "BTCUSDT", Notional: 2000})
	engine.Buy(ctx, BuyOrder{Symbol: "ETHUSDT", Notional: 1500})
	checkInvariant(t, engine.Snapshot())

	mock.SetPrice("BTCUSDT", 55000)
	engine.Sell(ctx, "BTCUSDT", 0, "profit")
	checkInvariant(t, engine.Snapshot())

	mock.SetPrice("ETHUSDT", 1800)
	engine.Sell(ctx, "ETHUSDT", 0.3, "partial")
	checkInvariant(t, engine.Snapshot())

	mock.SetPrice("ETHUSDT", 2100)
	engine.AddToPosition(ctx, BuyOrder{Symbol: "ETHUSDT", Notional: 500})
	checkInvariant(t, engine.Snapshot())
}

func TestLoad_CorrectsBalanceDrift(t *testing.T) {
	engine, mock, st := newTestEngine(t, 10000)
	ctx := context.Background()

	mock.SetPrice("BTCUSDT", 50000)
	if _, err := engine.Buy(ctx, BuyOrder{Symbol: "BTCUSDT", Notional: 1000}); err != nil {
		t.Fatal(err)
	}

	// Simulate partial-write corruption of the stored balance.
	snap := engine.Snapshot()
	snap.Balance = 7777
	if err := st.SetJSON(ctx, store.KeyPortfolio, snap); err != nil {
		t.Fatal(err)
	}

	restored := NewEngine(mock, st, events.NewBus(), zerolog.Nop(), 10000)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}

	got := restored.Snapshot()
	if math.Abs(got.Balance-9000) > driftTolerance {
		t.Errorf("balance = %f, want drift-corrected 9000", got.Balance)
	}
	checkInvariant(t, got)
}

func TestLoad_MissingRecordKeepsFreshPortfolio(t *testing.T) {
	engine, _, _ := newTestEngine(t, 12345)
	if err := engine.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	snap := engine.Snapshot()
	if snap.Balance != 12345 || snap.InitialBalance != 12345 {
		t.Errorf("fresh portfolio mutated by load: %+v", snap)
	}
}

func TestLoad_RoundTripsState(t *testing.T) {
	engine, mock, st := newTestEngine(t, 10000)
	ctx := context.Background()

	mock.SetPrice("BTCUSDT", 50000)
	engine.Buy(ctx, BuyOrder{Symbol: "BTCUSDT", Notional: 1000, Reason: "entry", Confidence: 75})
	mock.SetPrice("BTCUSDT", 52000)
	engine.Sell(ctx, "BTCUSDT", 0.01, "trim")
	want := engine.Snapshot()

	restored := NewEngine(mock, st, events.NewBus(), zerolog.Nop(), 0)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	got := restored.Snapshot()

	if math.Abs(got.Balance-want.Balance) > driftTolerance {
		t.Errorf("balance = %f, want %f", got.Balance, want.Balance)
	}
	if got.InitialBalance != want.InitialBalance {
		t.Errorf("initialBalance = %f", got.InitialBalance)
	}
	if len(got.Trades) != len(want.Trades) {
		t.Fatalf("trades = %d, want %d", len(got.Trades), len(want.Trades))
	}
	if !got.Trades[0].Time.Equal(want.Trades[0].Time) {
		t.Errorf("trade time lost precision: %v vs %v", got.Trades[0].Time, want.Trades[0].Time)
	}
	if got.Positions["BTCUSDT"].Quantity != want.Positions["BTCUSDT"].Quantity {
		t.Errorf("position quantity = %f", got.Positions["BTCUSDT"].Quantity)
	}
}

func TestSubscribe_DeliversSnapshotOnMutation(t *testing.T) {
	engine, mock, _ := newTestEngine(t, 10000)
	mock.SetPrice("BTCUSDT", 50000)

	ch := engine.Subscribe()
	if _, err := engine.Buy(context.Background(), BuyOrder{Symbol: "BTCUSDT", Notional: 1000}); err != nil {
		t.Fatal(err)
	}

	select {
	case snap := <-ch:
		if _, ok := snap.Positions["BTCUSDT"]; !ok {
			t.Error("snapshot missing new position")
		}
	default:
		t.Fatal("no snapshot delivered after mutation")
	}
}

func TestPerformanceStats(t *testing.T) {
	engine, mock, _ := newTestEngine(t, 10000)
	ctx := context.Background()

	mock.SetPrice("BTCUSDT", 50000)
	engine.Buy(ctx, BuyOrder{Symbol: "BTCUSDT", Notional: 1000})
	mock.SetPrice("BTCUSDT", 55000)
	engine.Sell(ctx, "BTCUSDT", 0, "profit") // +100

	mock.SetPrice("ETHUSDT", 2000)
	engine.Buy(ctx, BuyOrder{Symbol: "ETHUSDT", Notional: 1000})
	mock.SetPrice("ETHUSDT", 1900) // unrealized -50

	stats, err := engine.PerformanceStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalTrades != 1 || stats.WinningTrades != 1 {
		t.Errorf("trade counts = %+v", stats)
	}
	if stats.WinRate != 100 {
		t.Errorf("winRate = %f", stats.WinRate)
	}
	if math.Abs(stats.RealizedPnL-100) > 1e-9 {
		t.Errorf("realized = %f, want 100", stats.RealizedPnL)
	}
	if math.Abs(stats.UnrealizedPnL-(-50)) > 1e-9 {
		t.Errorf("unrealized = %f, want -50", stats.UnrealizedPnL)
	}
	if stats.OpenPositions != 1 {
		t.Errorf("openPositions = %d", stats.OpenPositions)
	}
}

func TestReset_ClearsState(t *testing.T) {
	engine, mock, _ := newTestEngine(t, 10000)
	ctx := context.Background()

	mock.SetPrice("BTCUSDT", 50000)
	engine.Buy(ctx, BuyOrder{Symbol: "BTCUSDT", Notional: 1000})

	if err := engine.Reset(ctx, 20000); err != nil {
		t.Fatal(err)
	}
	snap := engine.Snapshot()
	if snap.Balance != 20000 || snap.InitialBalance != 20000 {
		t.Errorf("balances = %f/%f", snap.Balance, snap.InitialBalance)
	}
	if len(snap.Positions) != 0 || len(snap.Trades) != 0 {
		t.Error("reset left stale positions or trades")
	}
}
