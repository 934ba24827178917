package engine

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"adaptive-trading-bot/internal/market"
	"adaptive-trading-bot/internal/risk"
	"adaptive-trading-bot/internal/sentiment"
	"adaptive-trading-bot/internal/strategy"
)

type fakeClient struct {
	price    float64
	candles  []market.Candle
	orderErr error
	orders   []market.OrderSide
}

func (f *fakeClient) GetKlines(context.Context, string, string, int) ([]market.Candle, error) {
	return f.candles, nil
}

func (f *fakeClient) GetCurrentPrice(context.Context, string) (float64, error) {
	return f.price, nil
}

func (f *fakeClient) GetTicker24h(context.Context, string) (*market.Ticker24h, error) {
	return &market.Ticker24h{}, nil
}

func (f *fakeClient) PlaceOrder(_ context.Context, symbol string, side market.OrderSide, qty float64) (*market.OrderResult, error) {
	if f.orderErr != nil {
		return nil, f.orderErr
	}
	f.orders = append(f.orders, side)
	return &market.OrderResult{Symbol: symbol, Side: side, Status: "FILLED", ExecutedQty: qty}, nil
}

// scripted returns queued signals in order, then nil forever
type scripted struct {
	signals []*strategy.Signal
}

func (s *scripted) Name() string { return "scripted" }

func (s *scripted) Evaluate(context.Context, *strategy.Features) (*strategy.Signal, error) {
	if len(s.signals) == 0 {
		return nil, nil
	}
	sig := s.signals[0]
	s.signals = s.signals[1:]
	return sig, nil
}

func quietCandles(n int, price float64) []market.Candle {
	candles := make([]market.Candle, n)
	for i := range candles {
		wiggle := 0.3 * math.Sin(float64(i))
		candles[i] = market.Candle{
			OpenTime: int64(i) * 60000,
			Open:     price,
			High:     price + 0.6 + wiggle,
			Low:      price - 0.6 - wiggle,
			Close:    price + wiggle,
			Volume:   1000,
		}
	}
	return candles
}

func testEngine(client *fakeClient, eval *scripted) *Engine {
	riskMgr := risk.NewManager(risk.Config{
		RiskPercent:       0.02,
		BaseStopLossPct:   0.01,
		MaxStopLossPct:    0.03,
		MaxDailyLossPct:   0.05,
		MaxExposurePct:    0.3,
		DrawdownPausePct:  0.03,
		DrawdownResumePct: 0.02,
	}, 10000, zerolog.Nop())

	cfg := Config{
		Symbol:               "BTCUSDT",
		Interval:             "1m",
		CandleLimit:          100,
		TickInterval:         time.Millisecond,
		MinConfidence:        0.45,
		RiskPercent:          0.02,
		TakeProfitPct:        0.025,
		TrailingStopPct:      0.01,
		MeanRevStopLossPct:   0.006,
		MeanRevTakeProfitPct: 0.012,
	}

	return New(cfg, 10000, Deps{
		Client:        client,
		Risk:          riskMgr,
		Momentum:      eval,
		MeanReversion: eval,
		Fuser:         sentiment.NewFuser(70),
	}, zerolog.Nop())
}

func buySig(conf float64) *strategy.Signal {
	return &strategy.Signal{Symbol: "BTCUSDT", Action: strategy.ActionBuy, Confidence: conf, Reason: "test"}
}

func sellSig(conf float64) *strategy.Signal {
	return &strategy.Signal{Symbol: "BTCUSDT", Action: strategy.ActionSell, Confidence: conf, Reason: "test"}
}

func TestOpenLongThenTakeProfit(t *testing.T) {
	client := &fakeClient{price: 100, candles: quietCandles(100, 100)}
	e := testEngine(client, &scripted{signals: []*strategy.Signal{buySig(0.8)}})
	ctx := context.Background()

	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	positions := e.SnapshotPositions()
	if len(positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(positions))
	}
	pos := positions[0]
	if pos.Side != SideLong {
		t.Errorf("side = %s, want long", pos.Side)
	}
	if pos.StopLoss >= pos.EntryPrice || pos.TakeProfit <= pos.EntryPrice {
		t.Errorf("long stop/take misplaced: stop=%f entry=%f take=%f", pos.StopLoss, pos.EntryPrice, pos.TakeProfit)
	}

	client.price = pos.TakeProfit + 0.1
	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(e.SnapshotPositions()) != 0 {
		t.Fatal("position should be closed after take-profit crossing")
	}

	trades := e.SnapshotTrades()
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].PnL <= 0 {
		t.Errorf("take-profit close should be profitable, pnl=%f", trades[0].PnL)
	}
	if trades[0].Reason != "take_profit" {
		t.Errorf("reason = %s, want take_profit", trades[0].Reason)
	}
}

func TestStopLossClosesLong(t *testing.T) {
	client := &fakeClient{price: 100, candles: quietCandles(100, 100)}
	e := testEngine(client, &scripted{signals: []*strategy.Signal{buySig(0.8)}})
	ctx := context.Background()

	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	pos := e.SnapshotPositions()[0]

	client.price = pos.StopLoss - 0.1
	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	trades := e.SnapshotTrades()
	if len(trades) != 1 || trades[0].Reason != "stop_loss" {
		t.Fatalf("expected one stop_loss trade, got %+v", trades)
	}
	if trades[0].PnL >= 0 {
		t.Errorf("stop-loss close should lose, pnl=%f", trades[0].PnL)
	}
}

func TestOpposingSignalClosesWithoutFlip(t *testing.T) {
	client := &fakeClient{price: 100, candles: quietCandles(100, 100)}
	e := testEngine(client, &scripted{signals: []*strategy.Signal{buySig(0.8), sellSig(0.8)}})
	ctx := context.Background()

	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if err := e.tick(ctx); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if n := len(e.SnapshotPositions()); n != 0 {
		t.Errorf("opposing signal must close and never flip in the same tick, %d positions open", n)
	}
	trades := e.SnapshotTrades()
	if len(trades) != 1 || trades[0].Reason != "opposing_signal" {
		t.Fatalf("expected one opposing_signal trade, got %+v", trades)
	}
}

func TestSameDirectionSignalIsNoOp(t *testing.T) {
	client := &fakeClient{price: 100, candles: quietCandles(100, 100)}
	e := testEngine(client, &scripted{signals: []*strategy.Signal{buySig(0.8), buySig(0.9)}})
	ctx := context.Background()

	e.tick(ctx)
	first := e.SnapshotPositions()[0]
	e.tick(ctx)

	positions := e.SnapshotPositions()
	if len(positions) != 1 {
		t.Fatalf("expected exactly 1 position, got %d", len(positions))
	}
	if positions[0].EntryTime != first.EntryTime {
		t.Error("same-direction signal must not replace the held position")
	}
	if len(client.orders) != 1 {
		t.Errorf("expected 1 order placed, got %d", len(client.orders))
	}
}

func TestShortLifecycle(t *testing.T) {
	client := &fakeClient{price: 100, candles: quietCandles(100, 100)}
	e := testEngine(client, &scripted{signals: []*strategy.Signal{sellSig(0.8)}})
	ctx := context.Background()

	e.tick(ctx)
	positions := e.SnapshotPositions()
	if len(positions) != 1 || positions[0].Side != SideShort {
		t.Fatalf("expected an open short, got %+v", positions)
	}
	pos := positions[0]
	if pos.StopLoss <= pos.EntryPrice || pos.TakeProfit >= pos.EntryPrice {
		t.Errorf("short stop/take misplaced: stop=%f entry=%f take=%f", pos.StopLoss, pos.EntryPrice, pos.TakeProfit)
	}

	client.price = pos.TakeProfit - 0.1
	e.tick(ctx)

	trades := e.SnapshotTrades()
	if len(trades) != 1 || trades[0].PnL <= 0 {
		t.Fatalf("falling price should profit a short, got %+v", trades)
	}
}

func TestTrailingStopMonotoneForLong(t *testing.T) {
	client := &fakeClient{price: 100, candles: quietCandles(100, 100)}
	e := testEngine(client, &scripted{signals: []*strategy.Signal{buySig(0.8)}})
	ctx := context.Background()

	e.tick(ctx)
	prevStop := e.SnapshotPositions()[0].StopLoss

	for _, price := range []float64{100.3, 100.7, 100.5, 100.9, 101.1} {
		client.price = price
		e.tick(ctx)
		positions := e.SnapshotPositions()
		if len(positions) == 0 {
			t.Fatalf("position closed unexpectedly at price %f", price)
		}
		stop := positions[0].StopLoss
		if stop < prevStop {
			t.Fatalf("trailing stop moved down: %f -> %f at price %f", prevStop, stop, price)
		}
		prevStop = stop
	}

	// 101.1 peak with 1% trailing puts the stop at 100.089
	want := 101.1 * 0.99
	if math.Abs(prevStop-want) > 1e-9 {
		t.Errorf("final stop = %f, want %f", prevStop, want)
	}
}

func TestDailyLossLimitStopsSession(t *testing.T) {
	client := &fakeClient{price: 100, candles: quietCandles(100, 100)}
	e := testEngine(client, &scripted{})

	e.trades = append(e.trades, TradeRecord{PnL: -600}) // 6% of 10k
	if err := e.tick(context.Background()); !errors.Is(err, ErrDailyLossLimit) {
		t.Errorf("expected ErrDailyLossLimit, got %v", err)
	}
}

func TestCarriedLossCountsTowardDailyLimit(t *testing.T) {
	client := &fakeClient{price: 100, candles: quietCandles(100, 100)}
	e := testEngine(client, &scripted{signals: []*strategy.Signal{buySig(0.8)}})

	// 6% of 10k already lost earlier today, persisted across the restart
	e.cfg.CarriedPnL = -600

	if err := e.tick(context.Background()); !errors.Is(err, ErrDailyLossLimit) {
		t.Errorf("expected ErrDailyLossLimit from the carried loss, got %v", err)
	}
	if len(e.SnapshotPositions()) != 0 {
		t.Error("no position may open once the carried loss breaches the limit")
	}
}

type fixedPrice struct {
	price float64
}

func (f *fixedPrice) LatestPrice() float64 { return f.price }

func TestStreamPricePreferredOverREST(t *testing.T) {
	client := &fakeClient{price: 100, candles: quietCandles(100, 100)}
	e := testEngine(client, &scripted{signals: []*strategy.Signal{buySig(0.8)}})
	stream := &fixedPrice{}
	e.prices = stream

	// nothing received on the stream yet, tick falls back to REST
	if err := e.tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	positions := e.SnapshotPositions()
	if len(positions) != 1 {
		t.Fatalf("expected 1 open position, got %d", len(positions))
	}
	pos := positions[0]

	// stream crosses the take-profit while REST still reports the entry price
	stream.price = pos.TakeProfit + 0.1
	if err := e.tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	trades := e.SnapshotTrades()
	if len(trades) != 1 || trades[0].Reason != "take_profit" {
		t.Fatalf("expected a take_profit close from the stream price, got %+v", trades)
	}
	if trades[0].ExitPrice != stream.price {
		t.Errorf("exit price = %f, want the stream price %f", trades[0].ExitPrice, stream.price)
	}
}

func TestPausedDrawdownBlocksEntries(t *testing.T) {
	client := &fakeClient{price: 100, candles: quietCandles(100, 100)}
	e := testEngine(client, &scripted{signals: []*strategy.Signal{buySig(0.9)}})

	// 3.5% below the 10k peak trips the 3% pause threshold inside tick
	e.capital = 9650

	if err := e.tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(e.SnapshotPositions()) != 0 {
		t.Error("paused engine must not open positions")
	}
}

func TestConfidenceFloorRejects(t *testing.T) {
	client := &fakeClient{price: 100, candles: quietCandles(100, 100)}
	e := testEngine(client, &scripted{signals: []*strategy.Signal{buySig(0.3)}})

	if err := e.tick(context.Background()); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if len(e.SnapshotPositions()) != 0 {
		t.Error("signal below the confidence floor must not trade")
	}
}

func TestFailedEntryOrderLeavesStateClean(t *testing.T) {
	client := &fakeClient{price: 100, candles: quietCandles(100, 100), orderErr: errors.New("exchange down")}
	e := testEngine(client, &scripted{signals: []*strategy.Signal{buySig(0.8)}})

	if err := e.tick(context.Background()); err != nil {
		t.Fatalf("tick should swallow execution failures, got %v", err)
	}
	if len(e.SnapshotPositions()) != 0 || len(e.SnapshotTrades()) != 0 {
		t.Error("failed order must not mutate position state")
	}
}

func TestLiquidationClosesEverything(t *testing.T) {
	client := &fakeClient{price: 100, candles: quietCandles(100, 100)}
	e := testEngine(client, &scripted{signals: []*strategy.Signal{buySig(0.8)}})
	ctx := context.Background()

	e.tick(ctx)
	if len(e.SnapshotPositions()) != 1 {
		t.Fatal("expected an open position before liquidation")
	}

	e.liquidate(ctx)
	if len(e.SnapshotPositions()) != 0 {
		t.Error("liquidation must close all positions")
	}
	trades := e.SnapshotTrades()
	if len(trades) != 1 || trades[0].Reason != "end_of_session" {
		t.Fatalf("expected end_of_session trade, got %+v", trades)
	}
}

func TestRunHonorsSessionDuration(t *testing.T) {
	client := &fakeClient{price: 100, candles: quietCandles(100, 100)}
	e := testEngine(client, &scripted{signals: []*strategy.Signal{buySig(0.8)}})
	e.cfg.SessionDuration = 30 * time.Millisecond
	e.cfg.TickInterval = 5 * time.Millisecond

	report, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report == nil {
		t.Fatal("expected a session report")
	}
	if len(e.SnapshotPositions()) != 0 {
		t.Error("no positions may survive the session")
	}
	if e.LastReport() == nil {
		t.Error("report should be retained for observers")
	}
}
