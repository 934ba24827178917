package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"adaptive-trading-bot/internal/analysis"
	"adaptive-trading-bot/internal/indicators"
	"adaptive-trading-bot/internal/market"
	"adaptive-trading-bot/internal/patterns"
	"adaptive-trading-bot/internal/regime"
	"adaptive-trading-bot/internal/risk"
	"adaptive-trading-bot/internal/sentiment"
	"adaptive-trading-bot/internal/strategy"
)

// ErrDailyLossLimit stops the session, not the process.
var ErrDailyLossLimit = errors.New("daily loss limit reached")

// Config holds the engine's session parameters
type Config struct {
	Symbol               string
	Interval             string
	CandleLimit          int
	TickInterval         time.Duration
	SessionDuration      time.Duration // 0 runs until the context is cancelled
	MinConfidence        float64       // quality gate on fused signals
	RiskPercent          float64       // basic sizing fallback
	TakeProfitPct        float64
	TrailingStopPct      float64
	MeanRevStopLossPct   float64 // tight stop for mean-reversion entries
	MeanRevTakeProfitPct float64
	CarriedPnL           float64 // realized pnl already booked today, counts toward the daily loss limit
}

// TradeStore persists closed trades and session summaries. The engine works
// without one; persistence failures are logged, never fatal.
type TradeStore interface {
	SaveTrade(ctx context.Context, trade *TradeRecord) error
	SaveSessionReport(ctx context.Context, report *Report) error
}

// PriceSource is an optional low-latency price feed, typically the websocket
// kline stream. A zero return means no price has been observed yet.
type PriceSource interface {
	LatestPrice() float64
}

// Deps are the engine's collaborators. Prices, Sentiment, Timeframes and
// Store may be nil; the engine degrades gracefully without them.
type Deps struct {
	Client        market.Client
	Prices        PriceSource
	Risk          *risk.Manager
	Momentum      strategy.Evaluator
	MeanReversion strategy.Evaluator
	Fuser         *sentiment.Fuser
	Sentiment     sentiment.Provider
	Timeframes    *analysis.Analyzer
	Store         TradeStore
}

// Engine runs the control loop and owns the position-lifecycle state
// machine. One tick executes fully before the next begins; all mutable
// state is mutated only within a tick. The mutex exists solely so the
// status API can read consistent snapshots.
type Engine struct {
	cfg     Config
	client  market.Client
	prices  PriceSource
	risk    *risk.Manager
	momo    strategy.Evaluator
	meanRev strategy.Evaluator
	fuser   *sentiment.Fuser
	senti   sentiment.Provider
	tfs     *analysis.Analyzer
	store   TradeStore
	logger  zerolog.Logger

	mu           sync.RWMutex
	positions    map[string]*Position
	capital      float64
	startCapital float64
	trades       []TradeRecord
	lastRegime   regime.Analysis
	sessionStart time.Time
	report       *Report
}

func New(cfg Config, initialCapital float64, deps Deps, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:          cfg,
		client:       deps.Client,
		prices:       deps.Prices,
		risk:         deps.Risk,
		momo:         deps.Momentum,
		meanRev:      deps.MeanReversion,
		fuser:        deps.Fuser,
		senti:        deps.Sentiment,
		tfs:          deps.Timeframes,
		store:        deps.Store,
		logger:       logger.With().Str("component", "engine").Logger(),
		positions:    make(map[string]*Position),
		capital:      initialCapital,
		startCapital: initialCapital,
	}
}

// Run executes the trading session until the duration elapses, the context
// is cancelled, or the daily loss limit is breached. All open positions are
// liquidated before returning.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	e.sessionStart = time.Now()
	e.mu.Unlock()

	var deadline time.Time
	if e.cfg.SessionDuration > 0 {
		deadline = e.sessionStart.Add(e.cfg.SessionDuration)
	}

	e.logger.Info().
		Str("symbol", e.cfg.Symbol).
		Dur("session", e.cfg.SessionDuration).
		Float64("capital", e.capital).
		Msg("Trading session started")

	iteration := 0
	for {
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			e.logger.Info().Msg("Session duration elapsed")
			break
		}
		if ctx.Err() != nil {
			e.logger.Info().Msg("Stop requested")
			break
		}

		iteration++
		if err := e.tick(ctx); err != nil {
			if errors.Is(err, ErrDailyLossLimit) {
				e.logger.Warn().Msg("Daily loss limit reached, stopping session")
				break
			}
			// tick-local failures never kill the loop
			e.logger.Error().Err(err).Int("iteration", iteration).Msg("Tick failed")
		}

		// the stop request is honored between ticks, never mid-tick
		select {
		case <-ctx.Done():
		case <-time.After(e.cfg.TickInterval):
		}
	}

	e.liquidate(context.WithoutCancel(ctx))

	report := BuildReport(e.SnapshotTrades(), e.startCapital, time.Since(e.sessionStart))
	e.mu.Lock()
	e.report = report
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveSessionReport(context.WithoutCancel(ctx), report); err != nil {
			e.logger.Error().Err(err).Msg("Failed to persist session report")
		}
	}
	e.logReport(report)
	return report, nil
}

// tick runs one full decision cycle.
func (e *Engine) tick(ctx context.Context) error {
	candles, err := e.client.GetKlines(ctx, e.cfg.Symbol, e.cfg.Interval, e.cfg.CandleLimit)
	if err != nil {
		return fmt.Errorf("fetching candles: %w", err)
	}
	price := 0.0
	if e.prices != nil {
		price = e.prices.LatestPrice()
	}
	if price == 0 {
		// no stream attached, or nothing received yet
		price, err = e.client.GetCurrentPrice(ctx, e.cfg.Symbol)
		if err != nil {
			return fmt.Errorf("fetching price: %w", err)
		}
	}

	e.monitorPosition(ctx, price)

	e.risk.UpdateDrawdown(e.capital)

	if !e.risk.CheckDailyLimits(e.sessionPnLs(), e.capital) {
		return ErrDailyLossLimit
	}

	if e.risk.State().TradingPaused {
		e.logger.Debug().Msg("Trading paused by drawdown, monitoring only")
		return nil
	}

	bundle, err := indicators.Compute(candles)
	if err != nil {
		// insufficient or non-finite data means no signal, not a failure
		e.logger.Debug().Err(err).Msg("Indicators unavailable this tick")
		return nil
	}
	pats := patterns.Analyze(candles)

	var summaries []analysis.TimeframeSummary
	if e.tfs != nil {
		summaries = e.tfs.Summarize(ctx, e.cfg.Symbol)
	}

	reg := regime.Detect(candles, bundle, summaries)
	e.mu.Lock()
	e.lastRegime = reg
	e.mu.Unlock()

	e.logger.Debug().
		Str("regime", string(reg.Regime)).
		Str("recommendation", string(reg.Recommendation)).
		Float64("trend", reg.TrendStrength).
		Float64("volatility", reg.VolatilityLevel).
		Msg("Regime classified")

	if reg.Recommendation == regime.RecommendAvoid {
		e.logger.Info().Str("regime", string(reg.Regime)).Msg("Regime says avoid, skipping entries")
		return nil
	}

	evaluator := e.momo
	if reg.Recommendation == regime.RecommendMeanReversion {
		evaluator = e.meanRev
	}

	features := &strategy.Features{
		Symbol:     e.cfg.Symbol,
		Price:      price,
		Candles:    candles,
		Indicators: bundle,
		Patterns:   pats,
		Timeframes: summaries,
	}
	sig, err := evaluator.Evaluate(ctx, features)
	if err != nil {
		e.logger.Debug().Err(err).Str("strategy", evaluator.Name()).Msg("No signal")
		sig = nil
	}

	var view *sentiment.MarketView
	if e.senti != nil {
		view, err = e.senti.AnalyzeMarket(ctx, e.cfg.Symbol)
		if err != nil {
			// sentiment failures degrade to absent, never propagate
			e.logger.Warn().Err(err).Msg("Sentiment unavailable this tick")
			view = nil
		}
	}

	fused := e.fuser.Fuse(sig, view)
	if fused == nil {
		return nil
	}
	if fused.Confidence < e.cfg.MinConfidence {
		e.logger.Info().
			Float64("confidence", fused.Confidence).
			Float64("floor", e.cfg.MinConfidence).
			Msg("Signal below confidence floor, skipping")
		return nil
	}

	return e.execute(ctx, fused, price, bundle, reg)
}

// monitorPosition ratchets the trailing stop and closes on stop-loss or
// take-profit crossings.
func (e *Engine) monitorPosition(ctx context.Context, price float64) {
	e.mu.Lock()
	pos, ok := e.positions[e.cfg.Symbol]
	if !ok {
		e.mu.Unlock()
		return
	}

	if extreme, moved := pos.Ratchet(price); moved {
		if longStop, err := e.risk.TrailingStop(extreme, e.cfg.TrailingStopPct); err == nil {
			if newStop := pos.mirrorStop(longStop); pos.improves(newStop) {
				pos.StopLoss = newStop
				e.logger.Info().
					Str("symbol", pos.Symbol).
					Float64("stop_loss", newStop).
					Float64("extreme", extreme).
					Msg("Trailing stop ratcheted")
			}
		}
	}
	e.mu.Unlock()

	switch {
	case pos.stopHit(price):
		e.closePosition(ctx, pos, price, "stop_loss")
	case pos.takeProfitHit(price):
		e.closePosition(ctx, pos, price, "take_profit")
	}
}

// execute applies a fused signal against the state machine: same direction
// is a no-op, an opposing signal closes (never flips in the same tick), and
// with no position held it opens one.
func (e *Engine) execute(ctx context.Context, sig *strategy.Signal, price float64, bundle *indicators.Bundle, reg regime.Analysis) error {
	orderSide := market.SideBuy
	if sig.Action == strategy.ActionSell {
		orderSide = market.SideSell
	}

	if pos, held := e.positions[e.cfg.Symbol]; held {
		if !pos.opposes(orderSide) {
			e.logger.Debug().Str("side", string(pos.Side)).Msg("Signal matches held direction, no-op")
			return nil
		}
		e.closePosition(ctx, pos, price, "opposing_signal")
		return nil
	}

	return e.openPosition(ctx, sig, orderSide, price, bundle, reg)
}

func (e *Engine) openPosition(ctx context.Context, sig *strategy.Signal, orderSide market.OrderSide, price float64, bundle *indicators.Bundle, reg regime.Analysis) error {
	if !e.risk.ShouldOpenPosition(e.exposure(), e.capital) {
		e.logger.Info().Msg("Risk gate rejected entry")
		return nil
	}

	var stopPct, takePct float64
	if reg.Recommendation == regime.RecommendMeanReversion {
		stopPct = e.cfg.MeanRevStopLossPct
		takePct = e.cfg.MeanRevTakeProfitPct
	} else {
		stopPct = e.risk.AdaptiveStopPct(price, bundle.ATR)
		takePct = e.cfg.TakeProfitPct
	}

	notional, err := e.positionNotional(stopPct, reg.VolatilityLevel)
	if err != nil {
		return fmt.Errorf("sizing position: %w", err)
	}
	quantity := notional / price

	order, err := e.client.PlaceOrder(ctx, e.cfg.Symbol, orderSide, quantity)
	if err != nil {
		// abort the tick without touching position state
		e.logger.Error().Err(err).Str("side", string(orderSide)).Msg("Entry order failed")
		return nil
	}

	side := SideLong
	stopLoss := price * (1 - stopPct)
	takeProfit := price * (1 + takePct)
	if orderSide == market.SideSell {
		side = SideShort
		stopLoss = price * (1 + stopPct)
		takeProfit = price * (1 - takePct)
	}

	pos := newPosition(e.cfg.Symbol, side, price, order.ExecutedQty, stopLoss, takeProfit)

	e.mu.Lock()
	if _, exists := e.positions[e.cfg.Symbol]; exists {
		e.mu.Unlock()
		// the one-position invariant is enforced before ordering; reaching
		// this point is a programming error
		panic("position already open for " + e.cfg.Symbol)
	}
	e.positions[e.cfg.Symbol] = pos
	e.mu.Unlock()

	e.logger.Info().
		Str("symbol", pos.Symbol).
		Str("side", string(side)).
		Float64("entry", price).
		Float64("quantity", pos.Quantity).
		Float64("stop_loss", stopLoss).
		Float64("take_profit", takeProfit).
		Float64("confidence", sig.Confidence).
		Str("reason", sig.Reason).
		Msg("Position opened")
	return nil
}

// positionNotional sizes the entry: dynamic Kelly sizing once enough trade
// history exists, basic percent sizing before that.
func (e *Engine) positionNotional(stopPct, volatility float64) (float64, error) {
	if len(e.trades) < risk.MinTradesForKelly {
		return e.risk.CalculatePositionSize(e.capital, e.cfg.RiskPercent, stopPct)
	}

	var wins, losses []float64
	for _, t := range e.trades {
		if t.PnL > 0 {
			wins = append(wins, t.PnL)
		} else {
			losses = append(losses, t.PnL)
		}
	}
	winRate := float64(len(wins)) / float64(len(e.trades))
	return e.risk.CalculateDynamicPositionSize(
		e.capital, winRate, meanOf(wins), meanOf(losses), stopPct, volatility)
}

func (e *Engine) closePosition(ctx context.Context, pos *Position, price float64, reason string) {
	closeSide := market.SideSell
	if pos.Side == SideShort {
		closeSide = market.SideBuy
	}

	if _, err := e.client.PlaceOrder(ctx, pos.Symbol, closeSide, pos.Quantity); err != nil {
		// position state stays intact; the next tick retries the exit
		e.logger.Error().Err(err).Str("reason", reason).Msg("Exit order failed")
		return
	}

	pnl := pos.UnrealizedPnL(price)
	trade := TradeRecord{
		Symbol:     pos.Symbol,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  price,
		PnL:        pnl,
		Reason:     reason,
		EntryTime:  pos.EntryTime,
		ExitTime:   time.Now(),
	}

	e.mu.Lock()
	e.trades = append(e.trades, trade)
	e.capital += pnl
	delete(e.positions, pos.Symbol)
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveTrade(ctx, &trade); err != nil {
			e.logger.Error().Err(err).Msg("Failed to persist trade")
		}
	}

	e.logger.Info().
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Float64("entry", pos.EntryPrice).
		Float64("exit", price).
		Float64("pnl", pnl).
		Str("reason", reason).
		Msg("Position closed")
}

// liquidate closes every open position at the end of the session.
func (e *Engine) liquidate(ctx context.Context) {
	for _, pos := range e.openPositions() {
		price, err := e.client.GetCurrentPrice(ctx, pos.Symbol)
		if err != nil {
			e.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("Price fetch failed during liquidation, settling at entry")
			price = pos.EntryPrice
		}
		e.closePosition(ctx, pos, price, "end_of_session")
	}
}

func (e *Engine) openPositions() []*Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Position, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, pos)
	}
	return out
}

func (e *Engine) exposure() float64 {
	total := 0.0
	for _, pos := range e.positions {
		total += pos.Notional()
	}
	return total
}

// sessionPnLs is the per-trade pnl series the daily loss limit is checked
// against. Losses already booked today before this session started are
// carried in as a leading entry.
func (e *Engine) sessionPnLs() []float64 {
	pnls := make([]float64, 0, len(e.trades)+1)
	if e.cfg.CarriedPnL != 0 {
		pnls = append(pnls, e.cfg.CarriedPnL)
	}
	for _, t := range e.trades {
		pnls = append(pnls, t.PnL)
	}
	return pnls
}

// SnapshotPositions returns copies of the open positions for observers.
func (e *Engine) SnapshotPositions() []Position {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Position, 0, len(e.positions))
	for _, pos := range e.positions {
		out = append(out, *pos)
	}
	return out
}

// SnapshotTrades returns a copy of the session trade ledger.
func (e *Engine) SnapshotTrades() []TradeRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]TradeRecord, len(e.trades))
	copy(out, e.trades)
	return out
}

// Status reports the engine state for the status API.
func (e *Engine) Status() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return map[string]interface{}{
		"symbol":         e.cfg.Symbol,
		"capital":        e.capital,
		"start_capital":  e.startCapital,
		"open_positions": len(e.positions),
		"total_trades":   len(e.trades),
		"regime":         e.lastRegime.Regime,
		"recommendation": e.lastRegime.Recommendation,
		"session_start":  e.sessionStart,
	}
}

// LastReport returns the end-of-session report, nil while running.
func (e *Engine) LastReport() *Report {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.report
}

func (e *Engine) logReport(r *Report) {
	e.logger.Info().
		Int("total_trades", r.TotalTrades).
		Float64("win_rate", r.WinRate).
		Float64("total_pnl", r.TotalPnL).
		Float64("pnl_pct", r.TotalPnLPct).
		Float64("profit_factor", r.ProfitFactor).
		Float64("sharpe", r.SharpeRatio).
		Float64("max_drawdown_pct", r.MaxDrawdownPct*100).
		Float64("end_capital", r.EndCapital).
		Msg("Session report")
}
