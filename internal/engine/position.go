package engine

import (
	"time"

	"adaptive-trading-bot/internal/market"
)

// Side is the direction of an open position
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Position is an open position. The engine owns it exclusively; at most one
// exists per symbol at any time.
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	Quantity   float64   `json:"quantity"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	EntryTime  time.Time `json:"entry_time"`

	excursion excursionTracker
}

func newPosition(symbol string, side Side, entry, quantity, stopLoss, takeProfit float64) *Position {
	return &Position{
		Symbol:     symbol,
		Side:       side,
		EntryPrice: entry,
		Quantity:   quantity,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		EntryTime:  time.Now(),
		excursion:  newExcursionTracker(side, entry),
	}
}

// Notional returns the position's entry notional, used for the exposure cap.
func (p *Position) Notional() float64 {
	return p.EntryPrice * p.Quantity
}

// UnrealizedPnL values the position at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Quantity * p.excursion.direction
}

// Ratchet observes the current price and, when a new favorable extreme is
// set, returns it with true.
func (p *Position) Ratchet(price float64) (float64, bool) {
	if !p.excursion.observe(price) {
		return 0, false
	}
	return p.excursion.extreme, true
}

// mirrorStop reflects a long-side trailing stop across the favorable
// extreme: longs trail below the peak, shorts above the trough.
func (p *Position) mirrorStop(longStop float64) float64 {
	return p.excursion.extreme + p.excursion.direction*(longStop-p.excursion.extreme)
}

// stopHit reports whether the price has crossed the stop-loss.
func (p *Position) stopHit(price float64) bool {
	if p.Side == SideLong {
		return price <= p.StopLoss
	}
	return price >= p.StopLoss
}

// takeProfitHit reports whether the price has crossed the take-profit.
func (p *Position) takeProfitHit(price float64) bool {
	if p.Side == SideLong {
		return price >= p.TakeProfit
	}
	return price <= p.TakeProfit
}

// improves reports whether a candidate stop is tighter than the current one
// in the position's favor. Stops never loosen.
func (p *Position) improves(candidateStop float64) bool {
	if p.Side == SideLong {
		return candidateStop > p.StopLoss
	}
	return candidateStop < p.StopLoss
}

// opposes reports whether a signal side conflicts with the held direction.
func (p *Position) opposes(side market.OrderSide) bool {
	if p.Side == SideLong {
		return side == market.SideSell
	}
	return side == market.SideBuy
}

// excursionTracker follows the favorable price extreme of a position,
// parameterized by a direction sign so long and short share one
// implementation: +1 tracks a rising peak, -1 a falling trough.
type excursionTracker struct {
	direction float64
	extreme   float64
}

func newExcursionTracker(side Side, entry float64) excursionTracker {
	dir := 1.0
	if side == SideShort {
		dir = -1.0
	}
	return excursionTracker{direction: dir, extreme: entry}
}

// observe updates the extreme when price moves favorably and reports whether
// it did.
func (t *excursionTracker) observe(price float64) bool {
	if (price-t.extreme)*t.direction > 0 {
		t.extreme = price
		return true
	}
	return false
}
