package strategy

import (
	"context"
	"time"

	"adaptive-trading-bot/internal/analysis"
	"adaptive-trading-bot/internal/indicators"
	"adaptive-trading-bot/internal/market"
	"adaptive-trading-bot/internal/patterns"
)

// Action is the direction of a signal. Hold is expressed by the absence of a
// signal, never as an action.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// Signal represents a trading signal generated by an evaluator
type Signal struct {
	Symbol     string    `json:"symbol"`
	Action     Action    `json:"action"`
	Confidence float64   `json:"confidence"` // 0 to 1
	Reason     string    `json:"reason"`     // trace of contributing evidence
	Timestamp  time.Time `json:"timestamp"`
}

// Features bundles everything an evaluator may consult on one tick. The
// engine assembles it once per tick and hands out read-only views.
type Features struct {
	Symbol     string
	Price      float64
	Candles    []market.Candle
	Indicators *indicators.Bundle
	Patterns   patterns.Signals
	Timeframes []analysis.TimeframeSummary
}

// Evaluator is the common interface for signal generators. A nil signal with
// a nil error means hold.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, f *Features) (*Signal, error)
}
