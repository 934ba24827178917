package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// MeanReversionConfig holds the tunable thresholds of the mean-reversion
// strategy.
type MeanReversionConfig struct {
	SupportThreshold    float64 // fractional distance to support that counts as "near"
	ResistanceThreshold float64 // fractional distance to resistance that counts as "near"
}

// thresholds are deliberately lower than momentum's: mean reversion is meant
// to fire often in range-bound regimes.
const (
	meanRevEntryScore = 1.5
	meanRevScoreScale = 4.0
	meanRevMaxConf    = 0.90
)

// MeanReversion buys near support and sells near resistance, confirmed by
// oscillator extremes and opposite-zone MACD crossovers.
type MeanReversion struct {
	cfg MeanReversionConfig
}

func NewMeanReversion(cfg MeanReversionConfig) *MeanReversion {
	return &MeanReversion{cfg: cfg}
}

func (m *MeanReversion) Name() string { return "mean_reversion" }

func (m *MeanReversion) Evaluate(_ context.Context, f *Features) (*Signal, error) {
	if f.Indicators == nil {
		return nil, errors.New("mean_reversion: missing indicator bundle")
	}
	ind := f.Indicators

	var total float64
	var reasons []string
	add := func(score float64, reason string) {
		total += score
		reasons = append(reasons, reason)
	}

	// Bollinger position is the primary evidence
	pos := ind.BandPosition(f.Price)
	switch {
	case pos < 0.2:
		add(1.5, fmt.Sprintf("Near lower BB (position: %.2f)", pos))
	case pos < 0.3:
		add(1.0, "Approaching lower BB")
	case pos > 0.8:
		add(-1.5, fmt.Sprintf("Near upper BB (position: %.2f)", pos))
	case pos > 0.7:
		add(-1.0, "Approaching upper BB")
	}

	switch {
	case ind.RSI < 30:
		add(0.8, fmt.Sprintf("RSI oversold (%.0f)", ind.RSI))
	case ind.RSI < 35:
		add(0.5, fmt.Sprintf("RSI low (%.0f)", ind.RSI))
	case ind.RSI > 70:
		add(-0.8, fmt.Sprintf("RSI overbought (%.0f)", ind.RSI))
	case ind.RSI > 65:
		add(-0.5, fmt.Sprintf("RSI high (%.0f)", ind.RSI))
	}

	if f.Patterns.Support > 0 && f.Patterns.Resistance > 0 {
		supportDist := (f.Price - f.Patterns.Support) / f.Patterns.Support
		resistanceDist := (f.Patterns.Resistance - f.Price) / f.Patterns.Resistance

		if supportDist < m.cfg.SupportThreshold {
			add(1.0, fmt.Sprintf("Near support (%.2f)", f.Patterns.Support))
		}
		if resistanceDist < m.cfg.ResistanceThreshold {
			add(-1.0, fmt.Sprintf("Near resistance (%.2f)", f.Patterns.Resistance))
		}
	}

	if ind.StochasticK < 20 {
		add(0.5, "Stochastic oversold")
	} else if ind.StochasticK > 80 {
		add(-0.5, "Stochastic overbought")
	}

	// crossovers only count in the opposite-sign zone, where they suggest a
	// reversal rather than a continuation
	if ind.MACD > ind.MACDSignal && ind.MACD < 0 {
		add(0.6, "MACD bullish crossover in negative zone")
	} else if ind.MACD < ind.MACDSignal && ind.MACD > 0 {
		add(-0.6, "MACD bearish crossover in positive zone")
	}

	if len(reasons) == 0 {
		return nil, nil
	}

	switch {
	case total >= meanRevEntryScore:
		return &Signal{
			Symbol:     f.Symbol,
			Action:     ActionBuy,
			Confidence: math.Min(total/meanRevScoreScale, meanRevMaxConf),
			Reason:     strings.Join(reasons, "; "),
			Timestamp:  time.Now(),
		}, nil
	case total <= -meanRevEntryScore:
		return &Signal{
			Symbol:     f.Symbol,
			Action:     ActionSell,
			Confidence: math.Min(math.Abs(total)/meanRevScoreScale, meanRevMaxConf),
			Reason:     strings.Join(reasons, "; "),
			Timestamp:  time.Now(),
		}, nil
	}
	return nil, nil
}
