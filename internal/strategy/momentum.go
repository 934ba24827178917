package strategy

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"adaptive-trading-bot/internal/analysis"
	"adaptive-trading-bot/internal/indicators"
)

// MomentumConfig holds the tunable thresholds of the momentum strategy.
// These are empirically chosen values; treat them as parameters, not truths.
type MomentumConfig struct {
	MinVolume           float64 // last-bar volume floor
	RSILower            float64 // oversold bound
	RSIUpper            float64 // overbought bound
	ADXTrendThreshold   float64 // ranging filter trips below this
	ATRVolatilityCeil   float64 // ATR/price ceiling for entries
	RangingTrendPct     float64 // avg |trend| below this counts as directionless
	RangingMACDDiff     float64 // |MACD-signal| band of the neutral zone check
	RangingBandWidthPct float64 // Bollinger width floor as fraction of mid
	SRProximityPct      float64 // fractional distance to support/resistance that scores
}

// decision thresholds shared by both directions
const (
	momentumEntryScore = 0.7
	momentumScoreScale = 4.0
	momentumMaxConf    = 0.95
)

// Momentum is a trend-following evaluator. It accumulates signed evidence
// from indicators, patterns and higher timeframes, but refuses to trade at
// all when the market looks directionless. Whipsaw losses in ranging
// conditions cost more than missed entries.
type Momentum struct {
	cfg MomentumConfig
}

func NewMomentum(cfg MomentumConfig) *Momentum {
	return &Momentum{cfg: cfg}
}

func (m *Momentum) Name() string { return "momentum" }

// Evaluate scores the feature set and returns a signal when the evidence
// clears the entry threshold in either direction.
func (m *Momentum) Evaluate(_ context.Context, f *Features) (*Signal, error) {
	if err := m.validate(f); err != nil {
		return nil, err
	}

	ind := f.Indicators

	if f.Price > 0 && ind.ATR/f.Price > m.cfg.ATRVolatilityCeil {
		return nil, nil
	}
	if reason := m.rangingReason(f); reason != "" {
		// ranging filter runs before any scoring
		return nil, nil
	}

	var total float64
	var reasons []string
	add := func(score float64, reason string) {
		total += score
		reasons = append(reasons, reason)
	}

	m.scoreIndicators(f, add)
	m.scorePatterns(f, add)
	m.scoreTimeframes(f, add)

	switch {
	case total >= momentumEntryScore:
		return &Signal{
			Symbol:     f.Symbol,
			Action:     ActionBuy,
			Confidence: math.Min(total/momentumScoreScale, momentumMaxConf),
			Reason:     strings.Join(reasons, "; "),
			Timestamp:  time.Now(),
		}, nil
	case total <= -momentumEntryScore:
		return &Signal{
			Symbol:     f.Symbol,
			Action:     ActionSell,
			Confidence: math.Min(-total/momentumScoreScale, momentumMaxConf),
			Reason:     strings.Join(reasons, "; "),
			Timestamp:  time.Now(),
		}, nil
	}
	return nil, nil
}

func (m *Momentum) validate(f *Features) error {
	if len(f.Candles) < indicators.MinCandles {
		return fmt.Errorf("%w: %d candles", indicators.ErrInsufficientData, len(f.Candles))
	}
	if f.Indicators == nil {
		return errors.New("momentum: missing indicator bundle")
	}
	for _, c := range f.Candles {
		if math.IsNaN(c.Close) || math.IsNaN(c.Volume) {
			return indicators.ErrNotFinite
		}
	}
	if f.Candles[len(f.Candles)-1].Volume < m.cfg.MinVolume {
		return fmt.Errorf("momentum: last-bar volume %.2f below floor %.2f",
			f.Candles[len(f.Candles)-1].Volume, m.cfg.MinVolume)
	}
	return nil
}

// rangingReason returns a non-empty description when the market looks
// directionless. Any one condition is enough to stand aside.
func (m *Momentum) rangingReason(f *Features) string {
	ind := f.Indicators

	if len(f.Timeframes) >= 3 {
		var absSum float64
		bullish, bearish := 0, 0
		for _, tf := range f.Timeframes {
			absSum += math.Abs(tf.TrendPct)
			if tf.TrendPct > 0 {
				bullish++
			} else if tf.TrendPct < 0 {
				bearish++
			}
		}
		if absSum/float64(len(f.Timeframes)) < m.cfg.RangingTrendPct {
			return "timeframes flat"
		}
		if abs(bullish-bearish) <= 1 {
			return "timeframes split"
		}
	}

	if ind.ADX < m.cfg.ADXTrendThreshold {
		return "ADX below trend threshold"
	}
	if ind.RSI >= 45 && ind.RSI <= 55 && math.Abs(ind.MACD-ind.MACDSignal) < m.cfg.RangingMACDDiff {
		return "RSI and MACD neutral"
	}
	if ind.BandWidthPct() < m.cfg.RangingBandWidthPct {
		return "Bollinger bands compressed"
	}
	return ""
}

func (m *Momentum) scoreIndicators(f *Features, add func(float64, string)) {
	ind := f.Indicators

	if ind.RSI < m.cfg.RSILower {
		add(1.0, fmt.Sprintf("RSI oversold (%.0f)", ind.RSI))
	} else if ind.RSI > m.cfg.RSIUpper {
		add(-1.0, fmt.Sprintf("RSI overbought (%.0f)", ind.RSI))
	}

	if ind.MACDHistogram > 0 {
		add(0.75, "MACD histogram positive")
	} else if ind.MACDHistogram < 0 {
		add(-0.75, "MACD histogram negative")
	}

	pos := ind.BandPosition(f.Price)
	if pos < 0.2 {
		add(0.5, "Price at lower Bollinger band")
	} else if pos > 0.8 {
		add(-0.5, "Price at upper Bollinger band")
	}

	if ind.StochasticK < 20 {
		add(0.5, "Stochastic oversold")
	} else if ind.StochasticK > 80 {
		add(-0.5, "Stochastic overbought")
	}

	if ind.ADX > 25 {
		if ind.MACD > ind.MACDSignal {
			add(0.25, "ADX confirms uptrend")
		} else if ind.MACD < ind.MACDSignal {
			add(-0.25, "ADX confirms downtrend")
		}
	}

	if n := len(f.Candles); n >= 6 {
		ref := f.Candles[n-6].Close
		if ref > 0 {
			change := (f.Candles[n-1].Close/ref - 1) * 100
			if change > 0.1 {
				add(0.25, "Short-term momentum up")
			} else if change < -0.1 {
				add(-0.25, "Short-term momentum down")
			}
		}
	}
}

func (m *Momentum) scorePatterns(f *Features, add func(float64, string)) {
	p := f.Patterns

	for _, name := range p.Bullish {
		add(0.6, "Pattern: "+name)
	}
	for _, name := range p.Bearish {
		add(-0.6, "Pattern: "+name)
	}

	if p.NearSupport(f.Price, m.cfg.SRProximityPct) {
		add(0.4, "Price near support")
	}
	if p.NearResistance(f.Price, m.cfg.SRProximityPct) {
		add(-0.4, "Price near resistance")
	}

	if p.BullishDivergence {
		add(0.7, "Bullish RSI divergence")
	}
	if p.BearishDivergence {
		add(-0.7, "Bearish RSI divergence")
	}
}

func (m *Momentum) scoreTimeframes(f *Features, add func(float64, string)) {
	for _, tf := range f.Timeframes {
		w := analysis.IntervalWeight(tf.Interval)

		if tf.TrendPct > 0.5 {
			add(0.3*w, fmt.Sprintf("%s uptrend (%.1f%%)", tf.Interval, tf.TrendPct))
		} else if tf.TrendPct < -0.5 {
			add(-0.3*w, fmt.Sprintf("%s downtrend (%.1f%%)", tf.Interval, tf.TrendPct))
		}

		if tf.Indicators == nil {
			continue
		}
		if tf.Indicators.RSI > 60 {
			add(0.15*w, tf.Interval+" RSI bullish")
		} else if tf.Indicators.RSI < 40 {
			add(-0.15*w, tf.Interval+" RSI bearish")
		}
		if tf.Indicators.ADX > 25 {
			if tf.Indicators.MACDHistogram > 0 {
				add(0.15*w, tf.Interval+" trend confirmed up")
			} else if tf.Indicators.MACDHistogram < 0 {
				add(-0.15*w, tf.Interval+" trend confirmed down")
			}
		}
	}

	// penalize fighting the longest configured timeframe: the penalty always
	// opposes the current timeframe's direction
	if n := len(f.Timeframes); n > 0 {
		longest := f.Timeframes[n-1]
		if longest.Indicators != nil && f.Indicators != nil {
			cur, high := f.Indicators.MACDHistogram, longest.Indicators.MACDHistogram
			if cur > 0 && high < 0 {
				add(-0.5, "Current timeframe contradicts "+longest.Interval)
			} else if cur < 0 && high > 0 {
				add(0.5, "Current timeframe contradicts "+longest.Interval)
			}
		}
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
