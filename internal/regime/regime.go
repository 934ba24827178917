package regime

import (
	"math"

	"adaptive-trading-bot/internal/analysis"
	"adaptive-trading-bot/internal/indicators"
	"adaptive-trading-bot/internal/market"
)

// Regime classifies the current market state
type Regime string

const (
	BullStrong Regime = "bull_strong"
	BullWeak   Regime = "bull_weak"
	BearStrong Regime = "bear_strong"
	BearWeak   Regime = "bear_weak"
	Sideways   Regime = "sideways"
	Volatile   Regime = "volatile"
)

// Recommendation is the strategy family the regime calls for
type Recommendation string

const (
	RecommendMomentum      Recommendation = "momentum"
	RecommendMeanReversion Recommendation = "mean_reversion"
	RecommendAvoid         Recommendation = "avoid"
)

// Analysis is the result of regime classification
type Analysis struct {
	Regime          Regime         `json:"regime"`
	Confidence      float64        `json:"confidence"`       // 0 to 1
	TrendStrength   float64        `json:"trend_strength"`   // -1 (bearish) to +1 (bullish)
	VolatilityLevel float64        `json:"volatility_level"` // 0 (calm) to 1 (violent)
	Momentum        float64        `json:"momentum"`         // -1 to +1, recent-weighted returns
	Recommendation  Recommendation `json:"recommendation"`
}

// Detect classifies the market state from the candle window, the indicator
// bundle and any higher-timeframe summaries, then maps the regime to a
// strategy recommendation. Classification is total: every input yields
// exactly one regime and one recommendation.
func Detect(candles []market.Candle, ind *indicators.Bundle, summaries []analysis.TimeframeSummary) Analysis {
	trend := trendStrength(ind, summaries)
	volatility := volatilityLevel(candles, ind)
	momentum := recentMomentum(candles)

	regime, confidence := classify(trend, volatility, momentum, ind.ADX)

	return Analysis{
		Regime:          regime,
		Confidence:      confidence,
		TrendStrength:   trend,
		VolatilityLevel: volatility,
		Momentum:        momentum,
		Recommendation:  recommend(regime, volatility),
	}
}

// trendStrength averages three votes: ADX magnitude signed by MACD direction,
// the multi-timeframe directional agreement ratio, and an RSI position bias.
func trendStrength(ind *indicators.Bundle, summaries []analysis.TimeframeSummary) float64 {
	var scores []float64

	adxStrength := math.Min(ind.ADX/50.0, 1.0)
	direction := 1.0
	if ind.MACD <= ind.MACDSignal {
		direction = -1.0
	}
	scores = append(scores, adxStrength*direction)

	if len(summaries) > 0 {
		bullish, bearish := 0, 0
		for _, tf := range summaries {
			if tf.TrendPct > 0.5 {
				bullish++
			} else if tf.TrendPct < -0.5 {
				bearish++
			}
		}
		scores = append(scores, float64(bullish-bearish)/float64(len(summaries)))
	}

	if ind.RSI > 60 {
		scores = append(scores, 0.5)
	} else if ind.RSI < 40 {
		scores = append(scores, -0.5)
	}

	return mean(scores)
}

// volatilityLevel averages three normalized measures: ATR as a fraction of
// price against a 4% ceiling, Bollinger width against an 8% ceiling, and the
// 20-period return standard deviation against 2%.
func volatilityLevel(candles []market.Candle, ind *indicators.Bundle) float64 {
	var scores []float64

	if len(candles) > 0 {
		price := candles[len(candles)-1].Close
		atrPct := 0.02
		if price > 0 {
			atrPct = ind.ATR / price
		}
		scores = append(scores, math.Min(atrPct/0.04, 1.0))
	}

	scores = append(scores, math.Min(ind.BandWidthPct()/0.08, 1.0))

	if len(candles) >= 21 {
		returns := make([]float64, 0, 20)
		for i := len(candles) - 20; i < len(candles); i++ {
			prev := candles[i-1].Close
			if prev != 0 {
				returns = append(returns, candles[i].Close/prev-1)
			}
		}
		scores = append(scores, math.Min(stddev(returns)/0.02, 1.0))
	}

	if len(scores) == 0 {
		return 0.5
	}
	return mean(scores)
}

// recentMomentum blends 5/10/20-period returns with recent periods weighted
// higher, scaled and clamped to [-1, 1].
func recentMomentum(candles []market.Candle) float64 {
	if len(candles) < 20 {
		return 0
	}
	last := candles[len(candles)-1].Close

	var r5, r10, r20 float64
	if len(candles) >= 6 {
		r5 = last/candles[len(candles)-6].Close - 1
	}
	if len(candles) >= 11 {
		r10 = last/candles[len(candles)-11].Close - 1
	}
	if len(candles) >= 21 {
		r20 = last/candles[len(candles)-21].Close - 1
	}

	momentum := (r5*0.5 + r10*0.3 + r20*0.2) * 20
	return math.Max(-1.0, math.Min(1.0, momentum))
}

// classify applies the precedence ladder: volatility first, then the
// low-ADX sideways band, then trend direction split by strength.
func classify(trend, volatility, momentum, adx float64) (Regime, float64) {
	if volatility > 0.7 {
		return Volatile, math.Min(volatility, 0.95)
	}

	if adx < 20 && math.Abs(trend) < 0.3 {
		return Sideways, math.Min(1.0-math.Abs(trend), 0.95)
	}

	if trend > 0 {
		if adx > 30 && momentum > 0.3 {
			return BullStrong, math.Min((adx/40.0+momentum)/2, 0.95)
		}
		return BullWeak, math.Min(trend+0.3, 0.8)
	}

	if trend < 0 {
		if adx > 30 && momentum < -0.3 {
			return BearStrong, math.Min((adx/40.0+math.Abs(momentum))/2, 0.95)
		}
		return BearWeak, math.Min(math.Abs(trend)+0.3, 0.8)
	}

	return Sideways, 0.5
}

func recommend(regime Regime, volatility float64) Recommendation {
	if volatility > 0.8 {
		return RecommendAvoid
	}

	switch regime {
	case BullStrong, BearStrong:
		return RecommendMomentum
	case Sideways:
		return RecommendMeanReversion
	case BullWeak, BearWeak:
		if volatility < 0.4 {
			return RecommendMeanReversion
		}
		return RecommendMomentum
	case Volatile:
		return RecommendAvoid
	}
	return RecommendMomentum
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)-1))
}
