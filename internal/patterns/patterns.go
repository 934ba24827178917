package patterns

import (
	"math"

	"github.com/markcheno/go-talib"

	"adaptive-trading-bot/internal/market"
)

// minCandles is the history floor below which Analyze returns an empty
// result rather than an error. Pattern absence is not a failure.
const minCandles = 30

// srLookback is the window over which support/resistance levels are taken.
const srLookback = 20

// Signals summarizes the detected price patterns for the latest bar.
// Support and Resistance are zero when no level could be derived.
type Signals struct {
	Bullish           []string `json:"bullish"`
	Bearish           []string `json:"bearish"`
	Support           float64  `json:"support"`
	Resistance        float64  `json:"resistance"`
	BullishDivergence bool     `json:"bullish_divergence"`
	BearishDivergence bool     `json:"bearish_divergence"`
}

// Analyze inspects the most recent candles for classical reversal patterns,
// support/resistance levels and RSI divergence. Windows shorter than 30
// candles produce a zero-value Signals.
func Analyze(candles []market.Candle) Signals {
	if len(candles) < minCandles {
		return Signals{}
	}

	var s Signals
	last := candles[len(candles)-1]
	prev := candles[len(candles)-2]

	if isDoji(last) {
		// a doji is indecision; it counts toward both sides
		s.Bullish = append(s.Bullish, "Doji")
		s.Bearish = append(s.Bearish, "Doji")
	}

	switch detectHammer(last) {
	case hammerBullish:
		s.Bullish = append(s.Bullish, "Bullish Hammer")
	case hammerBearish:
		s.Bearish = append(s.Bearish, "Bearish Hanging Man")
	}

	if isBullishEngulfing(prev, last) {
		s.Bullish = append(s.Bullish, "Bullish Engulfing")
	} else if isBearishEngulfing(prev, last) {
		s.Bearish = append(s.Bearish, "Bearish Engulfing")
	}

	s.Support, s.Resistance = supportResistance(candles, srLookback)
	s.BullishDivergence, s.BearishDivergence = detectDivergence(candles)

	return s
}

func bodySize(c market.Candle) float64 {
	return math.Abs(c.Close - c.Open)
}

func upperShadow(c market.Candle) float64 {
	return c.High - math.Max(c.Open, c.Close)
}

func lowerShadow(c market.Candle) float64 {
	return math.Min(c.Open, c.Close) - c.Low
}

func isDoji(c market.Candle) bool {
	rng := c.High - c.Low
	if rng == 0 {
		return false
	}
	return bodySize(c)/rng < 0.1
}

type hammerKind int

const (
	hammerNone hammerKind = iota
	hammerBullish
	hammerBearish
)

func detectHammer(c market.Candle) hammerKind {
	body := bodySize(c)
	if body == 0 {
		return hammerNone
	}
	if lowerShadow(c) > body*2 && upperShadow(c) < body*0.5 {
		if c.Close > c.Open {
			return hammerBullish
		}
		return hammerBearish
	}
	return hammerNone
}

func isBullishEngulfing(c1, c2 market.Candle) bool {
	// C1 bearish, C2 bullish, C2 body covering C1 body
	if c1.Close >= c1.Open || c2.Close <= c2.Open {
		return false
	}
	return c2.Close > c1.Open && c2.Open < c1.Close
}

func isBearishEngulfing(c1, c2 market.Candle) bool {
	if c1.Close <= c1.Open || c2.Close >= c2.Open {
		return false
	}
	return c2.Close < c1.Open && c2.Open > c1.Close
}

func supportResistance(candles []market.Candle, lookback int) (float64, float64) {
	if len(candles) < lookback {
		return 0, 0
	}
	recent := candles[len(candles)-lookback:]
	support := recent[0].Low
	resistance := recent[0].High
	for _, c := range recent[1:] {
		if c.Low < support {
			support = c.Low
		}
		if c.High > resistance {
			resistance = c.High
		}
	}
	return support, resistance
}

// detectDivergence compares the direction of the last price step against the
// direction of the last RSI step. Price falling while RSI rises hints at
// fading sell pressure, and the mirror case at fading buy pressure.
func detectDivergence(candles []market.Candle) (bullish, bearish bool) {
	if len(candles) < 15 {
		return false, false
	}
	closes := market.Closes(candles)
	rsi := talib.Rsi(closes, 14)

	n := len(closes)
	priceDown := closes[n-1] < closes[n-2]
	priceUp := closes[n-1] > closes[n-2]
	rsiUp := rsi[n-1] > rsi[n-2]
	rsiDown := rsi[n-1] < rsi[n-2]

	return priceDown && rsiUp, priceUp && rsiDown
}

// NearSupport reports whether price is within threshold (fractional) of the
// detected support level.
func (s Signals) NearSupport(price, threshold float64) bool {
	if s.Support <= 0 || price <= 0 {
		return false
	}
	return math.Abs(price-s.Support)/price < threshold
}

// NearResistance reports whether price is within threshold (fractional) of
// the detected resistance level.
func (s Signals) NearResistance(price, threshold float64) bool {
	if s.Resistance <= 0 || price <= 0 {
		return false
	}
	return math.Abs(price-s.Resistance)/price < threshold
}
