package indicators

import (
	"errors"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"

	"adaptive-trading-bot/internal/market"
)

// MinCandles is the minimum history required to compute the full bundle.
// ADX(14) alone needs 2*14-1 bars before producing output; 50 leaves headroom
// for the Bollinger and MACD warm-up on top of that.
const MinCandles = 50

var (
	// ErrInsufficientData indicates the candle window is too short for a
	// complete indicator computation.
	ErrInsufficientData = errors.New("insufficient candle data")

	// ErrNotFinite indicates a computed indicator value was NaN or Inf.
	ErrNotFinite = errors.New("indicator value is not finite")
)

// Bundle is an immutable snapshot of the derived indicator values for the
// most recent bar of a candle window.
type Bundle struct {
	RSI            float64 `json:"rsi"`
	MACD           float64 `json:"macd"`
	MACDSignal     float64 `json:"macd_signal"`
	MACDHistogram  float64 `json:"macd_histogram"`
	BollingerUpper float64 `json:"bollinger_upper"`
	BollingerMid   float64 `json:"bollinger_middle"`
	BollingerLower float64 `json:"bollinger_lower"`
	ATR            float64 `json:"atr"`
	ADX            float64 `json:"adx"`
	StochasticK    float64 `json:"stochastic_k"`
	StochasticD    float64 `json:"stochastic_d"`
}

// Compute calculates the indicator bundle for the last bar of the window.
// Returns ErrInsufficientData below MinCandles and ErrNotFinite if any
// output is NaN or Inf; callers treat both as "no signal this tick".
func Compute(candles []market.Candle) (*Bundle, error) {
	if len(candles) < MinCandles {
		return nil, fmt.Errorf("%w: have %d candles, need %d", ErrInsufficientData, len(candles), MinCandles)
	}

	closes := market.Closes(candles)
	highs := market.Highs(candles)
	lows := market.Lows(candles)

	rsi := talib.Rsi(closes, 14)
	macd, macdSignal, macdHist := talib.Macd(closes, 12, 26, 9)
	bbUpper, bbMid, bbLower := talib.BBands(closes, 20, 2.0, 2.0, talib.SMA)
	atr := talib.Atr(highs, lows, closes, 14)
	adx := talib.Adx(highs, lows, closes, 14)
	stochK, stochD := talib.Stoch(highs, lows, closes, 14, 3, talib.SMA, 3, talib.SMA)

	last := len(closes) - 1
	b := &Bundle{
		RSI:            rsi[last],
		MACD:           macd[last],
		MACDSignal:     macdSignal[last],
		MACDHistogram:  macdHist[last],
		BollingerUpper: bbUpper[last],
		BollingerMid:   bbMid[last],
		BollingerLower: bbLower[last],
		ATR:            atr[last],
		ADX:            adx[last],
		StochasticK:    stochK[last],
		StochasticD:    stochD[last],
	}

	if err := b.validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Bundle) validate() error {
	values := map[string]float64{
		"rsi":             b.RSI,
		"macd":            b.MACD,
		"macd_signal":     b.MACDSignal,
		"macd_histogram":  b.MACDHistogram,
		"bollinger_upper": b.BollingerUpper,
		"bollinger_mid":   b.BollingerMid,
		"bollinger_lower": b.BollingerLower,
		"atr":             b.ATR,
		"adx":             b.ADX,
		"stochastic_k":    b.StochasticK,
		"stochastic_d":    b.StochasticD,
	}
	for name, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s", ErrNotFinite, name)
		}
	}
	return nil
}

// BandPosition returns where price sits inside the Bollinger envelope as a
// fraction: 0 at the lower band, 1 at the upper. Values outside [0,1] mean
// price has escaped the bands.
func (b *Bundle) BandPosition(price float64) float64 {
	width := b.BollingerUpper - b.BollingerLower
	if width <= 0 {
		return 0.5
	}
	return (price - b.BollingerLower) / width
}

// BandWidthPct returns the Bollinger band width as a fraction of the middle
// band.
func (b *Bundle) BandWidthPct() float64 {
	if b.BollingerMid == 0 {
		return 0
	}
	return (b.BollingerUpper - b.BollingerLower) / b.BollingerMid
}
