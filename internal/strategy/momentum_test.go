package strategy

import (
	"context"
	"errors"
	"math"
	"testing"

	"adaptive-trading-bot/internal/analysis"
	"adaptive-trading-bot/internal/indicators"
	"adaptive-trading-bot/internal/market"
	"adaptive-trading-bot/internal/patterns"
)

func testMomentumConfig() MomentumConfig {
	return MomentumConfig{
		MinVolume:           100,
		RSILower:            35,
		RSIUpper:            65,
		ADXTrendThreshold:   18,
		ATRVolatilityCeil:   0.02,
		RangingTrendPct:     0.5,
		RangingMACDDiff:     3,
		RangingBandWidthPct: 0.02,
		SRProximityPct:      0.01,
	}
}

func risingCandles(n int, start, step, volume float64) []market.Candle {
	candles := make([]market.Candle, n)
	price := start
	for i := range candles {
		candles[i] = market.Candle{Open: price, High: price + 0.5, Low: price - 0.5, Close: price, Volume: volume}
		price += step
	}
	return candles
}

func TestMomentumBullishConfluence(t *testing.T) {
	f := &Features{
		Symbol:  "BTCUSDT",
		Price:   90,
		Candles: risingCandles(60, 85, 0.085, 500),
		Indicators: &indicators.Bundle{
			RSI: 25, MACD: 3, MACDSignal: 1, MACDHistogram: 2,
			BollingerUpper: 110, BollingerMid: 100, BollingerLower: 90,
			ATR: 1.0, ADX: 35, StochasticK: 15, StochasticD: 18,
		},
	}

	sig, err := NewMomentum(testMomentumConfig()).Evaluate(context.Background(), f)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if sig == nil {
		t.Fatal("expected a buy signal")
	}
	if sig.Action != ActionBuy {
		t.Errorf("action = %s, want buy", sig.Action)
	}
	// RSI 1.0 + histogram 0.75 + lower band 0.5 + stochastic 0.5 +
	// ADX confirmation 0.25 + short-term momentum 0.25 = 3.25
	want := 3.25 / 4.0
	if math.Abs(sig.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %f, want %f", sig.Confidence, want)
	}
}

func TestMomentumSupportProximityConfigurable(t *testing.T) {
	features := func() *Features {
		return &Features{
			Symbol:  "BTCUSDT",
			Price:   90,
			Candles: risingCandles(60, 85, 0.085, 500),
			Indicators: &indicators.Bundle{
				RSI: 25, MACD: 3, MACDSignal: 1, MACDHistogram: 2,
				BollingerUpper: 110, BollingerMid: 100, BollingerLower: 90,
				ATR: 1.0, ADX: 35, StochasticK: 15, StochasticD: 18,
			},
			// support 0.56% below price, resistance far away
			Patterns: patterns.Signals{Support: 89.5, Resistance: 120},
		}
	}

	cfg := testMomentumConfig()
	wide, err := NewMomentum(cfg).Evaluate(context.Background(), features())
	if err != nil || wide == nil {
		t.Fatalf("expected a signal with the 1%% window, got %v (err %v)", wide, err)
	}

	cfg.SRProximityPct = 0.001
	narrow, err := NewMomentum(cfg).Evaluate(context.Background(), features())
	if err != nil || narrow == nil {
		t.Fatalf("expected a signal with the tight window, got %v (err %v)", narrow, err)
	}

	// the support vote is worth 0.4 of raw score, 0.1 of confidence
	if diff := wide.Confidence - narrow.Confidence; math.Abs(diff-0.1) > 1e-9 {
		t.Errorf("confidence gap = %f, want 0.1 from the support vote", diff)
	}
}

func TestMomentumRangingFilterTrips(t *testing.T) {
	// ADX 15, RSI 50, |MACD-signal|=1, band width 1.5% of mid: several
	// ranging conditions at once, must yield no signal regardless of the
	// rest of the evidence
	f := &Features{
		Symbol:  "BTCUSDT",
		Price:   100,
		Candles: risingCandles(60, 95, 0.1, 500),
		Indicators: &indicators.Bundle{
			RSI: 50, MACD: 2, MACDSignal: 1, MACDHistogram: 1,
			BollingerUpper: 100.75, BollingerMid: 100, BollingerLower: 99.25,
			ATR: 0.5, ADX: 15, StochasticK: 50, StochasticD: 50,
		},
	}

	sig, err := NewMomentum(testMomentumConfig()).Evaluate(context.Background(), f)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if sig != nil {
		t.Errorf("ranging market should produce no signal, got %+v", sig)
	}
}

func TestMomentumRangingSplitTimeframes(t *testing.T) {
	f := &Features{
		Symbol:  "BTCUSDT",
		Price:   90,
		Candles: risingCandles(60, 85, 0.085, 500),
		Indicators: &indicators.Bundle{
			RSI: 25, MACD: 3, MACDSignal: 1, MACDHistogram: 2,
			BollingerUpper: 110, BollingerMid: 100, BollingerLower: 90,
			ATR: 1.0, ADX: 35, StochasticK: 15, StochasticD: 18,
		},
		Timeframes: []analysis.TimeframeSummary{
			{Interval: "5m", TrendPct: 2},
			{Interval: "15m", TrendPct: -1.5},
			{Interval: "1h", TrendPct: 1.1},
		},
	}

	// 2 bullish vs 1 bearish votes: split within one vote of even
	sig, err := NewMomentum(testMomentumConfig()).Evaluate(context.Background(), f)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if sig != nil {
		t.Errorf("split timeframes should suppress the signal, got %+v", sig)
	}
}

func TestMomentumVolatilityCeiling(t *testing.T) {
	f := &Features{
		Symbol:  "BTCUSDT",
		Price:   100,
		Candles: risingCandles(60, 95, 0.1, 500),
		Indicators: &indicators.Bundle{
			RSI: 25, MACD: 3, MACDSignal: 1, MACDHistogram: 2,
			BollingerUpper: 110, BollingerMid: 100, BollingerLower: 90,
			ATR: 5, ADX: 35, StochasticK: 15, StochasticD: 18, // ATR 5% of price
		},
	}

	sig, err := NewMomentum(testMomentumConfig()).Evaluate(context.Background(), f)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if sig != nil {
		t.Error("excessive ATR should suppress entries")
	}
}

func TestMomentumVolumeFloor(t *testing.T) {
	f := &Features{
		Symbol:  "BTCUSDT",
		Price:   100,
		Candles: risingCandles(60, 95, 0.1, 50), // volume below the 100 floor
		Indicators: &indicators.Bundle{
			RSI: 25, ADX: 35,
			BollingerUpper: 110, BollingerMid: 100, BollingerLower: 90,
		},
	}

	_, err := NewMomentum(testMomentumConfig()).Evaluate(context.Background(), f)
	if err == nil {
		t.Fatal("expected error for volume below floor")
	}
}

func TestMomentumInsufficientData(t *testing.T) {
	f := &Features{
		Symbol:     "BTCUSDT",
		Price:      100,
		Candles:    risingCandles(30, 95, 0.1, 500),
		Indicators: &indicators.Bundle{},
	}

	_, err := NewMomentum(testMomentumConfig()).Evaluate(context.Background(), f)
	if !errors.Is(err, indicators.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestMomentumBearishSide(t *testing.T) {
	f := &Features{
		Symbol:  "BTCUSDT",
		Price:   110,
		Candles: fallingCandles(60, 115, 0.085, 500),
		Indicators: &indicators.Bundle{
			RSI: 75, MACD: -3, MACDSignal: -1, MACDHistogram: -2,
			BollingerUpper: 110, BollingerMid: 100, BollingerLower: 90,
			ATR: 1.0, ADX: 35, StochasticK: 85, StochasticD: 82,
		},
	}

	sig, err := NewMomentum(testMomentumConfig()).Evaluate(context.Background(), f)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if sig == nil || sig.Action != ActionSell {
		t.Fatalf("expected sell signal, got %+v", sig)
	}
}

func fallingCandles(n int, start, step, volume float64) []market.Candle {
	candles := make([]market.Candle, n)
	price := start
	for i := range candles {
		candles[i] = market.Candle{Open: price, High: price + 0.5, Low: price - 0.5, Close: price, Volume: volume}
		price -= step
	}
	return candles
}
