package regime

import (
	"math"
	"testing"

	"adaptive-trading-bot/internal/analysis"
	"adaptive-trading-bot/internal/indicators"
	"adaptive-trading-bot/internal/market"
)

func steadyCandles(n int, start, step float64) []market.Candle {
	candles := make([]market.Candle, n)
	price := start
	for i := range candles {
		candles[i] = market.Candle{Open: price, High: price + 0.5, Low: price - 0.5, Close: price, Volume: 1000}
		price += step
	}
	return candles
}

func TestClassifyIsTotal(t *testing.T) {
	trends := []float64{-1, -0.5, -0.2, 0, 0.2, 0.5, 1}
	vols := []float64{0, 0.3, 0.5, 0.75, 1}
	momenta := []float64{-1, -0.4, 0, 0.4, 1}
	adxes := []float64{5, 15, 25, 35, 60}

	valid := map[Regime]bool{
		BullStrong: true, BullWeak: true, BearStrong: true,
		BearWeak: true, Sideways: true, Volatile: true,
	}
	validRec := map[Recommendation]bool{
		RecommendMomentum: true, RecommendMeanReversion: true, RecommendAvoid: true,
	}

	for _, tr := range trends {
		for _, v := range vols {
			for _, m := range momenta {
				for _, adx := range adxes {
					regime, conf := classify(tr, v, m, adx)
					if !valid[regime] {
						t.Fatalf("classify(%f,%f,%f,%f) produced unknown regime %q", tr, v, m, adx, regime)
					}
					if conf < 0 || conf > 1 {
						t.Fatalf("confidence out of range: %f", conf)
					}
					if !validRec[recommend(regime, v)] {
						t.Fatalf("recommend(%q,%f) produced unknown recommendation", regime, v)
					}
				}
			}
		}
	}
}

func TestVolatilityPrecedence(t *testing.T) {
	// strong trend inputs still classify volatile when volatility dominates
	regime, conf := classify(0.9, 0.85, 0.9, 50)
	if regime != Volatile {
		t.Errorf("expected volatile, got %s", regime)
	}
	if conf > 0.95 {
		t.Errorf("volatile confidence must cap at 0.95, got %f", conf)
	}
}

func TestSidewaysBand(t *testing.T) {
	regime, conf := classify(0.1, 0.3, 0, 15)
	if regime != Sideways {
		t.Errorf("low ADX low trend should be sideways, got %s", regime)
	}
	if math.Abs(conf-0.9) > 1e-9 {
		t.Errorf("sideways confidence = %f, want 0.9", conf)
	}
}

func TestStrongVsWeakTrend(t *testing.T) {
	if r, _ := classify(0.5, 0.3, 0.5, 35); r != BullStrong {
		t.Errorf("high ADX + momentum should be bull_strong, got %s", r)
	}
	if r, _ := classify(0.5, 0.3, 0.1, 35); r != BullWeak {
		t.Errorf("weak momentum should be bull_weak, got %s", r)
	}
	if r, _ := classify(-0.5, 0.3, -0.5, 35); r != BearStrong {
		t.Errorf("expected bear_strong, got %s", r)
	}
	if r, _ := classify(-0.5, 0.3, 0.1, 35); r != BearWeak {
		t.Errorf("expected bear_weak, got %s", r)
	}
}

func TestRecommendationMapping(t *testing.T) {
	tests := []struct {
		regime     Regime
		volatility float64
		want       Recommendation
	}{
		{BullStrong, 0.3, RecommendMomentum},
		{BearStrong, 0.3, RecommendMomentum},
		{Sideways, 0.3, RecommendMeanReversion},
		{BullWeak, 0.3, RecommendMeanReversion},
		{BullWeak, 0.5, RecommendMomentum},
		{BearWeak, 0.39, RecommendMeanReversion},
		{Volatile, 0.75, RecommendAvoid},
		{BullStrong, 0.85, RecommendAvoid}, // extreme volatility overrides regime
	}
	for _, tt := range tests {
		if got := recommend(tt.regime, tt.volatility); got != tt.want {
			t.Errorf("recommend(%s, %f) = %s, want %s", tt.regime, tt.volatility, got, tt.want)
		}
	}
}

func TestRecentMomentumClamped(t *testing.T) {
	up := steadyCandles(30, 100, 5) // violent climb
	if m := recentMomentum(up); m != 1 {
		t.Errorf("runaway uptrend should clamp momentum to 1, got %f", m)
	}

	down := steadyCandles(30, 300, -5)
	if m := recentMomentum(down); m != -1 {
		t.Errorf("runaway downtrend should clamp momentum to -1, got %f", m)
	}

	flat := steadyCandles(30, 100, 0)
	if m := recentMomentum(flat); m != 0 {
		t.Errorf("flat series momentum = %f, want 0", m)
	}

	if m := recentMomentum(steadyCandles(10, 100, 1)); m != 0 {
		t.Errorf("short series momentum = %f, want 0", m)
	}
}

func TestDetectEndToEnd(t *testing.T) {
	candles := steadyCandles(60, 100, 0.05)
	ind := &indicators.Bundle{
		RSI: 65, MACD: 1.5, MACDSignal: 1.0, MACDHistogram: 0.5,
		BollingerUpper: 104, BollingerMid: 103, BollingerLower: 102,
		ATR: 0.4, ADX: 35, StochasticK: 70, StochasticD: 65,
	}
	summaries := []analysis.TimeframeSummary{
		{Interval: "5m", TrendPct: 1.2},
		{Interval: "15m", TrendPct: 0.9},
		{Interval: "1h", TrendPct: 2.1},
	}

	a := Detect(candles, ind, summaries)
	if a.TrendStrength <= 0 {
		t.Errorf("bullish inputs should give positive trend strength, got %f", a.TrendStrength)
	}
	if a.Regime != BullStrong && a.Regime != BullWeak {
		t.Errorf("expected a bull regime, got %s", a.Regime)
	}
	if a.Recommendation == RecommendAvoid {
		t.Errorf("calm bullish market should not recommend avoid")
	}
}
