package main

import (
	"testing"

	"adaptive-trading-bot/config"
	"adaptive-trading-bot/internal/sentiment"
)

func limitsConfig() *config.Config {
	return &config.Config{
		RiskConfig: config.RiskConfig{
			RiskPercent:    0.02,
			MaxExposurePct: 0.3,
		},
	}
}

func TestSessionRiskLimitsWithoutScan(t *testing.T) {
	riskPercent, maxExposure := sessionRiskLimits(limitsConfig(), nil)
	if riskPercent != 0.02 || maxExposure != 0.3 {
		t.Errorf("no scan must keep configured limits, got %f/%f", riskPercent, maxExposure)
	}
}

func TestSessionRiskLimitsHoldKeepsConfig(t *testing.T) {
	view := &sentiment.MarketView{Action: sentiment.ActionHold, Confidence: 90}
	riskPercent, maxExposure := sessionRiskLimits(limitsConfig(), view)
	if riskPercent != 0.02 || maxExposure != 0.3 {
		t.Errorf("hold view must keep configured limits, got %f/%f", riskPercent, maxExposure)
	}
}

func TestSessionRiskLimitsAppliesLadder(t *testing.T) {
	tests := []struct {
		confidence   int
		wantRisk     float64
		wantExposure float64
	}{
		{90, 0.025, 0.55},
		{70, 0.015, 0.4},
		{40, 0.01, 0.3},
	}
	for _, tt := range tests {
		view := &sentiment.MarketView{Action: sentiment.ActionBuy, Confidence: tt.confidence}
		riskPercent, maxExposure := sessionRiskLimits(limitsConfig(), view)
		if riskPercent != tt.wantRisk || maxExposure != tt.wantExposure {
			t.Errorf("confidence %d: got %f/%f, want %f/%f",
				tt.confidence, riskPercent, maxExposure, tt.wantRisk, tt.wantExposure)
		}
	}
}
