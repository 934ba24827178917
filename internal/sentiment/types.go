package sentiment

import "context"

// Action is the sentiment pipeline's recommendation
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// RiskLevel tiers the sentiment view by how treacherous current conditions
// look.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// MarketView is a pre-scored market sentiment recommendation.
type MarketView struct {
	Symbol        string    `json:"symbol"`
	Action        Action    `json:"action"`
	Confidence    int       `json:"confidence"` // 0-100
	RiskLevel     RiskLevel `json:"risk_level"`
	Reasoning     []string  `json:"reasoning"`
	CompiledScore float64   `json:"compiled_score"` // -1 (very bearish) to 1 (very bullish)
}

// Provider produces a sentiment view for a symbol. Implementations must fail
// closed: a fetch or parse problem degrades to an error the engine treats as
// "no sentiment this tick", never a panic or a fabricated view.
type Provider interface {
	AnalyzeMarket(ctx context.Context, symbol string) (*MarketView, error)
}

// RiskProfile maps a sentiment confidence percentage to the
// (risk percent, max exposure) pair used when auto-configuring a session.
func RiskProfile(confidence int) (riskPercent, maxExposurePct float64) {
	switch {
	case confidence >= 85:
		return 0.025, 0.55
	case confidence >= 75:
		return 0.02, 0.5
	case confidence >= 65:
		return 0.015, 0.4
	case confidence >= 55:
		return 0.0125, 0.35
	default:
		return 0.01, 0.3
	}
}
