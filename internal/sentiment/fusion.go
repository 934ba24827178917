package sentiment

import (
	"math"
	"strings"
	"time"

	"adaptive-trading-bot/internal/strategy"
)

const (
	cancelFloorHighRisk = 0.45
	cancelFloor         = 0.40
	agreementBoost      = 1.2
	lowRiskBoost        = 1.05
	confidenceCap       = 0.98
	strategyWeight      = 0.7
	sentimentWeight     = 0.3
)

// Fuser blends strategy signals with the sentiment view. The strategy
// dominates on conflict; sentiment can cancel a trade but never reverse it.
type Fuser struct {
	minSoloConfidence int // floor for sentiment-only trades
}

func NewFuser(minSoloConfidence int) *Fuser {
	return &Fuser{minSoloConfidence: minSoloConfidence}
}

// Fuse combines a strategy signal and a sentiment view into the final
// actionable signal. Either input may be nil; a nil result means hold.
func (f *Fuser) Fuse(sig *strategy.Signal, view *MarketView) *strategy.Signal {
	if view == nil || view.Action == ActionHold {
		return sig
	}
	if sig == nil {
		return f.sentimentOnly(view)
	}

	sentConf := float64(view.Confidence) / 100
	agree := directionsAgree(sig.Action, view.Action)

	if !agree {
		// penalize the sentiment leg, keep the strategy's direction
		switch view.RiskLevel {
		case RiskHigh:
			sentConf *= 0.5
		case RiskMedium:
			sentConf *= 0.75
		}
	}

	combined := strategyWeight*sig.Confidence + sentimentWeight*sentConf
	if agree {
		combined *= agreementBoost
		if view.RiskLevel == RiskLow {
			combined *= lowRiskBoost
		}
	}
	combined = math.Min(combined, confidenceCap)

	if !agree && view.RiskLevel == RiskHigh && combined < cancelFloorHighRisk {
		return nil
	}
	if combined < cancelFloor {
		return nil
	}

	fused := *sig
	fused.Confidence = combined
	if agree {
		fused.Reason = sig.Reason + "; sentiment agrees (" + strings.Join(view.Reasoning, ", ") + ")"
	} else {
		fused.Reason = sig.Reason + "; sentiment disagrees, penalized"
	}
	return &fused
}

// sentimentOnly trades on sentiment alone, which demands a higher bar.
func (f *Fuser) sentimentOnly(view *MarketView) *strategy.Signal {
	if view.Confidence < f.minSoloConfidence {
		return nil
	}

	var action strategy.Action
	switch view.Action {
	case ActionBuy:
		action = strategy.ActionBuy
	case ActionSell:
		action = strategy.ActionSell
	default:
		return nil
	}

	return &strategy.Signal{
		Symbol:     view.Symbol,
		Action:     action,
		Confidence: float64(view.Confidence) / 100,
		Reason:     "Sentiment: " + strings.Join(view.Reasoning, "; "),
		Timestamp:  time.Now(),
	}
}

func directionsAgree(a strategy.Action, b Action) bool {
	return (a == strategy.ActionBuy && b == ActionBuy) ||
		(a == strategy.ActionSell && b == ActionSell)
}
