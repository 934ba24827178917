package engine

import (
	"math"
	"time"
)

// TradeRecord is the append-only ledger entry created once per position
// close.
type TradeRecord struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	PnL        float64   `json:"pnl"`
	Reason     string    `json:"reason"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
}

// Report is the end-of-session performance summary.
type Report struct {
	StartCapital    float64 `json:"start_capital"`
	EndCapital      float64 `json:"end_capital"`
	TotalPnL        float64 `json:"total_pnl"`
	TotalPnLPct     float64 `json:"total_pnl_pct"`
	TotalTrades     int     `json:"total_trades"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"` // percent
	AvgWin          float64 `json:"avg_win"`
	AvgLoss         float64 `json:"avg_loss"`
	ProfitFactor    float64 `json:"profit_factor"`
	SharpeRatio     float64 `json:"sharpe_ratio"`
	MaxDrawdown     float64 `json:"max_drawdown"`
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"`
	RecoveryFactor  float64 `json:"recovery_factor"`
	BestTrade       float64 `json:"best_trade"`
	WorstTrade      float64 `json:"worst_trade"`
	MaxConsecWins   int     `json:"max_consecutive_wins"`
	MaxConsecLosses int     `json:"max_consecutive_losses"`
	TradesPerHour   float64 `json:"trades_per_hour"`
	AvgTradeMinutes float64 `json:"avg_trade_minutes"`
}

// BuildReport computes the session metrics from the trade ledger. Losing
// counts include break-even trades.
func BuildReport(trades []TradeRecord, startCapital float64, duration time.Duration) *Report {
	r := &Report{StartCapital: startCapital, EndCapital: startCapital}
	if len(trades) == 0 {
		return r
	}

	var wins, losses, pnls []float64
	var durationSum time.Duration
	r.BestTrade = trades[0].PnL
	r.WorstTrade = trades[0].PnL

	for _, t := range trades {
		pnls = append(pnls, t.PnL)
		r.TotalPnL += t.PnL
		if t.PnL > 0 {
			wins = append(wins, t.PnL)
		} else {
			losses = append(losses, t.PnL)
		}
		if t.PnL > r.BestTrade {
			r.BestTrade = t.PnL
		}
		if t.PnL < r.WorstTrade {
			r.WorstTrade = t.PnL
		}
		durationSum += t.ExitTime.Sub(t.EntryTime)
	}

	r.TotalTrades = len(trades)
	r.WinningTrades = len(wins)
	r.LosingTrades = len(losses)
	r.EndCapital = startCapital + r.TotalPnL
	if startCapital > 0 {
		r.TotalPnLPct = r.TotalPnL / startCapital * 100
	}
	r.WinRate = float64(r.WinningTrades) / float64(r.TotalTrades) * 100
	r.AvgWin = meanOf(wins)
	r.AvgLoss = meanOf(losses)
	r.ProfitFactor = profitFactor(wins, losses)
	r.SharpeRatio = sharpeRatio(pnls)

	r.MaxDrawdown, r.MaxDrawdownPct = maxDrawdown(capitalCurve(startCapital, pnls))
	if r.MaxDrawdown > 0 {
		r.RecoveryFactor = r.TotalPnL / r.MaxDrawdown
	}

	r.MaxConsecWins = maxConsecutive(pnls, func(p float64) bool { return p > 0 })
	r.MaxConsecLosses = maxConsecutive(pnls, func(p float64) bool { return p <= 0 })

	if hours := duration.Hours(); hours > 0 {
		r.TradesPerHour = float64(r.TotalTrades) / hours
	}
	r.AvgTradeMinutes = durationSum.Minutes() / float64(r.TotalTrades)

	return r
}

func capitalCurve(start float64, pnls []float64) []float64 {
	curve := make([]float64, 0, len(pnls)+1)
	curve = append(curve, start)
	running := start
	for _, pnl := range pnls {
		running += pnl
		curve = append(curve, running)
	}
	return curve
}

// maxDrawdown returns the deepest peak-to-trough decline over the capital
// curve, in absolute value and as a fraction of the peak.
func maxDrawdown(curve []float64) (float64, float64) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0]
	var maxDD, maxDDPct float64
	for _, capital := range curve {
		if capital > peak {
			peak = capital
		}
		dd := peak - capital
		if dd > maxDD {
			maxDD = dd
			if peak > 0 {
				maxDDPct = dd / peak
			}
		}
	}
	return maxDD, maxDDPct
}

// profitFactor is total wins over total losses. A flawless session has no
// denominator; it reports a large finite value so the report stays
// JSON-serializable.
func profitFactor(wins, losses []float64) float64 {
	totalWins := sumOf(wins)
	totalLosses := math.Abs(sumOf(losses))
	if totalLosses == 0 {
		if totalWins > 0 {
			return 999
		}
		return 0
	}
	return totalWins / totalLosses
}

// sharpeRatio over per-trade returns with a zero risk-free rate.
func sharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := meanOf(returns)
	var variance float64
	for _, r := range returns {
		d := r - m
		variance += d * d
	}
	std := math.Sqrt(variance / float64(len(returns)))
	if std == 0 {
		return 0
	}
	return m / std
}

func maxConsecutive(pnls []float64, match func(float64) bool) int {
	var maxRun, run int
	for _, pnl := range pnls {
		if match(pnl) {
			run++
			if run > maxRun {
				maxRun = run
			}
		} else {
			run = 0
		}
	}
	return maxRun
}

func meanOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return sumOf(values) / float64(len(values))
}

func sumOf(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum
}
