package risk

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"
)

// MinTradesForKelly is the history floor below which dynamic sizing is not
// statistically meaningful. Callers must gate on this and fall back to basic
// sizing.
const MinTradesForKelly = 10

var (
	ErrInvalidStopLoss = errors.New("stop_loss_pct must be greater than 0")
	ErrInvalidTrailing = errors.New("trailing_pct must be greater than 0")
)

// Config holds the risk limits for a session
type Config struct {
	RiskPercent       float64 // fraction of capital risked per trade
	BaseStopLossPct   float64 // floor for the adaptive stop
	MaxStopLossPct    float64 // ceiling for the adaptive stop
	MaxDailyLossPct   float64 // session stops once breached
	MaxExposurePct    float64 // open exposure cap as fraction of capital
	DrawdownPausePct  float64 // pause new entries above this drawdown
	DrawdownResumePct float64 // resume once drawdown falls below this
}

// State is the process-lifetime risk state. It is mutated only by
// UpdateDrawdown and read by ShouldOpenPosition.
type State struct {
	PeakCapital     float64 `json:"peak_capital"`
	CurrentDrawdown float64 `json:"current_drawdown"`
	TradingPaused   bool    `json:"trading_paused"`
}

// Manager owns position sizing, stop placement and the global risk limits.
// It is independent of signal direction.
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	state  State
	logger zerolog.Logger
}

func NewManager(cfg Config, initialCapital float64, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:    cfg,
		state:  State{PeakCapital: initialCapital},
		logger: logger.With().Str("component", "risk_manager").Logger(),
	}
}

// CalculatePositionSize returns the position notional for the given risk
// budget. Monotonically increasing in capital and riskPercent, decreasing in
// stopLossPct.
func (m *Manager) CalculatePositionSize(capital, riskPercent, stopLossPct float64) (float64, error) {
	if stopLossPct <= 0 {
		return 0, ErrInvalidStopLoss
	}
	size := capital * riskPercent / stopLossPct
	return math.Max(size, 0), nil
}

// CalculateDynamicPositionSize sizes with a quarter-Kelly fraction derived
// from recent trade statistics, scaled down as volatility and drawdown rise.
// Degenerate statistics fall back to basic sizing at 2% risk.
func (m *Manager) CalculateDynamicPositionSize(capital, winRate, avgWin, avgLoss, stopLossPct, volatility float64) (float64, error) {
	if stopLossPct <= 0 {
		return 0, ErrInvalidStopLoss
	}
	if winRate <= 0 || winRate >= 1 || avgLoss == 0 {
		return m.CalculatePositionSize(capital, 0.02, stopLossPct)
	}

	b := math.Abs(avgWin / avgLoss)
	kelly := (winRate*b - (1 - winRate)) / b
	fraction := clamp(0.25*kelly, 0.01, 0.05)

	// volatile markets and active drawdowns both shrink the bet
	fraction /= 1 + 10*volatility

	m.mu.RLock()
	inDrawdown := m.state.CurrentDrawdown >= 0.05
	m.mu.RUnlock()
	if inDrawdown {
		fraction /= 2
	}

	return m.CalculatePositionSize(capital, fraction, stopLossPct)
}

// AdaptiveStopPct widens the stop with ATR but never below the configured
// base nor beyond the configured ceiling.
func (m *Manager) AdaptiveStopPct(entryPrice, atr float64) float64 {
	if entryPrice <= 0 {
		return m.cfg.BaseStopLossPct
	}
	pct := math.Max(m.cfg.BaseStopLossPct, 2*atr/entryPrice)
	return clamp(pct, m.cfg.BaseStopLossPct, m.cfg.MaxStopLossPct)
}

// ShouldOpenPosition is the entry gate: false while paused or at the
// exposure cap.
func (m *Manager) ShouldOpenPosition(currentExposure, capital float64) bool {
	m.mu.RLock()
	paused := m.state.TradingPaused
	m.mu.RUnlock()

	if paused {
		return false
	}
	if capital <= 0 {
		return false
	}
	return currentExposure/capital < m.cfg.MaxExposurePct
}

// UpdateDrawdown advances the capital peak and recomputes the drawdown,
// pausing trading above the pause threshold and resuming below the resume
// threshold. The gap between the two prevents flapping at the boundary.
func (m *Manager) UpdateDrawdown(currentCapital float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if currentCapital > m.state.PeakCapital {
		m.state.PeakCapital = currentCapital
	}
	if m.state.PeakCapital > 0 {
		m.state.CurrentDrawdown = (m.state.PeakCapital - currentCapital) / m.state.PeakCapital
	}

	if !m.state.TradingPaused && m.state.CurrentDrawdown > m.cfg.DrawdownPausePct {
		m.state.TradingPaused = true
		m.logger.Warn().
			Float64("drawdown", m.state.CurrentDrawdown).
			Msg("Drawdown limit hit, pausing new entries")
	} else if m.state.TradingPaused && m.state.CurrentDrawdown < m.cfg.DrawdownResumePct {
		m.state.TradingPaused = false
		m.logger.Info().
			Float64("drawdown", m.state.CurrentDrawdown).
			Msg("Drawdown recovered, resuming entries")
	}
}

// CheckDailyLimits returns false once today's realized losses exceed the
// daily loss cap.
func (m *Manager) CheckDailyLimits(todayPnLs []float64, capital float64) bool {
	if len(todayPnLs) == 0 || capital <= 0 {
		return true
	}
	total := 0.0
	for _, pnl := range todayPnLs {
		total += pnl
	}
	lossPct := math.Abs(math.Min(total, 0)) / capital
	if lossPct >= m.cfg.MaxDailyLossPct {
		m.logger.Error().
			Float64("loss_pct", lossPct).
			Float64("limit", m.cfg.MaxDailyLossPct).
			Msg("Daily loss limit breached")
		return false
	}
	return true
}

// TrailingStop returns the stop implied by the running peak of a long
// position; shorts mirror the result across their trough.
func (m *Manager) TrailingStop(extremePrice, trailingPct float64) (float64, error) {
	if trailingPct <= 0 {
		return 0, ErrInvalidTrailing
	}
	return extremePrice * (1 - trailingPct), nil
}

// State returns a copy of the current risk state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Snapshot reports the state for the status API.
func (m *Manager) Snapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return map[string]interface{}{
		"peak_capital":     m.state.PeakCapital,
		"current_drawdown": fmt.Sprintf("%.2f%%", m.state.CurrentDrawdown*100),
		"trading_paused":   m.state.TradingPaused,
		"max_exposure_pct": m.cfg.MaxExposurePct,
		"max_daily_loss":   m.cfg.MaxDailyLossPct,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
