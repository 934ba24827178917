package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"adaptive-trading-bot/internal/engine"
)

// Repository is the trade ledger. It implements engine.TradeStore.
type Repository struct {
	db *DB
}

func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// SaveTrade inserts a closed trade into the ledger.
func (r *Repository) SaveTrade(ctx context.Context, trade *engine.TradeRecord) error {
	query := `
		INSERT INTO trades (symbol, side, quantity, entry_price, exit_price, pnl, close_reason, entry_time, exit_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(
		ctx, query,
		trade.Symbol, string(trade.Side), trade.Quantity, trade.EntryPrice,
		trade.ExitPrice, trade.PnL, trade.Reason, trade.EntryTime, trade.ExitTime,
	)
	if err != nil {
		return fmt.Errorf("inserting trade: %w", err)
	}
	return nil
}

// SaveSessionReport persists the end-of-session summary. Headline metrics
// get their own columns; the full report is kept as JSONB.
func (r *Repository) SaveSessionReport(ctx context.Context, report *engine.Report) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}

	query := `
		INSERT INTO session_reports (start_capital, end_capital, total_pnl, total_trades, win_rate, profit_factor, sharpe_ratio, max_drawdown_pct, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.Pool.Exec(
		ctx, query,
		report.StartCapital, report.EndCapital, report.TotalPnL, report.TotalTrades,
		report.WinRate, report.ProfitFactor, report.SharpeRatio, report.MaxDrawdownPct, payload,
	)
	if err != nil {
		return fmt.Errorf("inserting session report: %w", err)
	}
	return nil
}

// RecentTrades returns the most recent ledger entries, newest first.
func (r *Repository) RecentTrades(ctx context.Context, limit int) ([]engine.TradeRecord, error) {
	query := `
		SELECT symbol, side, quantity, entry_price, exit_price, pnl, close_reason, entry_time, exit_time
		FROM trades
		ORDER BY exit_time DESC
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying trades: %w", err)
	}
	defer rows.Close()

	var trades []engine.TradeRecord
	for rows.Next() {
		var t engine.TradeRecord
		var side string
		if err := rows.Scan(
			&t.Symbol, &side, &t.Quantity, &t.EntryPrice, &t.ExitPrice,
			&t.PnL, &t.Reason, &t.EntryTime, &t.ExitTime,
		); err != nil {
			return nil, fmt.Errorf("scanning trade: %w", err)
		}
		t.Side = engine.Side(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// DailyPnL sums realized pnl for trades closed since the given time.
func (r *Repository) DailyPnL(ctx context.Context, since time.Time) (float64, error) {
	var pnl float64
	query := `SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE exit_time >= $1`
	if err := r.db.Pool.QueryRow(ctx, query, since).Scan(&pnl); err != nil {
		return 0, fmt.Errorf("summing pnl: %w", err)
	}
	return pnl, nil
}
