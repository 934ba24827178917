package market

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaperClient passes market data through to the live exchange but simulates
// order fills locally, for dry runs against real prices.
type PaperClient struct {
	inner  Client
	logger zerolog.Logger
}

func NewPaperClient(inner Client, logger zerolog.Logger) *PaperClient {
	return &PaperClient{
		inner:  inner,
		logger: logger.With().Str("component", "paper_client").Logger(),
	}
}

func (p *PaperClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	return p.inner.GetKlines(ctx, symbol, interval, limit)
}

func (p *PaperClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return p.inner.GetCurrentPrice(ctx, symbol)
}

func (p *PaperClient) GetTicker24h(ctx context.Context, symbol string) (*Ticker24h, error) {
	return p.inner.GetTicker24h(ctx, symbol)
}

// PlaceOrder fills at the live price without touching the exchange.
func (p *PaperClient) PlaceOrder(ctx context.Context, symbol string, side OrderSide, quantity float64) (*OrderResult, error) {
	price, err := p.inner.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}

	p.logger.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("quantity", quantity).
		Float64("price", price).
		Msg("Paper order filled")

	return &OrderResult{
		Symbol:        symbol,
		ClientOrderID: uuid.NewString(),
		Status:        "FILLED",
		Side:          side,
		ExecutedQty:   quantity,
		Price:         price,
		TransactTime:  time.Now().UnixMilli(),
	}, nil
}
