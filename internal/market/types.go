package market

import "context"

// Candle represents a single OHLCV candlestick
type Candle struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open,string"`
	High      float64 `json:"high,string"`
	Low       float64 `json:"low,string"`
	Close     float64 `json:"close,string"`
	Volume    float64 `json:"volume,string"`
	CloseTime int64   `json:"closeTime"`
}

// Ticker24h represents 24hr rolling price change statistics
type Ticker24h struct {
	Symbol             string  `json:"symbol"`
	PriceChange        float64 `json:"priceChange,string"`
	PriceChangePercent float64 `json:"priceChangePercent,string"`
	LastPrice          float64 `json:"lastPrice,string"`
	Volume             float64 `json:"volume,string"`
	QuoteVolume        float64 `json:"quoteVolume,string"`
}

// OrderSide is the direction of an order
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderResult is the exchange's response to a placed order
type OrderResult struct {
	Symbol        string    `json:"symbol"`
	OrderID       int64     `json:"orderId"`
	ClientOrderID string    `json:"clientOrderId"`
	Status        string    `json:"status"`
	Side          OrderSide `json:"side"`
	ExecutedQty   float64   `json:"executedQty,string"`
	Price         float64   `json:"price,string"`
	TransactTime  int64     `json:"transactTime"`
}

// Client is the market data and order execution interface. Both the live
// exchange client and the dry-run mock satisfy it, so the decision loop is
// identical in either mode.
type Client interface {
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	GetTicker24h(ctx context.Context, symbol string) (*Ticker24h, error)
	PlaceOrder(ctx context.Context, symbol string, side OrderSide, quantity float64) (*OrderResult, error)
}

// Closes extracts the close series from a candle window.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// Highs extracts the high series from a candle window.
func Highs(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.High
	}
	return out
}

// Lows extracts the low series from a candle window.
func Lows(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Low
	}
	return out
}
