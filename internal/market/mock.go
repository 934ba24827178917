package market

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// MockClient simulates the exchange for dry runs. Prices follow a slow
// random walk; orders always fill at the simulated price. The decision loop
// runs against it unchanged.
type MockClient struct {
	mu         sync.RWMutex
	prices     map[string]float64
	lastUpdate time.Time
	rng        *rand.Rand
	logger     zerolog.Logger
}

func NewMockClient(logger zerolog.Logger) *MockClient {
	return &MockClient{
		prices: map[string]float64{
			"BTCUSDT": 104500.00,
			"ETHUSDT": 3900.00,
			"BNBUSDT": 710.00,
			"SOLUSDT": 220.00,
			"XRPUSDT": 2.35,
			"ADAUSDT": 1.05,
		},
		lastUpdate: time.Now(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:     logger.With().Str("component", "mock_client").Logger(),
	}
}

// updatePrices applies a small random walk, at most once per second.
func (mc *MockClient) updatePrices() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if time.Since(mc.lastUpdate) < time.Second {
		return
	}
	for symbol, price := range mc.prices {
		change := (mc.rng.Float64() - 0.5) * 0.01
		mc.prices[symbol] = price * (1 + change)
	}
	mc.lastUpdate = time.Now()
}

func (mc *MockClient) basePrice(symbol string) float64 {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	if price, ok := mc.prices[symbol]; ok {
		return price
	}
	return 100.0
}

// GetKlines generates a synthetic candle history ending at the current
// simulated price.
func (mc *MockClient) GetKlines(_ context.Context, symbol, interval string, limit int) ([]Candle, error) {
	mc.updatePrices()
	base := mc.basePrice(symbol)
	step := intervalDuration(interval)

	mc.mu.Lock()
	defer mc.mu.Unlock()

	candles := make([]Candle, limit)
	now := time.Now()
	price := base
	for i := limit - 1; i >= 0; i-- {
		openTime := now.Add(-time.Duration(limit-i) * step)

		open := price
		change := (mc.rng.Float64() - 0.5) * 0.02
		close := open * (1 + change)
		high := math.Max(open, close) * (1 + mc.rng.Float64()*0.005)
		low := math.Min(open, close) * (1 - mc.rng.Float64()*0.005)

		candles[i] = Candle{
			OpenTime:  openTime.UnixMilli(),
			Open:      open,
			High:      high,
			Low:       low,
			Close:     close,
			Volume:    1000 + mc.rng.Float64()*5000,
			CloseTime: openTime.Add(step).UnixMilli(),
		}
		price = close
	}

	return candles, nil
}

func (mc *MockClient) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	mc.updatePrices()
	return mc.basePrice(symbol), nil
}

func (mc *MockClient) GetTicker24h(_ context.Context, symbol string) (*Ticker24h, error) {
	mc.updatePrices()
	price := mc.basePrice(symbol)

	mc.mu.Lock()
	change := (mc.rng.Float64() - 0.5) * price * 0.1
	volume := 1000000 + mc.rng.Float64()*10000000
	mc.mu.Unlock()

	return &Ticker24h{
		Symbol:             symbol,
		PriceChange:        change,
		PriceChangePercent: change / price * 100,
		LastPrice:          price,
		Volume:             volume,
		QuoteVolume:        price * volume,
	}, nil
}

// PlaceOrder fills instantly at the simulated price.
func (mc *MockClient) PlaceOrder(_ context.Context, symbol string, side OrderSide, quantity float64) (*OrderResult, error) {
	mc.updatePrices()
	price := mc.basePrice(symbol)

	mc.mu.Lock()
	orderID := mc.rng.Int63n(1000000)
	mc.mu.Unlock()

	result := &OrderResult{
		Symbol:        symbol,
		OrderID:       orderID,
		ClientOrderID: uuid.NewString(),
		Status:        "FILLED",
		Side:          side,
		ExecutedQty:   quantity,
		Price:         price,
		TransactTime:  time.Now().UnixMilli(),
	}

	mc.logger.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("quantity", quantity).
		Float64("price", price).
		Msg("Simulated order filled")
	return result, nil
}

func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "1h":
		return time.Hour
	case "4h":
		return 4 * time.Hour
	case "1d":
		return 24 * time.Hour
	default:
		return time.Minute
	}
}
