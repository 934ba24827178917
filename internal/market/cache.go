package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	klineKeyFormat  = "market:%s:klines:%s:%d"
	tickerKeyFormat = "market:%s:ticker24h"
)

// CachedClient decorates a Client with a Redis read-through cache for
// market data. Orders always pass straight through. Redis being down never
// fails a read; the request falls through to the inner client.
type CachedClient struct {
	inner  Client
	rdb    *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedClient(inner Client, rdb *redis.Client, ttl time.Duration, logger zerolog.Logger) *CachedClient {
	return &CachedClient{
		inner:  inner,
		rdb:    rdb,
		ttl:    ttl,
		logger: logger.With().Str("component", "market_cache").Logger(),
	}
}

func (c *CachedClient) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error) {
	key := fmt.Sprintf(klineKeyFormat, symbol, interval, limit)

	if cached, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var candles []Candle
		if err := json.Unmarshal(cached, &candles); err == nil {
			return candles, nil
		}
		// a corrupt entry is dropped and refetched
		c.rdb.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Debug().Err(err).Str("key", key).Msg("Cache read failed, going to the exchange")
	}

	candles, err := c.inner.GetKlines(ctx, symbol, interval, limit)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(candles); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Debug().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}

	return candles, nil
}

// GetCurrentPrice is never cached. A stale price poisons stop and
// take-profit checks.
func (c *CachedClient) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	return c.inner.GetCurrentPrice(ctx, symbol)
}

func (c *CachedClient) GetTicker24h(ctx context.Context, symbol string) (*Ticker24h, error) {
	key := fmt.Sprintf(tickerKeyFormat, symbol)

	if cached, err := c.rdb.Get(ctx, key).Bytes(); err == nil {
		var ticker Ticker24h
		if err := json.Unmarshal(cached, &ticker); err == nil {
			return &ticker, nil
		}
		c.rdb.Del(ctx, key)
	}

	ticker, err := c.inner.GetTicker24h(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(ticker); err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Debug().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}

	return ticker, nil
}

func (c *CachedClient) PlaceOrder(ctx context.Context, symbol string, side OrderSide, quantity float64) (*OrderResult, error) {
	return c.inner.PlaceOrder(ctx, symbol, side, quantity)
}
