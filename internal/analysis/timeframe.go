package analysis

import (
	"context"

	"github.com/rs/zerolog"

	"adaptive-trading-bot/internal/indicators"
	"adaptive-trading-bot/internal/market"
)

// TimeframeSummary condenses one higher timeframe into the values the regime
// detector and strategies consume.
type TimeframeSummary struct {
	Interval   string             `json:"interval"`
	Indicators *indicators.Bundle `json:"indicators"`
	TrendPct   float64            `json:"trend_pct"` // percent price change over the trend window
	Close      float64            `json:"close"`
}

// Analyzer fetches and summarizes the configured higher timeframes.
type Analyzer struct {
	client      market.Client
	intervals   []string
	candleLimit int
	trendWindow int
	logger      zerolog.Logger
}

func NewAnalyzer(client market.Client, intervals []string, candleLimit, trendWindow int, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		client:      client,
		intervals:   intervals,
		candleLimit: candleLimit,
		trendWindow: trendWindow,
		logger:      logger.With().Str("component", "timeframe_analyzer").Logger(),
	}
}

// Summarize produces one summary per configured interval, ordered shortest to
// longest. Intervals that fail to fetch or lack history are skipped, not
// fatal; a partial (or empty) result is valid input downstream.
func (a *Analyzer) Summarize(ctx context.Context, symbol string) []TimeframeSummary {
	summaries := make([]TimeframeSummary, 0, len(a.intervals))

	for _, interval := range a.intervals {
		candles, err := a.client.GetKlines(ctx, symbol, interval, a.candleLimit)
		if err != nil {
			a.logger.Warn().Err(err).Str("interval", interval).Msg("Timeframe fetch failed, skipping")
			continue
		}

		bundle, err := indicators.Compute(candles)
		if err != nil {
			a.logger.Debug().Err(err).Str("interval", interval).Msg("Timeframe skipped")
			continue
		}

		summaries = append(summaries, TimeframeSummary{
			Interval:   interval,
			Indicators: bundle,
			TrendPct:   trendPct(candles, a.trendWindow),
			Close:      candles[len(candles)-1].Close,
		})
	}

	return summaries
}

// trendPct is the percent price change over the last window bars.
func trendPct(candles []market.Candle, window int) float64 {
	if len(candles) <= window || window <= 0 {
		return 0
	}
	ref := candles[len(candles)-1-window].Close
	if ref == 0 {
		return 0
	}
	return (candles[len(candles)-1].Close - ref) / ref * 100
}

// IntervalWeight maps a candle interval to its evidence weight. Longer
// timeframes carry more weight when strategies aggregate cross-timeframe
// agreement.
func IntervalWeight(interval string) float64 {
	switch interval {
	case "1m":
		return 0.8
	case "3m", "5m":
		return 1.0
	case "15m":
		return 1.2
	case "30m":
		return 1.4
	case "1h":
		return 1.5
	case "2h", "4h":
		return 1.8
	case "6h", "8h", "12h", "1d":
		return 2.0
	default:
		return 1.0
	}
}
